// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

// Package xrecover reads the cross-reference table and trailer of a PDF file.
//
// # Overview
//
// A PDF file ends with a startxref pointer to its cross-reference data: a
// classic xref table or an xref stream, possibly chained to older sections
// through /Prev. The Reader follows that chain and builds a Table mapping
// each object number to the file position of its definition.
//
// Damaged files are common. When the pointer is missing, a section cannot
// be parsed, the trailer has no /Root, or the offsets do not point at the
// objects they claim to, the Reader discards what it read and rebuilds the
// table by scanning the whole file for "num gen obj" lines. It then locates
// a trailer dictionary by searching near the start and the end of the file.
// Everything unusual met along the way is reported as a Diagnostic.
//
// Offsets in the Table are relative to the %PDF- header, so files with junk
// before the header resolve the same way as clean ones.
package xrecover

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/sassoftware/viya-pdf-xrecover/logger"
)

const (
	// headerSearchSize bounds the junk tolerated before %PDF-.
	headerSearchSize = 1024
	startxrefChunk   = 1024
	objectProbeSize  = 64
)

// A Reader is the cross-reference data of a single PDF file.
type Reader struct {
	f         io.ReaderAt
	end       int64
	xref      *Table
	trailer   *Trailer
	recovered bool
	diags     []Diagnostic
}

// Table returns the object table.
func (r *Reader) Table() *Table { return r.xref }

// Trailer returns the trailer dictionary, or nil when none was found.
func (r *Reader) Trailer() *Trailer { return r.trailer }

// Recovered reports whether the table was rebuilt by scanning the file.
func (r *Reader) Recovered() bool { return r.recovered }

// Diagnostics returns the events reported while loading, in order.
func (r *Reader) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}

// Size returns the file size.
func (r *Reader) Size() int64 { return r.end }

// NewReader loads the cross-reference data of the file f with the given
// total size using the default configuration.
func NewReader(f io.ReaderAt, size int64) (*Reader, error) {
	return NewReaderConfig(f, size, nil)
}

// NewReaderConfig is like NewReader with explicit settings. A nil cfg
// selects NewDefaultConfig.
func NewReaderConfig(f io.ReaderAt, size int64, cfg *Config) (*Reader, error) {
	rc, err := newRecovery(f, size, cfg)
	if err != nil {
		return nil, err
	}

	logger.Debug("Checking xref table + trailer", true)
	trailer, err := rc.readPrimary()
	if err == nil {
		return rc.result(trailer, false)
	}
	return rc.result(rc.recoverXref(err), true)
}

// CheckHeader returns the offset of the %PDF- header, which may follow a
// byte order mark or other junk.
func CheckHeader(f io.ReaderAt, size int64) (int64, error) {
	n := int64(headerSearchSize)
	if size < n {
		n = size
	}
	if n <= 0 {
		return 0, opError("check header", 0, fmt.Errorf("%w: empty", ErrNotPDF))
	}
	buf := make([]byte, n)
	m, err := f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, opError("check header", 0, err)
	}
	buf = buf[:m]
	p := bytes.Index(buf, []byte("%PDF-"))
	if p < 0 {
		return 0, opError("check header", 0, fmt.Errorf("%w: missing %%PDF- header", ErrNotPDF))
	}

	line := buf[p:]
	if end := bytes.IndexAny(line, "\r\n"); end >= 0 {
		line = line[:end]
	}
	line = bytes.TrimRight(line, " \t\x00")
	var major, minor int
	if _, err := fmt.Sscanf(string(line), "%%PDF-%d.%d", &major, &minor); err != nil {
		logger.Debug(fmt.Sprintf("header: malformed version %q", line))
	} else if !((major == 1 && minor >= 0 && minor <= 7) || (major == 2 && minor == 0)) {
		logger.Debug(fmt.Sprintf("header: unusual PDF version %d.%d", major, minor))
	} else {
		logger.Debug(fmt.Sprintf("header: PDF-%d.%d at %d", major, minor, p), true)
	}
	return int64(p), nil
}

// FindStartXref locates and parses the "startxref" pointer near the end of the file.
// Returns the byte offset where the cross-reference table/stream begins.
func FindStartXref(f io.ReaderAt, size int64) (int64, error) {
	n := int64(startxrefChunk)
	if size < n {
		n = size
	}
	buf := make([]byte, n)
	m, err := f.ReadAt(buf, size-n)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, opError("find startxref", size-n, err)
	}
	buf = buf[:m]
	i := findLastLine(buf, "startxref")
	if i < 0 {
		return 0, opError("find startxref", -1, ErrNoStartxref)
	}
	pos := size - n + int64(i)
	s := newScanner(f, size)
	s.seek(pos + int64(len(kwStartxref)))
	startxref, ok := s.readInt()
	if !ok || startxref < 0 {
		return 0, opError("find startxref", pos, fmt.Errorf("%w: not followed by an offset", ErrNoStartxref))
	}
	logger.Debug(fmt.Sprintf("xref: FindStartXref -- startxref=%d", startxref), true)
	return startxref, nil
}

// findLastLine searches backwards in buf for the last occurrence of the
// keyword s that is followed, after optional PDF whitespace, by an end of
// line. Producers often put spaces, tabs or NULs between the keyword and
// its newline.
func findLastLine(buf []byte, s string) int {
	bs := []byte(s)
	for end := len(buf); end > 0; {
		i := bytes.LastIndex(buf[:end], bs)
		if i < 0 {
			break
		}
		j := SkipWhitespace(buf, i+len(bs))
		if EndsWithEOL(buf, i+len(bs), j) {
			return i
		}
		end = i
	}
	return -1
}

// SkipWhitespace advances j past all PDF whitespace.
func SkipWhitespace(buf []byte, j int) int {
	for j < len(buf) && isSpace(buf[j]) {
		j++
	}
	return j
}

// EndsWithEOL checks if the last skipped char is CR or LF.
func EndsWithEOL(buf []byte, start, end int) bool {
	if end > start {
		last := buf[end-1]
		return last == '\n' || last == '\r'
	}
	return false
}

// An xrefSection is one cross-reference section as read from the file.
type xrefSection struct {
	offset  int64
	entries []rawEntry
	trailer dict
}

type rawEntry struct {
	num    int
	stream int
	offset int64
	gen    int64
	free   bool
}

func usedEntries(entries []rawEntry) []rawEntry {
	var used []rawEntry
	for _, e := range entries {
		if !e.free {
			used = append(used, e)
		}
	}
	return used
}

// readPrimary follows the startxref pointer and the /Prev chain, records
// the sections oldest first so later updates win, and checks that the
// recorded offsets point at their objects. Whatever was read is recorded
// even when a later section fails, for use as tie-breaker by a rescan.
func (rc *recovery) readPrimary() (*Trailer, error) {
	startxref, err := FindStartXref(rc.s.f, rc.s.size)
	if err != nil {
		return nil, err
	}

	sections, trailer, err := rc.readChain(startxref)
	for i := len(sections) - 1; i >= 0; i-- {
		for _, e := range sections[i].entries {
			if e.free {
				rc.table.free(e.num, e.gen)
				continue
			}
			rc.table.record(e.num, e.stream, e.offset, e.gen, false, nil, rc.diags)
		}
	}
	if err != nil {
		return nil, err
	}
	if !hasRoot(trailer.d) {
		return nil, opError("read trailer", trailer.Offset, ErrTrailerNoRoot)
	}
	if bad := rc.checkOffsets(); bad > 0 {
		return nil, opError("check xref", -1, fmt.Errorf("%w: %d of %d entries do not point at their objects", ErrMalformedXref, bad, rc.table.Count()))
	}
	logger.Debug(fmt.Sprintf("xref: %d sections, %d objects", len(sections), rc.table.Count()), true)
	return trailer, nil
}

// readChain returns the sections newest first along with the newest trailer.
func (rc *recovery) readChain(startxref int64) ([]xrefSection, *Trailer, error) {
	var sections []xrefSection
	var newest *Trailer
	seen := make(map[int64]bool)
	for off := startxref; ; {
		if seen[off] {
			rc.diags.errorf(rc.base+off, "xref Prev chain revisits offset %d", off)
			break
		}
		seen[off] = true
		secs, trailer, err := rc.readXrefSection(off)
		if err != nil {
			return sections, newest, err
		}
		sections = append(sections, secs...)
		if newest == nil {
			newest = &Trailer{Offset: rc.base + off, d: trailer}
		}
		prev, ok := trailer[name("Prev")]
		if !ok || prev == nil {
			break
		}
		p, ok := prev.(int64)
		if !ok {
			return sections, newest, opError("read xref", rc.base+off, fmt.Errorf("%w: Prev is not an integer: %v", ErrMalformedXref, objfmt(prev)))
		}
		logger.Debug(fmt.Sprintf("xref: following Prev to %d", p), true)
		off = p
	}
	return sections, newest, nil
}

// readXrefSection reads the table or stream at off. A classic table with
// an /XRefStm also yields that stream, ordered so it is applied after the table.
func (rc *recovery) readXrefSection(off int64) ([]xrefSection, dict, error) {
	s := rc.s
	pos := rc.base + off
	if pos >= s.size {
		return nil, nil, opError("read xref", pos, fmt.Errorf("%w: offset beyond end of file", ErrMalformedXref))
	}
	s.seek(pos)
	tok := s.readToken()
	if tok == keyword("xref") {
		logger.Debug("Found Xref Table", true)
		sec, err := rc.readXrefTable(pos)
		if err != nil {
			return nil, nil, err
		}
		secs := []xrefSection{sec}
		if x, ok := sec.trailer[name("XRefStm")].(int64); ok {
			stm, err := rc.readXrefStream(x)
			if err != nil {
				rc.diags.warnf(rc.base+x, "ignoring unreadable XRefStm: %v", err)
			} else {
				// free entries of a hybrid table stand in for compressed objects
				sec.entries = usedEntries(sec.entries)
				secs = []xrefSection{stm, sec}
			}
		}
		return secs, sec.trailer, nil
	}
	if _, ok := tok.(int64); ok {
		logger.Debug("Found Xref Stream", true)
		sec, err := rc.readXrefStream(off)
		if err != nil {
			return nil, nil, err
		}
		return []xrefSection{sec}, sec.trailer, nil
	}
	return nil, nil, opError("read xref", pos, fmt.Errorf("%w: neither table nor stream: %v", ErrMalformedXref, objfmt(tok)))
}

func (rc *recovery) readXrefTable(pos int64) (xrefSection, error) {
	s := rc.s
	sec := xrefSection{offset: pos}
	for {
		tok := s.readToken()
		if tok == keyword("trailer") {
			break
		}
		start, ok1 := tok.(int64)
		count, ok2 := s.readInt()
		if !ok1 || !ok2 || start < 0 || count < 0 {
			return sec, opError("read xref table", s.tell(), fmt.Errorf("%w: bad subsection header", ErrMalformedXref))
		}
		if count > s.remaining()/int64(rc.cfg.MinXrefEntryBytes) {
			return sec, opError("read xref table", s.tell(), fmt.Errorf("%w: %d entries cannot fit in %d bytes", ErrMalformedXref, count, s.remaining()))
		}
		if err := rc.checkSubsection(start, count); err != nil {
			return sec, opError("read xref table", s.tell(), err)
		}
		for i := int64(0); i < count; i++ {
			off, okOff := s.readInt()
			gen, okGen := s.readInt()
			alloc, okAlloc := s.readToken().(keyword)
			if !okOff || !okGen || !okAlloc {
				return sec, opError("read xref table", s.tell(), fmt.Errorf("%w: bad entry in subsection %d", ErrMalformedXref, start))
			}
			switch alloc {
			case "n":
				sec.entries = append(sec.entries, rawEntry{num: int(start + i), stream: NotInStream, offset: off, gen: gen})
			case "f":
				sec.entries = append(sec.entries, rawEntry{num: int(start + i), gen: gen, free: true})
			default:
				return sec, opError("read xref table", s.tell(), fmt.Errorf("%w: unexpected entry type %q", ErrMalformedXref, alloc))
			}
		}
	}
	trailer, ok := s.readObject().(dict)
	if !ok {
		return sec, opError("read xref table", s.tell(), fmt.Errorf("%w: no trailer dictionary", ErrMalformedXref))
	}
	sec.trailer = trailer
	logger.Debug(fmt.Sprintf("xref: table at %d with %d entries", pos, len(sec.entries)), true)
	return sec, nil
}

func (rc *recovery) readXrefStream(off int64) (xrefSection, error) {
	s := rc.s
	pos := rc.base + off
	sec := xrefSection{offset: pos}
	s.seek(pos)
	od, ok := s.readObject().(objdef)
	if !ok {
		return sec, opError("read xref stream", pos, fmt.Errorf("%w: no object definition", ErrMalformedXref))
	}
	strm, ok := od.obj.(stream)
	if !ok || strm.hdr[name("Type")] != name("XRef") {
		return sec, opError("read xref stream", pos, fmt.Errorf("%w: object %d is not an XRef stream", ErrMalformedXref, od.ptr.id))
	}
	size, ok := strm.hdr[name("Size")].(int64)
	if !ok || size < 0 {
		return sec, opError("read xref stream", pos, fmt.Errorf("%w: missing Size", ErrMalformedXref))
	}

	index, _ := strm.hdr[name("Index")].(array)
	if index == nil {
		index = array{int64(0), size}
	}
	if len(index)%2 != 0 {
		return sec, opError("read xref stream", pos, fmt.Errorf("%w: invalid Index array %v", ErrMalformedXref, objfmt(index)))
	}
	ww, _ := strm.hdr[name("W")].(array)
	var w []int
	for _, x := range ww {
		i, ok := x.(int64)
		if !ok || i < 0 || i > 8 {
			return sec, opError("read xref stream", pos, fmt.Errorf("%w: invalid W array %v", ErrMalformedXref, objfmt(ww)))
		}
		w = append(w, int(i))
	}
	if len(w) < 3 {
		return sec, opError("read xref stream", pos, fmt.Errorf("%w: invalid W array %v", ErrMalformedXref, objfmt(ww)))
	}

	data, err := rc.streamData(strm)
	if err != nil {
		return sec, opError("read xref stream", pos, err)
	}
	buf := make([]byte, w[0]+w[1]+w[2])
	for len(index) > 0 {
		start, ok1 := index[0].(int64)
		n, ok2 := index[1].(int64)
		if !ok1 || !ok2 || start < 0 || n < 0 {
			return sec, opError("read xref stream", pos, fmt.Errorf("%w: malformed Index pair %v %v", ErrMalformedXref, objfmt(index[0]), objfmt(index[1])))
		}
		index = index[2:]
		if err := rc.checkSubsection(start, n); err != nil {
			return sec, opError("read xref stream", pos, err)
		}
		if n > 0 && len(buf) == 0 {
			return sec, opError("read xref stream", pos, fmt.Errorf("%w: W array %v has zero width", ErrMalformedXref, objfmt(ww)))
		}
		for i := int64(0); i < n; i++ {
			if _, err := io.ReadFull(data, buf); err != nil {
				return sec, opError("read xref stream", pos, fmt.Errorf("%w: %v", ErrMalformedXref, err))
			}
			v1 := decodeInt(buf[0:w[0]])
			if w[0] == 0 {
				v1 = 1
			}
			v2 := decodeInt(buf[w[0] : w[0]+w[1]])
			v3 := decodeInt(buf[w[0]+w[1]:])
			x := int(start + i)
			switch v1 {
			case 0:
				sec.entries = append(sec.entries, rawEntry{num: x, gen: v3, free: true})
			case 1:
				sec.entries = append(sec.entries, rawEntry{num: x, stream: NotInStream, offset: v2, gen: v3})
			case 2:
				sec.entries = append(sec.entries, rawEntry{num: x, stream: int(v2), offset: v3})
			default:
				rc.diags.warnf(pos, "object %d: unknown xref stream entry type %d", x, v1)
			}
		}
	}
	sec.trailer = strm.hdr
	logger.Debug(fmt.Sprintf("xref: stream %d at %d with %d entries", od.ptr.id, pos, len(sec.entries)), true)
	return sec, nil
}

// checkSubsection rejects a run of count objects starting at start that
// reaches past MaxObjectNumber.
func (rc *recovery) checkSubsection(start, count int64) error {
	limit := int64(rc.cfg.MaxObjectNumber)
	if start > limit || count > limit-start+1 {
		return fmt.Errorf("%w: %d objects from %d exceed limit %d", ErrMalformedXref, count, start, limit)
	}
	return nil
}

func decodeInt(b []byte) int64 {
	var x int64
	for _, c := range b {
		x = x<<8 | int64(c)
	}
	return x
}

// streamData returns the decoded content of a stream whose /Length is direct.
func (rc *recovery) streamData(strm stream) (io.Reader, error) {
	length, ok := strm.hdr[name("Length")].(int64)
	if !ok || length < 0 {
		return nil, fmt.Errorf("%w: stream Length is not a direct integer", ErrMalformedXref)
	}
	rc.s.seek(strm.offset)
	raw := rc.s.readBlock(int(length))
	if int64(len(raw)) < length {
		return nil, fmt.Errorf("%w: stream truncated at %d of %d bytes", ErrMalformedXref, len(raw), length)
	}

	var rd io.Reader = bytes.NewReader(raw)
	var filters []name
	switch f := strm.hdr[name("Filter")].(type) {
	case name:
		filters = append(filters, f)
	case array:
		for _, x := range f {
			if nm, ok := x.(name); ok {
				filters = append(filters, nm)
			}
		}
	}
	var params []dict
	switch p := strm.hdr[name("DecodeParms")].(type) {
	case dict:
		params = append(params, p)
	case array:
		for _, x := range p {
			d, _ := x.(dict)
			params = append(params, d)
		}
	}
	for i, f := range filters {
		var param dict
		if i < len(params) {
			param = params[i]
		}
		var err error
		if rd, err = applyFilter(rd, f, param); err != nil {
			return nil, err
		}
	}
	return rd, nil
}

func applyFilter(rd io.Reader, f name, param dict) (io.Reader, error) {
	switch f {
	case "FlateDecode":
		zr, err := zlib.NewReader(rd)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedXref, err)
		}
		logger.Debug("filter: FlateDecode (decoder initialized)", true)
		pred, _ := param[name("Predictor")].(int64)
		columns, ok := param[name("Columns")].(int64)
		if !ok || columns < 1 {
			columns = 1
		}
		switch {
		case pred <= 1:
			return zr, nil
		case pred >= 10 && pred <= 15:
			return &pngUpReader{r: zr, hist: make([]byte, 1+columns), tmp: make([]byte, 1+columns)}, nil
		}
		return nil, fmt.Errorf("%w: unsupported predictor %d", ErrMalformedXref, pred)
	}
	return nil, fmt.Errorf("%w: unsupported filter %s", ErrMalformedXref, f)
}

// pngUpReader undoes PNG row prediction for rows tagged None or Up, the
// only ones xref stream writers use.
type pngUpReader struct {
	r    io.Reader
	hist []byte
	tmp  []byte
	pend []byte
}

func (r *pngUpReader) Read(b []byte) (int, error) {
	n := 0
	for len(b) > 0 {
		if len(r.pend) > 0 {
			m := copy(b, r.pend)
			n += m
			b = b[m:]
			r.pend = r.pend[m:]
			continue
		}
		_, err := io.ReadFull(r.r, r.tmp)
		if err != nil {
			return n, err
		}
		switch r.tmp[0] {
		case 0:
			copy(r.hist[1:], r.tmp[1:])
		case 2:
			for i := 1; i < len(r.tmp); i++ {
				r.hist[i] += r.tmp[i]
			}
		default:
			return n, fmt.Errorf("%w: unsupported PNG row filter %d", ErrMalformedXref, r.tmp[0])
		}
		r.pend = r.hist[1:]
	}
	return n, nil
}

// checkOffsets counts the direct entries whose offset does not point at the
// definition of the object they name.
func (rc *recovery) checkOffsets() int {
	bad := 0
	for _, num := range rc.table.Objects() {
		pos, ok := rc.table.Position(num)
		if !ok {
			continue
		}
		if !rc.isObjectAt(pos, num) {
			logger.Debug(fmt.Sprintf("xref: object %d not found at %d", num, pos))
			bad++
		}
	}
	return bad
}

// isObjectAt reports whether "num gen obj" starts at pos, allowing leading whitespace.
func (rc *recovery) isObjectAt(pos int64, num int) bool {
	if pos < 0 || pos >= rc.s.size {
		return false
	}
	rc.s.seek(pos)
	buf := rc.s.readBlock(objectProbeSize)
	buf = buf[SkipWhitespace(buf, 0):]
	if end := bytes.IndexAny(buf, "\r\n"); end >= 0 {
		buf = buf[:end]
	}
	n, _, ok := parseObjectHeader(buf)
	return ok && n == int64(num)
}
