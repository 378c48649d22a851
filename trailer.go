// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/sassoftware/viya-pdf-xrecover/logger"
)

var (
	kwXref      = []byte("xref")
	kwStartxref = []byte("startxref")
	kwTrailer   = []byte("trailer")
)

// A Ref is an indirect object reference such as "12 0 R".
type Ref struct {
	Num uint32
	Gen uint16
}

func (r Ref) String() string {
	return fmt.Sprintf("%d %d R", r.Num, r.Gen)
}

// A Trailer is a trailer dictionary found in the file.
type Trailer struct {
	// Offset is where the trailer was found: just past the trailer
	// keyword, or the start of the xref section that carries it.
	Offset int64
	d      dict
}

// Root returns the document catalog reference.
func (t *Trailer) Root() (Ref, bool) {
	if t == nil {
		return Ref{}, false
	}
	ptr, ok := t.d[name("Root")].(objptr)
	if !ok {
		return Ref{}, false
	}
	return Ref{Num: ptr.id, Gen: ptr.gen}, true
}

// Size returns the /Size entry.
func (t *Trailer) Size() (int64, bool) {
	if t == nil {
		return 0, false
	}
	n, ok := t.d[name("Size")].(int64)
	return n, ok
}

// Keys returns the sorted dictionary keys.
func (t *Trailer) Keys() []string {
	if t == nil {
		return nil
	}
	keys := []string{} // not nil
	for k := range t.d {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value stored under key: nil, bool, int64, float64, string,
// a name as "/Name", a Ref, or a formatted string for composite values.
func (t *Trailer) Get(key string) interface{} {
	if t == nil {
		return nil
	}
	switch x := t.d[name(key)].(type) {
	case objptr:
		return Ref{Num: x.id, Gen: x.gen}
	case name:
		return "/" + string(x)
	case dict, array:
		return objfmt(x)
	default:
		return x
	}
}

func (t *Trailer) String() string {
	if t == nil {
		return "<nil>"
	}
	return objfmt(t.d)
}

func hasRoot(d dict) bool {
	return d != nil && d[name("Root")] != nil
}

func objfmt(x interface{}) string {
	switch x := x.(type) {
	default:
		return fmt.Sprint(x)
	case string:
		return strconv.Quote(x)
	case name:
		return "/" + string(x)
	case dict:
		var keys []string
		for k := range x {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteString("<<")
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString("/")
			buf.WriteString(k)
			buf.WriteString(" ")
			buf.WriteString(objfmt(x[name(k)]))
		}
		buf.WriteString(">>")
		return buf.String()
	case array:
		var buf bytes.Buffer
		buf.WriteString("[")
		for i, elem := range x {
			if i > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString(objfmt(elem))
		}
		buf.WriteString("]")
		return buf.String()
	case stream:
		return fmt.Sprintf("%v@%d", objfmt(x.hdr), x.offset)
	case objptr:
		return fmt.Sprintf("%d %d R", x.id, x.gen)
	case objdef:
		return fmt.Sprintf("{%d %d obj}%v", x.ptr.id, x.ptr.gen, objfmt(x.obj))
	}
}

// tail reads the last n bytes of the file and returns them with their offset.
func (rc *recovery) tail(n int64) ([]byte, int64) {
	if n > rc.s.size {
		n = rc.s.size
	}
	start := rc.s.size - n
	rc.s.seek(start)
	return rc.s.readBlock(int(n)), start
}

// findTrailerFromStart looks for an xref section within the first bytes of
// the file, as linearized files carry one there, and returns the position
// right after the trailer keyword that ends it, or 0.
func (rc *recovery) findTrailerFromStart() int64 {
	s := rc.s
	s.seek(0)
	head := s.readBlock(rc.cfg.HeaderScanSize)
	i := indexXref(head)
	if i < 0 {
		logger.Debug("trailer: no xref keyword near file start")
		return 0
	}
	s.seek(int64(i + len(kwXref)))
	if s.readToken() == keyword("trailer") {
		return s.tell()
	}
	count, ok := s.readInt()
	if !ok || count < 0 {
		logger.Debug("trailer: xref near file start has no entry count")
		return 0
	}
	if count > s.remaining()/int64(rc.cfg.MinXrefEntryBytes) {
		logger.Debug(fmt.Sprintf("trailer: xref near file start claims %d entries, only %d bytes remain", count, s.remaining()))
		return 0
	}

	// rest of the subsection header line
	if _, err := s.readLine(rc.cfg.MaxLineLength); err != nil && err != ErrLineTooLong {
		return 0
	}
	for n := int64(0); n < count; n++ {
		start := s.tell()
		line, err := s.readLine(rc.cfg.MaxLineLength)
		if err != nil && err != ErrLineTooLong {
			return 0
		}
		if j := bytes.Index(line, kwTrailer); j >= 0 && len(bytes.TrimLeft(line[:j], " \t\x00\f")) == 0 {
			return start + int64(j+len(kwTrailer))
		}
	}
	if !s.expectKeyword("trailer") {
		logger.Debug("trailer: xref near file start is not followed by trailer")
		return 0
	}
	return s.tell()
}

// indexXref returns the first "xref" in buf that is not part of "startxref".
func indexXref(buf []byte) int {
	for off := 0; off < len(buf); {
		j := bytes.Index(buf[off:], kwXref)
		if j < 0 {
			return -1
		}
		i := off + j
		if i < len("start") || !bytes.Equal(buf[i-len("start"):i], []byte("start")) {
			return i
		}
		off = i + len(kwXref)
	}
	return -1
}

// findTrailerFromEnd returns the position right after the last trailer
// keyword in the final block before any post-EOF garbage, or 0.
func (rc *recovery) findTrailerFromEnd() int64 {
	usable := rc.s.size - rc.estimatePostEOFBytes()
	n := int64(rc.cfg.TrailerBlockSize)
	if n > usable {
		n = usable
	}
	start := usable - n
	rc.s.seek(start)
	block := rc.s.readBlock(int(n))
	i := bytes.LastIndex(block, kwTrailer)
	if i < 0 {
		logger.Debug("trailer: no trailer keyword in final block")
		return 0
	}
	return start + int64(i+len(kwTrailer))
}

// findEarlierTrailer walks backward from the position from in blocks and
// returns the position right after the closest trailer keyword that ends
// at or before from, or 0 once the start of the file is reached.
func (rc *recovery) findEarlierTrailer(from int64) int64 {
	if from > rc.s.size {
		from = rc.s.size
	}
	end := from
	for end > 0 {
		n := int64(rc.cfg.TrailerBlockSize)
		if n > end {
			n = end
		}
		start := end - n
		rc.s.seek(start)
		block := rc.s.readBlock(int(n))
		if i := bytes.LastIndex(block, kwTrailer); i >= 0 {
			return start + int64(i+len(kwTrailer))
		}
		if start == 0 {
			break
		}
		// overlap blocks so a keyword split across the boundary is still seen
		end = start + int64(len(kwTrailer)-1)
	}
	return 0
}

// startxrefOffset returns the offset named by the last startxref in the
// file tail, or the file size when it is absent or not an integer.
func (rc *recovery) startxrefOffset() int64 {
	buf, start := rc.tail(int64(rc.cfg.TailScanSize))
	i := bytes.LastIndex(buf, kwStartxref)
	if i < 0 {
		return rc.s.size
	}
	rc.s.seek(start + int64(i+len(kwStartxref)))
	off, ok := rc.s.readInt()
	if !ok || off < 0 {
		return rc.s.size
	}
	return off
}

// locateTrailer finds a trailer dictionary with a Root entry. It returns nil
// after reporting an Unrecoverable diagnostic when none can be found.
func (rc *recovery) locateTrailer() *Trailer {
	xrefOff := rc.startxrefOffset()
	var pos int64
	if xrefOff < rc.s.size/2 {
		if pos = rc.findTrailerFromStart(); pos == 0 {
			pos = rc.findTrailerFromEnd()
		}
	} else {
		if pos = rc.findTrailerFromEnd(); pos == 0 {
			pos = rc.findTrailerFromStart()
		}
	}
	if pos == 0 {
		rc.diags.fatalf(-1, "Trailer dictionary not found; output may be incorrect")
		return nil
	}

	for {
		rc.s.seek(pos)
		d, _ := rc.s.readObject().(dict)
		if hasRoot(d) {
			logger.Debug(fmt.Sprintf("trailer: found at %d: %s", pos, objfmt(d)), true)
			return &Trailer{Offset: pos, d: d}
		}
		rc.diags.warnf(pos, "trailer dictionary has no Root, looking for an earlier one")
		next := rc.findEarlierTrailer(pos - int64(len(kwTrailer)))
		if next == 0 || next >= pos {
			rc.diags.fatalf(pos, "no trailer dictionary with a Root entry; output may be incorrect")
			return nil
		}
		pos = next
	}
}
