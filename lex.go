// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

// Reading of raw blocks, lines, tokens and objects from a PDF file.

package xrecover

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/sassoftware/viya-pdf-xrecover/logger"
)

// A token is a PDF token in the input stream, one of the following Go types:
//
//	bool, a PDF boolean
//	int64, a PDF integer
//	float64, a PDF real
//	string, a PDF string literal
//	keyword, a PDF keyword
//	name, a PDF name without the leading slash
//
// The end of input is reported as the token io.EOF.
type token interface{}

// A name is a PDF name, without the leading slash.
type name string

// A keyword is a PDF keyword.
// Delimiter tokens used in higher-level syntax,
// such as "<<", ">>", "[", "]", "{", "}", are also treated as keywords.
type keyword string

// An object is a PDF syntax object, one of the following Go types:
//
//	bool, int64, float64, string, name
//	dict, a PDF dictionary
//	array, a PDF array
//	stream, a PDF stream header and data offset
//	objptr, a PDF object reference
//	objdef, a PDF object definition
//
// An object may also be nil, to represent the PDF null.
type object interface{}

type dict map[name]object

type array []object

type stream struct {
	hdr    dict
	offset int64
}

type objptr struct {
	id  uint32
	gen uint16
}

type objdef struct {
	ptr objptr
	obj object
}

const (
	windowSize       = 32 * 1024
	maxObjectDepth   = 64
	maxArrayElements = 100_000
)

// A scanner is a cursor over a PDF file. Every read advances the single
// shared position; callers sequence seeks and reads themselves.
// Read failures never escape: they end the current read and are kept in err.
type scanner struct {
	f      io.ReaderAt
	size   int64
	pos    int64
	buf    []byte
	win    []byte // bytes of the file starting at winOff
	winOff int64
	tmp    []byte
	unread []token
	err    error
}

func newScanner(f io.ReaderAt, size int64) *scanner {
	if size < 0 {
		size = 0
	}
	return &scanner{f: f, size: size}
}

// seek moves the cursor to pos, clamped to the file bounds.
func (s *scanner) seek(pos int64) {
	if pos < 0 {
		pos = 0
	}
	if pos > s.size {
		pos = s.size
	}
	s.pos = pos
	s.unread = s.unread[:0]
}

func (s *scanner) tell() int64 { return s.pos }

func (s *scanner) remaining() int64 { return s.size - s.pos }

func (s *scanner) noteErr(off int64, err error) {
	if s.err == nil {
		s.err = fmt.Errorf("reading at offset %d: %w", off, err)
		logger.Debug(s.err.Error())
	}
}

func (s *scanner) load(off int64) bool {
	if s.buf == nil {
		n := int64(windowSize)
		if s.size < n {
			n = s.size
		}
		s.buf = make([]byte, n)
	}
	n := int64(len(s.buf))
	if rem := s.size - off; rem < n {
		n = rem
	}
	m, err := s.f.ReadAt(s.buf[:n], off)
	if err != nil && !errors.Is(err, io.EOF) {
		s.noteErr(off, err)
	}
	if m <= 0 {
		s.win = s.buf[:0]
		return false
	}
	s.win = s.buf[:m]
	s.winOff = off
	return true
}

func (s *scanner) byteAt(off int64) (byte, bool) {
	if off < 0 || off >= s.size {
		return 0, false
	}
	if off < s.winOff || off >= s.winOff+int64(len(s.win)) {
		if !s.load(off) {
			return 0, false
		}
	}
	return s.win[off-s.winOff], true
}

func (s *scanner) readByte() (byte, bool) {
	c, ok := s.byteAt(s.pos)
	if ok {
		s.pos++
	}
	return c, ok
}

// readBlock reads up to n bytes at the cursor. A short block means the end
// of the file or a read failure was reached.
func (s *scanner) readBlock(n int) []byte {
	s.unread = s.unread[:0]
	if rem := s.remaining(); int64(n) > rem {
		n = int(rem)
	}
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	m, err := s.f.ReadAt(out, s.pos)
	if err != nil && !errors.Is(err, io.EOF) {
		s.noteErr(s.pos, err)
	}
	if m < 0 {
		m = 0
	}
	s.pos += int64(m)
	return out[:m]
}

// readLine reads up to the next CR, LF or CRLF and returns the line without
// its terminator. When max bytes pass without an end of line, those bytes
// are consumed and returned together with ErrLineTooLong. At the end of the
// file it returns io.EOF. The returned slice is only valid until the next read.
func (s *scanner) readLine(max int) ([]byte, error) {
	s.unread = s.unread[:0]
	line := s.tmp[:0]
	for {
		if len(line) >= max {
			s.tmp = line
			return line, ErrLineTooLong
		}
		c, ok := s.readByte()
		if !ok {
			s.tmp = line
			if len(line) == 0 {
				return nil, io.EOF
			}
			return line, nil
		}
		switch c {
		case '\n':
			s.tmp = line
			return line, nil
		case '\r':
			if c2, ok := s.byteAt(s.pos); ok && c2 == '\n' {
				s.pos++
			}
			s.tmp = line
			return line, nil
		}
		line = append(line, c)
	}
}

func (s *scanner) unreadByte() {
	if s.pos > 0 {
		s.pos--
	}
}

func (s *scanner) unreadToken(t token) {
	s.unread = append(s.unread, t)
}

func (s *scanner) readToken() token {
	if n := len(s.unread); n > 0 {
		t := s.unread[n-1]
		s.unread = s.unread[:n-1]
		return t
	}

	// Find first non-space, non-comment byte.
	var c byte
	for {
		var ok bool
		c, ok = s.readByte()
		if !ok {
			return io.EOF
		}
		if isSpace(c) {
			continue
		}
		if c == '%' {
			for {
				c, ok = s.readByte()
				if !ok {
					return io.EOF
				}
				if c == '\r' || c == '\n' {
					break
				}
			}
			continue
		}
		break
	}

	switch c {
	case '<':
		if c2, ok := s.readByte(); ok && c2 == '<' {
			return keyword("<<")
		} else if ok {
			s.unreadByte()
		}
		return s.readHexString()
	case '>':
		if c2, ok := s.readByte(); ok && c2 == '>' {
			return keyword(">>")
		} else if ok {
			s.unreadByte()
		}
		return keyword(">")
	case '(':
		return s.readLiteralString()
	case '[', ']', '{', '}', ')':
		return keyword(string(c))
	case '/':
		return s.readName()
	}
	s.unreadByte()
	return s.readKeyword()
}

// readInt reads one token and reports whether it was an integer.
func (s *scanner) readInt() (int64, bool) {
	x, ok := s.readToken().(int64)
	return x, ok
}

// expectKeyword reads one token and reports whether it was the keyword kw.
func (s *scanner) expectKeyword(kw string) bool {
	return s.readToken() == keyword(kw)
}

func (s *scanner) readHexString() token {
	tmp := s.tmp[:0]
	hi := -1
	for {
		c, ok := s.readByte()
		if !ok || c == '>' {
			break
		}
		x := unhex(c)
		if x < 0 {
			continue
		}
		if hi < 0 {
			hi = x
			continue
		}
		tmp = append(tmp, byte(hi<<4|x))
		hi = -1
	}
	if hi >= 0 {
		tmp = append(tmp, byte(hi<<4))
	}
	s.tmp = tmp
	return string(tmp)
}

func unhex(b byte) int {
	switch {
	case '0' <= b && b <= '9':
		return int(b) - '0'
	case 'a' <= b && b <= 'f':
		return int(b) - 'a' + 10
	case 'A' <= b && b <= 'F':
		return int(b) - 'A' + 10
	}
	return -1
}

func (s *scanner) readLiteralString() token {
	tmp := s.tmp[:0]
	depth := 1
Loop:
	for {
		c, ok := s.readByte()
		if !ok {
			break
		}
		switch c {
		default:
			tmp = append(tmp, c)
		case '(':
			depth++
			tmp = append(tmp, c)
		case ')':
			if depth--; depth == 0 {
				break Loop
			}
			tmp = append(tmp, c)
		case '\\':
			c, ok = s.readByte()
			if !ok {
				break Loop
			}
			switch c {
			case 'n':
				tmp = append(tmp, '\n')
			case 'r':
				tmp = append(tmp, '\r')
			case 'b':
				tmp = append(tmp, '\b')
			case 't':
				tmp = append(tmp, '\t')
			case 'f':
				tmp = append(tmp, '\f')
			case '\r':
				if c2, ok := s.byteAt(s.pos); ok && c2 == '\n' {
					s.pos++
				}
			case '\n':
				// line continuation
			case '0', '1', '2', '3', '4', '5', '6', '7':
				x := int(c - '0')
				for i := 0; i < 2; i++ {
					d, ok := s.byteAt(s.pos)
					if !ok || d < '0' || d > '7' {
						break
					}
					s.pos++
					x = x*8 + int(d-'0')
				}
				tmp = append(tmp, byte(x&0xFF))
			default:
				tmp = append(tmp, c)
			}
		}
	}
	s.tmp = tmp
	return string(tmp)
}

func (s *scanner) readName() token {
	tmp := s.tmp[:0]
	for {
		c, ok := s.readByte()
		if !ok {
			break
		}
		if isDelim(c) || isSpace(c) {
			s.unreadByte()
			break
		}
		if c == '#' {
			h1, ok1 := s.byteAt(s.pos)
			h2, ok2 := s.byteAt(s.pos + 1)
			if ok1 && ok2 && unhex(h1) >= 0 && unhex(h2) >= 0 {
				s.pos += 2
				tmp = append(tmp, byte(unhex(h1)<<4|unhex(h2)))
				continue
			}
		}
		tmp = append(tmp, c)
	}
	s.tmp = tmp
	return name(string(tmp))
}

func (s *scanner) readKeyword() token {
	tmp := s.tmp[:0]
	for {
		c, ok := s.readByte()
		if !ok {
			break
		}
		if isDelim(c) || isSpace(c) {
			s.unreadByte()
			break
		}
		tmp = append(tmp, c)
	}
	s.tmp = tmp
	str := string(tmp)
	switch {
	case str == "true":
		return true
	case str == "false":
		return false
	case isInteger(str):
		x, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return keyword(str)
		}
		return x
	case isReal(str):
		x, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return keyword(str)
		}
		return x
	}
	return keyword(str)
}

func isInteger(s string) bool {
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if c < '0' || '9' < c {
			return false
		}
	}
	return true
}

func isReal(s string) bool {
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	if len(s) == 0 {
		return false
	}
	ndot := 0
	for _, c := range s {
		if c == '.' {
			ndot++
			continue
		}
		if c < '0' || '9' < c {
			return false
		}
	}
	return ndot == 1
}

// readObject reads one object at the cursor. Malformed input ends the
// current dictionary or array early instead of failing.
func (s *scanner) readObject() object {
	return s.readObjectDepth(0)
}

func (s *scanner) readObjectDepth(depth int) object {
	tok := s.readToken()
	if kw, ok := tok.(keyword); ok {
		switch kw {
		case "<<":
			if depth >= maxObjectDepth {
				return nil
			}
			return s.readDict(depth + 1)
		case "[":
			if depth >= maxObjectDepth {
				return nil
			}
			return s.readArray(depth + 1)
		}
		return nil
	}
	if tok == io.EOF {
		return nil
	}

	t1, ok := tok.(int64)
	if !ok || int64(uint32(t1)) != t1 {
		return tok
	}
	tok2 := s.readToken()
	t2, ok := tok2.(int64)
	if !ok || int64(uint16(t2)) != t2 {
		s.unreadToken(tok2)
		return tok
	}
	tok3 := s.readToken()
	switch tok3 {
	case keyword("R"):
		return objptr{uint32(t1), uint16(t2)}
	case keyword("obj"):
		ptr := objptr{uint32(t1), uint16(t2)}
		obj := s.readObjectDepth(depth + 1)
		if hdr, ok := obj.(dict); ok {
			if next := s.readToken(); next == keyword("stream") {
				s.skipStreamEOL()
				return objdef{ptr, stream{hdr: hdr, offset: s.pos}}
			} else {
				s.unreadToken(next)
			}
		}
		return objdef{ptr, obj}
	}
	s.unreadToken(tok3)
	s.unreadToken(tok2)
	return tok
}

func (s *scanner) skipStreamEOL() {
	c, ok := s.readByte()
	if !ok {
		return
	}
	switch c {
	case '\r':
		if c2, ok := s.byteAt(s.pos); ok && c2 == '\n' {
			s.pos++
		}
	case '\n':
	default:
		s.unreadByte()
	}
}

func (s *scanner) readArray(depth int) object {
	var x array
	for len(x) < maxArrayElements {
		tok := s.readToken()
		if tok == io.EOF || tok == keyword("]") {
			break
		}
		if kw, ok := tok.(keyword); ok && (kw == ">>" || kw == "endobj") {
			s.unreadToken(tok)
			break
		}
		s.unreadToken(tok)
		x = append(x, s.readObjectDepth(depth))
	}
	return x
}

func (s *scanner) readDict(depth int) object {
	x := make(dict)
	for {
		tok := s.readToken()
		if tok == io.EOF || tok == keyword(">>") {
			break
		}
		n, ok := tok.(name)
		if !ok {
			// missing ">>": end the dictionary at the first non-name key
			s.unreadToken(tok)
			break
		}
		if next := s.readToken(); next == keyword(">>") || next == io.EOF {
			x[n] = nil
			break
		} else {
			s.unreadToken(next)
		}
		x[n] = s.readObjectDepth(depth)
	}
	return x
}

func isSpace(b byte) bool {
	switch b {
	case '\x00', '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(b byte) bool {
	switch b {
	case '<', '>', '(', ')', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
