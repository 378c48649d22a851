// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/sassoftware/viya-pdf-xrecover/logger"
)

var kwObj = []byte("obj")

// A scanPass holds the state of one linear rescan.
type scanPass struct {
	orig       *Table
	postEOF    int64
	duplicates bool
	found      int
}

// scanForObjects discards the table, keeping a snapshot to break ties, and
// rebuilds it from every "num gen obj" line between the scan anchor and the
// post-EOF garbage.
func (rc *recovery) scanForObjects() *scanPass {
	p := &scanPass{orig: rc.table.snapshot()}
	rc.table.reset()
	rc.table.Base = rc.base
	p.postEOF = rc.estimatePostEOFBytes()

	s := rc.s
	usable := s.size - p.postEOF
	margin := int64(rc.cfg.ScanStopMargin)
	s.seek(rc.base)
	for usable-s.tell() >= margin {
		off := s.tell()
		limit := int64(rc.cfg.MaxLineLength)
		sizedDown := false
		if rem := usable - off; rem < limit {
			limit, sizedDown = rem, true
		}
		if limit <= 0 {
			break
		}
		line, err := s.readLine(int(limit))
		if err == io.EOF {
			break
		}
		if err != nil {
			// an overlong line is only usable when it was cut by the end of data
			if !errors.Is(err, ErrLineTooLong) || !sizedDown {
				logger.Debug(fmt.Sprintf("scan: skipping line at %d: %v", off, err))
				continue
			}
		}
		num, gen, ok := parseObjectHeader(line)
		if !ok {
			continue
		}
		if num > int64(rc.cfg.MaxObjectNumber) {
			rc.diags.errorf(off, "object number %d exceeds limit %d", num, rc.cfg.MaxObjectNumber)
			continue
		}
		if rc.table.record(int(num), NotInStream, off-rc.base, gen, true, p.orig, rc.diags) {
			p.duplicates = true
		}
		p.found++
	}
	if p.duplicates {
		rc.diags.warnf(-1, "duplicate object definitions found")
	}
	logger.Debug(fmt.Sprintf("scan: %d object headers, %d objects, %d post-EOF bytes", p.found, rc.table.Count(), p.postEOF), true)
	p.orig = nil
	return p
}

// parseObjectHeader recognizes a line that starts with exactly
// "<int> <int> obj". Anything after the obj keyword is ignored.
func parseObjectHeader(line []byte) (num, gen int64, ok bool) {
	i := bytes.Index(line, kwObj)
	if i < 0 {
		return 0, 0, false
	}
	head := line[:i+len(kwObj)]
	ls := newScanner(bytes.NewReader(head), int64(len(head)))
	num, ok = ls.readInt()
	if !ok {
		return 0, 0, false
	}
	gen, ok = ls.readInt()
	if !ok {
		return 0, 0, false
	}
	if !ls.expectKeyword("obj") || ls.readToken() != io.EOF {
		return 0, 0, false
	}
	return num, gen, true
}
