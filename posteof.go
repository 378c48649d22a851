// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"bytes"
	"fmt"

	"github.com/sassoftware/viya-pdf-xrecover/logger"
)

var kwEOF = []byte("%%EO")

// estimatePostEOFBytes returns how many bytes at the end of the file follow
// the end-of-file marker of the last startxref, counting the marker itself.
// Without a marker it counts the bytes after the token that follows
// startxref. The scan stops short of them so appended garbage is never
// taken for object definitions.
func (rc *recovery) estimatePostEOFBytes() int64 {
	buf, start := rc.tail(int64(rc.cfg.TailScanSize))
	i := bytes.LastIndex(buf, kwStartxref)
	if i < 0 {
		return 0
	}
	after := buf[i+len(kwStartxref):]
	j := bytes.Index(after, kwEOF)
	if j < 0 {
		rc.s.seek(start + int64(i+len(kwStartxref)))
		rc.s.readToken() // the xref offset; a bad token still ends the estimate
		n := rc.s.size - rc.s.tell()
		if n < 0 {
			n = 0
		}
		logger.Debug(fmt.Sprintf("posteof: no marker, %d bytes after startxref offset", n))
		return n
	}
	n := int64(len(after) - j)
	logger.Debug(fmt.Sprintf("posteof: %d bytes after last startxref marker", n))
	return n
}
