// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"fmt"
	"io"

	"github.com/sassoftware/viya-pdf-xrecover/logger"
)

// A recovery is one load of one file. Its scanner cursor is shared by every
// step, so a recovery must not be used from more than one goroutine.
type recovery struct {
	cfg   *Config
	s     *scanner
	base  int64
	table *Table
	diags *diagnostics
}

func newRecovery(f io.ReaderAt, size int64, cfg *Config) (*recovery, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, opError("check header", 0, fmt.Errorf("%w: empty", ErrNotPDF))
	}
	rc := &recovery{
		cfg:   cfg,
		s:     newScanner(f, size),
		table: newTable(cfg.TableGrowth),
		diags: &diagnostics{},
	}

	logger.Debug("Checking Header", true)
	base, err := CheckHeader(f, size)
	if err != nil {
		if cfg.ParsingMode == Strict {
			return nil, err
		}
		rc.diags.errorf(0, "%v; treating offset 0 as file start", err)
	}
	rc.base = base
	rc.table.Base = base
	return rc, nil
}

// recoverXref rebuilds the table after the primary read failed with cause,
// then locates a trailer. It returns nil when no usable trailer exists.
// A nil cause means the rebuild was asked for directly.
func (rc *recovery) recoverXref(cause error) *Trailer {
	if cause != nil {
		rc.diags.warnf(-1, "cross-reference data is damaged: %v\n"+
			"  rebuilding the object table by scanning the file;\n"+
			"  objects stored in object streams are not recovered", cause)
	}

	rc.scanForObjects()
	if rc.table.Count() == 0 {
		rc.diags.fatalf(rc.base, "%v", ErrNoObjects)
	}
	return rc.locateTrailer()
}

func (rc *recovery) result(trailer *Trailer, recovered bool) (*Reader, error) {
	if rc.cfg.ParsingMode == Strict {
		if trailer == nil {
			return nil, opError("locate trailer", -1, ErrTrailerNotFound)
		}
		if rc.table.Count() == 0 {
			return nil, opError("scan objects", rc.base, ErrNoObjects)
		}
	}
	if rc.s.err != nil {
		rc.diags.errorf(-1, "read failure during load: %v", rc.s.err)
	}
	return &Reader{
		f:         rc.s.f,
		end:       rc.s.size,
		xref:      rc.table,
		trailer:   trailer,
		recovered: recovered,
		diags:     rc.diags.list,
	}, nil
}

// Recover rebuilds the object table of f by scanning for object
// definitions, without consulting any xref section, and locates a trailer.
// In best-effort mode it only fails on an empty file or an invalid cfg;
// callers inspect Reader.Trailer and Reader.Diagnostics for degraded results.
func Recover(f io.ReaderAt, size int64, cfg *Config) (*Reader, error) {
	rc, err := newRecovery(f, size, cfg)
	if err != nil {
		return nil, err
	}
	return rc.result(rc.recoverXref(nil), true)
}
