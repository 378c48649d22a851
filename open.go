// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"fmt"

	"github.com/sassoftware/viya-pdf-xrecover/logger"
	"golang.org/x/exp/mmap"
)

// Open maps the named file into memory and loads its cross-reference data
// with the default configuration. The caller closes the returned mapping
// once done with the Reader.
func Open(file string) (*mmap.ReaderAt, *Reader, error) {
	return OpenConfig(file, nil)
}

// OpenConfig is like Open with explicit settings.
func OpenConfig(file string, cfg *Config) (*mmap.ReaderAt, *Reader, error) {
	logger.Debug("Open file", true)
	m, err := mmap.Open(file)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap %s: %w", file, err)
	}
	logger.Debug(fmt.Sprintf("document: file:%s -- mapped (size=%d)", file, m.Len()), true)
	reader, err := NewReaderConfig(m, int64(m.Len()), cfg)
	if err != nil {
		m.Close()
		return nil, nil, err
	}
	return m, reader, nil
}
