// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sassoftware/viya-pdf-xrecover/logger"
)

// Summary is the JSON view of a load.
type Summary struct {
	PDFVersion  string   `json:"pdf:PDFVersion,omitempty"`
	HeaderAt    int64    `json:"headerOffset"`
	Size        int64    `json:"size"`
	Objects     int      `json:"objects"`
	Compressed  int      `json:"compressedObjects"`
	Recovered   bool     `json:"recovered"`
	Root        string   `json:"root,omitempty"`
	Trailer     string   `json:"trailer,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// Summary collects the load outcome.
func (r *Reader) Summary() Summary {
	s := Summary{
		PDFVersion: r.headerVersion(),
		Size:       r.end,
		Recovered:  r.recovered,
	}
	if r.xref != nil {
		s.HeaderAt = r.xref.Base
		for _, num := range r.xref.Objects() {
			e, _ := r.xref.Lookup(num)
			s.Objects++
			if e.InStream() {
				s.Compressed++
			}
		}
	}
	if root, ok := r.trailer.Root(); ok {
		s.Root = root.String()
	}
	if r.trailer != nil {
		s.Trailer = r.trailer.String()
	}
	for _, d := range r.diags {
		s.Diagnostics = append(s.Diagnostics, d.String())
	}
	return s
}

// SummaryJSON writes the summary as pretty JSON to the provided writer.
func (r *Reader) SummaryJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Summary())
}

// headerVersion returns the PDF header version string.
func (r *Reader) headerVersion() string {
	var base int64
	if r.xref != nil {
		base = r.xref.Base
	}
	buf := make([]byte, 64)
	n, _ := r.f.ReadAt(buf, base)
	line := string(buf[:n])
	i := strings.Index(line, "%PDF-")
	if i < 0 {
		return ""
	}
	line = line[i+len("%PDF-"):]
	if j := strings.IndexAny(line, "\r\n"); j >= 0 {
		line = line[:j]
	}
	return strings.TrimRight(line, " \t\x00")
}

// Summary prints the load summary of path as JSON to the provided writer.
func (p *processor) Summary(ctx context.Context, path string, w io.Writer) error {
	logger.Debug(fmt.Sprintf("Reading summary: path=%s", path), true)

	if err := p.acquireSlot(ctx); err != nil {
		return err
	}
	defer p.sem.Release(1)

	m, r, err := OpenConfig(path, p.cfg)
	if err != nil {
		logger.Error("failed to open PDF for summary:")
		return err
	}
	defer m.Close()
	if err := r.SummaryJSON(w); err != nil {
		logger.Error("failed to write summary")
		return err
	}

	logger.Debug(fmt.Sprintf("Summary completed: path=%s", path), true)
	return nil
}
