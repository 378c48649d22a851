// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// pdfBuilder writes small PDF files in memory. Offsets it hands out are
// relative to the %PDF- header, the way xref sections record them.
type pdfBuilder struct {
	buf     bytes.Buffer
	base    int
	offsets map[int]int
	gens    map[int]int
}

func newPDF(prefix string) *pdfBuilder {
	b := &pdfBuilder{offsets: map[int]int{}, gens: map[int]int{}}
	b.buf.WriteString(prefix)
	b.base = b.buf.Len()
	b.buf.WriteString("%PDF-1.7\n")
	return b
}

func (b *pdfBuilder) pos() int { return b.buf.Len() - b.base }

func (b *pdfBuilder) raw(s string) *pdfBuilder {
	b.buf.WriteString(s)
	return b
}

func (b *pdfBuilder) obj(num, gen int, body string) *pdfBuilder {
	b.offsets[num] = b.pos()
	b.gens[num] = gen
	fmt.Fprintf(&b.buf, "%d %d obj\n%s\nendobj\n", num, gen, body)
	return b
}

// xref writes a classic table listing nums and returns its offset.
func (b *pdfBuilder) xref(trailer string, nums ...int) int {
	off := b.pos()
	if len(nums) == 0 {
		for n := range b.offsets {
			nums = append(nums, n)
		}
		sort.Ints(nums)
	}
	b.buf.WriteString("xref\n0 1\n0000000000 65535 f \n")
	for _, n := range nums {
		fmt.Fprintf(&b.buf, "%d 1\n%010d %05d n \n", n, b.offsets[n], b.gens[n])
	}
	fmt.Fprintf(&b.buf, "trailer\n%s\n", trailer)
	return off
}

// xrefStream writes an xref stream object num for nums with W [1 4 2] and
// returns its offset. With predict the rows are PNG Up encoded.
func (b *pdfBuilder) xrefStream(t *testing.T, num int, extra string, predict bool, nums ...int) int {
	t.Helper()
	off := b.pos()
	var rows [][]byte
	for _, n := range nums {
		o, g := b.offsets[n], b.gens[n]
		rows = append(rows, []byte{1, byte(o >> 24), byte(o >> 16), byte(o >> 8), byte(o), byte(g >> 8), byte(g)})
	}
	var data bytes.Buffer
	prev := make([]byte, 7)
	for _, row := range rows {
		if predict {
			data.WriteByte(2)
			for i := range row {
				data.WriteByte(row[i] - prev[i])
			}
			prev = row
			continue
		}
		data.Write(row)
	}
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	_, err := zw.Write(data.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var index []string
	for _, n := range nums {
		index = append(index, fmt.Sprintf("%d 1", n))
	}
	parms := ""
	if predict {
		parms = "/DecodeParms << /Predictor 12 /Columns 7 >> "
	}
	fmt.Fprintf(&b.buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2] /Index [%s] /Filter /FlateDecode %s/Length %d %s>>\nstream\n",
		num, num+1, strings.Join(index, " "), parms, z.Len(), extra)
	b.buf.Write(z.Bytes())
	b.buf.WriteString("\nendstream\nendobj\n")
	return off
}

func (b *pdfBuilder) startxref(off int) *pdfBuilder {
	fmt.Fprintf(&b.buf, "startxref\n%d\n%%%%EOF\n", off)
	return b
}

func (b *pdfBuilder) bytes() []byte { return b.buf.Bytes() }

// simplePDF is a well-formed three object file.
func simplePDF() *pdfBuilder {
	b := newPDF("")
	b.obj(1, 0, "<< /Type /Catalog /Pages 2 0 R >>")
	b.obj(2, 0, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.obj(3, 0, "<< /Type /Page /Parent 2 0 R >>")
	off := b.xref("<< /Size 4 /Root 1 0 R >>")
	b.startxref(off)
	return b
}

func testConfig() *Config {
	return NewDefaultConfig()
}

func newTestRecovery(t *testing.T, data []byte, cfg *Config) *recovery {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	rc, err := newRecovery(bytes.NewReader(data), int64(len(data)), cfg)
	require.NoError(t, err)
	return rc
}

func kindsOf(diags []Diagnostic) []DiagnosticKind {
	var out []DiagnosticKind
	for _, d := range diags {
		out = append(out, d.Kind)
	}
	return out
}
