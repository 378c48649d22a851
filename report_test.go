// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_Summary(t *testing.T) {
	b := newPDF("junk")
	b.obj(1, 0, "<< /Type /Catalog >>")
	b.obj(2, 0, "(data)")
	off := b.xrefStream(t, 4, "/Root 1 0 R ", false, 1, 2)
	b.startxref(off)

	r := load(t, b.bytes())
	s := r.Summary()
	assert.Equal(t, "1.7", s.PDFVersion)
	assert.Equal(t, int64(4), s.HeaderAt)
	assert.Equal(t, 2, s.Objects)
	assert.Equal(t, "1 0 R", s.Root)
	assert.Equal(t, int64(len(b.bytes())), s.Size)
}

func TestReader_SummaryJSON_Degraded(t *testing.T) {
	data := []byte("%PDF-1.4\n1 0 obj\n<< >>\nendobj\n" + "                              ")
	r := load(t, data)

	var out bytes.Buffer
	require.NoError(t, r.SummaryJSON(&out))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, true, got["recovered"])
	assert.Equal(t, "1.4", got["pdf:PDFVersion"])
	_, hasRoot := got["root"]
	assert.False(t, hasRoot)
	assert.NotEmpty(t, got["diagnostics"])
}
