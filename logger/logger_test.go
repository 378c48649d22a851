// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package logger

import (
	"bytes"
	"testing"

	"github.com/sassoftware/viya-pdf-xrecover/tracer"
	"github.com/stretchr/testify/assert"
)

type entry struct {
	level   LogLevel
	msg     string
	keyvals []interface{}
}

func capture(t *testing.T) *[]entry {
	t.Helper()
	var got []entry
	SetLogger(func(level LogLevel, msg string, keyvals ...interface{}) {
		got = append(got, entry{level, msg, keyvals})
	})
	t.Cleanup(func() { SetLogger(nil) })
	tracer.Flush(&bytes.Buffer{})
	return &got
}

func TestDebug_TraceFlag(t *testing.T) {
	got := capture(t)

	Debug("quiet", "k", 1)
	Debug("traced", true)

	assert.Equal(t, []entry{
		{DebugLevel, "quiet", []interface{}{"k", 1}},
		{DebugLevel, "traced", []interface{}{}},
	}, *got)
	assert.Equal(t, []string{"traced"}, tracer.Messages())
}

func TestWarnAndError_AreTraced(t *testing.T) {
	got := capture(t)

	Warn("odd")
	Error("bad")

	assert.Len(t, *got, 2)
	assert.Equal(t, WarnLevel, (*got)[0].level)
	assert.Equal(t, ErrorLevel, (*got)[1].level)
	assert.Equal(t, []string{"warning: odd", "error: bad"}, tracer.Messages())
}

func TestSetLogger_NilIsSilent(t *testing.T) {
	SetLogger(nil)
	assert.NotPanics(t, func() { Debug("x"); Warn("y"); Error("z") })
	tracer.Flush(&bytes.Buffer{})
}
