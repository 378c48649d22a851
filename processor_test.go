// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sassoftware/viya-pdf-xrecover/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSample writes data into a fresh temporary directory.
func writeSample(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// create a Processor
func newTestProcessor(mode ParsingMode) *processor {
	cfg := NewDefaultConfig()
	cfg.ParsingMode = mode
	return NewProcessor(cfg)
}

func TestProcessor_Recover(t *testing.T) {
	path := writeSample(t, "good.pdf", simplePDF().bytes())
	p := newTestProcessor(BestEffort)

	res, err := p.Recover(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)
	assert.Equal(t, 3, res.Objects)
	assert.False(t, res.Recovered)
	assert.True(t, res.HasRoot)
	assert.Equal(t, Ref{Num: 1}, res.Root)
	assert.Contains(t, res.Trailer, "/Root 1 0 R")
}

func TestProcessor_RecoverDamaged(t *testing.T) {
	path := writeSample(t, "damaged.pdf", []byte(twoObjectFile))
	p := newTestProcessor(BestEffort)

	res, err := p.Recover(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, res.Recovered)
	assert.Equal(t, 2, res.Objects)
	assert.NotEmpty(t, res.Diagnostics)
}

func TestProcessor_ResultCache(t *testing.T) {
	path := writeSample(t, "damaged.pdf", []byte(twoObjectFile))
	p := newTestProcessor(BestEffort)

	first, err := p.Recover(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, p.cache.Len())
	first.Diagnostics[0].Message = "changed"

	second, err := p.Recover(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, first.Objects, second.Objects)
	assert.NotEqual(t, "changed", second.Diagnostics[0].Message)
	assert.Equal(t, 1, p.cache.Len())

	// a rewritten file is a new key
	require.NoError(t, os.WriteFile(path, simplePDF().bytes(), 0o600))
	third, err := p.Recover(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, third.Objects)
	assert.False(t, third.Recovered)
}

func TestProcessor_CacheDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.ResultCacheSize = 0
	p := NewProcessor(cfg)
	assert.Nil(t, p.cache)

	path := writeSample(t, "good.pdf", simplePDF().bytes())
	res, err := p.Recover(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Objects)
}

func TestProcessor_AbandonedLoadKeepsSlot(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.MaxConcurrentPDFs = 1
	cfg.WorkerTimeout = 10 * time.Millisecond
	p := NewProcessor(cfg)

	release := make(chan struct{})
	slow := func(path string) *Result {
		<-release
		return &Result{Path: path}
	}
	_, err := p.run(context.Background(), "slow.pdf", slow)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, p.sem.TryAcquire(1), "the running load still holds its slot")

	close(release)
	assert.Eventually(t, func() bool {
		if p.sem.TryAcquire(1) {
			p.sem.Release(1)
			return true
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestProcessor_StrictFailure(t *testing.T) {
	path := writeSample(t, "notrailer.pdf", []byte("%PDF-1.4\n1 0 obj\n<< >>\nendobj\n"))
	p := newTestProcessor(Strict)

	_, err := p.Recover(context.Background(), path)
	assert.ErrorIs(t, err, ErrTrailerNotFound)
}

func TestProcessor_RecoverAll(t *testing.T) {
	good := writeSample(t, "good.pdf", simplePDF().bytes())
	damaged := writeSample(t, "damaged.pdf", []byte(twoObjectFile))
	missing := filepath.Join(t.TempDir(), "missing.pdf")

	cfg := NewDefaultConfig()
	cfg.MaxConcurrentPDFs = 1
	p := NewProcessor(cfg)

	results := p.RecoverAll(context.Background(), []string{good, missing, damaged})
	require.Len(t, results, 3)
	assert.Equal(t, good, results[0].Path)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, missing, results[1].Path)
	assert.Error(t, results[1].Err)
	assert.Equal(t, damaged, results[2].Path)
	assert.True(t, results[2].Recovered)
}

func TestProcessor_CancelledContext(t *testing.T) {
	path := writeSample(t, "good.pdf", simplePDF().bytes())
	p := newTestProcessor(BestEffort)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Recover(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessor_Summary(t *testing.T) {
	path := writeSample(t, "good.pdf", simplePDF().bytes())
	p := newTestProcessor(BestEffort)

	var out bytes.Buffer
	require.NoError(t, p.Summary(context.Background(), path, &out))

	var s Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &s))
	assert.Equal(t, "1.7", s.PDFVersion)
	assert.Equal(t, 3, s.Objects)
	assert.Equal(t, 0, s.Compressed)
	assert.False(t, s.Recovered)
	assert.Equal(t, "1 0 R", s.Root)
	assert.Empty(t, s.Diagnostics)
}

func TestNewProcessor_InvalidConfigPanics(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.MaxConcurrentPDFs = 0
	assert.Panics(t, func() { NewProcessor(cfg) })
}

func TestLevelFilter(t *testing.T) {
	var got []logger.LogLevel
	f := func(level logger.LogLevel, msg string, keyvals ...interface{}) {
		got = append(got, level)
	}

	quiet := levelFilter(f, false)
	quiet(logger.DebugLevel, "d")
	quiet(logger.WarnLevel, "w")
	quiet(logger.ErrorLevel, "e")
	assert.Equal(t, []logger.LogLevel{logger.WarnLevel, logger.ErrorLevel}, got)

	got = nil
	loud := levelFilter(f, true)
	loud(logger.DebugLevel, "d")
	assert.Equal(t, []logger.LogLevel{logger.DebugLevel}, got)
}
