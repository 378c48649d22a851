// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	with := func(mut func(*Config)) *Config {
		cfg := NewDefaultConfig()
		mut(cfg)
		return cfg
	}
	tests := []struct {
		name      string
		cfg       *Config
		shouldErr bool
	}{
		{
			name:      "default config is valid",
			cfg:       NewDefaultConfig(),
			shouldErr: false,
		},
		{
			name:      "valid strict config",
			cfg:       with(func(c *Config) { c.ParsingMode = Strict; c.MaxConcurrentPDFs = 10 }),
			shouldErr: false,
		},
		{
			name:      "invalid MaxConcurrentPDFs (too low)",
			cfg:       with(func(c *Config) { c.MaxConcurrentPDFs = 0 }),
			shouldErr: true,
		},
		{
			name:      "missing WorkerTimeout",
			cfg:       with(func(c *Config) { c.WorkerTimeout = 0 }),
			shouldErr: true,
		},
		{
			name:      "invalid ParsingMode",
			cfg:       with(func(c *Config) { c.ParsingMode = "invalid-mode" }),
			shouldErr: true,
		},
		{
			name:      "invalid TableGrowth (zero)",
			cfg:       with(func(c *Config) { c.TableGrowth = 0 }),
			shouldErr: true,
		},
		{
			name:      "invalid MinXrefEntryBytes (too high)",
			cfg:       with(func(c *Config) { c.MinXrefEntryBytes = 21 }),
			shouldErr: true,
		},
		{
			name:      "invalid TrailerBlockSize (too small)",
			cfg:       with(func(c *Config) { c.TrailerBlockSize = 16 }),
			shouldErr: true,
		},
		{
			name:      "zero ScanStopMargin is allowed",
			cfg:       with(func(c *Config) { c.ScanStopMargin = 0 }),
			shouldErr: false,
		},
		{
			name:      "invalid ResultCacheSize (negative)",
			cfg:       with(func(c *Config) { c.ResultCacheSize = -1 }),
			shouldErr: true,
		},
		{
			name: "zero value config",
			cfg: &Config{
				WorkerTimeout: 5 * time.Second,
				ParsingMode:   BestEffort,
			},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.shouldErr {
				assert.Error(t, err, "expected validation error")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestNewDefaultConfig_Thresholds(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, 300, cfg.HeaderScanSize)
	assert.Equal(t, 4096, cfg.TailScanSize)
	assert.Equal(t, 65536, cfg.TrailerBlockSize)
	assert.Equal(t, 65535, cfg.MaxLineLength)
	assert.Equal(t, 15, cfg.MinXrefEntryBytes)
	assert.Equal(t, 20, cfg.TableGrowth)
	assert.Equal(t, 20, cfg.ScanStopMargin)
	assert.Equal(t, 64, cfg.ResultCacheSize)
	assert.Equal(t, BestEffort, cfg.ParsingMode)
}
