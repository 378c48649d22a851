// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sassoftware/viya-pdf-xrecover/logger"
)

type ParsingMode string

const (
	Strict     ParsingMode = "strict"
	BestEffort ParsingMode = "best-effort"
)

// Calibrated thresholds. They were tuned against real-world damaged files
// and are not expected to generalize; override them through Config.
const (
	DefaultHeaderScanSize    = 300
	DefaultTailScanSize      = 4096
	DefaultTrailerBlockSize  = 64 * 1024
	DefaultMaxLineLength     = 65535
	DefaultMinXrefEntryBytes = 15
	DefaultTableGrowth       = 20
	DefaultScanStopMargin    = 20
	DefaultMaxObjectNumber   = 8388607
	DefaultResultCacheSize   = 64
)

type Config struct {
	MaxConcurrentPDFs int           `validate:"min=1,max=10"`
	WorkerTimeout     time.Duration `validate:"required"`
	ParsingMode       ParsingMode   `validate:"oneof=strict best-effort"`
	DebugOn           bool
	Logger            logger.LogFunc

	// HeaderScanSize is how many leading bytes are searched for "xref".
	HeaderScanSize int `validate:"min=16,max=65536"`
	// TailScanSize is how many trailing bytes are searched for "startxref".
	TailScanSize int `validate:"min=64,max=1048576"`
	// TrailerBlockSize is the block size of the backward trailer search.
	TrailerBlockSize int `validate:"min=1024,max=16777216"`
	// MaxLineLength bounds a single line read by the object scanner.
	MaxLineLength int `validate:"min=64,max=16777216"`
	// MinXrefEntryBytes is the smallest size an xref entry line may have.
	MinXrefEntryBytes int `validate:"min=1,max=20"`
	// TableGrowth is the batch size in which the entry table grows.
	TableGrowth int `validate:"min=1,max=65536"`
	// ScanStopMargin ends the object scan when fewer usable bytes remain.
	ScanStopMargin int `validate:"min=0,max=4096"`
	// MaxObjectNumber rejects larger object numbers found by the scanner.
	MaxObjectNumber int `validate:"min=1"`
	// ResultCacheSize is how many processor results are kept for unchanged
	// files. Zero disables the cache.
	ResultCacheSize int `validate:"min=0,max=65536"`
}

func NewDefaultConfig() *Config {
	return &Config{
		MaxConcurrentPDFs: 5,
		WorkerTimeout:     30 * time.Second,
		ParsingMode:       BestEffort,
		DebugOn:           false,
		HeaderScanSize:    DefaultHeaderScanSize,
		TailScanSize:      DefaultTailScanSize,
		TrailerBlockSize:  DefaultTrailerBlockSize,
		MaxLineLength:     DefaultMaxLineLength,
		MinXrefEntryBytes: DefaultMinXrefEntryBytes,
		TableGrowth:       DefaultTableGrowth,
		ScanStopMargin:    DefaultScanStopMargin,
		MaxObjectNumber:   DefaultMaxObjectNumber,
		ResultCacheSize:   DefaultResultCacheSize,
	}
}

func (cfg *Config) Validate() error {
	logger.Debug("Validating Config Object")
	validate := validator.New()
	return validate.Struct(cfg)
}
