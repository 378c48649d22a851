// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"errors"
	"fmt"

	"github.com/sassoftware/viya-pdf-xrecover/logger"
)

var (
	// ErrNotPDF indicates that no %PDF- header was found near the start of the file.
	ErrNotPDF = errors.New("not a PDF file")

	// ErrNoStartxref indicates that the file tail carries no usable startxref pointer.
	ErrNoStartxref = errors.New("missing startxref")

	// ErrMalformedXref indicates that the xref table or stream could not be read.
	ErrMalformedXref = errors.New("malformed cross-reference section")

	// ErrTrailerNotFound indicates that no trailer dictionary could be located.
	ErrTrailerNotFound = errors.New("trailer dictionary not found")

	// ErrTrailerNoRoot indicates a trailer dictionary without a /Root entry.
	ErrTrailerNoRoot = errors.New("trailer dictionary has no Root")

	// ErrLineTooLong is returned by the line reader when no end of line
	// appears within the line budget.
	ErrLineTooLong = errors.New("line too long")

	// ErrNoObjects indicates that a recovery scan found no object definitions.
	ErrNoObjects = errors.New("no objects found")
)

// RecoverError carries the operation and file offset at which reading failed.
type RecoverError struct {
	Op     string
	Offset int64
	Err    error
}

func (e *RecoverError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("xrecover: %s at offset %d: %v", e.Op, e.Offset, e.Err)
	}
	return fmt.Sprintf("xrecover: %s: %v", e.Op, e.Err)
}

func (e *RecoverError) Unwrap() error {
	return e.Err
}

func opError(op string, offset int64, err error) error {
	if err == nil {
		return nil
	}
	return &RecoverError{Op: op, Offset: offset, Err: err}
}

// DiagnosticKind classifies a diagnostic raised while reading or recovering.
type DiagnosticKind int

const (
	// FormatError marks malformed data that was skipped or replaced by a default.
	FormatError DiagnosticKind = iota
	// FormatWarning marks an anomaly that did not change control flow.
	FormatWarning
	// Unrecoverable marks a failure that leaves the result degraded,
	// such as a trailer that could not be located.
	Unrecoverable
)

func (k DiagnosticKind) String() string {
	switch k {
	case FormatError:
		return "format error"
	case FormatWarning:
		return "format warning"
	case Unrecoverable:
		return "unrecoverable"
	}
	return fmt.Sprintf("DiagnosticKind(%d)", int(k))
}

// A Diagnostic is a single event reported during a load. Offset is -1 when
// the event is not tied to a file position.
type Diagnostic struct {
	Kind    DiagnosticKind
	Offset  int64
	Message string
}

func (d Diagnostic) String() string {
	if d.Offset >= 0 {
		return fmt.Sprintf("%s at offset %d: %s", d.Kind, d.Offset, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// diagnostics collects the events of one load and mirrors them to the logger.
type diagnostics struct {
	list []Diagnostic
}

func (d *diagnostics) errorf(offset int64, format string, args ...interface{}) {
	d.add(FormatError, offset, fmt.Sprintf(format, args...))
}

func (d *diagnostics) warnf(offset int64, format string, args ...interface{}) {
	d.add(FormatWarning, offset, fmt.Sprintf(format, args...))
}

func (d *diagnostics) fatalf(offset int64, format string, args ...interface{}) {
	d.add(Unrecoverable, offset, fmt.Sprintf(format, args...))
}

func (d *diagnostics) add(kind DiagnosticKind, offset int64, msg string) {
	diag := Diagnostic{Kind: kind, Offset: offset, Message: msg}
	d.list = append(d.list, diag)
	if kind == FormatWarning {
		logger.Warn(diag.String())
		return
	}
	logger.Error(diag.String())
}

func (d *diagnostics) has(kind DiagnosticKind) bool {
	for _, x := range d.list {
		if x.Kind == kind {
			return true
		}
	}
	return false
}
