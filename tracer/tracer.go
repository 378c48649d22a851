// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package tracer

import (
	"fmt"
	"io"
	"sync"
)

// DefaultLimit is how many of the most recent messages are kept.
const DefaultLimit = 4096

var (
	mu            sync.Mutex
	traceMessages []string
	limit         = DefaultLimit
)

// SetLimit sets how many of the most recent messages are kept. A limit
// of 0 or less keeps everything until the next Flush.
func SetLimit(n int) {
	mu.Lock()
	limit = n
	mu.Unlock()
}

// Log just adds a message to the trace log.
func Log(msg string) {
	mu.Lock()
	traceMessages = append(traceMessages, msg)
	// compact once twice the limit is buffered so appends stay cheap
	if limit > 0 && len(traceMessages) >= 2*limit {
		n := copy(traceMessages, traceMessages[len(traceMessages)-limit:])
		clear(traceMessages[n:])
		traceMessages = traceMessages[:n]
	}
	mu.Unlock()
}

// recent returns the kept messages; mu must be held.
func recent() []string {
	if limit > 0 && len(traceMessages) > limit {
		return traceMessages[len(traceMessages)-limit:]
	}
	return traceMessages
}

// Messages returns a copy of the accumulated trace log.
func Messages() []string {
	mu.Lock()
	defer mu.Unlock()
	msgs := recent()
	out := make([]string, len(msgs))
	copy(out, msgs)
	return out
}

// Flush writes the accumulated trace log to w and resets it.
func Flush(w io.Writer) {
	mu.Lock()
	msgs := recent()
	// reset so the next run starts fresh
	traceMessages = nil
	mu.Unlock()
	for _, msg := range msgs {
		fmt.Fprintln(w, msg)
	}
}
