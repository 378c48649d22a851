// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xrecover

import (
	"fmt"

	"github.com/sassoftware/viya-pdf-xrecover/logger"
)

// NotInStream is the container stream id of an object stored directly in the file.
const NotInStream = -1

const maxGeneration = 65535

// An Entry locates one object. For direct objects Offset is relative to the
// owning Table's Base; for compressed objects it is the index inside the
// container stream.
type Entry struct {
	Num    int
	Gen    uint16
	Offset int64
	Stream int
	set    bool
}

// IsSet reports whether the entry has been written.
func (e Entry) IsSet() bool { return e.set }

// InStream reports whether the object lives inside an object stream.
func (e Entry) InStream() bool { return e.Stream != NotInStream }

func (e Entry) String() string {
	if !e.set {
		return fmt.Sprintf("{%d unset}", e.Num)
	}
	if e.InStream() {
		return fmt.Sprintf("{%d %d in stream %d index %d}", e.Num, e.Gen, e.Stream, e.Offset)
	}
	return fmt.Sprintf("{%d %d @%d}", e.Num, e.Gen, e.Offset)
}

// A Table maps object numbers to entries. Slots grow in fixed batches and
// growth never disturbs entries already recorded.
type Table struct {
	// Base is the file position that direct-object offsets are relative to.
	Base    int64
	entries []Entry
	growth  int
}

func newTable(growth int) *Table {
	if growth < 1 {
		growth = DefaultTableGrowth
	}
	return &Table{growth: growth}
}

// Len returns the number of slots, set or not.
func (t *Table) Len() int { return len(t.entries) }

// Count returns the number of set entries.
func (t *Table) Count() int {
	n := 0
	for _, e := range t.entries {
		if e.set {
			n++
		}
	}
	return n
}

// Lookup returns the entry for object num.
func (t *Table) Lookup(num int) (Entry, bool) {
	if t == nil || num < 0 || num >= len(t.entries) || !t.entries[num].set {
		return Entry{}, false
	}
	return t.entries[num], true
}

// Position returns the absolute file position of a direct object.
func (t *Table) Position(num int) (int64, bool) {
	e, ok := t.Lookup(num)
	if !ok || e.InStream() {
		return 0, false
	}
	return t.Base + e.Offset, true
}

// Objects returns the set object numbers in ascending order.
func (t *Table) Objects() []int {
	var out []int
	for i, e := range t.entries {
		if e.set {
			out = append(out, i)
		}
	}
	return out
}

// grow makes room for object num, rounding the slot count up to the next
// multiple of the growth batch.
func (t *Table) grow(num int) {
	if num < len(t.entries) {
		return
	}
	n := (num + t.growth) / t.growth * t.growth
	grown := make([]Entry, n)
	copy(grown, t.entries)
	for i := len(t.entries); i < n; i++ {
		grown[i] = Entry{Num: i, Stream: NotInStream}
	}
	t.entries = grown
}

// snapshot returns an independent copy used to break ties during a rescan.
func (t *Table) snapshot() *Table {
	c := &Table{Base: t.Base, growth: t.growth, entries: make([]Entry, len(t.entries))}
	copy(c.entries, t.entries)
	return c
}

func (t *Table) reset() {
	t.entries = nil
}

// record inserts or merges one entry and reports whether it repeated an
// existing object number and generation.
//
// A generation outside 0..65535 is a format error and is replaced by 0.
// An unset slot is written unconditionally. Otherwise a lower generation
// never replaces a higher one; an equal or higher generation replaces the
// stored entry unless the stored offset is still the one orig recorded.
func (t *Table) record(num, streamID int, offset, gen int64, rebuild bool, orig *Table, diags *diagnostics) bool {
	if num < 0 {
		diags.errorf(-1, "invalid object number %d", num)
		return false
	}
	if gen < 0 || gen > maxGeneration {
		diags.errorf(-1, "object %d: generation number %d out of range, using 0", num, gen)
		gen = 0
	}
	t.grow(num)
	cur := &t.entries[num]
	next := Entry{Num: num, Gen: uint16(gen), Offset: offset, Stream: streamID, set: true}
	if !cur.set {
		*cur = next
		return false
	}

	dup := next.Gen == cur.Gen
	switch {
	case next.Gen < cur.Gen:
		if !rebuild {
			// a lower generation never replaces a recorded one
			diags.warnf(-1, "object %d: ignoring generation %d below recorded generation %d", num, next.Gen, cur.Gen)
		}
		logger.Debug(fmt.Sprintf("table: object %d keeps gen %d over gen %d", num, cur.Gen, next.Gen))
	case orig != nil && orig.matches(num, *cur):
		logger.Debug(fmt.Sprintf("table: object %d keeps original offset %d", num, cur.Offset))
	default:
		*cur = next
	}
	return dup
}

// free clears the entry of object num when a newer section marks it free
// with a generation no lower than the recorded one.
func (t *Table) free(num int, gen int64) {
	if num < 0 || num >= len(t.entries) {
		return
	}
	cur := &t.entries[num]
	if !cur.set || gen < int64(cur.Gen) {
		return
	}
	logger.Debug(fmt.Sprintf("table: object %d gen %d freed", num, cur.Gen))
	*cur = Entry{Num: num, Stream: NotInStream}
}

// matches reports whether t recorded e's location for object num.
func (t *Table) matches(num int, e Entry) bool {
	o, ok := t.Lookup(num)
	return ok && o.Offset == e.Offset && o.Stream == e.Stream
}
