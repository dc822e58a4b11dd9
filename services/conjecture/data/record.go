// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package data records a single execution of a test against a byte stream.
//
// A Data is the live, mutable record: the test draws bits from it, opens
// and closes labelled example regions, and finally concludes it with a
// Status. Concluding freezes the record and unwinds the test by panicking
// with StopTest; the driver that owns the record recovers that panic. A
// frozen record projects into an immutable Result.
//
// # Thread Safety
//
// Data is NOT safe for concurrent use. One goroutine drives a record from
// creation to freeze. Result is immutable and safe to share.
package data

import (
	"sort"
	"time"

	"github.com/AleutianAI/conjecture/services/conjecture/choice"
)

// MaxDepth is the deepest example nesting allowed before a run is marked
// invalid.
const MaxDepth = 100

// Trail records. Every draw appends recordDraw, every example start appends
// recordStart plus the label's index, every stop appends one of the stop
// records. Examples are recomputed from this log on demand.
const (
	recordDraw        uint64 = 0
	recordStopDiscard uint64 = 1
	recordStopKeep    uint64 = 2
	recordStart       uint64 = 3
)

// DrawFunc supplies n fresh bytes for a draw starting at d.Index(). It may
// return fewer than n bytes; the remainder is zero filled.
type DrawFunc func(d *Data, n int) []byte

// Data is the live record of one test execution.
//
// Description:
//
//	Created per attempt by a driver, which passes it to the test function.
//	The test draws through DrawBits, DrawBytes and Write, and structures
//	those draws with StartExample and StopExample. The record concludes
//	either explicitly (MarkInvalid, MarkInteresting, MarkOverrun) or when
//	the driver freezes it after the test returns.
//
// Thread Safety: Not safe for concurrent use.
type Data struct {
	id        uint64
	maxLength int
	source    DrawFunc

	buffer []byte
	blocks []Block
	forced map[int]struct{}
	masks  map[int]byte

	trail      []uint64
	labels     []uint64
	labelIndex map[uint64]int
	depth      int
	drawStart  time.Time

	status      Status
	origin      Origin
	frozen      bool
	hasDiscards bool
	zeroBound   bool
	events      map[string]struct{}
	drawTimes   []time.Duration
	startTime   time.Time
	finishTime  time.Time
	traceback   string
	output      []string

	result *Result
}

// New creates a record that pulls bytes from source.
//
// Inputs:
//   - id: Identity carried by the StopTest panic. Drivers issue one per
//     record from their own counter.
//   - maxLength: Byte budget. Drawing past it concludes with StatusOverrun.
//   - source: Byte supplier for unforced draws.
//
// Outputs:
//   - *Data: An open record with the top-level example already started.
func New(id uint64, maxLength int, source DrawFunc) *Data {
	if maxLength > choice.BufferSize {
		maxLength = choice.BufferSize
	}
	d := &Data{
		id:         id,
		maxLength:  maxLength,
		source:     source,
		buffer:     make([]byte, 0, min(maxLength, 64)),
		forced:     make(map[int]struct{}),
		masks:      make(map[int]byte),
		labelIndex: make(map[uint64]int),
		depth:      -1,
		status:     StatusValid,
		events:     make(map[string]struct{}),
		startTime:  time.Now(),
	}
	d.StartExample(TopLabel)
	return d
}

// ForBuffer creates a record that replays exactly buf and overruns if the
// test wants more.
func ForBuffer(id uint64, buf []byte) *Data {
	replay := append([]byte(nil), buf...)
	return New(id, len(replay), func(d *Data, n int) []byte {
		i := d.Index()
		return replay[i : i+n]
	})
}

// ID returns the identity carried by this record's StopTest panics.
func (d *Data) ID() uint64 { return d.id }

// Index returns the number of bytes consumed so far.
func (d *Data) Index() int { return len(d.buffer) }

// MaxLength returns the byte budget.
func (d *Data) MaxLength() int { return d.maxLength }

// Bytes returns the bytes consumed so far. The slice must not be modified.
func (d *Data) Bytes() []byte { return d.buffer }

// Depth returns the current example nesting depth. The top-level example
// is depth 0.
func (d *Data) Depth() int { return d.depth }

// Frozen reports whether the record has concluded.
func (d *Data) Frozen() bool { return d.frozen }

// Status returns the current status. An open record reports StatusValid.
func (d *Data) Status() Status { return d.status }

// Origin returns the interesting origin, empty unless interesting.
func (d *Data) Origin() Origin { return d.origin }

// BlockStarts returns the starts of blocks drawn so far that are n bytes
// long.
func (d *Data) BlockStarts(n int) []int {
	var out []int
	for _, b := range d.blocks {
		if b.Length() == n {
			out = append(out, b.Start)
		}
	}
	return out
}

// DrawBits draws an n-bit unsigned integer, 0 <= n <= 64.
//
// Description:
//
//	Consumes ceil(n/8) bytes from the source and masks the high bits of
//	the first byte so the result fits in n bits. Drawing zero bits is free.
//	If the byte budget would be exceeded the record concludes as an
//	overrun and unwinds.
func (d *Data) DrawBits(n int) uint64 {
	return d.drawBits(n, 0, false)
}

// ForcedBits behaves like DrawBits but records value instead of reading
// the source. The block is marked forced so minimizers leave it alone.
func (d *Data) ForcedBits(n int, value uint64) uint64 {
	return d.drawBits(n, value, true)
}

func (d *Data) drawBits(n int, value uint64, forced bool) uint64 {
	d.assertNotFrozen("draw_bits")
	if n == 0 {
		return 0
	}
	if n < 0 || n > 64 {
		panic(ErrTooManyBits)
	}
	nBytes := (n + 7) / 8
	d.checkCapacity(nBytes)

	var buf []byte
	if forced {
		buf = uintToBytes(value, nBytes)
	} else {
		buf = d.draw(nBytes)
	}
	mask := byteMask(n)
	buf[0] &= mask

	var result uint64
	for _, b := range buf {
		result = result<<8 | uint64(b)
	}
	d.appendBlock(buf, forced, mask)
	return result
}

// DrawBytes draws n unmasked bytes as a single block.
func (d *Data) DrawBytes(n int) []byte {
	d.assertNotFrozen("draw_bytes")
	if n == 0 {
		return []byte{}
	}
	d.checkCapacity(n)
	buf := d.draw(n)
	d.appendBlock(buf, false, 0xff)
	return append([]byte(nil), buf...)
}

// Write forces b into the stream as a single block, as if it had been
// drawn.
func (d *Data) Write(b []byte) []byte {
	d.assertNotFrozen("write")
	if len(b) == 0 {
		return []byte{}
	}
	d.checkCapacity(len(b))
	buf := append([]byte(nil), b...)
	d.appendBlock(buf, true, 0xff)
	return append([]byte(nil), buf...)
}

func (d *Data) draw(n int) []byte {
	got := d.source(d, n)
	buf := make([]byte, n)
	copy(buf, got)
	return buf
}

func (d *Data) appendBlock(buf []byte, forced bool, mask byte) {
	start := len(d.buffer)
	end := start + len(buf)
	if forced {
		for i := start; i < end; i++ {
			d.forced[i] = struct{}{}
		}
	}
	if mask != 0xff {
		d.masks[start] = mask
	}
	_, startForced := d.forced[start]

	allZero := true
	for _, b := range buf {
		if b != 0 {
			allZero = false
			break
		}
	}

	d.buffer = append(d.buffer, buf...)
	d.blocks = append(d.blocks, Block{
		Start:   start,
		End:     end,
		Index:   len(d.blocks),
		Forced:  startForced,
		AllZero: allZero,
	})
	d.trail = append(d.trail, recordDraw)
}

// StartExample opens a labelled region. Nesting deeper than MaxDepth marks
// the run invalid.
func (d *Data) StartExample(label uint64) {
	d.assertNotFrozen("start_example")
	if d.depth >= MaxDepth {
		d.NoteEvent("invalid because: max depth exceeded")
		d.MarkInvalid()
	}
	d.depth++
	if d.depth == 1 {
		d.drawStart = time.Now()
	}
	idx, ok := d.labelIndex[label]
	if !ok {
		idx = len(d.labels)
		d.labels = append(d.labels, label)
		d.labelIndex[label] = idx
	}
	d.trail = append(d.trail, recordStart+uint64(idx))
}

// StopExample closes the innermost region. discard marks the region as
// deletable wholesale. Calling it on a frozen record is a no-op, so it is
// safe to defer.
func (d *Data) StopExample(discard bool) {
	if d.frozen {
		return
	}
	d.stopExample(discard)
}

func (d *Data) stopExample(discard bool) {
	if d.depth < 0 {
		return
	}
	if discard {
		d.hasDiscards = true
		d.trail = append(d.trail, recordStopDiscard)
	} else {
		d.trail = append(d.trail, recordStopKeep)
	}
	if d.depth == 1 {
		d.drawTimes = append(d.drawTimes, time.Since(d.drawStart))
	}
	d.depth--
}

// NoteEvent records an observation about this run. Events feed the
// covering corpus and run statistics.
func (d *Data) NoteEvent(event string) {
	if d.frozen {
		return
	}
	d.events[event] = struct{}{}
}

// Note appends a line of output to be shown when this run is reported.
func (d *Data) Note(line string) {
	if d.frozen {
		return
	}
	d.output = append(d.output, line)
}

// SetTraceback stores the failure trace reported with an interesting run.
// It must be called before the record concludes.
func (d *Data) SetTraceback(tb string) {
	d.assertNotFrozen("set_traceback")
	d.traceback = tb
}

// NoteForced marks bytes [from, to) as forced. Byte sources call it when
// they substitute fixed bytes for generated ones.
func (d *Data) NoteForced(from, to int) {
	for i := from; i < to; i++ {
		d.forced[i] = struct{}{}
	}
}

// NoteZeroBound records that the byte source truncated generation.
func (d *Data) NoteZeroBound() { d.zeroBound = true }

// HitZeroBound reports whether NoteZeroBound was called.
func (d *Data) HitZeroBound() bool { return d.zeroBound }

// MarkInvalid concludes the run as invalid and unwinds.
func (d *Data) MarkInvalid() {
	d.Conclude(StatusInvalid, "")
	panic(StopTest{ID: d.id, record: d})
}

// MarkInteresting concludes the run as a failure with the given origin and
// unwinds.
func (d *Data) MarkInteresting(origin Origin) {
	d.Conclude(StatusInteresting, origin)
	panic(StopTest{ID: d.id, record: d})
}

// MarkOverrun concludes the run as an overrun and unwinds.
func (d *Data) MarkOverrun() {
	d.Conclude(StatusOverrun, "")
	panic(StopTest{ID: d.id, record: d})
}

// Conclude sets the terminal status and freezes without unwinding. Drivers
// use it to classify a test that returned or failed on its own.
//
// Description:
//
//	StatusInteresting requires a non-empty origin and every other status
//	requires an empty one. Concluding twice panics with ErrFrozen.
func (d *Data) Conclude(status Status, origin Origin) {
	d.assertNotFrozen("conclude")
	if (status == StatusInteresting) != (origin != "") {
		panic(ErrMissingOrigin)
	}
	d.status = status
	d.origin = origin
	d.Freeze()
}

// Freeze closes any open examples and locks the record. A record frozen
// without an explicit conclusion is valid.
func (d *Data) Freeze() {
	if d.frozen {
		return
	}
	d.finishTime = time.Now()
	for d.depth >= 0 {
		d.stopExample(false)
	}
	d.frozen = true
}

// AsResult returns the immutable projection of a frozen record. Repeated
// calls return the same Result.
func (d *Data) AsResult() *Result {
	if !d.frozen {
		d.Freeze()
	}
	if d.result != nil {
		return d.result
	}

	events := make([]string, 0, len(d.events))
	for e := range d.events {
		events = append(events, e)
	}
	sort.Strings(events)

	d.result = &Result{
		ID:           d.id,
		Status:       d.status,
		Origin:       d.origin,
		Buffer:       append([]byte(nil), d.buffer...),
		Blocks:       append([]Block(nil), d.blocks...),
		Events:       events,
		DrawTimes:    append([]time.Duration(nil), d.drawTimes...),
		Runtime:      d.finishTime.Sub(d.startTime),
		HasDiscards:  d.hasDiscards,
		HitZeroBound: d.zeroBound,
		Traceback:    d.traceback,
		Output:       append([]string(nil), d.output...),
		forced:       d.forced,
		masks:        d.masks,
		trail:        d.trail,
		labels:       d.labels,
	}
	return d.result
}

func (d *Data) checkCapacity(n int) {
	if len(d.buffer)+n > d.maxLength {
		d.MarkOverrun()
	}
}

func (d *Data) assertNotFrozen(op string) {
	if d.frozen {
		panic(frozenError(op))
	}
}

// byteMask keeps the low n%8 bits of the first byte of an n-bit draw.
func byteMask(n int) byte {
	if r := n % 8; r != 0 {
		return byte(1<<r) - 1
	}
	return 0xff
}

func uintToBytes(v uint64, n int) []byte {
	buf := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}
