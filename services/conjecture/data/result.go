// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package data

import (
	"bytes"
	"sort"
	"sync"
	"time"
)

// Block is the byte span behind one primitive draw.
type Block struct {
	Start   int
	End     int
	Index   int
	Forced  bool
	AllZero bool
}

// Length returns the number of bytes in the block.
func (b Block) Length() int { return b.End - b.Start }

// Trivial reports whether the block cannot be made any simpler.
func (b Block) Trivial() bool { return b.Forced || b.AllZero }

// Result is the immutable record of a concluded run.
//
// Thread Safety: Safe for concurrent use. The exported slices must not be
// modified.
type Result struct {
	ID           uint64
	Status       Status
	Origin       Origin
	Buffer       []byte
	Blocks       []Block
	Events       []string
	DrawTimes    []time.Duration
	Runtime      time.Duration
	HasDiscards  bool
	HitZeroBound bool
	Traceback    string
	Output       []string

	forced map[int]struct{}
	masks  map[int]byte
	trail  []uint64
	labels []uint64

	examplesOnce sync.Once
	examples     Examples
}

// OverrunResult stands in for every overrun. Caches store it instead of
// the full record since overruns carry no information worth keeping.
var OverrunResult = &Result{Status: StatusOverrun}

// IsForced reports whether byte i was forced rather than drawn.
func (r *Result) IsForced(i int) bool {
	_, ok := r.forced[i]
	return ok
}

// ForcedIndices returns the forced byte positions in ascending order.
func (r *Result) ForcedIndices() []int {
	out := make([]int, 0, len(r.forced))
	for i := range r.forced {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Mask returns the bit mask applied to byte i, if any.
func (r *Result) Mask(i int) (byte, bool) {
	m, ok := r.masks[i]
	return m, ok
}

// Examples returns the example tree, computed on first use.
func (r *Result) Examples() Examples {
	r.examplesOnce.Do(func() {
		r.examples = computeExamples(r.trail, r.labels, r.Blocks)
	})
	return r.examples
}

// BlockStarts groups block starts by block length.
func (r *Result) BlockStarts() map[int][]int {
	out := make(map[int][]int)
	for _, b := range r.Blocks {
		out[b.Length()] = append(out[b.Length()], b.Start)
	}
	return out
}

// CompareBuffers orders buffers by simplicity: shorter first, then
// lexicographically. It returns -1, 0 or 1.
func CompareBuffers(a, b []byte) int {
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return bytes.Compare(a, b)
	}
}
