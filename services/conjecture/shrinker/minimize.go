// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shrinker

import (
	"bytes"
	"slices"
)

// FindInteger returns some n >= 0 with f(n) true and f(n+1) false, trying
// small values first. f(0) is assumed true and never called. Every call
// after a true answer is for a strictly larger n.
func FindInteger(f func(int) bool) int {
	for i := 1; i < 5; i++ {
		if !f(i) {
			return i - 1
		}
	}
	lo, hi := 4, 5
	for f(hi) {
		lo = hi
		hi *= 2
	}
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if f(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// MinimizeInteger lowers n while accept holds for the lowered value. accept
// is only ever offered values smaller than the current best.
func MinimizeInteger(n uint64, accept func(uint64) bool) uint64 {
	if n == 0 || accept(0) {
		return 0
	}
	if n == 1 {
		return 1
	}
	if accept(1) {
		return 1
	}
	for {
		prev := n
		base := n
		FindInteger(func(k int) bool {
			if uint64(k) >= base {
				return false
			}
			if accept(base - uint64(k)) {
				n = base - uint64(k)
				return true
			}
			return false
		})

		base = n
		FindInteger(func(k int) bool {
			if k >= 64 {
				return false
			}
			v := base >> uint(k)
			if v >= n {
				return false
			}
			if accept(v) {
				n = v
				return true
			}
			return false
		})
		if n == prev {
			return n
		}
	}
}

// smallShrinks lists, for each byte value, the handful of smaller values
// worth probing before a full scan.
var smallShrinks = func() [256][]byte {
	var table [256][]byte
	for b := 0; b < 10; b++ {
		for c := 0; c < b; c++ {
			table[b] = append(table[b], byte(c))
		}
	}
	for b := 10; b < 256; b++ {
		set := map[byte]struct{}{0: {}, byte(b - 1): {}}
		for i := 0; i < 8; i++ {
			if c := b ^ (1 << i); c != b {
				set[byte(c)] = struct{}{}
			}
		}
		for c := range set {
			table[b] = append(table[b], c)
		}
		slices.Sort(table[b])
	}
	return table
}()

// MinimizeBytes lowers a fixed-width block lexicographically while accept
// holds.
//
// Description:
//
//	Tries zero, then capping every byte at increasing values, then per
//	byte probes from smallShrinks followed by a full downward scan once
//	a probe succeeds. Lowering one byte is also tried with the following
//	bytes saturated, which finds values like 0x00ff below 0x0100.
func MinimizeBytes(initial []byte, accept func([]byte) bool) []byte {
	current := bytes.Clone(initial)
	size := len(current)
	if size == 0 || isZero(current) {
		return current
	}

	try := func(candidate []byte) bool {
		if bytes.Compare(candidate, current) >= 0 {
			return false
		}
		if accept(candidate) {
			current = candidate
			return true
		}
		return false
	}
	shrinkIndex := func(i int, c byte) bool {
		if current[i] <= c {
			return false
		}
		cand := bytes.Clone(current)
		cand[i] = c
		if try(cand) {
			return true
		}
		if i == size-1 {
			return false
		}
		cand = bytes.Clone(current)
		cand[i] = c
		cand[i+1] = 0xff
		if try(cand) {
			return true
		}
		cand = bytes.Clone(current)
		cand[i] = c
		for j := i + 1; j < size; j++ {
			cand[j] = 0xff
		}
		return try(cand)
	}

	if try(make([]byte, size)) {
		return current
	}
	top := slices.Max(current)
	for c := 0; c < int(top); c++ {
		cand := bytes.Clone(current)
		for i := range cand {
			cand[i] = min(cand[i], byte(c))
		}
		if try(cand) {
			break
		}
	}

	for changed := true; changed; {
		changed = false
		for i := 0; i < size; i++ {
			probes := smallShrinks[current[i]]
			for _, c := range probes {
				if !shrinkIndex(i, c) {
					continue
				}
				changed = true
				for c := 0; c < int(current[i]); c++ {
					if slices.Contains(probes, byte(c)) {
						continue
					}
					if shrinkIndex(i, byte(c)) {
						break
					}
				}
				break
			}
		}
	}
	return current
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// uintOf reads a big-endian block of at most 8 bytes.
func uintOf(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// putUint writes v big-endian into a block of n bytes, truncating high
// bits.
func putUint(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}
