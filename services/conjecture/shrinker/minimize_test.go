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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindInteger(t *testing.T) {
	for _, limit := range []int{0, 1, 3, 4, 5, 17, 1000} {
		var calls []int
		got := FindInteger(func(n int) bool {
			calls = append(calls, n)
			return n <= limit
		})
		assert.Equal(t, limit, got, "limit %d", limit)
		assert.NotContains(t, calls, 0, "f(0) is assumed")
	}
}

func TestMinimizeInteger(t *testing.T) {
	tests := []struct {
		name   string
		start  uint64
		accept func(uint64) bool
		want   uint64
	}{
		{"zero accepted", 99, func(uint64) bool { return true }, 0},
		{"already zero", 0, func(uint64) bool { return false }, 0},
		{"one", 1, func(uint64) bool { return false }, 1},
		{"threshold", 1000, func(v uint64) bool { return v >= 37 }, 37},
		{"large threshold", 1 << 40, func(v uint64) bool { return v >= 1<<20 }, 1 << 20},
		{"nothing smaller", 12, func(uint64) bool { return false }, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinimizeInteger(tt.start, func(v uint64) bool {
				if v >= tt.start {
					t.Errorf("offered %d, not below %d", v, tt.start)
				}
				return tt.accept(v)
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinimizeBytes(t *testing.T) {
	tests := []struct {
		name    string
		initial []byte
		accept  func([]byte) bool
		want    []byte
	}{
		{"empty", []byte{}, func([]byte) bool { return true }, []byte{}},
		{"zero", []byte{0, 0}, func([]byte) bool { return true }, []byte{0, 0}},
		{"all zero accepted", []byte{9, 9, 9}, func([]byte) bool { return true }, []byte{0, 0, 0}},
		{"first byte bound", []byte{200, 200}, func(b []byte) bool { return b[0] >= 3 }, []byte{3, 0}},
		{"borrow into next byte", []byte{1, 0}, func(b []byte) bool { return uintOf(b) >= 255 }, []byte{0, 255}},
		{"exact value", []byte{7}, func(b []byte) bool { return b[0] == 7 }, []byte{7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinimizeBytes(tt.initial, func(b []byte) bool {
				if bytes.Compare(b, tt.initial) >= 0 {
					t.Errorf("offered %v, not below %v", b, tt.initial)
				}
				return tt.accept(b)
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinimizeBytes_DoesNotAliasInput(t *testing.T) {
	in := []byte{5, 5}
	MinimizeBytes(in, func([]byte) bool { return true })
	assert.Equal(t, []byte{5, 5}, in)
}

func TestUintRoundTrip(t *testing.T) {
	assert.Equal(t, uint64(0x0102), uintOf([]byte{1, 2}))
	assert.Equal(t, []byte{0, 1, 2}, putUint(0x0102, 3))
	assert.Equal(t, []byte{0xff}, putUint(0x1ff, 1), "high bits truncate")
}
