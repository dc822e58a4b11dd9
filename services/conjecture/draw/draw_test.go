// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package draw

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/conjecture/services/conjecture/choice"
	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

// exec runs fn over buf, absorbing the unwind, and returns the frozen
// record.
func exec(buf []byte, fn func(d *data.Data)) *data.Data {
	d := data.ForBuffer(1, buf)
	func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(data.StopTest); !ok {
					panic(r)
				}
			}
		}()
		fn(d)
	}()
	d.Freeze()
	return d
}

func zeros(n int) []byte { return make([]byte, n) }

func TestCenteredIntegerRange_ZeroStreamIsCenter(t *testing.T) {
	var got int64
	exec(zeros(8), func(d *data.Data) { got = CenteredIntegerRange(d, -2, 5, 2) })
	assert.Equal(t, int64(2), got)
}

func TestIntegerRange(t *testing.T) {
	tests := []struct {
		name         string
		buf          []byte
		lower, upper int64
		want         int64
		discards     bool
	}{
		{"zero stream is lower", zeros(4), 0, 10, 0, false},
		{"probe past the gap is discarded", []byte{0x0f, 3}, 0, 10, 3, true},
		{"top of range", []byte{10}, 0, 10, 10, false},
		{"negative range", []byte{1}, -5, -3, -4, false},
		{"full int64 range", bytes.Repeat([]byte{0xff}, 8), math.MinInt64, math.MaxInt64, math.MaxInt64, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int64
			d := exec(tt.buf, func(d *data.Data) { got = IntegerRange(d, tt.lower, tt.upper) })
			assert.Equal(t, tt.want, got)
			assert.Equal(t, data.StatusValid, d.Status())
			assert.Equal(t, tt.discards, d.AsResult().HasDiscards)
		})
	}
}

func TestIntegerRange_SingleValueWritesByte(t *testing.T) {
	var got int64
	d := exec(nil, func(d *data.Data) { got = IntegerRange(d, 5, 5) })
	assert.Equal(t, int64(5), got)
	r := d.AsResult()
	assert.Equal(t, []byte{0}, r.Buffer)
	assert.True(t, r.IsForced(0))
}

func TestIntegerRange_StaysInBounds(t *testing.T) {
	for b := 0; b < 256; b++ {
		var got int64
		d := exec([]byte{byte(b), byte(b), byte(b), 0, 0, 0}, func(d *data.Data) {
			got = CenteredIntegerRange(d, -3, 7, 1)
		})
		if d.Status() != data.StatusValid {
			continue
		}
		if got < -3 || got > 7 {
			t.Errorf("byte %d: %d outside [-3, 7]", b, got)
		}
	}
}

func TestCoin(t *testing.T) {
	assert.Equal(t, 1, NewCoin(0.5).Bits())
	assert.Equal(t, 4, NewCoin(0.9).Bits())

	tests := []struct {
		name string
		p    float64
		buf  []byte
		want bool
	}{
		{"zero is false", 0.9, []byte{0}, false},
		{"one is true", 0.1, []byte{1}, true},
		{"above falsey is true", 0.9, []byte{2}, true},
		{"top slot retries with remainder", 0.9, []byte{15, 0}, false},
		{"fair coin", 0.5, []byte{1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got bool
			d := exec(tt.buf, func(d *data.Data) { got = BiasedCoin(d, tt.p) })
			require.Equal(t, data.StatusValid, d.Status())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBiasedCoin_DegenerateStillWrites(t *testing.T) {
	for _, tt := range []struct {
		p    float64
		want bool
	}{{0, false}, {-1, false}, {1, true}, {2, true}} {
		var got bool
		d := exec(nil, func(d *data.Data) { got = BiasedCoin(d, tt.p) })
		assert.Equal(t, tt.want, got, "p=%g", tt.p)
		r := d.AsResult()
		require.Len(t, r.Buffer, 1, "p=%g", tt.p)
		assert.True(t, r.IsForced(0))
	}
}

func TestBiasedCoin_ExtremeProbabilities(t *testing.T) {
	tests := []struct {
		name string
		p    float64
		want bool
	}{
		{"far below 2^-64", 1e-25, false},
		{"smallest subnormal", math.SmallestNonzeroFloat64, false},
		{"exactly 2^-64", math.Ldexp(1, -64), false},
		{"nan", math.NaN(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got bool
			d := exec(zeros(16), func(d *data.Data) {
				require.NotPanics(t, func() { got = BiasedCoin(d, tt.p) })
			})
			require.Equal(t, data.StatusValid, d.Status())
			assert.Equal(t, tt.want, got)
			r := d.AsResult()
			require.Len(t, r.Buffer, 1)
			assert.True(t, r.IsForced(0))
		})
	}

	assert.Equal(t, 64, NewCoin(1e-19).Bits(), "just above 2^-64 still fits one draw")
	var got bool
	d := exec(zeros(8), func(d *data.Data) { got = BiasedCoin(d, 1e-19) })
	require.Equal(t, data.StatusValid, d.Status())
	assert.False(t, got)
}

func TestSampler_TableOrdering(t *testing.T) {
	s, err := NewSampler([]float64{5, 1, 3, 0, 1})
	require.NoError(t, err)
	require.Equal(t, 5, s.Len())

	for i, e := range s.table {
		assert.LessOrEqual(t, e.Base, e.Alternate, "row %d", i)
		assert.GreaterOrEqual(t, e.AlternateChance, 0.0)
		assert.LessOrEqual(t, e.AlternateChance, 1.0)
		if i > 0 {
			prev := s.table[i-1]
			ordered := prev.Base < e.Base || (prev.Base == e.Base && prev.Alternate <= e.Alternate)
			assert.True(t, ordered, "rows %d and %d out of order", i-1, i)
		}
	}

	var got int
	exec(zeros(16), func(d *data.Data) { got = s.Sample(d) })
	assert.Equal(t, 0, got)
}

func TestSampler_UniformWeights(t *testing.T) {
	s, err := NewSampler([]float64{1, 1})
	require.NoError(t, err)
	var got int
	exec([]byte{1, 0}, func(d *data.Data) { got = s.Sample(d) })
	assert.Equal(t, 1, got)
}

func TestSampler_BadWeights(t *testing.T) {
	for _, w := range [][]float64{nil, {0, 0}, {1, -1}} {
		_, err := NewSampler(w)
		assert.True(t, errors.Is(err, ErrNoWeight), "weights %v", w)
	}
}

func TestMany_FixedSize(t *testing.T) {
	n := 0
	d := exec(zeros(8), func(d *data.Data) {
		m := NewMany(d, 3, 3, 3)
		for m.More() {
			d.DrawBits(8)
			n++
		}
	})
	assert.Equal(t, 3, n)
	assert.Len(t, d.AsResult().Buffer, 3, "no coin bytes for a fixed size")
}

func TestMany_RiggedBelowMin(t *testing.T) {
	var m *Many
	d := exec(zeros(16), func(d *data.Data) {
		m = NewMany(d, 2, 5, 3)
		for m.More() {
			d.DrawBits(8)
		}
	})
	assert.Equal(t, 2, m.Count())
	r := d.AsResult()
	assert.True(t, r.IsForced(0), "first continue decision is rigged")
	assert.False(t, r.IsForced(1), "element byte is drawn")
}

func TestMany_RejectStops(t *testing.T) {
	iterations := 0
	d := exec(bytes.Repeat([]byte{1}, 16), func(d *data.Data) {
		m := NewMany(d, 0, 10, 3)
		for m.More() {
			iterations++
			d.DrawBits(8)
			m.Reject()
		}
	})
	assert.Equal(t, 1, iterations)
	assert.Equal(t, data.StatusValid, d.Status())
	assert.True(t, d.AsResult().HasDiscards)
}

func TestMany_RejectBelowMinIsInvalid(t *testing.T) {
	d := exec(zeros(16), func(d *data.Data) {
		m := NewMany(d, 1, 10, 3)
		for m.More() {
			m.Reject()
		}
	})
	assert.Equal(t, data.StatusInvalid, d.Status())
}

func TestFloat_WriteThenRead(t *testing.T) {
	for _, f := range []float64{0, 1, -2.5, 1e300, math.Inf(1), -math.SmallestNonzeroFloat64} {
		written := data.New(1, 64, nil)
		WriteFloat(written, f)
		buf := written.AsResult().Buffer

		var got float64
		exec(buf, func(d *data.Data) { got = Float(d, choice.UnboundedFloat()) })
		assert.Equal(t, f, got)
	}
}

func TestFloat_ZeroStream(t *testing.T) {
	var got float64
	exec(zeros(9), func(d *data.Data) { got = Float(d, choice.UnboundedFloat()) })
	assert.Equal(t, 0.0, got)
}

func TestInteger(t *testing.T) {
	var bounded, free int64
	exec(zeros(16), func(d *data.Data) {
		bounded = Integer(d, choice.Bounded(-2, 5, 2))
		free = Integer(d, choice.IntegerConstraints{ShrinkTowards: 7})
	})
	assert.Equal(t, int64(2), bounded)
	assert.Equal(t, int64(7), free)

	var next int64
	exec([]byte{1}, func(d *data.Data) { next = Integer(d, choice.Bounded(-2, 5, 2)) })
	assert.Equal(t, int64(3), next, "index 1 is one step above the target")
}

func TestBytesAndString(t *testing.T) {
	var b []byte
	var s string
	exec(zeros(32), func(d *data.Data) {
		b = Bytes(d, 2, 4)
		s = String(d, []rune("abc"), 1, 3)
	})
	assert.Equal(t, []byte{0, 0}, b)
	assert.Equal(t, "a", s)
}

func TestChoice(t *testing.T) {
	var got int
	exec([]byte{2}, func(d *data.Data) { got = Choice(d, 3) })
	assert.Equal(t, 2, got)
}
