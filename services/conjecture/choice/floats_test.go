// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package choice

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatLexRoundTrip(t *testing.T) {
	values := []float64{
		0, 1, 2, 3, 0.5, 1.5, 2.25, 1e-300, 1e300,
		math.SmallestNonzeroFloat64, math.MaxFloat64,
		math.Inf(1), 1 << 60, 1 << 53, math.Pi,
	}
	for _, f := range values {
		got := LexToFloat(FloatToLex(f))
		if got != f {
			t.Errorf("LexToFloat(FloatToLex(%v)) = %v", f, got)
		}
	}

	if !math.IsNaN(LexToFloat(FloatToLex(math.NaN()))) {
		t.Error("expected NaN to survive a round trip")
	}
}

func TestFloatLexSimpleIntegers(t *testing.T) {
	for _, f := range []float64{0, 1, 2, 100, 1 << 53, 1<<56 - 8} {
		assert.Equal(t, uint64(f), FloatToLex(f), "float %v", f)
	}
	if FloatToLex(1<<56)&tagBit == 0 {
		t.Error("expected 2^56 to use the tagged encoding")
	}
}

func TestFloatLexOrdering(t *testing.T) {
	ordered := []float64{0, 1, 2, 1.5, 2.5, 0.5, math.Inf(1)}
	// Every integer is simpler than every fraction, and among fractions a
	// smaller integer part and a simpler denominator come first.
	for i := 0; i+1 < len(ordered); i++ {
		a, b := FloatToLex(ordered[i]), FloatToLex(ordered[i+1])
		if a >= b {
			t.Errorf("expected %v (%#x) < %v (%#x)", ordered[i], a, ordered[i+1], b)
		}
	}
	if FloatToLex(math.Inf(1)) >= FloatToLex(math.NaN()) {
		t.Error("expected infinity simpler than NaN")
	}
}

func TestLexToFloatNonNegative(t *testing.T) {
	inputs := []uint64{0, 1, tagBit, tagBit | 1, math.MaxUint64, 0x7ff0000000000000}
	for _, u := range inputs {
		if f := LexToFloat(u); math.Signbit(f) {
			t.Errorf("LexToFloat(%#x) = %v has sign bit set", u, f)
		}
	}
}

func TestFloatIndexSign(t *testing.T) {
	c := UnboundedFloat()
	pos, err := IndexOf(1.5, c)
	require.NoError(t, err)
	neg, err := IndexOf(-1.5, c)
	require.NoError(t, err)
	if pos.Cmp(neg) >= 0 {
		t.Errorf("expected positive index %s below negative index %s", pos, neg)
	}

	v, err := ValueOf(neg, c)
	require.NoError(t, err)
	assert.Equal(t, -1.5, v)

	zero, err := ValueOf(big.NewInt(0), c)
	require.NoError(t, err)
	assert.Equal(t, 0.0, zero)
}

func TestFloatClamper(t *testing.T) {
	c := FloatConstraints{Min: 1, Max: 2, SmallestNonzeroMagnitude: math.SmallestNonzeroFloat64}
	clamper := NewFloatClamper(c)

	for _, f := range []float64{0, -5, 100, math.Inf(1), math.NaN(), 1.25} {
		got := clamper.Clamp(f)
		if got < 1 || got > 2 || math.IsNaN(got) {
			t.Errorf("Clamp(%v) = %v, outside [1, 2]", f, got)
		}
	}
	assert.Equal(t, 1.25, clamper.Clamp(1.25))

	t.Run("smallest magnitude", func(t *testing.T) {
		c := FloatConstraints{Min: -10, Max: 10, SmallestNonzeroMagnitude: 0.5}
		got := NewFloatClamper(c).Clamp(0.1)
		assert.Equal(t, 0.5, got)
		assert.Equal(t, 0.0, NewFloatClamper(c).Clamp(0))
	})

	t.Run("nan allowed", func(t *testing.T) {
		got := NewFloatClamper(UnboundedFloat()).Clamp(math.NaN())
		if !math.IsNaN(got) {
			t.Errorf("expected NaN, got %v", got)
		}
	})
}
