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
	"math/bits"
	"sort"
)

// Lex encoding of non-negative floats.
//
// The top bit tags the encoding. With the tag clear, the low 56 bits are an
// integer and the float is that integer. With the tag set, the next 11 bits
// are a reordered exponent and the low 52 bits a reordered mantissa:
//
//   - Exponents: positive unbiased exponents ascending, then negative ones
//     descending, with the special all-ones exponent last. NaN and infinity
//     therefore sort after every finite value.
//   - Mantissa: the bits below the binary point are reversed, so clearing
//     high-order fractional bits first is simpler.
const (
	maxExponent  = 0x7ff
	exponentBias = 1023
	mantissaMask = (1 << 52) - 1
	simpleMask   = (1 << 56) - 1
	tagBit       = 1 << 63
)

var (
	// encodingTable[lexExponent] = ieeeExponent
	encodingTable [maxExponent + 1]uint16
	// decodingTable[ieeeExponent] = lexExponent
	decodingTable [maxExponent + 1]uint16
)

func init() {
	for i := range encodingTable {
		encodingTable[i] = uint16(i)
	}
	sort.SliceStable(encodingTable[:], func(a, b int) bool {
		return exponentKey(encodingTable[a]) < exponentKey(encodingTable[b])
	})
	for i, e := range encodingTable {
		decodingTable[e] = uint16(i)
	}
}

func exponentKey(e uint16) float64 {
	if e == maxExponent {
		return math.Inf(1)
	}
	unbiased := int(e) - exponentBias
	if unbiased < 0 {
		return float64(10000 - unbiased)
	}
	return float64(unbiased)
}

// reverseBits reverses the low n bits of x.
func reverseBits(x uint64, n uint) uint64 {
	return bits.Reverse64(x) >> (64 - n)
}

func updateMantissa(unbiasedExponent int, mantissa uint64) uint64 {
	switch {
	case unbiasedExponent <= 0:
		return reverseBits(mantissa, 52)
	case unbiasedExponent <= 51:
		fractionalBits := uint(52 - unbiasedExponent)
		fractional := mantissa & ((1 << fractionalBits) - 1)
		mantissa ^= fractional
		return mantissa | reverseBits(fractional, fractionalBits)
	default:
		return mantissa
	}
}

// isSimple reports whether f is a non-negative integer that fits in 56 bits.
func isSimple(f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) {
		return false
	}
	return f < (1 << 56)
}

// FloatToLex encodes a non-negative float (including NaN with a clear sign
// bit) so that smaller encodings are simpler floats.
func FloatToLex(f float64) uint64 {
	if isSimple(f) {
		return uint64(f)
	}
	i := math.Float64bits(f) &^ tagBit
	exponent := i >> 52
	mantissa := updateMantissa(int(exponent)-exponentBias, i&mantissaMask)
	return tagBit | uint64(decodingTable[exponent])<<52 | mantissa
}

// LexToFloat inverts FloatToLex. Every 64-bit input decodes to some
// non-negative float.
func LexToFloat(u uint64) float64 {
	if u&tagBit == 0 {
		return float64(u & simpleMask)
	}
	exponent := uint64(encodingTable[(u>>52)&maxExponent])
	mantissa := updateMantissa(int(exponent)-exponentBias, u&mantissaMask)
	return math.Float64frombits(exponent<<52 | mantissa)
}

// FloatClamper maps arbitrary floats into the set allowed by a
// FloatConstraints.
type FloatClamper struct {
	c         FloatConstraints
	rangeSize float64
}

// NewFloatClamper builds a clamper for c. A zero SmallestNonzeroMagnitude
// is treated as math.SmallestNonzeroFloat64.
func NewFloatClamper(c FloatConstraints) *FloatClamper {
	if c.SmallestNonzeroMagnitude <= 0 {
		c.SmallestNonzeroMagnitude = math.SmallestNonzeroFloat64
	}
	return &FloatClamper{
		c:         c,
		rangeSize: math.Min(c.Max-c.Min, math.MaxFloat64),
	}
}

// Clamp maps f into range.
//
// Description:
//
//	Values already permitted are returned unchanged. Out of range values
//	(and NaN when NaN is not allowed) are mapped into the range using the
//	fraction their mantissa represents, so distinct inputs keep spreading
//	over the range instead of piling onto one bound. Magnitudes below
//	SmallestNonzeroMagnitude are pushed out to it.
func (fc *FloatClamper) Clamp(f float64) float64 {
	c := fc.c
	if math.IsNaN(f) && c.AllowNaN {
		return f
	}
	if !signAwareLTE(c.Min, f) || !signAwareLTE(f, c.Max) {
		mant := math.Float64bits(math.Abs(f)) & mantissaMask
		f = c.Min + fc.rangeSize*(float64(mant)/mantissaMask)
	}
	if a := math.Abs(f); a > 0 && a < c.SmallestNonzeroMagnitude {
		f = math.Copysign(c.SmallestNonzeroMagnitude, f)
		if f > c.Max {
			f = -c.SmallestNonzeroMagnitude
		}
		if f < c.Min {
			f = c.SmallestNonzeroMagnitude
		}
	}
	return math.Max(c.Min, math.Min(f, c.Max))
}

// signAwareLTE is <= that orders -0.0 before 0.0.
func signAwareLTE(x, y float64) bool {
	if x == 0 && y == 0 {
		return math.Signbit(x) || !math.Signbit(y)
	}
	return x <= y
}
