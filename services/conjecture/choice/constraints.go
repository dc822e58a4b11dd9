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

import "math"

// Kind identifies the domain a choice is drawn from.
type Kind int

const (
	KindInteger Kind = iota
	KindBoolean
	KindBytes
	KindString
	KindFloat
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Constraints restricts the values a choice may take. The concrete type
// selects the codec used by IndexOf and ValueOf.
type Constraints interface {
	Kind() Kind
}

// IntegerConstraints bounds an int64 choice. A nil Min or Max leaves that
// side unbounded. ShrinkTowards is clamped into [Min, Max] before use.
type IntegerConstraints struct {
	Min           *int64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max           *int64 `json:"max,omitempty" yaml:"max,omitempty"`
	ShrinkTowards int64  `json:"shrink_towards" yaml:"shrink_towards"`
}

// Kind implements Constraints.
func (IntegerConstraints) Kind() Kind { return KindInteger }

// Target returns ShrinkTowards clamped into the bounds.
func (c IntegerConstraints) Target() int64 {
	t := c.ShrinkTowards
	if c.Min != nil && t < *c.Min {
		t = *c.Min
	}
	if c.Max != nil && t > *c.Max {
		t = *c.Max
	}
	return t
}

// Contains reports whether v lies within the bounds.
func (c IntegerConstraints) Contains(v int64) bool {
	if c.Min != nil && v < *c.Min {
		return false
	}
	if c.Max != nil && v > *c.Max {
		return false
	}
	return true
}

// Bounded returns constraints for the closed range [lo, hi].
func Bounded(lo, hi, shrinkTowards int64) IntegerConstraints {
	return IntegerConstraints{Min: &lo, Max: &hi, ShrinkTowards: shrinkTowards}
}

// BooleanConstraints weights a boolean choice. P is the probability of true.
type BooleanConstraints struct {
	P float64 `json:"p" yaml:"p"`
}

// Kind implements Constraints.
func (BooleanConstraints) Kind() Kind { return KindBoolean }

// Only returns the single possible value when P makes one outcome
// effectively impossible.
func (c BooleanConstraints) Only() (value bool, ok bool) {
	switch {
	case c.P <= twoToMinus64:
		return false, true
	case c.P >= 1-twoToMinus64:
		return true, true
	default:
		return false, false
	}
}

var twoToMinus64 = math.Ldexp(1, -64)

// BytesConstraints restricts a byte-string choice.
type BytesConstraints struct {
	MinSize int `json:"min_size" yaml:"min_size"`
}

// Kind implements Constraints.
func (BytesConstraints) Kind() Kind { return KindBytes }

// StringConstraints restricts a string choice. Alphabet is listed in shrink
// order: Alphabet[0] is the simplest character.
type StringConstraints struct {
	MinSize  int    `json:"min_size" yaml:"min_size"`
	Alphabet []rune `json:"alphabet" yaml:"alphabet"`
}

// Kind implements Constraints.
func (StringConstraints) Kind() Kind { return KindString }

func (c StringConstraints) order(r rune) (int64, bool) {
	for i, a := range c.Alphabet {
		if a == r {
			return int64(i), true
		}
	}
	return 0, false
}

// FloatConstraints restricts a float choice. The index of a float ignores
// the range; decoding clamps the result into it.
type FloatConstraints struct {
	Min                      float64 `json:"min" yaml:"min"`
	Max                      float64 `json:"max" yaml:"max"`
	AllowNaN                 bool    `json:"allow_nan" yaml:"allow_nan"`
	SmallestNonzeroMagnitude float64 `json:"smallest_nonzero_magnitude" yaml:"smallest_nonzero_magnitude"`
}

// Kind implements Constraints.
func (FloatConstraints) Kind() Kind { return KindFloat }

// UnboundedFloat allows every float including NaN.
func UnboundedFloat() FloatConstraints {
	return FloatConstraints{
		Min:                      math.Inf(-1),
		Max:                      math.Inf(1),
		AllowNaN:                 true,
		SmallestNonzeroMagnitude: math.SmallestNonzeroFloat64,
	}
}
