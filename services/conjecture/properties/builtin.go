// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package properties

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	"github.com/AleutianAI/conjecture/services/conjecture/choice"
	"github.com/AleutianAI/conjecture/services/conjecture/data"
	"github.com/AleutianAI/conjecture/services/conjecture/draw"
)

const sumLimit = 1000

func builtins() []Property {
	return []Property{
		{
			Name:          "sum_below_limit",
			Description:   "a list of integers in [0, 1000] sums to at most 1000",
			ExpectFailure: true,
			Test:          sumBelowLimit,
		},
		{
			Name:          "distinct_digits",
			Description:   "a list of digits has no repeats",
			ExpectFailure: true,
			Test:          distinctDigits,
		},
		{
			Name:          "small_integer",
			Description:   "an integer in [0, 10000] is below 500",
			ExpectFailure: true,
			Test:          smallInteger,
		},
		{
			Name:          "safe_division",
			Description:   "integer division never panics",
			ExpectFailure: true,
			Test:          safeDivision,
		},
		{
			Name:          "balanced_parens",
			Description:   "strings over ( and ) are balanced",
			ExpectFailure: true,
			Test:          balancedParens,
		},
		{
			Name:        "float_lex_roundtrip",
			Description: "the float lex encoding inverts for every non-negative float",
			Test:        floatLexRoundTrip,
		},
		{
			Name:        "bytes_index_roundtrip",
			Description: "the byte-string choice index inverts",
			Test:        bytesIndexRoundTrip,
		},
		{
			Name:        "sort_is_idempotent",
			Description: "sorting a sample of weighted values twice changes nothing",
			Test:        sortIsIdempotent,
		},
	}
}

func drawInts(d *data.Data, lo, hi int64, maxSize int, avg float64) []int64 {
	var xs []int64
	elems := draw.NewMany(d, 0, maxSize, avg)
	for elems.More() {
		xs = append(xs, draw.IntegerRange(d, lo, hi))
	}
	return xs
}

func sumBelowLimit(d *data.Data) error {
	xs := drawInts(d, 0, sumLimit, 20, 4)
	var sum int64
	for _, x := range xs {
		sum += x
	}
	d.NoteEvent(fmt.Sprintf("length %d", min(len(xs), 5)))
	if sum > sumLimit {
		d.Note(fmt.Sprintf("xs = %v (sum %d)", xs, sum))
		return ErrSumTooLarge
	}
	return nil
}

func distinctDigits(d *data.Data) error {
	xs := drawInts(d, 0, 9, 10, 3)
	seen := make(map[int64]bool, len(xs))
	for _, x := range xs {
		if seen[x] {
			d.Note(fmt.Sprintf("xs = %v", xs))
			return ErrDuplicate
		}
		seen[x] = true
	}
	return nil
}

func smallInteger(d *data.Data) error {
	n := draw.Integer(d, choice.Bounded(0, 10000, 0))
	if n >= 500 {
		d.Note(fmt.Sprintf("n = %d", n))
		return ErrTooLarge
	}
	return nil
}

func safeDivision(d *data.Data) error {
	a := draw.CenteredIntegerRange(d, -100, 100, 0)
	b := draw.CenteredIntegerRange(d, -100, 100, 0)
	d.Note(fmt.Sprintf("a = %d, b = %d", a, b))
	switch q := a / b; {
	case q < 0:
		d.NoteEvent("negative quotient")
	case q == 0:
		d.NoteEvent("zero quotient")
	}
	return nil
}

func balancedParens(d *data.Data) error {
	s := draw.String(d, []rune{'(', ')'}, 0, 12)
	depth := 0
	for _, r := range s {
		if r == '(' {
			depth++
		} else {
			depth--
		}
		if depth < 0 {
			break
		}
	}
	if depth != 0 {
		d.Note(fmt.Sprintf("s = %q", s))
		return ErrUnbalancedParen
	}
	return nil
}

func floatLexRoundTrip(d *data.Data) error {
	f := math.Abs(draw.Float(d, choice.UnboundedFloat()))
	if math.IsNaN(f) {
		d.NoteEvent("nan")
		return nil
	}
	if math.IsInf(f, 0) {
		d.NoteEvent("infinite")
	}
	if got := choice.LexToFloat(choice.FloatToLex(f)); got != f {
		d.Note(fmt.Sprintf("f = %v, decoded %v", f, got))
		return ErrRoundTrip
	}
	return nil
}

func bytesIndexRoundTrip(d *data.Data) error {
	b := draw.Bytes(d, 0, 6)
	c := choice.BytesConstraints{}
	idx, err := choice.IndexOf(b, c)
	if err != nil {
		return fmt.Errorf("index of %x: %w", b, err)
	}
	v, err := choice.ValueOf(idx, c)
	if err != nil {
		return fmt.Errorf("value of %s: %w", idx, err)
	}
	got, _ := v.([]byte)
	if !bytes.Equal(got, b) {
		d.Note(fmt.Sprintf("b = %x, decoded %x", b, got))
		return ErrRoundTrip
	}
	return nil
}

var sortWeights = []float64{4, 2, 1, 1}

func sortIsIdempotent(d *data.Data) error {
	sampler, err := draw.NewSampler(sortWeights)
	if err != nil {
		return err
	}
	var xs []int
	elems := draw.NewMany(d, 0, 16, 5)
	for elems.More() {
		xs = append(xs, sampler.Sample(d))
	}
	once := slices.Clone(xs)
	slices.Sort(once)
	twice := slices.Clone(once)
	slices.Sort(twice)
	if !slices.Equal(once, twice) {
		d.Note(fmt.Sprintf("xs = %v", xs))
		return ErrNotSorted
	}
	return nil
}
