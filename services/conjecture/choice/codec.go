// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package choice maps drawn values to and from a complexity index.
//
// Every supported domain is given a total order in which index 0 is the
// simplest value. Smaller indices are always simpler, so a minimizer that
// only ever lowers indices only ever produces simpler values.
//
// # Domains
//
//   - Integers: zigzag around ShrinkTowards (t, t+1, t-1, t+2, ...) until one
//     bound is hit, then linear on the remaining side.
//   - Booleans: false before true, collapsing to a single value when the
//     weighting makes the other impossible.
//   - Bytes and strings: shorter before longer, then element-wise from the
//     end.
//   - Floats: sign bit above the 64-bit lex encoding from FloatToLex.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package choice

import (
	"fmt"
	"math"
	"math/big"
)

// BufferSize is the largest number of bytes a single run may consume. No
// decoded collection may be this long or longer.
const BufferSize = 8 * 1024

var (
	bigOne   = big.NewInt(1)
	bigTwo   = big.NewInt(2)
	mask64   = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 64), bigOne)
	floatCap = new(big.Int).Lsh(bigOne, 65)
)

// IndexOf returns the complexity index of value under c.
//
// Description:
//
//	The Go type of value must match the kind of c: int64 for integers,
//	bool for booleans, []byte for bytes, string for strings and float64
//	for floats.
//
// Outputs:
//   - *big.Int: A fresh non-negative index. Never shared.
//   - error: ErrKindMismatch or ErrValueOutOfRange.
func IndexOf(value any, c Constraints) (*big.Int, error) {
	switch c := c.(type) {
	case IntegerConstraints:
		v, ok := value.(int64)
		if !ok {
			return nil, fmt.Errorf("%w: want int64, got %T", ErrKindMismatch, value)
		}
		return integerIndex(v, c)
	case BooleanConstraints:
		v, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: want bool, got %T", ErrKindMismatch, value)
		}
		if _, only := c.Only(); only || !v {
			return new(big.Int), nil
		}
		return big.NewInt(1), nil
	case BytesConstraints:
		v, ok := value.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: want []byte, got %T", ErrKindMismatch, value)
		}
		if len(v) < c.MinSize {
			return nil, fmt.Errorf("%w: %d bytes below min size %d", ErrValueOutOfRange, len(v), c.MinSize)
		}
		orders := make([]int64, len(v))
		for i, b := range v {
			orders[i] = int64(b)
		}
		return CollectionIndex(orders, c.MinSize, 256), nil
	case StringConstraints:
		v, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: want string, got %T", ErrKindMismatch, value)
		}
		runes := []rune(v)
		if len(runes) < c.MinSize {
			return nil, fmt.Errorf("%w: %d runes below min size %d", ErrValueOutOfRange, len(runes), c.MinSize)
		}
		orders := make([]int64, len(runes))
		for i, r := range runes {
			o, ok := c.order(r)
			if !ok {
				return nil, fmt.Errorf("%w: %q not in alphabet", ErrValueOutOfRange, r)
			}
			orders[i] = o
		}
		return CollectionIndex(orders, c.MinSize, int64(len(c.Alphabet))), nil
	case FloatConstraints:
		v, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: want float64, got %T", ErrKindMismatch, value)
		}
		idx := new(big.Int).SetUint64(FloatToLex(math.Abs(v)))
		if math.Signbit(v) {
			idx.Or(idx, new(big.Int).Lsh(bigOne, 64))
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("%w: unsupported constraints %T", ErrKindMismatch, c)
	}
}

// ValueOf returns the value at index under c. It inverts IndexOf.
//
// Outputs:
//   - any: int64, bool, []byte, string or float64 according to c.
//   - error: ErrIndexOutOfRange, or ErrChoiceTooLarge for collections that
//     would not fit in a buffer.
func ValueOf(index *big.Int, c Constraints) (any, error) {
	if index.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative index %s", ErrIndexOutOfRange, index)
	}
	switch c := c.(type) {
	case IntegerConstraints:
		return integerValue(index, c)
	case BooleanConstraints:
		if only, ok := c.Only(); ok {
			if index.Sign() != 0 {
				return nil, fmt.Errorf("%w: boolean has one value", ErrIndexOutOfRange)
			}
			return only, nil
		}
		if index.Cmp(bigOne) > 0 {
			return nil, fmt.Errorf("%w: boolean index %s", ErrIndexOutOfRange, index)
		}
		return index.Sign() == 1, nil
	case BytesConstraints:
		orders, err := CollectionValue(index, c.MinSize, 256)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(orders))
		for i, o := range orders {
			out[i] = byte(o)
		}
		return out, nil
	case StringConstraints:
		orders, err := CollectionValue(index, c.MinSize, int64(len(c.Alphabet)))
		if err != nil {
			return nil, err
		}
		out := make([]rune, len(orders))
		for i, o := range orders {
			out[i] = c.Alphabet[o]
		}
		return string(out), nil
	case FloatConstraints:
		if index.Cmp(floatCap) >= 0 {
			return nil, fmt.Errorf("%w: float index %s", ErrIndexOutOfRange, index)
		}
		f := LexToFloat(new(big.Int).And(index, mask64).Uint64())
		if index.Bit(64) == 1 {
			f = -f
		}
		return NewFloatClamper(c).Clamp(f), nil
	default:
		return nil, fmt.Errorf("%w: unsupported constraints %T", ErrKindMismatch, c)
	}
}

// ZigzagIndex orders values by distance from target, above before below.
//
//	value | t  t+1  t-1  t+2  t-2
//	index | 0  1    2    3    4
func ZigzagIndex(value, target *big.Int) *big.Int {
	idx := new(big.Int).Sub(target, value)
	idx.Abs(idx).Mul(idx, bigTwo)
	if value.Cmp(target) > 0 {
		idx.Sub(idx, bigOne)
	}
	return idx
}

// ZigzagValue inverts ZigzagIndex.
func ZigzagValue(index, target *big.Int) *big.Int {
	n := new(big.Int).Add(index, bigOne)
	n.Rsh(n, 1)
	if index.Bit(0) == 0 {
		n.Neg(n)
	}
	return n.Add(n, target)
}

func integerIndex(v int64, c IntegerConstraints) (*big.Int, error) {
	if !c.Contains(v) {
		return nil, fmt.Errorf("%w: %d", ErrValueOutOfRange, v)
	}
	x := big.NewInt(v)
	t := big.NewInt(c.Target())
	dist := new(big.Int).Sub(x, t)
	dist.Abs(dist)

	switch exhaustedSide(c) {
	case sideBelow:
		// [t, t+1, t-1, ..., min, then upward]
		room := new(big.Int).Sub(t, big.NewInt(*c.Min))
		if dist.Cmp(room) <= 0 {
			return ZigzagIndex(x, t), nil
		}
		return x.Sub(x, big.NewInt(*c.Min)), nil
	case sideAbove:
		room := new(big.Int).Sub(big.NewInt(*c.Max), t)
		if dist.Cmp(room) <= 0 {
			return ZigzagIndex(x, t), nil
		}
		return new(big.Int).Sub(big.NewInt(*c.Max), x), nil
	default:
		return ZigzagIndex(x, t), nil
	}
}

func integerValue(index *big.Int, c IntegerConstraints) (int64, error) {
	t := big.NewInt(c.Target())
	var v *big.Int

	switch exhaustedSide(c) {
	case sideBelow:
		lo := big.NewInt(*c.Min)
		if index.Cmp(ZigzagIndex(lo, t)) <= 0 {
			v = ZigzagValue(index, t)
		} else {
			v = new(big.Int).Add(index, lo)
		}
	case sideAbove:
		hi := big.NewInt(*c.Max)
		if index.Cmp(ZigzagIndex(hi, t)) <= 0 {
			v = ZigzagValue(index, t)
		} else {
			v = new(big.Int).Sub(hi, index)
		}
	default:
		v = ZigzagValue(index, t)
	}

	if !v.IsInt64() || !c.Contains(v.Int64()) {
		return 0, fmt.Errorf("%w: integer index %s", ErrIndexOutOfRange, index)
	}
	return v.Int64(), nil
}

type side int

const (
	sideNone side = iota
	sideBelow
	sideAbove
)

// exhaustedSide reports which bound the zigzag runs into first.
func exhaustedSide(c IntegerConstraints) side {
	t := c.Target()
	switch {
	case c.Min == nil && c.Max == nil:
		return sideNone
	case c.Max == nil:
		return sideBelow
	case c.Min == nil:
		return sideAbove
	}
	below := new(big.Int).Sub(big.NewInt(t), big.NewInt(*c.Min))
	above := new(big.Int).Sub(big.NewInt(*c.Max), big.NewInt(t))
	if below.Cmp(above) < 0 {
		return sideBelow
	}
	return sideAbove
}

// CollectionIndex indexes a sequence of element orders. Shorter sequences
// come first; sequences of equal length are ordered from their last element.
//
// Inputs:
//   - orders: Each element's position in its alphabet, all < alphabetSize.
//   - minSize: The shortest allowed length. Index 0 is minSize zeros.
//   - alphabetSize: The number of possible elements.
func CollectionIndex(orders []int64, minSize int, alphabetSize int64) *big.Int {
	idx := sizeToIndex(len(orders), alphabetSize)
	idx.Sub(idx, sizeToIndex(minSize, alphabetSize))

	a := big.NewInt(alphabetSize)
	power := big.NewInt(1)
	term := new(big.Int)
	for i := len(orders) - 1; i >= 0; i-- {
		if orders[i] != 0 {
			term.Mul(power, big.NewInt(orders[i]))
			idx.Add(idx, term)
		}
		power.Mul(power, a)
	}
	return idx
}

// CollectionValue inverts CollectionIndex.
//
// Outputs:
//   - []int64: Element orders.
//   - error: ErrChoiceTooLarge when the decoded length is >= BufferSize.
func CollectionValue(index *big.Int, minSize int, alphabetSize int64) ([]int64, error) {
	idx := new(big.Int).Add(index, sizeToIndex(minSize, alphabetSize))
	size := indexToSize(idx, alphabetSize)
	if size >= BufferSize {
		return nil, fmt.Errorf("%w: size %d", ErrChoiceTooLarge, size)
	}
	if alphabetSize == 0 {
		if idx.Sign() != 0 {
			return nil, fmt.Errorf("%w: empty alphabet", ErrIndexOutOfRange)
		}
		return []int64{}, nil
	}

	idx.Sub(idx, sizeToIndex(size, alphabetSize))
	a := big.NewInt(alphabetSize)
	out := make([]int64, 0, size)
	power := new(big.Int)
	n := new(big.Int)
	for i := size - 1; i >= 0; i-- {
		if idx.Sign() == 0 {
			out = append(out, 0)
			continue
		}
		power.Exp(a, big.NewInt(int64(i)), nil)
		n.Quo(idx, power)
		idx.Sub(idx, new(big.Int).Mul(n, power))
		out = append(out, n.Int64())
	}
	return out, nil
}

// sizeToIndex counts the sequences shorter than size: the closed form of
// sum(a^i for i < size).
func sizeToIndex(size int, alphabetSize int64) *big.Int {
	switch {
	case alphabetSize <= 0:
		return new(big.Int)
	case alphabetSize == 1:
		return big.NewInt(int64(size))
	}
	a := big.NewInt(alphabetSize)
	n := new(big.Int).Exp(a, big.NewInt(int64(size)), nil)
	n.Sub(n, bigOne)
	return n.Quo(n, new(big.Int).Sub(a, bigOne))
}

// indexToSize inverts sizeToIndex using a float logarithm, falling back to
// an exact integer logarithm when the float result is too close to an
// integer to trust.
func indexToSize(index *big.Int, alphabetSize int64) int {
	switch {
	case alphabetSize <= 0:
		return 0
	case alphabetSize == 1:
		if !index.IsInt64() || index.Int64() > BufferSize {
			return BufferSize
		}
		return int(index.Int64())
	}

	total := new(big.Int).Mul(index, big.NewInt(alphabetSize-1))
	total.Add(total, bigOne)
	size := bigLog(total) / math.Log(float64(alphabetSize))

	if gap := math.Ceil(size) - size; gap > 0 && gap < 1e-7 {
		a := big.NewInt(alphabetSize)
		n := 0
		for total.Cmp(a) >= 0 {
			total.Quo(total, a)
			n++
		}
		return n
	}
	return int(math.Floor(size))
}

// bigLog returns the natural logarithm of a positive integer of any size.
func bigLog(x *big.Int) float64 {
	if x.IsInt64() {
		return math.Log(float64(x.Int64()))
	}
	mant := new(big.Float)
	exp := new(big.Float).SetInt(x).MantExp(mant)
	m, _ := mant.Float64()
	return math.Log(m) + float64(exp)*math.Ln2
}
