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
	"fmt"
	"math/big"
	"math/bits"

	"github.com/AleutianAI/conjecture/services/conjecture/choice"
	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

// IntegerRange draws an integer in [lower, upper] shrinking toward lower.
func IntegerRange(d *data.Data, lower, upper int64) int64 {
	return CenteredIntegerRange(d, lower, upper, lower)
}

// CenteredIntegerRange draws an integer in [lower, upper] shrinking toward
// center.
//
// Description:
//
//	Picks a side of center with one bit (skipped when center is at a
//	bound), then probes bit-width sized offsets until one fits in the gap
//	on that side. Every probe is its own example and the ones that miss are
//	discarded, so the shrinker can drop them without touching the final
//	value. A single-valued range still writes a zero byte so the stream
//	does not shift when a bound depends on earlier draws.
//
// Inputs:
//   - lower, upper: Inclusive bounds. Panics if lower > upper.
//   - center: Clamped into [lower, upper].
func CenteredIntegerRange(d *data.Data, lower, upper, center int64) int64 {
	if lower > upper {
		panic(fmt.Sprintf("draw: empty integer range [%d, %d]", lower, upper))
	}
	if lower == upper {
		d.Write([]byte{0})
		return lower
	}
	center = min(max(center, lower), upper)

	var above bool
	switch center {
	case upper:
		above = false
	case lower:
		above = true
	default:
		above = Boolean(d)
	}

	var gap uint64
	if above {
		gap = uint64(upper) - uint64(center)
	} else {
		gap = uint64(center) - uint64(lower)
	}

	width := bits.Len64(gap)
	var probe uint64
	for {
		d.StartExample(IntegerRangeLabel)
		probe = d.DrawBits(width)
		d.StopExample(probe > gap)
		if probe <= gap {
			break
		}
	}

	if above {
		return int64(uint64(center) + probe)
	}
	return int64(uint64(center) - probe)
}

// Choice draws an index into a collection of n items, shrinking toward 0.
func Choice(d *data.Data, n int) int {
	if n <= 0 {
		panic("draw: choice from an empty collection")
	}
	return int(IntegerRange(d, 0, int64(n-1)))
}

// Integer draws an integer through the codec's simplicity ordering, so the
// all-zero draw is c's shrink target and each step up the index moves one
// place further away from it.
//
// Description:
//
//	Bounded constraints draw an index of just enough bits and retry on
//	indices past the range. Otherwise a 64-bit index is drawn and retried
//	when it decodes outside int64. Retries are discarded examples.
func Integer(d *data.Data, c choice.IntegerConstraints) int64 {
	width := 64
	var size *big.Int
	if c.Min != nil && c.Max != nil {
		size = new(big.Int).Sub(big.NewInt(*c.Max), big.NewInt(*c.Min))
		width = size.BitLen()
		if width == 0 {
			d.Write([]byte{0})
			return *c.Min
		}
	}

	for {
		d.StartExample(IntegerLabel)
		raw := d.DrawBits(width)
		index := new(big.Int).SetUint64(raw)
		if size != nil && index.Cmp(size) > 0 {
			d.StopExample(true)
			continue
		}
		v, err := choice.ValueOf(index, c)
		if err != nil {
			d.StopExample(true)
			continue
		}
		d.StopExample(false)
		return v.(int64)
	}
}
