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
	"math"

	"github.com/AleutianAI/conjecture/services/conjecture/choice"
	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

// Coin is a reusable biased coin that comes up true with probability P.
//
// Description:
//
//	The unit interval is split into 2^bits equal parts, with bits the
//	smallest width at which both outcomes get at least one part. Drawing
//	i selects a part. 0 is always false and 1 always true so the
//	shrinker can settle any flip with a single-byte block. When p falls
//	inside a part that part is the top one, and landing on it restarts
//	the flip with the leftover probability.
//
// Thread Safety: Safe for concurrent use; a Coin holds no run state.
type Coin struct {
	p       float64
	bits    int
	certain bool
	only    bool
	truth   []byte
	falsy   []byte
}

// NewCoin returns a coin for probability p. Probabilities within 2^-64 of
// 0 or 1 give a coin that always writes the certain outcome, so a flip
// never needs more than 64 bits.
func NewCoin(p float64) *Coin {
	bits := 1
	only, certain := choice.BooleanConstraints{P: p}.Only()
	if math.IsNaN(p) {
		only, certain = false, true
	}
	if !certain {
		for {
			opts := math.Ldexp(1, bits)
			if math.Floor(opts*(1-p)) > 0 && math.Floor(opts*p) > 0 {
				break
			}
			bits++
		}
	}
	n := (bits + 7) / 8
	c := &Coin{
		p:       p,
		bits:    bits,
		certain: certain,
		only:    only,
		truth:   make([]byte, n),
		falsy:   make([]byte, n),
	}
	c.truth[n-1] = 1
	return c
}

// Bits returns the width of one flip.
func (c *Coin) Bits() int { return c.bits }

// Rig writes a forced draw with the given outcome.
func (c *Coin) Rig(d *data.Data, result bool) {
	if result {
		d.Write(c.truth)
	} else {
		d.Write(c.falsy)
	}
}

// Flip draws one outcome from d.
func (c *Coin) Flip(d *data.Data) bool {
	d.StartExample(BiasedCoinLabel)
	if c.certain {
		c.Rig(d, c.only)
		d.StopExample(false)
		return c.only
	}
	p := c.p
	var result bool
	for {
		if p <= 0 {
			c.Rig(d, false)
			result = false
			break
		}
		if p >= 1 {
			c.Rig(d, true)
			result = true
			break
		}

		opts := math.Ldexp(1, c.bits)
		falsey := math.Floor(opts * (1 - p))
		truthy := math.Floor(opts * p)
		partial := falsey+truthy != opts

		i := float64(d.DrawBits(c.bits))
		if partial && i+1 == opts {
			p = opts*p - truthy
			continue
		}
		if i <= 1 {
			result = i == 1
		} else {
			// One truthy slot was swapped down to 1, so the false region
			// is [0, falsey] minus 1.
			result = i > falsey
		}
		break
	}
	d.StopExample(false)
	return result
}

// BiasedCoin flips a one-off coin with probability p. Certain outcomes
// still write a byte so the stream stays aligned when p depends on
// earlier draws.
func BiasedCoin(d *data.Data, p float64) bool {
	return NewCoin(p).Flip(d)
}

// Boolean draws a fair bit.
func Boolean(d *data.Data) bool {
	return d.DrawBits(1) == 1
}
