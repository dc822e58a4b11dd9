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

// Float draws a float in the lexicographic float order followed by a sign
// bit, then clamps it into c.
func Float(d *data.Data, c choice.FloatConstraints) float64 {
	d.StartExample(FloatLabel)
	f := choice.LexToFloat(d.DrawBits(64))
	if d.DrawBits(1) == 1 {
		f = -f
	}
	d.StopExample(false)
	return choice.NewFloatClamper(c).Clamp(f)
}

// WriteFloat forces the draw Float would need to produce f.
func WriteFloat(d *data.Data, f float64) {
	d.StartExample(FloatLabel)
	d.ForcedBits(64, choice.FloatToLex(math.Abs(f)))
	var sign uint64
	if math.Signbit(f) {
		sign = 1
	}
	d.ForcedBits(1, sign)
	d.StopExample(false)
}

// Bytes draws a byte string of length in [minSize, maxSize]. Each byte
// shrinks toward zero and the length toward minSize.
func Bytes(d *data.Data, minSize, maxSize int) []byte {
	avg := math.Min(float64(maxSize), math.Max(float64(minSize), 8))
	elems := NewMany(d, minSize, maxSize, avg)
	var out []byte
	for elems.More() {
		out = append(out, byte(d.DrawBits(8)))
	}
	return out
}

// String draws a string over alphabet with length in [minSize, maxSize].
// Earlier runes in alphabet are simpler.
func String(d *data.Data, alphabet []rune, minSize, maxSize int) string {
	if len(alphabet) == 0 {
		if minSize > 0 {
			d.MarkInvalid()
		}
		return ""
	}
	avg := math.Min(float64(maxSize), math.Max(float64(minSize), 8))
	elems := NewMany(d, minSize, maxSize, avg)
	var out []rune
	for elems.More() {
		out = append(out, alphabet[Choice(d, len(alphabet))])
	}
	return string(out)
}
