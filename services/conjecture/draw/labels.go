// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package draw holds the small algorithms test code uses to turn raw bits
// from a data.Data into structured values.
//
// Every helper is laid out so that shrinking its bytes toward zero shrinks
// the value it produces, and so that failed attempts sit in discardable
// examples the shrinker can delete without disturbing what follows.
package draw

import "github.com/AleutianAI/conjecture/services/conjecture/data"

// Labels for the examples the helpers open.
var (
	IntegerRangeLabel = data.CalcLabel("another draw in integer_range()")
	BiasedCoinLabel   = data.CalcLabel("biased_coin()")
	SamplerLabel      = data.CalcLabel("a sample() in Sampler")
	ManyLabel         = data.CalcLabel("one more from many()")
	IntegerLabel      = data.CalcLabel("an integer from the codec")
	FloatLabel        = data.CalcLabel("float()")
)
