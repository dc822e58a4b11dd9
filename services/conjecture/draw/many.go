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

	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

// Many decides how many elements a variable-length collection gets.
//
// Description:
//
//	Each More call flips a coin tuned so the expected size is AverageSize.
//	Below MinSize and at MaxSize the coin is rigged, so those boundaries
//	cost a forced byte rather than a choice the shrinker has to undo.
//	Every element drawn after a true More sits in its own example, closed
//	on the next More call and discarded if the element was rejected.
//
// Example:
//
//	elems := draw.NewMany(d, 0, 10, 3)
//	for elems.More() {
//	    v := draw.IntegerRange(d, 0, 100)
//	    if seen[v] {
//	        elems.Reject()
//	        continue
//	    }
//	    seen[v] = true
//	}
//
// Thread Safety: NOT safe for concurrent use.
type Many struct {
	d          *data.Data
	minSize    int
	maxSize    int
	coin       *Coin
	count      int
	rejections int
	drawn      bool
	forceStop  bool
	rejected   bool
}

// NewMany starts a collection on d. Panics unless
// 0 <= minSize <= averageSize <= maxSize.
func NewMany(d *data.Data, minSize, maxSize int, averageSize float64) *Many {
	if minSize < 0 || float64(minSize) > averageSize || averageSize > float64(maxSize) {
		panic(fmt.Sprintf("draw: invalid many sizes min=%d avg=%g max=%d", minSize, averageSize, maxSize))
	}
	m := &Many{d: d, minSize: minSize, maxSize: maxSize}
	if maxSize > 0 {
		m.coin = NewCoin(1 - 1/(1+averageSize))
	}
	return m
}

// Count returns the number of accepted elements so far.
func (m *Many) Count() int { return m.count }

// More reports whether another element should be drawn.
func (m *Many) More() bool {
	if m.maxSize <= 0 {
		return false
	}
	if m.drawn {
		m.d.StopExample(m.rejected)
	}
	m.drawn = true
	m.rejected = false

	var more bool
	switch {
	case m.minSize == m.maxSize:
		more = m.count < m.minSize
	case m.forceStop:
		m.coin.Rig(m.d, false)
	case m.count < m.minSize:
		m.coin.Rig(m.d, true)
		more = true
	case m.count >= m.maxSize:
		m.coin.Rig(m.d, false)
	default:
		more = m.coin.Flip(m.d)
	}

	if more {
		m.d.StartExample(ManyLabel)
		m.count++
	}
	return more
}

// Reject drops the element drawn since the last More from the count. Once
// rejections outnumber twice the accepted elements the collection stops,
// or the run is marked invalid if it is still below MinSize.
func (m *Many) Reject() {
	if m.count <= 0 {
		panic("draw: reject without an element")
	}
	m.count--
	m.rejections++
	m.rejected = true
	if m.rejections > 2*m.count {
		if m.count < m.minSize {
			m.d.MarkInvalid()
		}
		m.forceStop = true
	}
}
