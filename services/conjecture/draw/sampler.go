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
	"container/heap"
	"errors"
	"sort"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

// ErrNoWeight is returned when a Sampler is built from weights that sum to
// zero or include a negative entry.
var ErrNoWeight = errors.New("draw: sampler needs non-negative weights with a positive sum")

// aliasEntry is one row of the alias table.
type aliasEntry struct {
	Base      int
	Alternate int
	// AlternateChance is the probability of returning Alternate.
	AlternateChance float64
}

// Sampler draws indices with given relative weights using Vose's alias
// method.
//
// Description:
//
//	The table is sorted by (Base, Alternate) and every row has Base <=
//	Alternate, so shrinking the row index or the coin never increases the
//	index returned.
//
// Thread Safety: Safe for concurrent use after construction.
type Sampler struct {
	table []aliasEntry
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// NewSampler builds the alias table for weights.
//
// Outputs:
//   - *Sampler: Ready to sample.
//   - error: ErrNoWeight for an empty, all-zero or negative weight vector.
func NewSampler(weights []float64) (*Sampler, error) {
	n := len(weights)
	total := 0.0
	for _, w := range weights {
		if w < 0 {
			return nil, ErrNoWeight
		}
		total += w
	}
	if n == 0 || total <= 0 {
		return nil, ErrNoWeight
	}

	table := make([]aliasEntry, n)
	scaled := make([]float64, n)
	small := &indexHeap{}
	large := &indexHeap{}

	for i, w := range weights {
		table[i] = aliasEntry{Base: i, Alternate: -1}
		scaled[i] = w / total * float64(n)
		switch {
		case scaled[i] < 1:
			*small = append(*small, i)
		case scaled[i] > 1:
			*large = append(*large, i)
		}
	}
	heap.Init(small)
	heap.Init(large)

	for small.Len() > 0 && large.Len() > 0 {
		lo := heap.Pop(small).(int)
		hi := heap.Pop(large).(int)

		table[lo].Alternate = hi
		table[lo].AlternateChance = 1 - scaled[lo]
		scaled[hi] = scaled[hi] + scaled[lo] - 1

		switch {
		case scaled[hi] < 1:
			heap.Push(small, hi)
		case scaled[hi] > 1:
			heap.Push(large, hi)
		}
	}
	// Rows left in either heap hold scaled weight 1 up to rounding error
	// and keep their own index.

	for i := range table {
		e := &table[i]
		if e.Alternate < 0 {
			e.Alternate = e.Base
			e.AlternateChance = 0
		} else if e.Alternate < e.Base {
			e.Base, e.Alternate = e.Alternate, e.Base
			e.AlternateChance = 1 - e.AlternateChance
		}
	}
	sort.Slice(table, func(i, j int) bool {
		if table[i].Base != table[j].Base {
			return table[i].Base < table[j].Base
		}
		if table[i].Alternate != table[j].Alternate {
			return table[i].Alternate < table[j].Alternate
		}
		return table[i].AlternateChance < table[j].AlternateChance
	})
	return &Sampler{table: table}, nil
}

// Len returns the number of outcomes.
func (s *Sampler) Len() int { return len(s.table) }

// Sample draws a row uniformly, then a biased coin for base versus
// alternate.
func (s *Sampler) Sample(d *data.Data) int {
	d.StartExample(SamplerLabel)
	row := s.table[Choice(d, len(s.table))]
	useAlternate := BiasedCoin(d, row.AlternateChance)
	d.StopExample(false)
	if useAlternate {
		return row.Alternate
	}
	return row.Base
}
