// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package data

// Example is one labelled region of the buffer. Examples nest; index 0 is
// the top-level example spanning the whole buffer.
type Example struct {
	Index     int
	Label     uint64
	Depth     int
	Start     int
	End       int
	Parent    int // -1 for the top-level example
	Children  []int
	Trivial   bool
	Discarded bool
}

// Length returns the number of bytes the example spans.
func (e Example) Length() int { return e.End - e.Start }

// Examples lists every example in start order.
type Examples []Example

// computeExamples replays the trail once to recover starts, ends, depths,
// parentage, triviality and discards.
func computeExamples(trail []uint64, labels []uint64, blocks []Block) Examples {
	count := 0
	for _, r := range trail {
		if r == recordStopDiscard || r == recordStopKeep {
			count++
		}
	}
	out := make(Examples, count)
	nontrivial := make([]bool, count)

	var (
		stack     []int
		bytesRead int
		nBlocks   int
		nExamples int
	)
	for _, record := range trail {
		switch {
		case record == recordDraw:
			b := blocks[nBlocks]
			bytesRead = b.End
			if !b.Trivial() && len(stack) > 0 {
				nontrivial[stack[len(stack)-1]] = true
			}
			nBlocks++
		case record >= recordStart:
			i := nExamples
			nExamples++
			parent := -1
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
				out[parent].Children = append(out[parent].Children, i)
			}
			out[i] = Example{
				Index:  i,
				Label:  labels[record-recordStart],
				Depth:  len(stack),
				Start:  bytesRead,
				Parent: parent,
			}
			stack = append(stack, i)
		default:
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			out[i].End = bytesRead
			out[i].Discarded = record == recordStopDiscard
			if nontrivial[i] {
				if len(stack) > 0 {
					nontrivial[stack[len(stack)-1]] = true
				}
			} else {
				out[i].Trivial = true
			}
		}
	}
	return out
}

// ByDepth groups example indices by depth, shallowest first.
func (es Examples) ByDepth() [][]int {
	var out [][]int
	for _, e := range es {
		for len(out) <= e.Depth {
			out = append(out, nil)
		}
		out[e.Depth] = append(out[e.Depth], e.Index)
	}
	return out
}
