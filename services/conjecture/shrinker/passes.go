// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shrinker

import (
	"bytes"
	"context"
	"sort"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

// maxAlternatives bounds how many same-label spans are tried per example.
const maxAlternatives = 16

// blockPairReach is how far ahead of a block its deletion partner may be.
const blockPairReach = 8

// allPasses lists the passes coarse to fine.
func (s *Shrinker) allPasses() []pass {
	return []pass{
		{"zero_all", s.zeroAll},
		{"remove_discarded", s.removeDiscarded},
		{"delete_examples", s.deleteExamples},
		{"zero_examples", s.zeroExamples},
		{"replace_with_simpler_example", s.replaceWithSimplerExample},
		{"delete_block_pairs", s.deleteBlockPairs},
		{"minimize_duplicated_blocks", s.minimizeDuplicatedBlocks},
		{"minimize_blocks", s.minimizeBlocks},
		{"delete_bytes", s.deleteBytes},
	}
}

// zeroAll tries the all-zero buffer of the current length.
func (s *Shrinker) zeroAll(ctx context.Context) {
	s.incorporate(ctx, make([]byte, len(s.current.Buffer)))
}

// removeDiscarded deletes every outermost discarded example at once.
func (s *Shrinker) removeDiscarded(ctx context.Context) {
	for ctx.Err() == nil && s.current.HasDiscards {
		snap := s.current
		var spans [][2]int
		end := -1
		for _, e := range snap.Examples() {
			if e.Discarded && e.Length() > 0 && e.Start >= end {
				spans = append(spans, [2]int{e.Start, e.End})
				end = e.End
			}
		}
		if len(spans) == 0 {
			return
		}
		buf := snap.Buffer
		for i := len(spans) - 1; i >= 0; i-- {
			buf = cut(buf, spans[i][0], spans[i][1])
		}
		if !s.incorporate(ctx, buf) {
			return
		}
	}
}

// deleteExamples removes runs of consecutive sibling examples, growing
// each run with FindInteger while deletion keeps the failure.
func (s *Shrinker) deleteExamples(ctx context.Context) {
	i := 0
	for ctx.Err() == nil {
		snap := s.current
		ex := snap.Examples()
		if i >= len(ex) {
			return
		}
		kids := ex[i].Children
		changed := false
		for j := 0; j < len(kids) && !changed && ctx.Err() == nil; j++ {
			n := FindInteger(func(k int) bool {
				if j+k > len(kids) {
					return false
				}
				start, end := ex[kids[j]].Start, ex[kids[j+k-1]].End
				if start == end {
					return false
				}
				return s.incorporate(ctx, cut(snap.Buffer, start, end))
			})
			changed = n > 0
		}
		if !changed {
			i++
		}
	}
}

// zeroExamples replaces each nontrivial example's bytes with zeros.
func (s *Shrinker) zeroExamples(ctx context.Context) {
	i := 0
	for ctx.Err() == nil {
		snap := s.current
		ex := snap.Examples()
		if i >= len(ex) {
			return
		}
		e := ex[i]
		if e.Trivial || e.Length() == 0 {
			i++
			continue
		}
		if !s.incorporate(ctx, splice(snap.Buffer, e.Start, e.End, make([]byte, e.Length()))) {
			i++
		}
	}
}

// replaceWithSimplerExample swaps an example's bytes for those of a
// simpler example with the same label.
func (s *Shrinker) replaceWithSimplerExample(ctx context.Context) {
	i := 0
	for ctx.Err() == nil {
		snap := s.current
		ex := snap.Examples()
		if i >= len(ex) {
			return
		}
		target := ex[i]
		span := snap.Buffer[target.Start:target.End]

		var alts [][]byte
		seen := make(map[string]struct{})
		for _, e := range ex {
			if e.Label != target.Label || e.Index == target.Index {
				continue
			}
			alt := snap.Buffer[e.Start:e.End]
			if data.CompareBuffers(alt, span) >= 0 {
				continue
			}
			if _, dup := seen[string(alt)]; dup {
				continue
			}
			seen[string(alt)] = struct{}{}
			alts = append(alts, alt)
		}
		sort.Slice(alts, func(a, b int) bool { return data.CompareBuffers(alts[a], alts[b]) < 0 })
		if len(alts) > maxAlternatives {
			alts = alts[:maxAlternatives]
		}

		changed := false
		for _, alt := range alts {
			if s.incorporate(ctx, splice(snap.Buffer, target.Start, target.End, alt)) {
				changed = true
				break
			}
		}
		if !changed {
			i++
		}
	}
}

// deleteBlockPairs deletes two nearby blocks together, which handles a
// length or flag block that must go with the element it governs.
func (s *Shrinker) deleteBlockPairs(ctx context.Context) {
	i := 0
	for ctx.Err() == nil {
		snap := s.current
		blocks := snap.Blocks
		if i >= len(blocks) {
			return
		}
		changed := false
		for j := i + 1; j < len(blocks) && j <= i+blockPairReach && ctx.Err() == nil; j++ {
			a, b := blocks[i], blocks[j]
			buf := cut(snap.Buffer, b.Start, b.End)
			buf = cut(buf, a.Start, a.End)
			if s.incorporate(ctx, buf) {
				changed = true
				break
			}
		}
		if !changed {
			i++
		}
	}
}

// minimizeDuplicatedBlocks lowers every copy of a repeated block together.
func (s *Shrinker) minimizeDuplicatedBlocks(ctx context.Context) {
	snap := s.current
	positions := make(map[string][]data.Block)
	var order []string
	for _, b := range snap.Blocks {
		if b.Trivial() {
			continue
		}
		k := string(snap.Buffer[b.Start:b.End])
		if _, ok := positions[k]; !ok {
			order = append(order, k)
		}
		positions[k] = append(positions[k], b)
	}

	for _, k := range order {
		if ctx.Err() != nil || s.current != snap {
			// Positions are stale once a group changes the buffer; the
			// next sweep picks up from the new target.
			return
		}
		blocks := positions[k]
		if len(blocks) < 2 {
			continue
		}
		MinimizeBytes([]byte(k), func(repl []byte) bool {
			buf := bytes.Clone(snap.Buffer)
			for _, b := range blocks {
				copy(buf[b.Start:b.End], repl)
			}
			return s.incorporate(ctx, buf)
		})
	}
}

// minimizeBlocks lowers each block on its own: as an integer for blocks of
// up to eight bytes, lexicographically otherwise.
func (s *Shrinker) minimizeBlocks(ctx context.Context) {
	for i := 0; i < len(s.current.Blocks) && ctx.Err() == nil; i++ {
		b := s.current.Blocks[i]
		if b.Trivial() || b.End > len(s.current.Buffer) {
			continue
		}
		start, end := b.Start, b.End
		replace := func(repl []byte) bool {
			cur := s.current.Buffer
			if end > len(cur) {
				return false
			}
			return s.incorporate(ctx, splice(cur, start, end, repl))
		}

		block := s.current.Buffer[start:end]
		if len(block) <= 8 {
			n := len(block)
			MinimizeInteger(uintOf(block), func(v uint64) bool {
				return replace(putUint(v, n))
			})
			continue
		}
		MinimizeBytes(block, replace)
	}
}

// deleteBytes drops single bytes, catching anything the structured passes
// could not see.
func (s *Shrinker) deleteBytes(ctx context.Context) {
	for i := 0; i < len(s.current.Buffer) && ctx.Err() == nil; {
		if !s.incorporate(ctx, cut(s.current.Buffer, i, i+1)) {
			i++
		}
	}
}
