// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"bytes"
	"math/rand"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

// mutationPoolSize bounds how many targets the selector keeps.
const mutationPoolSize = 100

// drawStrategy produces the next n bytes for a mutated run of target.
type drawStrategy func(m *mutator, d *data.Data, n int) []byte

// mutationStrategies is weighted by repetition.
var mutationStrategies = []drawStrategy{
	drawNew,
	redrawLast, redrawLast,
	reuseExisting, reuseExisting,
	drawExisting, drawSmaller, drawLarger,
	flipBit,
	drawZero, drawMax, drawZero, drawMax,
	drawConstant,
}

// mutator derives new runs from a target result using a small random mix
// of strategies, fixed for the mutator's lifetime.
type mutator struct {
	r          *Runner
	strategies []drawStrategy
	target     *data.Result
	prefix     []byte
	guard      *noveltyGuard
}

func (r *Runner) newMutator() *mutator {
	m := &mutator{r: r, strategies: make([]drawStrategy, 3)}
	for i := range m.strategies {
		m.strategies[i] = mutationStrategies[r.rnd.Intn(len(mutationStrategies))]
	}
	return m
}

// mutateFrom targets origin and returns the draw function for one run.
// The run starts with a novel prefix so it leaves explored territory, and
// later blocks are steered off exhausted branches.
func (m *mutator) mutateFrom(origin *data.Result) data.DrawFunc {
	m.target = origin
	m.prefix = m.r.tree.GenerateNovelPrefix(m.r.rnd)
	m.guard = m.r.newNoveltyGuard()
	return m.draw
}

func (m *mutator) draw(d *data.Data, n int) []byte {
	rnd := m.r.rnd
	idx := d.Index()
	var result []byte
	if idx+n > len(m.target.Buffer) {
		result = uniform(rnd, n)
	} else {
		result = m.strategies[rnd.Intn(len(m.strategies))](m, d, n)
	}
	if idx < len(m.prefix) {
		start := m.prefix[idx:min(idx+n, len(m.prefix))]
		result = append(append([]byte(nil), start...), result[len(start):]...)
	}
	return m.guard.bound(d, result)
}

// existing is the target's bytes at the run's position.
func (m *mutator) existing(d *data.Data, n int) []byte {
	idx := d.Index()
	return append([]byte(nil), m.target.Buffer[idx:idx+n]...)
}

func drawNew(m *mutator, _ *data.Data, n int) []byte {
	return uniform(m.r.rnd, n)
}

func drawExisting(m *mutator, d *data.Data, n int) []byte {
	return m.existing(d, n)
}

func drawSmaller(m *mutator, d *data.Data, n int) []byte {
	existing := m.existing(d, n)
	if r := uniform(m.r.rnd, n); bytes.Compare(r, existing) <= 0 {
		return r
	}
	return drawPredecessor(m.r.rnd, existing)
}

func drawLarger(m *mutator, d *data.Data, n int) []byte {
	existing := m.existing(d, n)
	if r := uniform(m.r.rnd, n); bytes.Compare(r, existing) >= 0 {
		return r
	}
	return drawSuccessor(m.r.rnd, existing)
}

// reuseExisting copies an earlier block of the same size from this run.
func reuseExisting(m *mutator, d *data.Data, n int) []byte {
	starts := d.BlockStarts(n)
	if len(starts) == 0 {
		return uniform(m.r.rnd, n)
	}
	i := starts[m.r.rnd.Intn(len(starts))]
	return append([]byte(nil), d.Bytes()[i:i+n]...)
}

func flipBit(m *mutator, d *data.Data, n int) []byte {
	buf := m.existing(d, n)
	if n == 0 {
		return buf
	}
	buf[m.r.rnd.Intn(n)] ^= 1 << uint(m.r.rnd.Intn(8))
	return buf
}

func drawZero(_ *mutator, _ *data.Data, n int) []byte {
	return make([]byte, n)
}

func drawMax(_ *mutator, _ *data.Data, n int) []byte {
	return constant(0xff, n)
}

func drawConstant(m *mutator, _ *data.Data, n int) []byte {
	return constant(byte(m.r.rnd.Intn(256)), n)
}

// redrawLast keeps the target up to its last block and redraws from there.
func redrawLast(m *mutator, d *data.Data, n int) []byte {
	blocks := m.target.Blocks
	if len(blocks) > 0 && d.Index()+n <= blocks[len(blocks)-1].Start {
		return m.existing(d, n)
	}
	return uniform(m.r.rnd, n)
}

// drawPredecessor returns random bytes sorting at or below xs.
func drawPredecessor(rnd *rand.Rand, xs []byte) []byte {
	out := make([]byte, len(xs))
	strict := false
	for i, x := range xs {
		if strict {
			out[i] = byte(rnd.Intn(256))
			continue
		}
		out[i] = byte(rnd.Intn(int(x) + 1))
		strict = out[i] < x
	}
	return out
}

// drawSuccessor returns random bytes sorting at or above xs.
func drawSuccessor(rnd *rand.Rand, xs []byte) []byte {
	out := make([]byte, len(xs))
	strict := false
	for i, x := range xs {
		if strict {
			out[i] = byte(rnd.Intn(256))
			continue
		}
		out[i] = x + byte(rnd.Intn(256-int(x)))
		strict = out[i] > x
	}
	return out
}

// targetSelector keeps a bounded pool of results with the best
// non-interesting status seen, handing out unused ones first.
type targetSelector struct {
	rnd      *rand.Rand
	poolSize int
	best     data.Status
	fresh    []*data.Result
	used     []*data.Result
}

func newTargetSelector(rnd *rand.Rand, poolSize int) *targetSelector {
	return &targetSelector{rnd: rnd, poolSize: poolSize, best: data.StatusOverrun}
}

func (s *targetSelector) len() int { return len(s.fresh) + len(s.used) }

func (s *targetSelector) add(res *data.Result) {
	if res.Status == data.StatusInteresting || res.Status < s.best {
		return
	}
	if res.Status > s.best {
		s.best = res.Status
		s.fresh, s.used = nil, nil
	}
	s.fresh = append(s.fresh, res)
	if s.len() > s.poolSize {
		if len(s.used) > 0 {
			s.used, _ = popRandom(s.rnd, s.used)
		} else {
			s.fresh, _ = popRandom(s.rnd, s.fresh)
		}
	}
}

// selectTarget returns nil only when the pool is empty.
func (s *targetSelector) selectTarget() *data.Result {
	if len(s.fresh) > 0 {
		var res *data.Result
		s.fresh, res = popRandom(s.rnd, s.fresh)
		s.used = append(s.used, res)
		return res
	}
	if len(s.used) == 0 {
		return nil
	}
	return s.used[s.rnd.Intn(len(s.used))]
}

// popRandom removes a random element by swapping it with the last one.
func popRandom[T any](rnd *rand.Rand, values []T) ([]T, T) {
	i := rnd.Intn(len(values))
	last := len(values) - 1
	values[i], values[last] = values[last], values[i]
	return values[:last], values[last]
}
