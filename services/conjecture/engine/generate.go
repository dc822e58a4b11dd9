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
	"context"
	"log/slog"
	"math/rand"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
	"github.com/AleutianAI/conjecture/services/conjecture/datatree"
)

// Generation limits.
const (
	// minFreshExamples is how many novel-prefix runs precede mutation.
	minFreshExamples = 10

	// maxMutations is how many descendants one target gets before a new
	// mutator is picked.
	maxMutations = 10

	// bugGracePeriod is how many calls past the first bug generation keeps
	// looking for other bugs.
	bugGracePeriod = 1000
)

// genParams biases the bytes drawn for fresh examples: towards zeros,
// towards saturated bytes, or towards a small alphabet. Parameters are
// kept while they produce valid examples and redrawn otherwise.
type genParams struct {
	uniform    bool
	zeroChance float64
	maxChance  float64
	alphabet   []byte
}

func newGenParams(rnd *rand.Rand) genParams {
	if rnd.Intn(2) == 0 {
		return genParams{uniform: true}
	}
	p := genParams{
		zeroChance: rnd.Float64() * 0.3,
		maxChance:  rnd.Float64() * 0.1,
	}
	if rnd.Float64() < 0.3 {
		p.alphabet = make([]byte, 1+rnd.Intn(8))
		rnd.Read(p.alphabet)
	}
	return p
}

// draw returns n bytes biased by p.
func (p genParams) draw(rnd *rand.Rand, n int) []byte {
	if p.uniform {
		return uniform(rnd, n)
	}
	switch u := rnd.Float64(); {
	case u < p.zeroChance:
		return make([]byte, n)
	case u < p.zeroChance+p.maxChance:
		return constant(0xff, n)
	case len(p.alphabet) > 0:
		out := make([]byte, n)
		for i := range out {
			out[i] = p.alphabet[rnd.Intn(len(p.alphabet))]
		}
		return out
	}
	return uniform(rnd, n)
}

// uniform returns n uniformly random bytes.
func uniform(rnd *rand.Rand, n int) []byte {
	out := make([]byte, n)
	rnd.Read(out)
	return out
}

func constant(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

// zeroBound forces zeros once a run is deep or long enough, so that
// growing examples fall into the simplest completion.
func (r *Runner) zeroBound(d *data.Data, result []byte) []byte {
	n := len(result)
	idx := d.Index()
	capIdx := r.cap()
	switch {
	case d.Depth()*2 >= data.MaxDepth || idx >= capIdx:
		d.NoteForced(idx, idx+n)
		d.NoteZeroBound()
		return make([]byte, n)
	case idx+n >= capIdx:
		d.NoteZeroBound()
		d.NoteForced(capIdx, idx+n)
		out := make([]byte, n)
		copy(out, result[:capIdx-idx])
		return out
	}
	return result
}

// noveltyGuard steers one generation record's blocks away from subtrees
// the tree has exhausted. It stops once the zero bound starts rewriting
// blocks, since the cursor then no longer matches the record.
type noveltyGuard struct {
	r      *Runner
	cursor *datatree.Cursor
	done   bool
}

func (r *Runner) newNoveltyGuard() *noveltyGuard {
	return &noveltyGuard{r: r, cursor: r.tree.NewCursor()}
}

// bound returns block steered away from dead branches and then passed
// through the zero bound.
func (g *noveltyGuard) bound(d *data.Data, block []byte) []byte {
	if g.done {
		return g.r.zeroBound(d, block)
	}
	steered := g.r.tree.RewriteForNovelty(g.cursor, d.Bytes(), block)
	out := g.r.zeroBound(d, steered)
	if !bytes.Equal(out, steered) {
		g.done = true
	}
	return out
}

// newData creates a generation record drawing from source.
func (r *Runner) newData(source data.DrawFunc) *data.Data {
	return data.New(r.newID(), r.config.BufferSize, source)
}

// keepGenerating reports whether generation should continue after bugs
// have been found.
func (r *Runner) keepGenerating() bool {
	if len(r.interesting) == 0 {
		return true
	}
	if !r.config.ReportMultipleBugs {
		return false
	}
	calls := r.budget.Calls()
	return calls < max(r.firstBugAt+bugGracePeriod, r.lastBugAt*2)
}

// generateNewExamples explores inputs the run has not tried yet.
//
// Description:
//
//	Starts with the all-zero buffer, which is the simplest input and
//	doubles as a probe for tests whose natural size is too large. Then
//	runs fresh examples from novel prefixes while health checks are
//	active, and finally mutates the best results so far.
func (r *Runner) generateNewExamples(ctx context.Context) {
	zero := r.CachedTestFunction(ctx, make([]byte, r.config.BufferSize))
	if zero.Status > data.StatusOverrun {
		r.cache.Pin(string(zero.Buffer))
	}
	if zero.Status == data.StatusOverrun ||
		(zero.Status == data.StatusValid && len(zero.Buffer)*2 > r.config.BufferSize) {
		r.failHealthCheck(ctx, HealthLargeBaseExample,
			"the smallest natural example for the test is extremely large")
	}
	if r.onlyForcedBelowCap(zero) {
		r.exit(ExitFinished, nil)
	}

	r.health = &healthState{}
	logger := LoggerWithTrace(ctx, r.logger)

	for count := 0; r.keepGenerating() && (count < minFreshExamples || r.health != nil); count++ {
		r.runFresh(ctx)
		r.logProgress(logger)
	}

	var (
		mutations int
		mut       = r.newMutator()
		zeroQueue []*data.Result
	)
	for r.keepGenerating() {
		var res *data.Result
		if len(zeroQueue) > 0 {
			last := zeroQueue[len(zeroQueue)-1]
			zeroQueue = zeroQueue[:len(zeroQueue)-1]
			res = r.runRedistributed(ctx, last)
		} else {
			origin := r.selector.selectTarget()
			if origin == nil {
				r.runFresh(ctx)
				continue
			}
			mutations++
			covered := len(r.covering)
			res = r.testFunction(ctx, r.newData(mut.mutateFrom(origin)))
			switch {
			case res.Status > origin.Status || len(r.covering) > covered:
				mutations = 0
			case res.Status < origin.Status || mutations >= maxMutations:
				mutations = 0
				mut = r.newMutator()
			}
		}
		if res.HitZeroBound {
			zeroQueue = append(zeroQueue, res)
		}
		mutations++
		r.logProgress(logger)
	}
}

// onlyForcedBelowCap reports whether every byte before the cap was forced
// in res, in which case nothing else can be generated.
func (r *Runner) onlyForcedBelowCap(res *data.Result) bool {
	capIdx := r.cap()
	if len(res.Buffer) < capIdx {
		return false
	}
	for i := 0; i < capIdx; i++ {
		if !res.IsForced(i) {
			return false
		}
	}
	return true
}

// runFresh runs one example from a novel prefix, filling the rest from
// freshly drawn generation parameters.
func (r *Runner) runFresh(ctx context.Context) *data.Result {
	prefix := r.tree.GenerateNovelPrefix(r.rnd)
	params := r.params
	guard := r.newNoveltyGuard()
	res := r.testFunction(ctx, r.newData(func(d *data.Data, n int) []byte {
		idx := d.Index()
		var out []byte
		if idx < len(prefix) {
			out = append(out, prefix[idx:min(idx+n, len(prefix))]...)
		}
		if len(out) < n {
			out = append(out, params.draw(r.rnd, n-len(out))...)
		}
		return guard.bound(d, out)
	}))
	if res.Status < data.StatusValid {
		r.params = newGenParams(r.rnd)
	}
	return res
}

// runRedistributed replays a result that hit the zero bound with its bytes
// shuffled, which spreads the forced zeros through the buffer instead of
// leaving them at the end.
func (r *Runner) runRedistributed(ctx context.Context, overdrawn *data.Result) *data.Result {
	buf := append([]byte(nil), overdrawn.Buffer...)
	for _, i := range overdrawn.ForcedIndices() {
		if i < len(buf) {
			buf[i] = 0
		}
	}
	r.rnd.Shuffle(len(buf), func(i, j int) { buf[i], buf[j] = buf[j], buf[i] })

	return r.testFunction(ctx, r.newData(func(d *data.Data, n int) []byte {
		idx := d.Index()
		out := make([]byte, n)
		if idx < len(buf) {
			copy(out, buf[idx:])
		}
		return r.zeroBound(d, out)
	}))
}

func (r *Runner) logProgress(logger *slog.Logger) {
	r.progress.Do(func() {
		logger.Debug("generation progress",
			slog.Int64("calls", r.budget.Calls()),
			slog.Int64("valid", r.budget.ValidExamples()),
			slog.Int("bugs", len(r.interesting)),
			slog.Int("covering", len(r.covering)),
		)
	})
}
