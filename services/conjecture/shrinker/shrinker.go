// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package shrinker minimizes a failing buffer.
//
// A Shrinker holds the simplest known buffer satisfying a predicate and
// runs a fixed list of passes over it until a full sweep changes nothing.
// Each pass proposes candidate buffers and asks an Evaluator to run them;
// a candidate replaces the current target only if it satisfies the
// predicate and sorts strictly before the target under
// data.CompareBuffers. Results therefore never get worse.
package shrinker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

// ErrNotSatisfied is returned by New when the initial result does not
// satisfy the predicate.
var ErrNotSatisfied = errors.New("shrinker: initial result does not satisfy the predicate")

// Evaluator runs a buffer through the test function, memoized.
type Evaluator interface {
	CachedTestFunction(ctx context.Context, buf []byte) *data.Result
}

// Prescreener is implemented by evaluators that can rule a buffer out
// without running it. Incorporate consults it before every evaluation.
type Prescreener interface {
	PrescreenBuffer(buf []byte) bool
}

// Predicate decides whether a result still counts as the failure being
// shrunk.
type Predicate func(*data.Result) bool

// Option configures a Shrinker.
type Option func(*Shrinker)

// WithLogger sets the logger for pass progress.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Shrinker) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPasses replaces the pass list, for callers that want a cheaper
// shrink. Unknown names are ignored.
func WithPasses(names ...string) Option {
	return func(s *Shrinker) {
		s.only = names
	}
}

type pass struct {
	name string
	run  func(ctx context.Context)
}

// Shrinker drives passes over one failure.
//
// Thread Safety: NOT safe for concurrent use.
type Shrinker struct {
	ev      Evaluator
	pred    Predicate
	current *data.Result
	logger  *slog.Logger
	only    []string
	passes  []pass

	calls   int
	changes int
}

// Stats reports what a shrink did.
type Stats struct {
	Calls    int
	Changes  int
	Sweeps   int
	Duration time.Duration
}

// New creates a shrinker for initial.
//
// Inputs:
//   - ev: Evaluates candidates. Must not be nil.
//   - initial: The starting target. Must satisfy pred.
//   - pred: The property candidates must keep.
//
// Outputs:
//   - *Shrinker: Ready to Shrink.
//   - error: ErrNotSatisfied if pred(initial) is false.
func New(ev Evaluator, initial *data.Result, pred Predicate, opts ...Option) (*Shrinker, error) {
	if !pred(initial) {
		return nil, ErrNotSatisfied
	}
	s := &Shrinker{
		ev:      ev,
		pred:    pred,
		current: initial,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.passes = s.selectPasses()
	return s, nil
}

// PassNames lists the passes in the order a sweep runs them.
func PassNames() []string {
	var s Shrinker
	all := s.allPasses()
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.name
	}
	return names
}

func (s *Shrinker) selectPasses() []pass {
	all := s.allPasses()
	if len(s.only) == 0 {
		return all
	}
	var out []pass
	for _, p := range all {
		for _, n := range s.only {
			if p.name == n {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// ShrinkTarget returns the simplest result found so far.
func (s *Shrinker) ShrinkTarget() *data.Result { return s.current }

// Shrink runs sweeps of every pass until one changes nothing.
//
// Description:
//
//	Cancelling ctx stops the shrink between evaluations; the target keeps
//	every improvement made so far. The caller may cancel with a cause
//	(context.WithCancelCause) to say why, and Shrink returns that cause.
//
// Outputs:
//   - Stats: Work done.
//   - error: context.Cause(ctx) if cancelled, else nil.
func (s *Shrinker) Shrink(ctx context.Context) (Stats, error) {
	start := time.Now()
	startCalls, startChanges := s.calls, s.changes
	sweeps := 0

	stats := func() Stats {
		return Stats{
			Calls:    s.calls - startCalls,
			Changes:  s.changes - startChanges,
			Sweeps:   sweeps,
			Duration: time.Since(start),
		}
	}

	for {
		sweeps++
		before := s.changes
		for _, p := range s.passes {
			if ctx.Err() != nil {
				return stats(), context.Cause(ctx)
			}
			changes, calls := s.changes, s.calls
			p.run(ctx)
			if s.changes > changes {
				s.logger.Debug("shrink pass improved target",
					slog.String("pass", p.name),
					slog.Int("changes", s.changes-changes),
					slog.Int("calls", s.calls-calls),
					slog.Int("bytes", len(s.current.Buffer)),
				)
			}
		}
		if ctx.Err() != nil {
			return stats(), context.Cause(ctx)
		}
		if s.changes == before {
			return stats(), nil
		}
	}
}

// incorporate evaluates buf and adopts the result if it is a strict
// improvement that still satisfies the predicate.
func (s *Shrinker) incorporate(ctx context.Context, buf []byte) bool {
	if ctx.Err() != nil {
		return false
	}
	if data.CompareBuffers(buf, s.current.Buffer) >= 0 {
		return false
	}
	// A strict prefix of the target would overrun.
	if bytes.HasPrefix(s.current.Buffer, buf) {
		return false
	}
	if p, ok := s.ev.(Prescreener); ok && !p.PrescreenBuffer(buf) {
		return false
	}
	s.calls++
	r := s.ev.CachedTestFunction(ctx, buf)
	if r == nil || !s.pred(r) {
		return false
	}
	if data.CompareBuffers(r.Buffer, s.current.Buffer) >= 0 {
		return false
	}
	s.current = r
	s.changes++
	return true
}

// cut returns buf without [start, end).
func cut(buf []byte, start, end int) []byte {
	out := make([]byte, 0, len(buf)-(end-start))
	out = append(out, buf[:start]...)
	return append(out, buf[end:]...)
}

// splice returns buf with [start, end) replaced by repl.
func splice(buf []byte, start, end int, repl []byte) []byte {
	out := make([]byte, 0, len(buf)-(end-start)+len(repl))
	out = append(out, buf[:start]...)
	out = append(out, repl...)
	return append(out, buf[end:]...)
}
