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
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

// ExitReason says why a run stopped. Every completed run has exactly one.
type ExitReason string

const (
	ExitMaxExamples   ExitReason = "max_examples"
	ExitMaxIterations ExitReason = "max_iterations"
	ExitMaxShrinks    ExitReason = "max_shrinks"
	ExitFinished      ExitReason = "finished"
	ExitFlaky         ExitReason = "flaky"
	ExitTimeout       ExitReason = "timeout"
)

// BudgetConfig holds the limits a Budget enforces.
type BudgetConfig struct {
	MaxExamples   int           // Valid examples before stopping (no bugs)
	MaxIterations int           // Test function calls before stopping (no bugs)
	MaxShrinks    int           // Bug replacements before stopping
	TimeLimit     time.Duration // Wall clock limit, 0 for none
}

// Budget tracks resource consumption during a run.
//
// Thread Safety: Safe for concurrent use.
type Budget struct {
	config    BudgetConfig
	startTime time.Time

	// Atomic counters
	calls       int64
	valid       int64
	invalid     int64
	overrun     int64
	interesting int64
	shrinks     int64

	mu          sync.RWMutex
	exhaustedBy ExitReason
}

// NewBudget creates a budget whose clock starts now.
func NewBudget(config BudgetConfig) *Budget {
	return &Budget{
		config:    config,
		startTime: time.Now(),
	}
}

// Config returns the budget configuration.
func (b *Budget) Config() BudgetConfig {
	return b.config
}

// RecordCall records one test function call with its outcome.
//
// Outputs:
//   - int64: Total calls including this one.
func (b *Budget) RecordCall(status data.Status) int64 {
	switch status {
	case data.StatusValid:
		atomic.AddInt64(&b.valid, 1)
	case data.StatusInvalid:
		atomic.AddInt64(&b.invalid, 1)
	case data.StatusOverrun:
		atomic.AddInt64(&b.overrun, 1)
	case data.StatusInteresting:
		atomic.AddInt64(&b.interesting, 1)
	}
	return atomic.AddInt64(&b.calls, 1)
}

// RecordShrink records a bug replaced by a simpler example.
func (b *Budget) RecordShrink() int64 {
	return atomic.AddInt64(&b.shrinks, 1)
}

// Calls returns the number of test function calls.
func (b *Budget) Calls() int64 { return atomic.LoadInt64(&b.calls) }

// ValidExamples returns the number of valid runs.
func (b *Budget) ValidExamples() int64 { return atomic.LoadInt64(&b.valid) }

// InvalidExamples returns the number of invalid runs.
func (b *Budget) InvalidExamples() int64 { return atomic.LoadInt64(&b.invalid) }

// OverrunExamples returns the number of runs that overran.
func (b *Budget) OverrunExamples() int64 { return atomic.LoadInt64(&b.overrun) }

// InterestingExamples returns the number of failing runs.
func (b *Budget) InterestingExamples() int64 { return atomic.LoadInt64(&b.interesting) }

// Shrinks returns how many times a bug was replaced.
func (b *Budget) Shrinks() int64 { return atomic.LoadInt64(&b.shrinks) }

// Elapsed returns time since the budget was created.
func (b *Budget) Elapsed() time.Duration {
	return time.Since(b.startTime)
}

// BudgetRemaining contains remaining budget values.
type BudgetRemaining struct {
	Examples   int           `json:"examples"`
	Iterations int           `json:"iterations"`
	Shrinks    int           `json:"shrinks"`
	Time       time.Duration `json:"time"`
}

// Remaining returns what is left of each limit. Time is zero when there
// is no time limit.
func (b *Budget) Remaining() BudgetRemaining {
	r := BudgetRemaining{
		Examples:   b.config.MaxExamples - int(b.ValidExamples()),
		Iterations: b.config.MaxIterations - int(b.Calls()),
		Shrinks:    b.config.MaxShrinks - int(b.Shrinks()),
	}
	if b.config.TimeLimit > 0 {
		r.Time = b.config.TimeLimit - b.Elapsed()
	}
	return r
}

// ExhaustedBy returns the limit that ended the run, empty if none has.
func (b *Budget) ExhaustedBy() ExitReason {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exhaustedBy
}

// Check returns the exit reason for the first limit that has been hit, or
// "" if the run may continue.
//
// Description:
//
//	The example and iteration limits only apply while no bug has been
//	found; once one has, the run is bounded by the shrink limit and the
//	generation grace period instead.
func (b *Budget) Check(hasBugs bool) ExitReason {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.exhaustedBy != "" {
		return b.exhaustedBy
	}

	switch {
	case b.config.MaxShrinks > 0 && atomic.LoadInt64(&b.shrinks) >= int64(b.config.MaxShrinks):
		b.exhaustedBy = ExitMaxShrinks
	case b.config.TimeLimit > 0 && time.Since(b.startTime) >= b.config.TimeLimit:
		b.exhaustedBy = ExitTimeout
	case !hasBugs && b.config.MaxExamples > 0 && atomic.LoadInt64(&b.valid) >= int64(b.config.MaxExamples):
		b.exhaustedBy = ExitMaxExamples
	case !hasBugs && b.config.MaxIterations > 0 && atomic.LoadInt64(&b.calls) >= int64(b.config.MaxIterations):
		b.exhaustedBy = ExitMaxIterations
	}
	return b.exhaustedBy
}
