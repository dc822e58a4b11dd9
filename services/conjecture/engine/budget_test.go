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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

func TestBudget_Counts(t *testing.T) {
	b := NewBudget(BudgetConfig{MaxExamples: 10, MaxIterations: 100, MaxShrinks: 5})
	for _, s := range []data.Status{data.StatusValid, data.StatusValid, data.StatusInvalid, data.StatusOverrun, data.StatusInteresting} {
		b.RecordCall(s)
	}
	b.RecordShrink()

	assert.Equal(t, int64(5), b.Calls())
	assert.Equal(t, int64(2), b.ValidExamples())
	assert.Equal(t, int64(1), b.InvalidExamples())
	assert.Equal(t, int64(1), b.OverrunExamples())
	assert.Equal(t, int64(1), b.InterestingExamples())
	assert.Equal(t, int64(1), b.Shrinks())

	rem := b.Remaining()
	assert.Equal(t, 8, rem.Examples)
	assert.Equal(t, 95, rem.Iterations)
	assert.Equal(t, 4, rem.Shrinks)
	assert.Zero(t, rem.Time)
}

func TestBudget_Check(t *testing.T) {
	tests := []struct {
		name    string
		config  BudgetConfig
		valid   int
		invalid int
		shrinks int
		hasBugs bool
		want    ExitReason
	}{
		{"under every limit", BudgetConfig{MaxExamples: 10, MaxIterations: 100, MaxShrinks: 5}, 3, 3, 1, false, ""},
		{"examples", BudgetConfig{MaxExamples: 3, MaxIterations: 100, MaxShrinks: 5}, 3, 0, 0, false, ExitMaxExamples},
		{"iterations", BudgetConfig{MaxExamples: 10, MaxIterations: 5, MaxShrinks: 5}, 1, 4, 0, false, ExitMaxIterations},
		{"examples ignored once a bug is found", BudgetConfig{MaxExamples: 3, MaxIterations: 5, MaxShrinks: 5}, 3, 3, 0, true, ""},
		{"shrinks win over examples", BudgetConfig{MaxExamples: 3, MaxIterations: 100, MaxShrinks: 2}, 3, 0, 2, false, ExitMaxShrinks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBudget(tt.config)
			for i := 0; i < tt.valid; i++ {
				b.RecordCall(data.StatusValid)
			}
			for i := 0; i < tt.invalid; i++ {
				b.RecordCall(data.StatusInvalid)
			}
			for i := 0; i < tt.shrinks; i++ {
				b.RecordShrink()
			}
			assert.Equal(t, tt.want, b.Check(tt.hasBugs))
			assert.Equal(t, tt.want, b.ExhaustedBy())
		})
	}
}

func TestBudget_TimeLimit(t *testing.T) {
	b := NewBudget(BudgetConfig{TimeLimit: time.Millisecond})
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, ExitTimeout, b.Check(true))
	assert.Equal(t, ExitTimeout, b.Check(false), "the first exhausted limit sticks")
}

func TestBudget_ConcurrentRecords(t *testing.T) {
	b := NewBudget(BudgetConfig{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.RecordCall(data.StatusValid)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(800), b.Calls())
}
