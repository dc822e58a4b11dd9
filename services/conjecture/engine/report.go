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
	"time"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
	"github.com/AleutianAI/conjecture/services/conjecture/datatree"
)

// Bug is the simplest known failing input for one origin.
type Bug struct {
	Origin data.Origin  `json:"origin"`
	Result *data.Result `json:"-"`
	Buffer []byte       `json:"buffer"`
}

// Report summarizes a completed run.
type Report struct {
	RunID           string         `json:"run_id"`
	ExitReason      ExitReason     `json:"exit_reason"`
	Bugs            []Bug          `json:"bugs"`
	Calls           int            `json:"calls"`
	ValidExamples   int            `json:"valid_examples"`
	InvalidExamples int            `json:"invalid_examples"`
	OverrunExamples int            `json:"overrun_examples"`
	Shrinks         int            `json:"shrinks"`
	Duration        time.Duration  `json:"duration"`
	Events          map[string]int `json:"events,omitempty"`
	UsedDatabase    bool           `json:"used_database"`
	Tree            datatree.Stats `json:"tree"`
	CacheHits       int64          `json:"cache_hits"`
	CacheMisses     int64          `json:"cache_misses"`
}

// Failed reports whether the run found any bug.
func (rep *Report) Failed() bool { return len(rep.Bugs) > 0 }

func (r *Runner) report(reason ExitReason) *Report {
	hits, misses, _ := r.cache.Stats()
	rep := &Report{
		RunID:           r.runID,
		ExitReason:      reason,
		Calls:           int(r.budget.Calls()),
		ValidExamples:   int(r.budget.ValidExamples()),
		InvalidExamples: int(r.budget.InvalidExamples()),
		OverrunExamples: int(r.budget.OverrunExamples()),
		Shrinks:         int(r.budget.Shrinks()),
		Duration:        r.budget.Elapsed(),
		Events:          make(map[string]int, len(r.events)),
		UsedDatabase:    r.usedDatabase,
		Tree:            r.tree.Stats(),
		CacheHits:       hits,
		CacheMisses:     misses,
	}
	for e, n := range r.events {
		rep.Events[e] = n
	}
	for _, res := range r.sortedBugs() {
		rep.Bugs = append(rep.Bugs, Bug{Origin: res.Origin, Result: res, Buffer: res.Buffer})
	}
	if !r.config.ReportMultipleBugs && len(rep.Bugs) > 1 {
		rep.Bugs = rep.Bugs[:1]
	}
	return rep
}
