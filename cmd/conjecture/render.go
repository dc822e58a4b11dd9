// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/conjecture/pkg/ux"
	"github.com/AleutianAI/conjecture/services/conjecture/data"
	"github.com/AleutianAI/conjecture/services/conjecture/engine"
)

func renderOutcomes(outcomes []outcome) {
	passed := 0
	for _, o := range outcomes {
		renderOutcome(o)
		if o.asExpected() {
			passed++
		}
	}
	ux.Summary(passed, len(outcomes)-passed, len(outcomes))
}

func renderOutcome(o outcome) {
	switch {
	case o.err != nil:
		ux.Error(fmt.Sprintf("%s: %v", o.Property, o.err))
		return
	case o.asExpected() && !o.Report.Failed():
		ux.Success(fmt.Sprintf("%s: no failure in %d examples", o.Property, o.Report.ValidExamples))
	case o.asExpected():
		ux.Success(fmt.Sprintf("%s: falsified as expected", o.Property))
	case o.Report.Failed():
		ux.Error(fmt.Sprintf("%s: falsified", o.Property))
	default:
		ux.Error(fmt.Sprintf("%s: expected a failure, found none in %d examples", o.Property, o.Report.ValidExamples))
	}
	for _, bug := range o.Report.Bugs {
		renderBug(o.Property, bug)
	}
	renderReportStats(o.Property, o.Report)
}

func renderBug(property string, bug engine.Bug) {
	var b strings.Builder
	fmt.Fprintf(&b, "origin: %s\n", bug.Origin)
	if bug.Result != nil {
		for _, line := range bug.Result.Output {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteString(ux.HexDump(bug.Buffer))
	ux.ErrorBox("Falsifying example: "+property, b.String())
}

func renderReportStats(property string, rep *engine.Report) {
	fields := []ux.Field{
		{Key: "property", Value: property},
		{Key: "exit", Value: string(rep.ExitReason)},
		{Key: "calls", Value: strconv.Itoa(rep.Calls)},
		{Key: "valid", Value: strconv.Itoa(rep.ValidExamples)},
		{Key: "invalid", Value: strconv.Itoa(rep.InvalidExamples)},
		{Key: "overrun", Value: strconv.Itoa(rep.OverrunExamples)},
		{Key: "shrinks", Value: strconv.Itoa(rep.Shrinks)},
		{Key: "tree_nodes", Value: strconv.Itoa(rep.Tree.Nodes)},
		{Key: "cache_hits", Value: strconv.FormatInt(rep.CacheHits, 10)},
		{Key: "elapsed", Value: rep.Duration.Round(time.Microsecond).String()},
	}
	if len(rep.Events) > 0 {
		fields = append(fields, ux.Field{Key: "events", Value: formatEvents(rep.Events, rep.Calls)})
	}
	ux.KeyValues("REPORT", fields)
}

// formatEvents lists events by descending frequency as "name (pct%)".
func formatEvents(events map[string]int, calls int) string {
	names := make([]string, 0, len(events))
	for e := range events {
		names = append(names, e)
	}
	sort.Slice(names, func(i, j int) bool {
		if events[names[i]] != events[names[j]] {
			return events[names[i]] > events[names[j]]
		}
		return names[i] < names[j]
	})
	parts := make([]string, len(names))
	for i, e := range names {
		pct := 0
		if calls > 0 {
			pct = events[e] * 100 / calls
		}
		parts[i] = fmt.Sprintf("%s (%d%%)", e, pct)
	}
	return strings.Join(parts, ", ")
}

func renderResult(label string, res *data.Result, traceback bool) {
	fields := []ux.Field{
		{Key: "status", Value: res.Status.String()},
		{Key: "bytes", Value: strconv.Itoa(len(res.Buffer))},
	}
	if res.Origin != "" {
		fields = append(fields, ux.Field{Key: "origin", Value: string(res.Origin)})
	}
	ux.Title(label)
	ux.KeyValues("RESULT", fields)
	for _, line := range res.Output {
		ux.Info(line)
	}
	if traceback && res.Traceback != "" {
		ux.Box("Traceback", strings.TrimRight(res.Traceback, "\n"))
	}
}
