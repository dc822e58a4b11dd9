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
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
	"github.com/AleutianAI/conjecture/services/conjecture/database"
)

// shrinkInterestingExamples minimizes every bug bucket.
//
// Description:
//
//	Each bug is first replayed; one that no longer fails makes the run
//	flaky. Secondary corpus entries that might beat a bug are tried next.
//	Then buckets are shrunk smallest first until every bucket, including
//	any discovered while shrinking, has been shrunk once since its last
//	improvement.
func (r *Runner) shrinkInterestingExamples(ctx context.Context) {
	if len(r.interesting) == 0 {
		return
	}

	for _, prev := range r.sortedBugs() {
		res := r.testFunction(ctx, data.ForBuffer(r.newID(), prev.Buffer))
		if res.Status != data.StatusInteresting {
			r.exit(ExitFlaky, flakyError(prev, res))
		}
	}

	r.clearSecondaryKey(ctx)

	logger := LoggerWithTrace(ctx, r.logger)
	for len(r.shrunk) < len(r.interesting) {
		origin, target := r.nextToShrink()
		logger.Debug("shrinking", slog.String("origin", string(origin)), slog.Int("bytes", len(target.Buffer)))

		pred := func(res *data.Result) bool {
			return res.Status == data.StatusInteresting && res.Origin == origin
		}
		s, err := r.newShrinker(r, target, pred)
		if err != nil {
			logger.Warn("shrinker unavailable", slog.String("origin", string(origin)), slog.String("error", err.Error()))
			r.shrunk[origin] = true
			continue
		}
		stats, err := s.Shrink(ctx)
		r.metrics.shrink(ctx, stats.Duration)
		if err != nil {
			r.exit(ExitTimeout, err)
		}
		logger.Debug("shrink complete",
			slog.String("origin", string(origin)),
			slog.Int("calls", stats.Calls),
			slog.Int("changes", stats.Changes),
			slog.Int("bytes", len(s.ShrinkTarget().Buffer)),
		)
		r.shrunk[origin] = true

		if !r.config.ReportMultipleBugs {
			break
		}
	}
}

// nextToShrink picks the unshrunk bucket with the smallest buffer, ties
// broken by origin.
func (r *Runner) nextToShrink() (data.Origin, *data.Result) {
	var (
		bestOrigin data.Origin
		best       *data.Result
	)
	for origin, res := range r.interesting {
		if r.shrunk[origin] {
			continue
		}
		if best == nil {
			bestOrigin, best = origin, res
			continue
		}
		c := data.CompareBuffers(res.Buffer, best.Buffer)
		if c < 0 || (c == 0 && origin < bestOrigin) {
			bestOrigin, best = origin, res
		}
	}
	return bestOrigin, best
}

// clearSecondaryKey tries secondary entries no larger than the largest
// bug. Each entry tried is removed: it either became a bug or lost to one.
func (r *Runner) clearSecondaryKey(ctx context.Context) {
	if !r.hasDatabase() || !r.config.PhaseEnabled(PhaseReuse) {
		return
	}
	secondary := database.SecondaryKey(r.dbKey)
	corpus := r.dbFetch(ctx, secondary)
	sortBuffers(corpus)
	for _, buf := range corpus {
		var ceiling []byte
		for _, res := range r.interesting {
			if ceiling == nil || data.CompareBuffers(res.Buffer, ceiling) > 0 {
				ceiling = res.Buffer
			}
		}
		if data.CompareBuffers(buf, ceiling) > 0 {
			return
		}
		r.CachedTestFunction(ctx, buf)
		r.dbDelete(ctx, secondary, buf)
	}
}

// sortedBugs returns the bug results ordered by buffer.
func (r *Runner) sortedBugs() []*data.Result {
	out := make([]*data.Result, 0, len(r.interesting))
	for _, res := range r.interesting {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := data.CompareBuffers(out[i].Buffer, out[j].Buffer); c != 0 {
			return c < 0
		}
		return out[i].Origin < out[j].Origin
	})
	return out
}

func flakyError(prev, now *data.Result) error {
	return fmt.Errorf("%w: %d bytes failed with %q before but now end %s",
		ErrFlaky, len(prev.Buffer), prev.Origin, now.Status)
}
