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
	"log/slog"
	"math"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
	"github.com/AleutianAI/conjecture/services/conjecture/database"
)

// reuseExistingExamples replays the saved corpus.
//
// Description:
//
//	Every primary entry is retried, smallest first. If the primary corpus
//	is short of a tenth of MaxExamples it is topped up with a random
//	sample of the secondary corpus, then of the covering corpus. Entries
//	that no longer fail are removed from the primary and secondary
//	corpora.
func (r *Runner) reuseExistingExamples(ctx context.Context) {
	if !r.hasDatabase() {
		return
	}
	logger := LoggerWithTrace(ctx, r.logger)

	corpus := r.dbFetch(ctx, r.dbKey)
	sortBuffers(corpus)
	desired := max(2, int(math.Ceil(0.1*float64(r.config.MaxExamples))))

	for _, key := range [][]byte{database.SecondaryKey(r.dbKey), database.CoveringKey(r.dbKey)} {
		if len(corpus) >= desired {
			break
		}
		extra := r.dbFetch(ctx, key)
		if shortfall := desired - len(corpus); len(extra) > shortfall {
			r.rnd.Shuffle(len(extra), func(i, j int) { extra[i], extra[j] = extra[j], extra[i] })
			extra = extra[:shortfall]
		}
		sortBuffers(extra)
		corpus = append(corpus, extra...)
	}

	r.usedDatabase = len(corpus) > 0
	logger.Debug("reusing saved examples", slog.Int("entries", len(corpus)))

	for _, buf := range corpus {
		r.replaySaved(ctx, buf)
	}
}

// replaySaved runs one saved buffer and prunes it once it has stopped
// failing. The entry is kept if the buffer never finished running or the
// run turned out flaky.
func (r *Runner) replaySaved(ctx context.Context, buf []byte) {
	d := data.ForBuffer(r.newID(), buf)
	defer func() {
		rec := recover()
		if s, ok := rec.(stopRun); ok && s.reason == ExitFlaky {
			panic(rec)
		}
		if d.Frozen() && d.Status() != data.StatusInteresting {
			r.dbDelete(ctx, r.dbKey, buf)
			r.dbDelete(ctx, database.SecondaryKey(r.dbKey), buf)
		}
		if rec != nil {
			panic(rec)
		}
	}()
	r.testFunction(ctx, d)
}
