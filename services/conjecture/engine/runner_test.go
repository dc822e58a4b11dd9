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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
	"github.com/AleutianAI/conjecture/services/conjecture/database"
)

var errBoom = errors.New("boom")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRunner builds a deterministic runner. mutate adjusts the default
// configuration.
func newTestRunner(t *testing.T, fn TestFunction, mutate func(*RunnerConfig), opts ...RunnerOption) *Runner {
	t.Helper()
	cfg := DefaultRunnerConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	opts = append([]RunnerOption{
		WithConfig(cfg),
		WithRandom(rand.New(rand.NewSource(1))),
		WithLogger(quietLogger()),
	}, opts...)
	r, err := NewRunner(fn, opts...)
	require.NoError(t, err)
	return r
}

func failAtLeast(threshold uint64) TestFunction {
	return func(d *data.Data) error {
		if d.DrawBits(8) >= threshold {
			return errBoom
		}
		return nil
	}
}

func TestNewRunner_NilTestFunction(t *testing.T) {
	_, err := NewRunner(nil)
	assert.ErrorIs(t, err, ErrNilTestFunction)
}

func TestNewRunner_InvalidConfig(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.MaxExamples = 0
	_, err := NewRunner(failAtLeast(1), WithConfig(cfg))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRun_FindsMinimalFailingByte(t *testing.T) {
	for _, multiple := range []bool{true, false} {
		t.Run(fmt.Sprintf("report_multiple_bugs=%v", multiple), func(t *testing.T) {
			r := newTestRunner(t, failAtLeast(127), func(c *RunnerConfig) {
				c.ReportMultipleBugs = multiple
			})
			report, err := r.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, report.Bugs, 1)
			assert.Equal(t, []byte{127}, report.Bugs[0].Buffer)
			assert.Equal(t, data.OriginFromError(errBoom, r.site), report.Bugs[0].Origin)
			assert.True(t, report.Failed())
		})
	}
}

func TestRun_StopsAtMaxExamples(t *testing.T) {
	r := newTestRunner(t, func(d *data.Data) error {
		d.DrawBits(64)
		return nil
	}, func(c *RunnerConfig) { c.MaxExamples = 50 })

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitMaxExamples, report.ExitReason)
	assert.Equal(t, 50, report.ValidExamples)
	assert.Empty(t, report.Bugs)
}

func TestRun_StopsAtMaxIterations(t *testing.T) {
	r := newTestRunner(t, func(d *data.Data) error {
		d.DrawBits(64)
		d.MarkInvalid()
		return nil
	}, func(c *RunnerConfig) {
		c.MaxIterations = 200
		c.SuppressHealthCheck = []HealthCheck{HealthFilterTooMuch}
	})

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitMaxIterations, report.ExitReason)
	assert.Equal(t, 200, report.Calls)
	assert.Equal(t, 200, report.InvalidExamples)
}

func TestRun_FinishesWhenTreeExhausted(t *testing.T) {
	calls := 0
	r := newTestRunner(t, func(d *data.Data) error {
		calls++
		d.DrawBits(1)
		return nil
	}, nil)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitFinished, report.ExitReason)
	assert.Equal(t, 2, calls, "one call per possible buffer")
}

func TestRun_FlakyBugIsReported(t *testing.T) {
	failed := false
	r := newTestRunner(t, func(d *data.Data) error {
		d.DrawBits(64)
		if !failed {
			failed = true
			return errBoom
		}
		return nil
	}, func(c *RunnerConfig) { c.ReportMultipleBugs = false })

	report, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrFlaky)
	require.NotNil(t, report)
	assert.Equal(t, ExitFlaky, report.ExitReason)
}

func TestReplay_DetectsFlakiness(t *testing.T) {
	invalid := false
	r := newTestRunner(t, func(d *data.Data) error {
		d.DrawBits(8)
		if invalid {
			d.MarkInvalid()
		}
		d.MarkInteresting("0")
		return nil
	}, nil)
	ctx := context.Background()

	first, err := r.Replay(ctx, []byte{1})
	require.NoError(t, err)
	second, err := r.Replay(ctx, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, data.StatusInteresting, first.Status)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Buffer, second.Buffer)
	assert.Equal(t, first.Origin, second.Origin)
	assert.Equal(t, first.Blocks, second.Blocks)

	invalid = true
	_, err = r.Replay(ctx, []byte{1})
	assert.ErrorIs(t, err, ErrFlaky)
}

func TestCachedTestFunction_Memoizes(t *testing.T) {
	calls := 0
	r := newTestRunner(t, func(d *data.Data) error {
		calls++
		d.DrawBits(1)
		return nil
	}, nil)
	ctx := context.Background()

	a := r.CachedTestFunction(ctx, []byte{0xff})
	b := r.CachedTestFunction(ctx, []byte{0xff})
	assert.Same(t, a, b)
	assert.Equal(t, []byte{1}, a.Buffer, "the mask is applied")

	c := r.CachedTestFunction(ctx, []byte{0x03})
	assert.Same(t, a, c, "a buffer that canonicalizes to a known one is not rerun")
	assert.Equal(t, 1, calls)

	over := r.CachedTestFunction(ctx, nil)
	assert.Same(t, data.OverrunResult, over)
	assert.Same(t, data.OverrunResult, r.CachedTestFunction(ctx, nil))
	assert.Equal(t, 2, calls)
}

func TestRunner_PrescreenBuffer(t *testing.T) {
	r := newTestRunner(t, func(d *data.Data) error {
		d.DrawBits(8)
		d.DrawBits(8)
		return nil
	}, nil)
	ctx := context.Background()
	r.CachedTestFunction(ctx, []byte{1, 2})

	assert.True(t, r.PrescreenBuffer([]byte{1, 2}), "the tree answers stored runs")
	assert.True(t, r.PrescreenBuffer([]byte{1, 3}), "unexplored")
	assert.False(t, r.PrescreenBuffer([]byte{1}), "ends inside the explored tree")
}

func TestRun_PanicIsBucketedByLocation(t *testing.T) {
	r := newTestRunner(t, func(d *data.Data) error {
		if d.DrawBits(8) >= 10 {
			panic("too big")
		}
		return nil
	}, nil)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Bugs, 1)
	bug := report.Bugs[0]
	assert.Equal(t, []byte{10}, bug.Buffer)
	assert.True(t, strings.HasPrefix(string(bug.Origin), "string at runner_test.go:"), bug.Origin)
	assert.Contains(t, bug.Result.Traceback, "panic: too big")
}

func TestRun_DistinctBugsGetDistinctBuckets(t *testing.T) {
	errSmall := errors.New("small")
	errLarge := errors.New("large")
	fn := func(d *data.Data) error {
		switch v := d.DrawBits(8); {
		case v >= 200:
			return errLarge
		case v >= 100:
			return errSmall
		}
		return nil
	}

	r := newTestRunner(t, fn, nil)
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Bugs, 2)
	assert.Equal(t, []byte{100}, report.Bugs[0].Buffer)
	assert.Equal(t, data.OriginFromError(errSmall, r.site), report.Bugs[0].Origin)
	assert.Equal(t, []byte{200}, report.Bugs[1].Buffer)
	assert.Equal(t, data.OriginFromError(errLarge, r.site), report.Bugs[1].Origin)

	r = newTestRunner(t, fn, func(c *RunnerConfig) { c.ReportMultipleBugs = false })
	report, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Bugs, 1)
}

// Values formatted into an error do not split one bug into many buckets,
// so the failure still shrinks to its minimal buffer.
func TestRun_FormattedErrorIsOneBug(t *testing.T) {
	fn := func(d *data.Data) error {
		if v := d.DrawBits(8); v >= 127 {
			return fmt.Errorf("value %d too large", v)
		}
		return nil
	}
	for _, multiple := range []bool{true, false} {
		t.Run(fmt.Sprintf("report_multiple_bugs=%v", multiple), func(t *testing.T) {
			r := newTestRunner(t, fn, func(c *RunnerConfig) { c.ReportMultipleBugs = multiple })
			report, err := r.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, report.Bugs, 1)
			assert.Equal(t, []byte{127}, report.Bugs[0].Buffer)
			assert.Contains(t, string(report.Bugs[0].Origin), "runner_test.go:")
		})
	}
}

func TestRun_FailfBucketsByRaiseSite(t *testing.T) {
	r := newTestRunner(t, func(d *data.Data) error {
		switch v := d.DrawBits(8); {
		case v >= 200:
			return data.Failf("value %d", v)
		case v >= 100:
			return data.Failf("value %d", v)
		}
		return nil
	}, nil)
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Bugs, 2)
	assert.Equal(t, []byte{100}, report.Bugs[0].Buffer)
	assert.Equal(t, []byte{200}, report.Bugs[1].Buffer)
}

func TestRun_HealthChecks(t *testing.T) {
	tests := []struct {
		name  string
		fn    TestFunction
		check HealthCheck
		cfg   func(*RunnerConfig)
	}{
		{
			name: "filter too much",
			fn: func(d *data.Data) error {
				d.DrawBits(64)
				d.MarkInvalid()
				return nil
			},
			check: HealthFilterTooMuch,
		},
		{
			name: "large base example",
			fn: func(d *data.Data) error {
				d.DrawBytes(5000)
				return nil
			},
			check: HealthLargeBaseExample,
		},
		{
			name: "hung test",
			fn:   failAtLeast(255),
			cfg: func(c *RunnerConfig) {
				c.HungTestLimit = time.Nanosecond
			},
			check: HealthHungTest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(t, tt.fn, tt.cfg)
			report, err := r.Run(context.Background())
			assert.Nil(t, report)
			require.ErrorIs(t, err, ErrHealthCheck)
			var hc *HealthCheckError
			require.True(t, errors.As(err, &hc))
			assert.Equal(t, tt.check, hc.Check)
		})
	}
}

func TestRun_SuppressedHealthCheckDoesNotAbort(t *testing.T) {
	r := newTestRunner(t, func(d *data.Data) error {
		d.DrawBytes(5000)
		return nil
	}, func(c *RunnerConfig) {
		c.SuppressHealthCheck = []HealthCheck{HealthLargeBaseExample}
		c.MaxExamples = 20
	})
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, report)
}

func TestRun_SavesAndReusesBugs(t *testing.T) {
	ctx := context.Background()
	db := database.NewMemory()
	key := []byte("threshold")

	r := newTestRunner(t, failAtLeast(127), nil, WithDatabase(db, key))
	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.UsedDatabase)

	primary, err := db.Fetch(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{127}}, primary, "replaced bugs leave the primary corpus")

	r = newTestRunner(t, failAtLeast(127), nil, WithDatabase(db, key))
	report, err = r.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.UsedDatabase)
	require.Len(t, report.Bugs, 1)
	assert.Equal(t, []byte{127}, report.Bugs[0].Buffer)

	// Once the bug is fixed the entry is pruned.
	r = newTestRunner(t, failAtLeast(256), func(c *RunnerConfig) {
		c.Phases = []Phase{PhaseReuse}
	}, WithDatabase(db, key))
	report, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExitFinished, report.ExitReason)
	primary, err = db.Fetch(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, primary)
}

func TestRun_ImprovedBugsMoveToSecondary(t *testing.T) {
	ctx := context.Background()
	db := database.NewMemory()
	key := []byte("shrinks")

	r := newTestRunner(t, func(d *data.Data) error {
		if d.DrawBits(64) >= 1000 {
			return errBoom
		}
		return nil
	}, func(c *RunnerConfig) {
		c.MaxShrinks = 5
		c.ReportMultipleBugs = false
	}, WithDatabase(db, key))

	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExitMaxShrinks, report.ExitReason)
	assert.Equal(t, 5, report.Shrinks)

	secondary, err := db.Fetch(ctx, database.SecondaryKey(key))
	require.NoError(t, err)
	assert.Len(t, secondary, 5)
	primary, err := db.Fetch(ctx, key)
	require.NoError(t, err)
	assert.Len(t, primary, 1)
}

func TestRun_ContextCancelled(t *testing.T) {
	cause := errors.New("deadline from caller")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)

	r := newTestRunner(t, failAtLeast(127), nil)
	report, err := r.Run(ctx)
	assert.ErrorIs(t, err, cause)
	require.NotNil(t, report)
	assert.Equal(t, ExitTimeout, report.ExitReason)
}

func TestRun_GenerateOnlySkipsShrinking(t *testing.T) {
	r := newTestRunner(t, failAtLeast(127), func(c *RunnerConfig) {
		c.Phases = []Phase{PhaseGenerate}
		c.ReportMultipleBugs = false
	})
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitFinished, report.ExitReason)
	require.Len(t, report.Bugs, 1)
	assert.GreaterOrEqual(t, report.Bugs[0].Buffer[0], byte(127))
}

func TestRun_ResetsBetweenRuns(t *testing.T) {
	r := newTestRunner(t, func(d *data.Data) error {
		d.DrawBits(64)
		return nil
	}, func(c *RunnerConfig) { c.MaxExamples = 30 })

	first, err := r.Run(context.Background())
	require.NoError(t, err)
	second, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.ValidExamples, second.ValidExamples)
}

func TestRun_CountsEvents(t *testing.T) {
	r := newTestRunner(t, func(d *data.Data) error {
		if d.DrawBits(8)%2 == 0 {
			d.NoteEvent("even")
		}
		return nil
	}, func(c *RunnerConfig) { c.MaxExamples = 1000 })
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitFinished, report.ExitReason)
	assert.Equal(t, 128, report.Events["even"])
}

func TestExecute_ForeignStopTestPropagates(t *testing.T) {
	r := newTestRunner(t, func(d *data.Data) error {
		panic(data.StopTest{ID: d.ID() + 1000})
	}, nil)
	assert.Panics(t, func() {
		_, _ = r.Replay(context.Background(), []byte{0})
	})
}

// An inner Runner must not absorb the unwind of a record it does not own,
// even when both records carry the same ID.
func TestExecute_OuterUnwindPassesThroughInnerRunner(t *testing.T) {
	var innerResult *data.Result
	outer := newTestRunner(t, func(od *data.Data) error {
		od.DrawBits(8)
		inner := newTestRunner(t, func(id *data.Data) error {
			id.DrawBits(8)
			od.MarkInvalid()
			return nil
		}, nil)
		innerResult, _ = inner.Replay(context.Background(), []byte{0})
		return errors.New("inner replay returned")
	}, nil)

	res, err := outer.Replay(context.Background(), []byte{0})
	require.NoError(t, err)
	assert.Equal(t, data.StatusInvalid, res.Status)
	assert.Nil(t, innerResult, "the inner replay never returned")
}

func TestExecute_NestedRunnerDoesNotLeakExit(t *testing.T) {
	inner := newTestRunner(t, failAtLeast(127), nil)
	outer := newTestRunner(t, func(d *data.Data) error {
		d.DrawBits(8)
		report, err := inner.Run(context.Background())
		if err != nil {
			return err
		}
		if len(report.Bugs) != 1 {
			return errors.New("inner run lost its bug")
		}
		return nil
	}, nil)

	res, err := outer.Replay(context.Background(), []byte{0})
	require.NoError(t, err)
	assert.Equal(t, data.StatusValid, res.Status)
}
