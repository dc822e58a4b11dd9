// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine drives the search for failing inputs.
//
// A Runner owns everything one search learns: the exploration tree, the
// result cache, the bug buckets and the budget. Run executes three phases
// in order. Reuse replays corpus entries saved by earlier runs. Generate
// explores fresh inputs, first from novel prefixes and then by mutating
// the most promising results so far. Shrink hands every bug to a
// Shrinker until each is as simple as it gets.
//
// # Thread Safety
//
// A Runner is NOT safe for concurrent use. Independent Runners may run in
// parallel and share a database.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"reflect"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/conjecture/services/conjecture/cache"
	"github.com/AleutianAI/conjecture/services/conjecture/data"
	"github.com/AleutianAI/conjecture/services/conjecture/database"
	"github.com/AleutianAI/conjecture/services/conjecture/datatree"
	"github.com/AleutianAI/conjecture/services/conjecture/shrinker"
)

// cacheResetFrequency is how many calls pass between tree resets while no
// bug has been found, which keeps generation memory bounded.
const cacheResetFrequency = 1000

// TestFunction is the code under test. It draws its input from d and
// fails by returning an error, panicking, or calling d.MarkInteresting.
type TestFunction func(d *data.Data) error

// Shrinker minimizes one bug. *shrinker.Shrinker satisfies it.
type Shrinker interface {
	Shrink(ctx context.Context) (shrinker.Stats, error)
	ShrinkTarget() *data.Result
}

// ShrinkerFactory builds the Shrinker for one bug.
type ShrinkerFactory func(ev shrinker.Evaluator, initial *data.Result, pred shrinker.Predicate) (Shrinker, error)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConfig replaces the default configuration.
func WithConfig(cfg RunnerConfig) RunnerOption {
	return func(r *Runner) {
		r.config = cfg
	}
}

// WithDatabase persists bugs to db under key. An empty key disables the
// database.
func WithDatabase(db database.Database, key []byte) RunnerOption {
	return func(r *Runner) {
		r.db = db
		r.dbKey = append([]byte(nil), key...)
	}
}

// WithRandom sets the random source, overriding the configured seed.
func WithRandom(rnd *rand.Rand) RunnerOption {
	return func(r *Runner) {
		r.rnd = rnd
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithShrinkerFactory replaces the default shrinker.
func WithShrinkerFactory(f ShrinkerFactory) RunnerOption {
	return func(r *Runner) {
		if f != nil {
			r.newShrinker = f
		}
	}
}

// WithTracer replaces the tracer built from the observability config.
func WithTracer(t *Tracer) RunnerOption {
	return func(r *Runner) {
		r.tracer = t
	}
}

// Runner searches for inputs that make a test function fail.
//
// Thread Safety: NOT safe for concurrent use.
type Runner struct {
	fn          TestFunction
	site        string
	config      RunnerConfig
	db          database.Database
	dbKey       []byte
	rnd         *rand.Rand
	logger      *slog.Logger
	tracer      *Tracer
	newShrinker ShrinkerFactory
	metrics     runMetrics

	runID    string
	nextID   uint64
	inRun    bool
	tree     *datatree.Tree
	cache    *cache.LRU[string, *data.Result]
	budget   *Budget
	selector *targetSelector
	params   genParams
	health   *healthState
	progress rate.Sometimes

	interesting map[data.Origin]*data.Result
	shrunk      map[data.Origin]bool
	covering    map[string]*data.Result
	events      map[string]int
	firstBugAt  int64
	lastBugAt   int64

	usedDatabase bool
}

// NewRunner creates a runner for fn.
//
// Inputs:
//   - fn: The test function. Must not be nil.
//   - opts: Configuration options.
//
// Outputs:
//   - *Runner: Ready to Run.
//   - error: ErrNilTestFunction, or a config validation error.
func NewRunner(fn TestFunction, opts ...RunnerOption) (*Runner, error) {
	if fn == nil {
		return nil, ErrNilTestFunction
	}
	r := &Runner{
		fn:     fn,
		site:   funcSite(fn),
		config: DefaultRunnerConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	if r.rnd == nil {
		seed := r.config.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		r.rnd = rand.New(rand.NewSource(seed))
	}
	if r.tracer == nil {
		r.tracer = NewTracer(r.logger, r.config.Observability)
	}
	if r.newShrinker == nil {
		logger := r.logger
		r.newShrinker = func(ev shrinker.Evaluator, initial *data.Result, pred shrinker.Predicate) (Shrinker, error) {
			return shrinker.New(ev, initial, pred, shrinker.WithLogger(logger))
		}
	}
	r.metrics = newRunMetrics(r.config.Observability.MetricsEnabled)
	r.reset()
	return r, nil
}

// reset clears everything a run learns.
func (r *Runner) reset() {
	r.runID = uuid.NewString()
	r.tree = datatree.New(datatree.WithZeroBoundCap(r.cap()))
	r.cache = cache.New[string, *data.Result](r.config.CacheSize)
	r.budget = NewBudget(r.config.ToBudgetConfig())
	r.selector = newTargetSelector(r.rnd, mutationPoolSize)
	r.params = newGenParams(r.rnd)
	r.health = nil
	r.progress = rate.Sometimes{Interval: 5 * time.Second}
	r.interesting = make(map[data.Origin]*data.Result)
	r.shrunk = make(map[data.Origin]bool)
	r.covering = make(map[string]*data.Result)
	r.events = make(map[string]int)
	r.firstBugAt, r.lastBugAt = 0, 0
	r.usedDatabase = false
}

// cap is where generation starts forcing zeros.
func (r *Runner) cap() int { return r.config.BufferSize / 2 }

// RunID identifies the current or most recent run.
func (r *Runner) RunID() string { return r.runID }

// Budget exposes the run's counters.
func (r *Runner) Budget() *Budget { return r.budget }

// stopRun is the panic value that ends a run. Only the Runner that raised
// it recovers it.
type stopRun struct {
	owner  *Runner
	reason ExitReason
	err    error
}

func (r *Runner) exit(reason ExitReason, err error) {
	panic(stopRun{owner: r, reason: reason, err: err})
}

// Run executes the enabled phases.
//
// Description:
//
//	Each Run starts from a clean slate. Cancelling ctx ends the run with
//	the timeout exit reason and returns context.Cause(ctx).
//
// Outputs:
//   - *Report: What the run found. Nil if a health check aborted it.
//   - error: A *HealthCheckError, an error wrapping ErrFlaky, or the
//     context's cause. Nil for every other exit.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.reset()
	r.inRun = true
	defer func() { r.inRun = false }()

	ctx, span := r.tracer.StartRun(ctx, r.runID, r.config)
	logger := LoggerWithTrace(ctx, r.logger).With(slog.String("run_id", r.runID))
	logger.Info("run started",
		slog.Int("max_examples", r.config.MaxExamples),
		slog.Int("buffer_size", r.config.BufferSize),
	)

	reason, err := r.runPhases(ctx)
	if reason == "" {
		r.tracer.EndRun(span, nil, err)
		return nil, err
	}

	report := r.report(reason)
	r.metrics.exit(ctx, reason, report.Duration)
	r.tracer.EndRun(span, report, err)
	logger.Info("run complete",
		slog.String("exit_reason", string(reason)),
		slog.Int("calls", report.Calls),
		slog.Int("valid", report.ValidExamples),
		slog.Int("shrinks", report.Shrinks),
		slog.Int("bugs", len(report.Bugs)),
		slog.Duration("elapsed", report.Duration),
	)
	return report, err
}

func (r *Runner) runPhases(ctx context.Context) (reason ExitReason, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s, ok := rec.(stopRun)
			if !ok || s.owner != r {
				panic(rec)
			}
			reason, err = s.reason, s.err
		}
	}()

	r.phase(ctx, PhaseReuse, r.reuseExistingExamples)
	r.phase(ctx, PhaseGenerate, r.generateNewExamples)
	r.phase(ctx, PhaseShrink, r.shrinkInterestingExamples)
	return ExitFinished, nil
}

func (r *Runner) phase(ctx context.Context, p Phase, fn func(context.Context)) {
	if !r.config.PhaseEnabled(p) {
		return
	}
	ctx, span := r.tracer.StartPhase(ctx, p)
	before := r.budget.Calls()
	defer func() { r.tracer.EndPhase(span, r.budget.Calls()-before) }()
	fn(ctx)
}

// funcSite returns fn's definition site as file:line.
func funcSite(fn TestFunction) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "unknown"
	}
	file, line := f.FileLine(f.Entry())
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func (r *Runner) newID() uint64 {
	r.nextID++
	return r.nextID
}

// CachedTestFunction evaluates buf, reusing an earlier result when the
// cache or the tree already knows the outcome.
//
// Description:
//
//	The cache is consulted for buf as given, then for the tree's
//	canonical rewrite of buf. A stored tree result reached by the rewrite
//	answers without running the test. Otherwise buf is run and the result
//	is cached under both buf and the bytes the run consumed. Every overrun
//	is answered with data.OverrunResult. Called during Run, the
//	evaluation may end the run.
func (r *Runner) CachedTestFunction(ctx context.Context, buf []byte) *data.Result {
	if res, ok := r.cache.Get(string(buf)); ok {
		return res
	}
	rewritten, stored := r.tree.Rewrite(buf)
	if res, ok := r.cache.Get(string(rewritten)); ok {
		return res
	}
	if stored != nil {
		return stored
	}

	res := r.testFunction(ctx, data.ForBuffer(r.newID(), buf))
	if res.Status == data.StatusOverrun {
		res = data.OverrunResult
	}
	r.cache.Set(string(buf), res)
	return res
}

var _ shrinker.Prescreener = (*Runner)(nil)

// PrescreenBuffer reports whether evaluating buf could tell the run
// anything new. Buffers reaching a stored result pass, since
// CachedTestFunction answers them without running the test.
func (r *Runner) PrescreenBuffer(buf []byte) bool {
	if _, stored := r.tree.Rewrite(buf); stored != nil {
		return true
	}
	return r.tree.PrescreenBuffer(buf)
}

// Replay runs buf once through the test function, bypassing the cache.
//
// Outputs:
//   - *data.Result: The run's result.
//   - error: Wraps ErrFlaky if the result contradicts an earlier run of
//     the same bytes, or the context's error.
func (r *Runner) Replay(ctx context.Context, buf []byte) (*data.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := data.ForBuffer(r.newID(), buf)
	r.execute(d)
	res := d.AsResult()
	if err := r.tree.Add(res); err != nil {
		return res, fmt.Errorf("%w: %w", ErrFlaky, err)
	}
	if res.Status != data.StatusOverrun {
		r.cache.Set(string(res.Buffer), res)
	}
	return res, nil
}

// testFunction runs d and folds the result into everything the runner
// tracks.
func (r *Runner) testFunction(ctx context.Context, d *data.Data) *data.Result {
	if r.inRun {
		if limit := r.config.HungTestLimit; limit > 0 && r.budget.Elapsed() >= limit {
			r.failHealthCheck(ctx, HealthHungTest, fmt.Sprintf(
				"the run has been going for at least %s", limit))
		}
		if err := ctx.Err(); err != nil {
			r.exit(ExitTimeout, context.Cause(ctx))
		}
	}

	r.execute(d)
	res := d.AsResult()
	calls := r.budget.RecordCall(res.Status)
	r.metrics.call(ctx, res.Status)
	for _, e := range res.Events {
		r.events[e]++
	}
	r.selector.add(res)
	if res.Status != data.StatusOverrun {
		r.cache.Set(string(res.Buffer), res)
	}

	if calls%cacheResetFrequency == 0 && len(r.interesting) == 0 {
		r.tree.Reset()
	}
	if err := r.tree.Add(res); err != nil {
		if r.inRun {
			r.exit(ExitFlaky, fmt.Errorf("%w: %w", ErrFlaky, err))
		}
		r.logger.Warn("inconsistent result outside a run", slog.String("error", err.Error()))
	}

	if res.Status == data.StatusInteresting {
		r.recordBug(ctx, res, calls)
	}
	if res.Status >= data.StatusValid {
		r.noteCoverage(ctx, res)
	}

	if r.inRun {
		if reason := r.budget.Check(len(r.interesting) > 0); reason != "" {
			r.exit(reason, nil)
		}
		if r.tree.IsExhausted() {
			r.exit(ExitFinished, nil)
		}
		r.recordForHealthCheck(ctx, res)
	}
	return res
}

// execute runs the test function against d and concludes d from however
// the function ended.
func (r *Runner) execute(d *data.Data) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if st, ok := rec.(data.StopTest); ok && st.For(d) {
			return
		}
		if _, ok := rec.(data.StopTest); ok || d.Frozen() {
			panic(rec)
		}
		if _, ok := rec.(stopRun); ok {
			panic(rec)
		}
		origin, tb := panicOrigin(rec)
		d.SetTraceback(tb)
		d.Conclude(data.StatusInteresting, origin)
	}()

	err := r.fn(d)
	if d.Frozen() {
		return
	}
	if err != nil {
		d.SetTraceback(fmt.Sprintf("%+v", err))
		d.Conclude(data.StatusInteresting, data.OriginFromError(err, r.site))
		return
	}
	d.Freeze()
}

// panicOrigin buckets a panic by its value's type and the location that
// raised it.
func panicOrigin(v any) (data.Origin, string) {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	loc := "unknown"
	panicking := false
	for {
		f, more := frames.Next()
		switch {
		case f.Function == "runtime.gopanic":
			panicking = true
		case panicking && !strings.HasPrefix(f.Function, "runtime."):
			loc = fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			more = false
		}
		if !more {
			break
		}
	}
	return data.Origin(fmt.Sprintf("%T at %s", v, loc)), fmt.Sprintf("panic: %v\n\n%s", v, debug.Stack())
}

// recordBug opens or improves the bucket for res's origin.
func (r *Runner) recordBug(ctx context.Context, res *data.Result, calls int64) {
	key := res.Origin
	existing, ok := r.interesting[key]
	if ok && data.CompareBuffers(res.Buffer, existing.Buffer) >= 0 {
		return
	}

	if ok {
		r.budget.RecordShrink()
		r.metrics.bug(true)
		r.cache.Unpin(string(existing.Buffer))
		r.downgradeBuffer(ctx, existing.Buffer)
	} else {
		r.metrics.bug(false)
		if r.firstBugAt == 0 {
			r.firstBugAt = calls
		}
		r.lastBugAt = calls
	}

	r.saveBuffer(ctx, res.Buffer)
	r.interesting[key] = res
	r.cache.Pin(string(res.Buffer))
	delete(r.shrunk, key)
	r.health = nil
	r.tracer.TraceBug(ctx, res, !ok)
}

// noteCoverage keeps the simplest result seen for each event.
func (r *Runner) noteCoverage(ctx context.Context, res *data.Result) {
	for _, e := range res.Events {
		old, ok := r.covering[e]
		if ok && data.CompareBuffers(res.Buffer, old.Buffer) >= 0 {
			continue
		}
		r.covering[e] = res
		r.dbSave(ctx, database.CoveringKey(r.dbKey), res.Buffer)
		if ok && !r.stillCovering(old) {
			r.dbDelete(ctx, database.CoveringKey(r.dbKey), old.Buffer)
		}
	}
}

func (r *Runner) stillCovering(res *data.Result) bool {
	for _, c := range r.covering {
		if c == res {
			return true
		}
	}
	return false
}

func (r *Runner) hasDatabase() bool {
	return r.db != nil && len(r.dbKey) > 0
}

func (r *Runner) saveBuffer(ctx context.Context, buf []byte) {
	r.dbSave(ctx, r.dbKey, buf)
}

// downgradeBuffer demotes a replaced bug to the secondary corpus.
func (r *Runner) downgradeBuffer(ctx context.Context, buf []byte) {
	if !r.hasDatabase() {
		return
	}
	if err := r.db.Move(ctx, r.dbKey, database.SecondaryKey(r.dbKey), buf); err != nil {
		r.logger.Warn("corpus move failed", slog.String("error", err.Error()))
	}
}

func (r *Runner) dbSave(ctx context.Context, key, buf []byte) {
	if !r.hasDatabase() {
		return
	}
	if err := r.db.Save(ctx, key, buf); err != nil {
		r.logger.Warn("corpus save failed", slog.String("key", string(key)), slog.String("error", err.Error()))
	}
}

func (r *Runner) dbDelete(ctx context.Context, key, buf []byte) {
	if !r.hasDatabase() {
		return
	}
	if err := r.db.Delete(ctx, key, buf); err != nil {
		r.logger.Warn("corpus delete failed", slog.String("key", string(key)), slog.String("error", err.Error()))
	}
}

func (r *Runner) dbFetch(ctx context.Context, key []byte) [][]byte {
	values, err := r.db.Fetch(ctx, key)
	if err != nil {
		r.logger.Warn("corpus fetch failed", slog.String("key", string(key)), slog.String("error", err.Error()))
		return nil
	}
	return values
}

// sortBuffers orders buffers shortest first, then lexicographically.
func sortBuffers(bufs [][]byte) {
	sort.Slice(bufs, func(i, j int) bool { return data.CompareBuffers(bufs[i], bufs[j]) < 0 })
}
