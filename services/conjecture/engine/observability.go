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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

const engineTracerName = "conjecture.engine"

// Tracer provides OpenTelemetry tracing for runs.
//
// Thread Safety: Safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewTracer creates a tracer. A nil logger uses slog.Default().
func NewTracer(logger *slog.Logger, config ObservabilityConfig) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{
		tracer:  otel.Tracer(engineTracerName),
		logger:  logger,
		enabled: config.TracingEnabled,
	}
}

// StartRun starts the span covering a whole run.
//
// Inputs:
//   - ctx: Parent context.
//   - runID: The run's identifier.
//   - config: The run's configuration.
//
// Outputs:
//   - context.Context: Context with span.
//   - trace.Span: The created span (a no-op span if tracing is disabled).
func (t *Tracer) StartRun(ctx context.Context, runID string, config RunnerConfig) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	return t.tracer.Start(ctx, "conjecture.run",
		trace.WithAttributes(
			attribute.String("conjecture.run_id", runID),
			attribute.Int("conjecture.max_examples", config.MaxExamples),
			attribute.Int("conjecture.max_iterations", config.EffectiveMaxIterations()),
			attribute.Int("conjecture.buffer_size", config.BufferSize),
			attribute.Int64("conjecture.seed", config.Seed),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndRun completes the run span.
//
// Inputs:
//   - span: The span to end.
//   - report: The run's report (can be nil if the run aborted).
//   - err: Error if the run failed.
func (t *Tracer) EndRun(span trace.Span, report *Report, err error) {
	if span == nil {
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if report != nil {
		span.SetAttributes(
			attribute.String("conjecture.exit_reason", string(report.ExitReason)),
			attribute.Int("conjecture.calls", report.Calls),
			attribute.Int("conjecture.valid_examples", report.ValidExamples),
			attribute.Int("conjecture.shrinks", report.Shrinks),
			attribute.Int("conjecture.bugs", len(report.Bugs)),
		)
	}
	span.End()
}

// StartPhase starts a span for one phase.
func (t *Tracer) StartPhase(ctx context.Context, phase Phase) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "conjecture.phase."+string(phase),
		trace.WithAttributes(attribute.String("conjecture.phase", string(phase))),
	)
}

// EndPhase completes a phase span with the calls it made.
func (t *Tracer) EndPhase(span trace.Span, calls int64) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Int64("conjecture.phase.calls", calls))
	span.End()
}

// TraceBug records a new or improved bug on the current span.
//
// Inputs:
//   - ctx: Context with span.
//   - r: The interesting result.
//   - isNew: True if r opened a new bucket.
func (t *Tracer) TraceBug(ctx context.Context, r *data.Result, isNew bool) {
	span := trace.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent("bug",
			trace.WithAttributes(
				attribute.String("origin", string(r.Origin)),
				attribute.Int("bytes", len(r.Buffer)),
				attribute.Bool("new", isNew),
			),
		)
	}

	if isNew {
		LoggerWithTrace(ctx, t.logger).Info("new bug found",
			slog.String("origin", string(r.Origin)),
			slog.Int("bytes", len(r.Buffer)),
		)
	}
}

// TraceHealthCheck records a failed health check.
func (t *Tracer) TraceHealthCheck(ctx context.Context, err *HealthCheckError) {
	span := trace.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent("health_check_failed",
			trace.WithAttributes(
				attribute.String("check", string(err.Check)),
				attribute.String("message", err.Message),
			),
		)
	}

	LoggerWithTrace(ctx, t.logger).Warn("health check failed",
		slog.String("check", string(err.Check)),
		slog.String("message", err.Message),
	)
}

// LoggerWithTrace returns a logger with trace context.
//
// Inputs:
//   - ctx: Context that may contain trace information.
//   - logger: Base logger.
//
// Outputs:
//   - *slog.Logger: Logger with trace_id and span_id if available.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
