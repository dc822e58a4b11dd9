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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

var meter = otel.Meter("conjecture.engine")

// OTel instruments, exported through whichever meter provider
// telemetry.Init installed.
var (
	callsTotal     metric.Int64Counter
	shrinkDuration metric.Float64Histogram
	runDuration    metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// Prometheus counters for outcomes an operator alerts on.
var (
	// exitReasons counts finished runs.
	// Labels: reason
	exitReasons = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conjecture",
		Subsystem: "runner",
		Name:      "exits_total",
		Help:      "Completed runs by exit reason",
	}, []string{"reason"})

	// healthChecksFailed counts aborted runs.
	// Labels: check
	healthChecksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conjecture",
		Subsystem: "runner",
		Name:      "health_checks_failed_total",
		Help:      "Runs aborted by a health check",
	}, []string{"check"})

	// bugsFound counts distinct failures, one per bucket.
	bugsFound = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "conjecture",
		Subsystem: "runner",
		Name:      "bugs_found_total",
		Help:      "Distinct interesting origins discovered",
	})

	// shrinksTotal counts bug replacements by a simpler example.
	shrinksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "conjecture",
		Subsystem: "runner",
		Name:      "shrinks_total",
		Help:      "Times a bug was replaced by a simpler example",
	})
)

// initMetrics initializes the OTel instruments. Safe to call multiple
// times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		callsTotal, err = meter.Int64Counter(
			"conjecture_test_calls_total",
			metric.WithDescription("Test function calls by status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		shrinkDuration, err = meter.Float64Histogram(
			"conjecture_shrink_duration_seconds",
			metric.WithDescription("Time spent shrinking one bug"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runDuration, err = meter.Float64Histogram(
			"conjecture_run_duration_seconds",
			metric.WithDescription("Duration of a whole run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

// runMetrics records for one Runner, or does nothing when disabled.
type runMetrics struct {
	enabled bool
}

func newRunMetrics(enabled bool) runMetrics {
	if enabled && initMetrics() != nil {
		enabled = false
	}
	return runMetrics{enabled: enabled}
}

func (m runMetrics) call(ctx context.Context, status data.Status) {
	if !m.enabled {
		return
	}
	callsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
}

func (m runMetrics) bug(improved bool) {
	if !m.enabled {
		return
	}
	if improved {
		shrinksTotal.Inc()
		return
	}
	bugsFound.Inc()
}

func (m runMetrics) shrink(ctx context.Context, d time.Duration) {
	if !m.enabled {
		return
	}
	shrinkDuration.Record(ctx, d.Seconds())
}

func (m runMetrics) healthCheck(check HealthCheck) {
	if !m.enabled {
		return
	}
	healthChecksFailed.WithLabelValues(string(check)).Inc()
}

func (m runMetrics) exit(ctx context.Context, reason ExitReason, d time.Duration) {
	if !m.enabled {
		return
	}
	exitReasons.WithLabelValues(string(reason)).Inc()
	runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("reason", string(reason))))
}
