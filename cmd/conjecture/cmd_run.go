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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/conjecture/pkg/ux"
	"github.com/AleutianAI/conjecture/services/conjecture/database"
	"github.com/AleutianAI/conjecture/services/conjecture/engine"
	"github.com/AleutianAI/conjecture/services/conjecture/properties"
	"github.com/AleutianAI/conjecture/services/conjecture/telemetry"
)

type runFlags struct {
	parallel    int
	seed        int64
	maxExamples int
	timeout     time.Duration
	jsonOut     bool
}

// outcome is one property's search result.
type outcome struct {
	Property string         `json:"property"`
	Expected bool           `json:"expect_failure"`
	Report   *engine.Report `json:"report,omitempty"`
	Error    string         `json:"error,omitempty"`

	err error
}

// asExpected reports whether the search matched the property's
// expectation.
func (o outcome) asExpected() bool {
	if o.err != nil || o.Report == nil {
		return false
	}
	return o.Report.Failed() == o.Expected
}

func newRunCmd(a *app) *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run [property...]",
		Short: "Search properties for failing inputs",
		Long: `Run searches each named property (all of them by default) in its own
Runner. Properties run concurrently and share the example database.

A property "passes" when the search agrees with its expectation: a
property marked as failing must yield a bug, any other must not.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runProperties(cmd.Context(), cmd.OutOrStdout(), args, rf)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&rf.parallel, "parallel", "p", 4, "properties searched at once")
	f.Int64Var(&rf.seed, "seed", 0, "generation seed (0 uses the config seed)")
	f.IntVar(&rf.maxExamples, "max-examples", 0, "valid examples per property (0 uses the config)")
	f.DurationVar(&rf.timeout, "timeout", 0, "per-property time limit (0 uses the config)")
	f.BoolVar(&rf.jsonOut, "json", false, "print reports as JSON")
	f.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	return cmd
}

func (a *app) runProperties(ctx context.Context, out io.Writer, names []string, rf runFlags) error {
	props, err := a.registry.Select(names...)
	if err != nil {
		return err
	}
	cfg := a.config
	if rf.seed != 0 {
		cfg.Seed = rf.seed
	}
	if rf.maxExamples > 0 {
		cfg.MaxExamples = rf.maxExamples
	}
	if rf.timeout > 0 {
		cfg.Timeout = rf.timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.metricsAddr != "" {
		srv, err := a.serveMetrics(a.metricsAddr)
		if err != nil {
			return err
		}
		defer srv.Shutdown(context.Background())
	}

	outcomes, err := a.search(ctx, props, cfg, db, rf.parallel)
	if err != nil {
		return err
	}

	if rf.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcomes); err != nil {
			return fmt.Errorf("encode reports: %w", err)
		}
	} else {
		renderOutcomes(outcomes)
	}

	for _, o := range outcomes {
		if !o.asExpected() {
			return errUnexpectedOutcome
		}
	}
	return nil
}

// search runs every property in its own Runner, at most parallel at once.
// Per-property failures land in the outcome; only setup errors abort.
func (a *app) search(ctx context.Context, props []properties.Property, cfg engine.RunnerConfig, db database.Database, parallel int) ([]outcome, error) {
	outcomes := make([]outcome, len(props))
	var done atomic.Int32

	spin := ux.NewSpinner(fmt.Sprintf("searching %d properties", len(props)))
	spin.Start()
	defer spin.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i, p := range props {
		i, p := i, p
		g.Go(func() error {
			r, err := engine.NewRunner(p.Test,
				engine.WithConfig(cfg),
				engine.WithDatabase(db, []byte(p.Name)),
				engine.WithLogger(a.logger.Slog().With("property", p.Name)),
			)
			if err != nil {
				return fmt.Errorf("%s: %w", p.Name, err)
			}
			rep, err := r.Run(gctx)
			outcomes[i] = outcome{Property: p.Name, Expected: p.ExpectFailure, Report: rep, err: err}
			if err != nil {
				outcomes[i].Error = err.Error()
			}
			n := done.Add(1)
			spin.SetMessage(fmt.Sprintf("searched %d of %d properties", n, len(props)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// serveMetrics exposes /metrics until the returned server is shut down.
// The OTel Prometheus exporter and the engine's own counters share the
// default registry, so either handler serves both.
func (a *app) serveMetrics(addr string) (*http.Server, error) {
	handler := telemetry.MetricsHandler()
	if handler == nil {
		handler = promhttp.Handler()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Slog().Warn("metrics server stopped", "error", err)
		}
	}()
	ux.Info("metrics on http://" + ln.Addr().String() + "/metrics")
	return srv, nil
}
