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
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conjecture/pkg/logging"
	"github.com/AleutianAI/conjecture/pkg/ux"
	"github.com/AleutianAI/conjecture/services/conjecture/database"
	"github.com/AleutianAI/conjecture/services/conjecture/engine"
	"github.com/AleutianAI/conjecture/services/conjecture/properties"
	storage "github.com/AleutianAI/conjecture/services/conjecture/storage/badger"
	"github.com/AleutianAI/conjecture/services/conjecture/telemetry"
)

// errUnexpectedOutcome is returned when a property found a bug it should
// not have, or missed one it should have.
var errUnexpectedOutcome = errors.New("unexpected property outcome")

// app carries global flags and what PersistentPreRunE builds from them.
type app struct {
	configPath  string
	logLevel    string
	logJSON     bool
	logDir      string
	personality string
	dbPath      string
	noDB        bool
	metricsAddr string

	config   engine.RunnerConfig
	logger   *logging.Logger
	registry *properties.Registry
	shutdown func(context.Context) error
}

// execute runs the command line in args and releases what setup built,
// whether or not the command succeeded.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root, a := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.teardown(context.WithoutCancel(ctx)))
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{registry: properties.Builtin()}

	root := &cobra.Command{
		Use:   "conjecture",
		Short: "Search properties for failing inputs and shrink them",
		Long: `conjecture drives byte-level property search: it generates inputs,
records how each test consumed them, and minimizes failures to a
canonical simplest reproduction.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "runner config file (YAML or JSON)")
	f.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	f.BoolVar(&a.logJSON, "log-json", false, "log JSON to stderr")
	f.StringVar(&a.logDir, "log-dir", "", "also append JSON logs to a daily file in this directory")
	f.StringVar(&a.personality, "personality", "", "output style: full, minimal, machine")
	f.StringVar(&a.dbPath, "db", ".conjecture/examples", "example database directory")
	f.BoolVar(&a.noDB, "no-db", false, "keep the example database in memory")

	root.AddCommand(
		newListCmd(a),
		newRunCmd(a),
		newReplayCmd(a),
		newDBCmd(a),
		newCodecCmd(a),
	)
	return root, a
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if a.personality != "" {
		ux.SetPersonality(ux.ParsePersonalityLevel(a.personality))
	} else {
		ux.InitPersonality()
	}
	ux.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())

	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	a.logger, err = logging.New(logging.Config{
		Level:  level,
		JSON:   a.logJSON,
		LogDir: a.logDir,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	slog.SetDefault(a.logger.Slog())

	a.config, err = engine.LoadRunnerConfig(a.configPath)
	if err != nil {
		return err
	}

	tcfg := telemetry.DefaultConfig()
	if a.metricsAddr != "" {
		a.config.Observability.MetricsEnabled = true
		if tcfg.MetricExporter == telemetry.ExporterNone {
			tcfg.MetricExporter = telemetry.ExporterPrometheus
		}
	}
	if tcfg.TraceExporter != telemetry.ExporterNone {
		a.config.Observability.TracingEnabled = true
	}
	a.shutdown, err = telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
		a.shutdown = nil
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// openDB opens the example database the flags select.
func (a *app) openDB() (database.Database, error) {
	if a.noDB {
		return database.NewMemory(), nil
	}
	cfg := storage.DefaultConfig(a.dbPath)
	cfg.Logger = a.logger.Slog()
	return database.OpenBadger(cfg, database.WithLogger(a.logger.Slog()))
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in properties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range a.registry.Names() {
				p, err := a.registry.Lookup(name)
				if err != nil {
					return err
				}
				expect := "holds"
				if p.ExpectFailure {
					expect = "fails"
				}
				ux.Title(p.Name)
				ux.KeyValues("PROPERTY", []ux.Field{
					{Key: "name", Value: p.Name},
					{Key: "expected", Value: expect},
					{Key: "description", Value: p.Description},
				})
			}
			return nil
		},
	}
}
