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
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/conjecture/services/conjecture/choice"
)

// Phase is one stage of a run.
type Phase string

const (
	// PhaseReuse replays corpus entries from the database.
	PhaseReuse Phase = "reuse"

	// PhaseGenerate explores new inputs.
	PhaseGenerate Phase = "generate"

	// PhaseShrink minimizes every bug found.
	PhaseShrink Phase = "shrink"
)

// AllPhases lists the phases in the order a run executes them.
func AllPhases() []Phase {
	return []Phase{PhaseReuse, PhaseGenerate, PhaseShrink}
}

// ObservabilityConfig toggles tracing and metrics for a Runner.
type ObservabilityConfig struct {
	TracingEnabled bool `json:"tracing_enabled" yaml:"tracing_enabled"`
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`
}

// RunnerConfig controls one search.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// passing it to NewRunner.
type RunnerConfig struct {
	// MaxExamples is the number of valid examples after which a run with
	// no bugs stops.
	MaxExamples int `json:"max_examples" yaml:"max_examples"`

	// MaxIterations caps test function calls when no bug is found. Zero
	// means max(10*MaxExamples, 1000).
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// MaxShrinks caps how many times a bug may be replaced by a simpler
	// example.
	MaxShrinks int `json:"max_shrinks" yaml:"max_shrinks"`

	// BufferSize is the byte budget of a generated run.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// CacheSize bounds the result cache.
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// Phases lists the enabled phases.
	Phases []Phase `json:"phases" yaml:"phases"`

	// SuppressHealthCheck lists checks that must never abort a run.
	SuppressHealthCheck []HealthCheck `json:"suppress_health_check" yaml:"suppress_health_check"`

	// Seed seeds generation. Zero picks a seed from the clock.
	Seed int64 `json:"seed" yaml:"seed"`

	// ReportMultipleBugs keeps generating for a while after the first bug
	// and shrinks every bug found. When false the run stops at the first
	// bug and reports only one.
	ReportMultipleBugs bool `json:"report_multiple_bugs" yaml:"report_multiple_bugs"`

	// HungTestLimit fails the hung_test health check once a run has taken
	// this long. Zero disables it.
	HungTestLimit time.Duration `json:"hung_test_limit" yaml:"hung_test_limit"`

	// Timeout ends a run with the timeout exit reason. Zero disables it.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// DefaultRunnerConfig returns the defaults the engine is tuned for.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxExamples:        100,
		MaxShrinks:         500,
		BufferSize:         choice.BufferSize,
		CacheSize:          10000,
		Phases:             AllPhases(),
		ReportMultipleBugs: true,
		HungTestLimit:      5 * time.Minute,
	}
}

// LoadRunnerConfig loads a configuration file over the defaults, applies
// CONJECTURE_* environment overrides and validates the result.
//
// Inputs:
//   - path: YAML or JSON file. Empty, or a file that does not exist, keeps
//     the defaults.
//
// Outputs:
//   - RunnerConfig: The loaded configuration.
//   - error: Non-nil if the file cannot be parsed or the result is invalid.
func LoadRunnerConfig(path string) (RunnerConfig, error) {
	cfg := DefaultRunnerConfig()

	if path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadConfigFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *RunnerConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		if jsonErr := json.Unmarshal(raw, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadConfigFromEnv(cfg *RunnerConfig) {
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				*dst = i
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	envDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	envInt("CONJECTURE_MAX_EXAMPLES", &cfg.MaxExamples)
	envInt("CONJECTURE_MAX_ITERATIONS", &cfg.MaxIterations)
	envInt("CONJECTURE_MAX_SHRINKS", &cfg.MaxShrinks)
	envInt("CONJECTURE_BUFFER_SIZE", &cfg.BufferSize)
	envInt("CONJECTURE_CACHE_SIZE", &cfg.CacheSize)
	if v := os.Getenv("CONJECTURE_SEED"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = i
		}
	}
	envBool("CONJECTURE_REPORT_MULTIPLE_BUGS", &cfg.ReportMultipleBugs)
	envDuration("CONJECTURE_HUNG_TEST_LIMIT", &cfg.HungTestLimit)
	envDuration("CONJECTURE_TIMEOUT", &cfg.Timeout)
	envBool("CONJECTURE_TRACING_ENABLED", &cfg.Observability.TracingEnabled)
	envBool("CONJECTURE_METRICS_ENABLED", &cfg.Observability.MetricsEnabled)

	if v, ok := os.LookupEnv("CONJECTURE_PHASES"); ok {
		cfg.Phases = nil
		for _, p := range splitList(v) {
			cfg.Phases = append(cfg.Phases, Phase(p))
		}
	}
	if v, ok := os.LookupEnv("CONJECTURE_SUPPRESS_HEALTH_CHECK"); ok {
		cfg.SuppressHealthCheck = nil
		for _, h := range splitList(v) {
			cfg.SuppressHealthCheck = append(cfg.SuppressHealthCheck, HealthCheck(h))
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that the configuration is usable.
//
// Outputs:
//   - error: Wraps ErrInvalidConfig naming the first bad field.
func (c RunnerConfig) Validate() error {
	if c.MaxExamples < 1 {
		return fmt.Errorf("%w: max_examples must be >= 1", ErrInvalidConfig)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("%w: max_iterations must be >= 0", ErrInvalidConfig)
	}
	if c.MaxShrinks < 1 {
		return fmt.Errorf("%w: max_shrinks must be >= 1", ErrInvalidConfig)
	}
	if c.BufferSize < 1 || c.BufferSize > choice.BufferSize {
		return fmt.Errorf("%w: buffer_size must be between 1 and %d", ErrInvalidConfig, choice.BufferSize)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("%w: cache_size must be >= 1", ErrInvalidConfig)
	}
	for _, p := range c.Phases {
		if !slices.Contains(AllPhases(), p) {
			return fmt.Errorf("%w: unknown phase %q", ErrInvalidConfig, p)
		}
	}
	for _, h := range c.SuppressHealthCheck {
		if !slices.Contains(AllHealthChecks(), h) {
			return fmt.Errorf("%w: unknown health check %q", ErrInvalidConfig, h)
		}
	}
	if c.HungTestLimit < 0 {
		return fmt.Errorf("%w: hung_test_limit must be >= 0", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// PhaseEnabled reports whether p runs.
func (c RunnerConfig) PhaseEnabled(p Phase) bool {
	return slices.Contains(c.Phases, p)
}

// Suppressed reports whether h is disabled.
func (c RunnerConfig) Suppressed(h HealthCheck) bool {
	return slices.Contains(c.SuppressHealthCheck, h)
}

// EffectiveMaxIterations resolves a zero MaxIterations.
func (c RunnerConfig) EffectiveMaxIterations() int {
	if c.MaxIterations > 0 {
		return c.MaxIterations
	}
	return max(c.MaxExamples*10, 1000)
}

// ToBudgetConfig converts the limits a Budget enforces.
func (c RunnerConfig) ToBudgetConfig() BudgetConfig {
	return BudgetConfig{
		MaxExamples:   c.MaxExamples,
		MaxIterations: c.EffectiveMaxIterations(),
		MaxShrinks:    c.MaxShrinks,
		TimeLimit:     c.Timeout,
	}
}
