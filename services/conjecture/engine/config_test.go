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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRunnerConfig_Valid(t *testing.T) {
	cfg := DefaultRunnerConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.EffectiveMaxIterations())
	for _, p := range AllPhases() {
		assert.True(t, cfg.PhaseEnabled(p), p)
	}
}

func TestLoadRunnerConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conjecture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_examples: 250
seed: 42
phases: [generate, shrink]
suppress_health_check: [too_slow]
timeout: 30s
`), 0o600))

	cfg, err := LoadRunnerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.MaxExamples)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.False(t, cfg.PhaseEnabled(PhaseReuse))
	assert.True(t, cfg.Suppressed(HealthTooSlow))
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 2500, cfg.EffectiveMaxIterations())
}

func TestLoadRunnerConfig_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conjecture.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_shrinks": 7, "report_multiple_bugs": false}`), 0o600))

	cfg, err := LoadRunnerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxShrinks)
	assert.False(t, cfg.ReportMultipleBugs)
}

func TestLoadRunnerConfig_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadRunnerConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRunnerConfig().MaxExamples, cfg.MaxExamples)
}

func TestLoadRunnerConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CONJECTURE_MAX_EXAMPLES", "12")
	t.Setenv("CONJECTURE_PHASES", "generate")
	t.Setenv("CONJECTURE_SUPPRESS_HEALTH_CHECK", "too_slow, hung_test")
	t.Setenv("CONJECTURE_HUNG_TEST_LIMIT", "1m")
	t.Setenv("CONJECTURE_METRICS_ENABLED", "true")
	t.Setenv("CONJECTURE_CACHE_SIZE", "not-a-number")

	cfg, err := LoadRunnerConfig("")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.MaxExamples)
	assert.Equal(t, []Phase{PhaseGenerate}, cfg.Phases)
	assert.Equal(t, []HealthCheck{HealthTooSlow, HealthHungTest}, cfg.SuppressHealthCheck)
	assert.Equal(t, time.Minute, cfg.HungTestLimit)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.Equal(t, DefaultRunnerConfig().CacheSize, cfg.CacheSize, "unparsable values are ignored")
}

func TestRunnerConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunnerConfig)
	}{
		{"zero max examples", func(c *RunnerConfig) { c.MaxExamples = 0 }},
		{"negative iterations", func(c *RunnerConfig) { c.MaxIterations = -1 }},
		{"zero shrinks", func(c *RunnerConfig) { c.MaxShrinks = 0 }},
		{"buffer too large", func(c *RunnerConfig) { c.BufferSize = 1 << 20 }},
		{"zero cache", func(c *RunnerConfig) { c.CacheSize = 0 }},
		{"unknown phase", func(c *RunnerConfig) { c.Phases = []Phase{"explain"} }},
		{"unknown health check", func(c *RunnerConfig) { c.SuppressHealthCheck = []HealthCheck{"nope"} }},
		{"negative timeout", func(c *RunnerConfig) { c.Timeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunnerConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
