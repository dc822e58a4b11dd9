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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/conjecture/services/conjecture/properties"
)

// runCLI executes args in machine mode and returns stdout and the error.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--personality=machine", "--log-level=error"}, args...)
	err := execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errUnexpectedOutcome, 1},
		{errors.Join(errUnexpectedOutcome, nil), 1},
		{errUnknownKind, 2},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestList(t *testing.T) {
	out, err := runCLI(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "PROPERTY\tname=small_integer\texpected=fails")
	assert.Contains(t, out, "PROPERTY\tname=float_lex_roundtrip\texpected=holds")
}

var indexField = regexp.MustCompile(`index=(\d+)`)

func TestCodec_IndexValueRoundTrip(t *testing.T) {
	tests := []struct {
		kind  string
		value string
		flags []string
	}{
		{"integer", "7", []string{"--min", "0", "--max", "10"}},
		{"integer", "-3", nil},
		{"boolean", "true", nil},
		{"bytes", "00ff", nil},
		{"string", "cab", []string{"--alphabet", "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.value, func(t *testing.T) {
			args := append([]string{"codec", "index", tt.kind}, tt.flags...)
			out, err := runCLI(t, append(args, "--", tt.value)...)
			require.NoError(t, err)
			m := indexField.FindStringSubmatch(out)
			require.Len(t, m, 2, "output %q", out)

			args = append([]string{"codec", "value", tt.kind}, tt.flags...)
			out, err = runCLI(t, append(args, "--", m[1])...)
			require.NoError(t, err)
			want := tt.value
			if tt.kind == "string" {
				want = `"` + tt.value + `"`
			}
			assert.Contains(t, out, "value="+want)
		})
	}
}

func TestCodec_FloatLex(t *testing.T) {
	out, err := runCLI(t, "codec", "float-lex", "1.5")
	require.NoError(t, err)
	assert.Contains(t, out, "float=1.5")
	assert.Contains(t, out, "decoded=1.5")
}

func TestCodec_UnknownKind(t *testing.T) {
	_, err := runCLI(t, "codec", "index", "complex", "1")
	assert.ErrorIs(t, err, errUnknownKind)
	assert.Equal(t, 2, exitCode(err))
}

func TestRun_UnknownProperty(t *testing.T) {
	_, err := runCLI(t, "run", "no_such_property", "--no-db")
	assert.ErrorIs(t, err, properties.ErrNotFound)
}

func TestRun_SaveShowReplayClear(t *testing.T) {
	db := filepath.Join(t.TempDir(), "examples")

	out, err := runCLI(t, "run", "small_integer", "--db", db, "--seed", "5", "--max-examples", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "OK\tsmall_integer: falsified as expected")
	assert.Contains(t, out, "SUMMARY\tpassed=1\tfailed=0\ttotal=1")

	out, err = runCLI(t, "db", "show", "small_integer", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "CORPUS\tcorpus=primary\tentries=1")

	out, err = runCLI(t, "replay", "small_integer", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "status=interesting")
	assert.Contains(t, out, "n = 500")

	out, err = runCLI(t, "db", "clear", "small_integer", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "OK\tremoved")

	_, err = runCLI(t, "replay", "small_integer", "--db", db)
	assert.Error(t, err, "nothing left to replay")
}

func TestRun_JSON(t *testing.T) {
	out, err := runCLI(t, "run", "distinct_digits", "sort_is_idempotent", "--no-db", "--json", "--seed", "3")
	require.NoError(t, err)

	var got []struct {
		Property string `json:"property"`
		Expected bool   `json:"expect_failure"`
		Report   struct {
			ExitReason string `json:"exit_reason"`
			Bugs       []struct {
				Origin string `json:"origin"`
			} `json:"bugs"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "distinct_digits", got[0].Property)
	require.Len(t, got[0].Report.Bugs, 1)
	assert.Contains(t, got[0].Report.Bugs[0].Origin, properties.ErrDuplicate.Error())
	assert.Empty(t, got[1].Report.Bugs)
}

func TestReplay_GivenBuffer(t *testing.T) {
	zeros := strings.Repeat("00", 32)
	out, err := runCLI(t, "replay", "safe_division", zeros, "--no-db", "--traceback")
	require.NoError(t, err)
	assert.Contains(t, out, "status=interesting")
	assert.Contains(t, out, "a = 0, b = 0")
	assert.Contains(t, out, "integer divide by zero")
}

func TestReplay_BadHex(t *testing.T) {
	_, err := runCLI(t, "replay", "safe_division", "zz", "--no-db")
	assert.Error(t, err)
}

func TestRun_ServesMetrics(t *testing.T) {
	out, err := runCLI(t, "run", "sort_is_idempotent", "--no-db", "--max-examples", "20", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, out, "metrics on http://127.0.0.1:")
}
