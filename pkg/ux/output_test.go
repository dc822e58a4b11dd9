// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"
)

// captureOutput switches to level and returns buffers for both streams.
func captureOutput(t *testing.T, l PersonalityLevel) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prevLevel := GetPersonality()
	prevOut, prevErr := writers()
	var stdout, stderr bytes.Buffer
	SetPersonality(l)
	SetOutput(&stdout, &stderr)
	t.Cleanup(func() {
		SetPersonality(prevLevel)
		SetOutput(prevOut, prevErr)
	})
	return &stdout, &stderr
}

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		in   string
		want PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"MIN", PersonalityMinimal},
		{"quiet", PersonalityMachine},
		{"plain", PersonalityMachine},
		{"fancy", PersonalityFull},
	}
	for _, tt := range tests {
		if got := ParsePersonalityLevel(tt.in); got != tt.want {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitPersonality_Env(t *testing.T) {
	prev := GetPersonality()
	defer SetPersonality(prev)

	t.Setenv("CONJECTURE_PERSONALITY", "minimal")
	InitPersonality()
	if got := GetPersonality(); got != PersonalityMinimal {
		t.Errorf("GetPersonality() = %v, want minimal", got)
	}
}

func TestMachineOutput(t *testing.T) {
	stdout, stderr := captureOutput(t, PersonalityMachine)

	Title("ignored")
	Success("prop_sorted")
	Error("prop_sum")
	KeyValues("REPORT", []Field{{"calls", "12"}, {"exit", "finished"}})
	Summary(1, 1, 2)

	wantOut := "OK\tprop_sorted\nREPORT\tcalls=12\texit=finished\nSUMMARY\tpassed=1\tfailed=1\ttotal=2\n"
	if got := stdout.String(); got != wantOut {
		t.Errorf("stdout = %q, want %q", got, wantOut)
	}
	if got := stderr.String(); got != "FAIL\tprop_sum\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestFullOutputContainsText(t *testing.T) {
	stdout, _ := captureOutput(t, PersonalityFull)

	Box("Falsifying example", "00 7f")
	Success("passed")
	if !strings.Contains(stdout.String(), "Falsifying example") || !strings.Contains(stdout.String(), "passed") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestHexDump(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"empty", nil, "(empty)"},
		{"short", []byte{0, 0x7f}, "0000  00 7f"},
		{"wraps", bytes.Repeat([]byte{1}, 17), "0000 " + strings.Repeat(" 01", 16) + "\n0010  01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HexDump(tt.in); got != tt.want {
				t.Errorf("HexDump() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSpinner_NoProgressIsNoop(t *testing.T) {
	captureOutput(t, PersonalityMachine)
	s := NewSpinner("searching")
	s.Start()
	s.SetMessage("shrinking")
	s.Stop()
}
