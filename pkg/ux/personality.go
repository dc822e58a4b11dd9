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
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel controls how rich terminal output is.
type PersonalityLevel string

const (
	// PersonalityFull uses colors, icons and boxes.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityMinimal uses icons without colored text or boxes.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine prints tab-separated plain lines for scripts.
	PersonalityMachine PersonalityLevel = "machine"
)

var (
	level  PersonalityLevel = PersonalityFull
	out    io.Writer        = os.Stdout
	errOut io.Writer        = os.Stderr
	mu     sync.RWMutex
)

// GetPersonality returns the current level.
func GetPersonality() PersonalityLevel {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// SetPersonality sets the level.
func SetPersonality(l PersonalityLevel) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput redirects standard and error output. Nil leaves a stream
// unchanged.
func SetOutput(stdout, stderr io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if stdout != nil {
		out = stdout
	}
	if stderr != nil {
		errOut = stderr
	}
}

func writers() (io.Writer, io.Writer) {
	mu.RLock()
	defer mu.RUnlock()
	return out, errOut
}

// ParsePersonalityLevel maps a flag value to a level. Unknown values give
// PersonalityFull.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(s) {
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q", "plain":
		return PersonalityMachine
	default:
		return PersonalityFull
	}
}

// InitPersonality picks a level from CONJECTURE_PERSONALITY, falling back
// to machine output when stdout is not a terminal.
func InitPersonality() {
	if env := os.Getenv("CONJECTURE_PERSONALITY"); env != "" {
		SetPersonality(ParsePersonalityLevel(env))
		return
	}
	if !isTerminal(os.Stdout) {
		SetPersonality(PersonalityMachine)
		return
	}
	SetPersonality(PersonalityFull)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ShouldShowProgress reports whether animated progress may be drawn.
func ShouldShowProgress() bool {
	return GetPersonality() != PersonalityMachine && isTerminal(os.Stderr)
}
