// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command conjecture searches properties for failing inputs and shrinks
// what it finds to the simplest reproduction.
//
// Usage:
//
//	conjecture list
//	conjecture run                       # every built-in property
//	conjecture run small_integer --seed 3 --max-examples 500
//	conjecture run --metrics-addr :9464  # serve /metrics while searching
//	conjecture replay small_integer      # re-run the saved failures
//	conjecture db show small_integer
//	conjecture codec index integer 7 --min 0 --max 10
//
// Failures are saved under --db (a Badger directory) and replayed first on
// the next run, so a fixed bug is confirmed fixed before new inputs are
// generated. --no-db keeps the corpus in memory.
//
// Exit status is 0 when every property behaved as expected, 1 when one
// did not, and 2 for usage or infrastructure errors.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/AleutianAI/conjecture/pkg/ux"
)

func main() {
	err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	if err == nil {
		return
	}
	if !errors.Is(err, errUnexpectedOutcome) {
		ux.Error(err.Error())
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUnexpectedOutcome):
		return 1
	default:
		return 2
	}
}
