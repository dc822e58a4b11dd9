// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package properties

import "errors"

var (
	// ErrNilTest is returned when registering a property without a test.
	ErrNilTest = errors.New("properties: test function must not be nil")

	// ErrEmptyName is returned when registering a property without a name.
	ErrEmptyName = errors.New("properties: name must not be empty")

	// ErrAlreadyRegistered is returned for a duplicate name.
	ErrAlreadyRegistered = errors.New("properties: already registered")

	// ErrNotFound is returned by Lookup for an unknown name.
	ErrNotFound = errors.New("properties: not found")
)

// Failures reported by the built-in properties. Each message is fixed so
// that every counterexample of one property lands in one bug bucket.
var (
	ErrSumTooLarge     = errors.New("sum exceeds limit")
	ErrDuplicate       = errors.New("duplicate element")
	ErrTooLarge        = errors.New("value too large")
	ErrRoundTrip       = errors.New("round trip mismatch")
	ErrNotSorted       = errors.New("result not sorted")
	ErrUnbalancedParen = errors.New("unbalanced parentheses")
)
