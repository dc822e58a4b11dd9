// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package data

import (
	"errors"
	"fmt"
)

var (
	// ErrFrozen is the panic value raised when a concluded record is drawn
	// from or concluded again. It signals a programming error in the caller.
	ErrFrozen = errors.New("data: operation on frozen record")

	// ErrMissingOrigin is the panic value raised when a record is marked
	// interesting without an origin.
	ErrMissingOrigin = errors.New("data: interesting status requires an origin")

	// ErrTooManyBits is the panic value raised when DrawBits is asked for
	// more than 64 bits.
	ErrTooManyBits = errors.New("data: draw_bits supports at most 64 bits")
)

// StopTest is the panic value used to unwind out of a test function once
// its record has concluded. Only the driver owning that record may
// recover it; drivers check ownership with For, since IDs are only
// unique per driver.
type StopTest struct {
	ID     uint64
	record *Data
}

// For reports whether s was raised by d.
func (s StopTest) For(d *Data) bool {
	return d != nil && s.record == d
}

// Error implements error so the value reads sensibly if it escapes.
func (s StopTest) Error() string {
	return fmt.Sprintf("data: stop test %d", s.ID)
}

// frozenError wraps ErrFrozen with the operation that was attempted.
func frozenError(op string) error {
	return fmt.Errorf("%w: %s", ErrFrozen, op)
}
