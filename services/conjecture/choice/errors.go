// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package choice

import "errors"

var (
	// ErrChoiceTooLarge is returned when decoding an index would produce a
	// collection at least BufferSize elements long. Callers convert it into
	// an overrun.
	ErrChoiceTooLarge = errors.New("choice: decoded collection exceeds buffer size")

	// ErrIndexOutOfRange is returned when an index has no value under the
	// given constraints.
	ErrIndexOutOfRange = errors.New("choice: index out of range")

	// ErrValueOutOfRange is returned when a value does not satisfy the
	// constraints it is being indexed under.
	ErrValueOutOfRange = errors.New("choice: value out of range")

	// ErrKindMismatch is returned when a value's Go type does not match the
	// kind of its constraints.
	ErrKindMismatch = errors.New("choice: value does not match constraint kind")
)
