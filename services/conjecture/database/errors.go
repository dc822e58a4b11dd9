// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package database

import "errors"

var (
	// ErrClosed is returned by every operation on a closed database.
	ErrClosed = errors.New("database: closed")

	// ErrEmptyKey is returned when a corpus key is empty.
	ErrEmptyKey = errors.New("database: empty key")
)
