// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package database stores example corpora: for each key, a set of buffers
// worth replaying on the next run.
//
// A runner uses three corpora per test key. The primary corpus holds the
// best known failure for every distinct bug. The secondary corpus holds
// failures that were superseded by simpler ones, kept because they may
// still reproduce something the primary misses. The covering corpus holds
// one buffer per observed event.
package database

import (
	"context"
	"sort"
)

// Database is a map from keys to sets of byte values.
//
// Thread Safety: Implementations must be safe for concurrent use; several
// runners may share one database.
type Database interface {
	// Save adds value to the set under key. Saving an existing value is a
	// no-op.
	Save(ctx context.Context, key, value []byte) error

	// Fetch returns every value under key in ascending byte order.
	Fetch(ctx context.Context, key []byte) ([][]byte, error)

	// Delete removes value from the set under key. Deleting a missing
	// value is a no-op.
	Delete(ctx context.Context, key, value []byte) error

	// Move deletes value from src and saves it under dst.
	Move(ctx context.Context, src, dst, value []byte) error

	// Close releases resources. Later calls return ErrClosed.
	Close() error
}

// SecondaryKey is the corpus of superseded failures for key.
func SecondaryKey(key []byte) []byte {
	return suffixed(key, ".secondary")
}

// CoveringKey is the corpus of event-covering buffers for key.
func CoveringKey(key []byte) []byte {
	return suffixed(key, ".coverage")
}

func suffixed(key []byte, suffix string) []byte {
	out := make([]byte, 0, len(key)+len(suffix))
	out = append(out, key...)
	return append(out, suffix...)
}

// sortValues orders values the way Fetch promises.
func sortValues(values [][]byte) [][]byte {
	sort.Slice(values, func(i, j int) bool {
		return string(values[i]) < string(values[j])
	})
	return values
}
