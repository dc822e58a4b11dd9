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

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storage "github.com/AleutianAI/conjecture/services/conjecture/storage/badger"
)

// implementations returns a fresh instance of every Database for a
// contract test.
func implementations(t *testing.T) map[string]Database {
	t.Helper()
	bdb, err := OpenBadger(storage.InMemoryConfig())
	require.NoError(t, err)
	return map[string]Database{
		"memory": NewMemory(),
		"badger": bdb,
	}
}

func TestDatabase_Contract(t *testing.T) {
	ctx := context.Background()
	for name, db := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			key := []byte("prop")

			got, err := db.Fetch(ctx, key)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, db.Save(ctx, key, []byte{2}))
			require.NoError(t, db.Save(ctx, key, []byte{1, 0}))
			require.NoError(t, db.Save(ctx, key, []byte{2}))
			require.NoError(t, db.Save(ctx, key, []byte{}))

			got, err = db.Fetch(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, [][]byte{{}, {1, 0}, {2}}, got, "set semantics, ascending order")

			require.NoError(t, db.Delete(ctx, key, []byte{2}))
			require.NoError(t, db.Delete(ctx, key, []byte{9}))
			got, _ = db.Fetch(ctx, key)
			assert.Equal(t, [][]byte{{}, {1, 0}}, got)

			sec := SecondaryKey(key)
			require.NoError(t, db.Move(ctx, key, sec, []byte{1, 0}))
			got, _ = db.Fetch(ctx, key)
			assert.Equal(t, [][]byte{{}}, got)
			got, _ = db.Fetch(ctx, sec)
			assert.Equal(t, [][]byte{{1, 0}}, got)
		})
	}
}

// Keys that prefix each other stay separate.
func TestDatabase_KeyIsolation(t *testing.T) {
	ctx := context.Background()
	for name, db := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			require.NoError(t, db.Save(ctx, []byte("a"), []byte("bc")))
			require.NoError(t, db.Save(ctx, []byte("ab"), []byte("c")))

			got, err := db.Fetch(ctx, []byte("a"))
			require.NoError(t, err)
			assert.Equal(t, [][]byte{[]byte("bc")}, got)

			got, err = db.Fetch(ctx, []byte("ab"))
			require.NoError(t, err)
			assert.Equal(t, [][]byte{[]byte("c")}, got)
		})
	}
}

func TestDatabase_Closed(t *testing.T) {
	ctx := context.Background()
	for name, db := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Close())
			assert.True(t, errors.Is(db.Close(), ErrClosed))
			assert.True(t, errors.Is(db.Save(ctx, []byte("k"), nil), ErrClosed))
			_, err := db.Fetch(ctx, []byte("k"))
			assert.True(t, errors.Is(err, ErrClosed))
			assert.True(t, errors.Is(db.Delete(ctx, []byte("k"), nil), ErrClosed))
			assert.True(t, errors.Is(db.Move(ctx, []byte("k"), []byte("j"), nil), ErrClosed))
		})
	}
}

func TestDatabase_EmptyKey(t *testing.T) {
	for name, db := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			err := db.Save(context.Background(), nil, []byte{1})
			assert.True(t, errors.Is(err, ErrEmptyKey))
		})
	}
}

func TestDatabase_Concurrent(t *testing.T) {
	ctx := context.Background()
	for name, db := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 20; i++ {
						key := []byte(fmt.Sprintf("k%d", i%3))
						if err := db.Save(ctx, key, []byte{byte(g), byte(i)}); err != nil {
							t.Errorf("save: %v", err)
						}
						if _, err := db.Fetch(ctx, key); err != nil {
							t.Errorf("fetch: %v", err)
						}
					}
				}(g)
			}
			wg.Wait()

			total := 0
			for i := 0; i < 3; i++ {
				got, err := db.Fetch(ctx, []byte(fmt.Sprintf("k%d", i)))
				require.NoError(t, err)
				total += len(got)
			}
			assert.Equal(t, 8*20, total)
		})
	}
}

func TestCorpusKeys(t *testing.T) {
	key := []byte("test_x")
	assert.Equal(t, "test_x.secondary", string(SecondaryKey(key)))
	assert.Equal(t, "test_x.coverage", string(CoveringKey(key)))
	assert.Equal(t, "test_x", string(key), "derived keys do not alias the base")
}

func TestDatabase_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, db := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			assert.ErrorIs(t, db.Save(ctx, []byte("k"), []byte{1}), context.Canceled)
		})
	}
}

// A Badger corpus survives reopening from disk.
func TestBadger_Persists(t *testing.T) {
	ctx := context.Background()
	cfg := storage.DefaultConfig(t.TempDir())
	cfg.GCInterval = 0

	db, err := OpenBadger(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Save(ctx, []byte("k"), []byte{7, 7}))
	require.NoError(t, db.Close())

	db, err = OpenBadger(cfg)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Fetch(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{7, 7}}, got)
}
