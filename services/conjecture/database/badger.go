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
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/singleflight"

	storage "github.com/AleutianAI/conjecture/services/conjecture/storage/badger"
)

// Badger is a Database persisted in BadgerDB.
//
// Description:
//
//	Each (key, value) pair is one Badger key: uvarint(len(key)) || key ||
//	value, with an empty Badger value. The length prefix keeps the corpus
//	for "a" from matching a prefix scan for "ab". Concurrent Fetches of the
//	same key share one scan.
//
// Thread Safety: Safe for concurrent use.
type Badger struct {
	db     *storage.DB
	owned  bool
	closed atomic.Bool
	group  singleflight.Group
	logger *slog.Logger
}

// BadgerOption configures a Badger database.
type BadgerOption func(*Badger)

// WithLogger sets the logger used for corpus writes.
func WithLogger(logger *slog.Logger) BadgerOption {
	return func(b *Badger) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBadger wraps an open database. The caller keeps ownership of db.
func NewBadger(db *storage.DB, opts ...BadgerOption) *Badger {
	b := &Badger{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OpenBadger opens a database from cfg and closes it on Close.
func OpenBadger(cfg storage.Config, opts ...BadgerOption) (*Badger, error) {
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open corpus database: %w", err)
	}
	b := NewBadger(db, opts...)
	b.owned = true
	return b, nil
}

func keyPrefix(key []byte) []byte {
	out := binary.AppendUvarint(make([]byte, 0, len(key)+binary.MaxVarintLen64), uint64(len(key)))
	return append(out, key...)
}

func entryKey(key, value []byte) []byte {
	return append(keyPrefix(key), value...)
}

func (b *Badger) Save(ctx context.Context, key, value []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	err := b.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(entryKey(key, value), nil)
	})
	if err != nil {
		return fmt.Errorf("save to %q: %w", key, err)
	}
	b.logger.Debug("corpus save", slog.String("key", string(key)), slog.Int("bytes", len(value)))
	return nil
}

func (b *Badger) Fetch(ctx context.Context, key []byte) ([][]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	v, err, _ := b.group.Do(string(key), func() (any, error) {
		return b.scan(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	// Shared results must not alias between callers.
	shared := v.([][]byte)
	out := make([][]byte, len(shared))
	for i, s := range shared {
		out[i] = bytes.Clone(s)
	}
	return out, nil
}

func (b *Badger) scan(ctx context.Context, key []byte) ([][]byte, error) {
	prefix := keyPrefix(key)
	var out [][]byte
	err := b.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().Key()
			out = append(out, bytes.Clone(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", key, err)
	}
	if out == nil {
		out = [][]byte{}
	}
	return out, nil
}

func (b *Badger) Delete(ctx context.Context, key, value []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	err := b.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(entryKey(key, value))
	})
	if err != nil {
		return fmt.Errorf("delete from %q: %w", key, err)
	}
	return nil
}

// Move is atomic: both the delete and the save land in one transaction.
func (b *Badger) Move(ctx context.Context, src, dst, value []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if len(dst) == 0 {
		return ErrEmptyKey
	}
	err := b.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Delete(entryKey(src, value)); err != nil {
			return err
		}
		return txn.Set(entryKey(dst, value), nil)
	})
	if err != nil {
		return fmt.Errorf("move %q to %q: %w", src, dst, err)
	}
	return nil
}

// Close marks the database closed and closes the store if this Badger
// opened it.
func (b *Badger) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	if b.owned {
		return b.db.Close()
	}
	return nil
}
