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
	"sync"
)

// Memory is an in-process Database. Contents are lost on Close.
type Memory struct {
	mu     sync.RWMutex
	sets   map[string]map[string]struct{}
	closed bool
}

// NewMemory returns an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{sets: make(map[string]map[string]struct{})}
}

func (m *Memory) Save(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.saveLocked(string(key), string(value))
	return nil
}

func (m *Memory) saveLocked(key, value string) {
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	set[value] = struct{}{}
}

func (m *Memory) Fetch(ctx context.Context, key []byte) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	set := m.sets[string(key)]
	out := make([][]byte, 0, len(set))
	for v := range set {
		out = append(out, []byte(v))
	}
	return sortValues(out), nil
}

func (m *Memory) Delete(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.deleteLocked(string(key), string(value))
	return nil
}

func (m *Memory) deleteLocked(key, value string) {
	set, ok := m.sets[key]
	if !ok {
		return
	}
	delete(set, value)
	if len(set) == 0 {
		delete(m.sets, key)
	}
}

func (m *Memory) Move(ctx context.Context, src, dst, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(dst) == 0 {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.deleteLocked(string(src), string(value))
	m.saveLocked(string(dst), string(value))
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	m.sets = nil
	return nil
}
