// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the bounded memo of evaluated buffers.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// LRU is a fixed-capacity least recently used cache whose entries can be
// pinned against eviction.
//
// Description:
//
//	When a Set would exceed capacity the least recently used unpinned
//	entry is evicted. Pinned entries are skipped; if every entry is
//	pinned the cache grows past capacity until something is unpinned.
//	Pins are counted, so an entry pinned twice needs two Unpin calls.
//
// Thread Safety: All methods are safe for concurrent use.
//
// Performance:
//
//	| Operation | Complexity                 |
//	|-----------|----------------------------|
//	| Get       | O(1)                       |
//	| Set       | O(1) amortized, O(p) worst |
//	| Pin       | O(1)                       |
//	| Delete    | O(1)                       |
//
// where p is the number of pinned entries at the back of the list.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // Front = most recent, Back = least recent
	pinned   int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	pins  int
}

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 10000

// New creates an LRU holding at most capacity unpinned entries.
//
// Example:
//
//	memo := cache.New[string, *data.Result](10000)
//	memo.Set(string(buf), result)
//	memo.Pin(string(buf))
func New[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, min(capacity, 1024)),
		order:    list.New(),
	}
}

// Get returns the value stored under key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.hits.Add(1)
		return elem.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set stores value under key, evicting if the cache is full. Updating an
// existing key keeps its pins.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*entry[K, V]).value = value
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
}

// Pin protects key from eviction. Returns false if key is absent.
func (c *LRU[K, V]) Pin(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	e := elem.Value.(*entry[K, V])
	if e.pins == 0 {
		c.pinned++
	}
	e.pins++
	return true
}

// Unpin releases one pin on key. Once no pins remain the entry is evictable
// again, and if the cache had grown past capacity it shrinks back.
func (c *LRU[K, V]) Unpin(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return
	}
	e := elem.Value.(*entry[K, V])
	if e.pins == 0 {
		return
	}
	e.pins--
	if e.pins == 0 {
		c.pinned--
		for c.order.Len() > c.capacity && c.evictOldest() {
		}
	}
}

// IsPinned reports whether key is present and pinned.
func (c *LRU[K, V]) IsPinned(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	return ok && elem.Value.(*entry[K, V]).pins > 0
}

// Delete removes key regardless of pins.
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
		return true
	}
	return false
}

// Purge clears every entry, pinned or not, and resets the counters.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element, min(c.capacity, 1024))
	c.order.Init()
	c.pinned = 0
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Pinned returns the number of pinned entries.
func (c *LRU[K, V]) Pinned() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinned
}

// Stats returns hit, miss and eviction counts since creation or the last
// Purge.
//
// Thread Safety: Lock-free.
func (c *LRU[K, V]) Stats() (hits, misses, evictions int64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}

// evictOldest removes the least recently used unpinned entry and reports
// whether it found one. Caller must hold the lock.
func (c *LRU[K, V]) evictOldest() bool {
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		if elem.Value.(*entry[K, V]).pins > 0 {
			continue
		}
		c.removeElement(elem)
		c.evictions.Add(1)
		return true
	}
	return false
}

// removeElement drops elem from the list and map. Caller must hold the
// lock.
func (c *LRU[K, V]) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	e := elem.Value.(*entry[K, V])
	if e.pins > 0 {
		c.pinned--
	}
	delete(c.items, e.key)
}
