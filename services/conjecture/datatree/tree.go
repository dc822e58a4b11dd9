// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatree tracks which byte prefixes have already been explored.
//
// Every concluded run is folded into a prefix tree over the bytes it
// consumed. A node is dead once nothing new can be found below it: either a
// run concluded there, or every byte that can follow it leads to a dead
// node. Deadness is monotone and the tree is exhausted when its root dies.
//
// Nodes also remember forced bytes, bit masks and block sizes seen at their
// position, which lets the tree canonicalize buffers and rule out buffers
// without running them.
//
// # Thread Safety
//
// Tree is NOT safe for concurrent use. It is owned by a single runner.
package datatree

import (
	"fmt"
	"math/rand"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

// Tree is an arena-backed prefix tree of explored buffers.
type Tree struct {
	nodes []node
	cap   int
}

// TreeOption configures a Tree.
type TreeOption func(*Tree)

// WithZeroBoundCap kills every node at depth cap or deeper as runs are
// added: generation forces bytes past the cap to zero, so nothing else is
// worth exploring there. Zero disables the cap.
func WithZeroBoundCap(cap int) TreeOption {
	return func(t *Tree) {
		t.cap = cap
	}
}

// New creates an empty tree.
func New(opts ...TreeOption) *Tree {
	t := &Tree{}
	for _, opt := range opts {
		opt(t)
	}
	t.Reset()
	return t
}

// Reset forgets everything the tree has learned.
func (t *Tree) Reset() {
	t.nodes = []node{newNode()}
}

// IsExhausted reports whether the root is dead. Once true it stays true
// until Reset.
func (t *Tree) IsExhausted() bool {
	return t.nodes[0].dead
}

// Add folds a concluded run into the tree.
//
// Description:
//
//	Walks the run's buffer, creating nodes as needed and recording forced
//	bytes, masks and block sizes. A run that did not overrun is stored at
//	its final node, which becomes dead, and deadness propagates toward the
//	root through every node whose possible children are all present and
//	dead.
//
// Outputs:
//   - error: ErrFlaky if a previously concluded run with the same bytes
//     ended differently, or ended at a different length.
func (t *Tree) Add(r *data.Result) error {
	concluded := r.Status != data.StatusOverrun
	buf := r.Buffer
	indices := make([]int, 0, len(buf))
	idx := 0

	for i, b := range buf {
		indices = append(indices, idx)
		n := &t.nodes[idx]
		if r.IsForced(i) {
			n.hasForced = true
			n.forced = b
		}
		if m, ok := r.Mask(i); ok {
			n.mask = m
		}

		child, ok := t.lookup(idx, b)
		if !ok {
			child = t.insert(idx, b)
		}
		idx = child

		if prior := t.nodes[idx].result; prior != nil && concluded && i+1 < len(buf) {
			return fmt.Errorf("%w: run read %d bytes past a run that concluded %s after %d",
				ErrFlaky, len(buf)-i-1, prior.Status, i+1)
		}
		if t.nodes[idx].dead {
			break
		}
	}

	for _, b := range r.Blocks {
		if b.Start >= len(indices) {
			break
		}
		t.nodes[indices[b.Start]].blockSize = b.Length()
	}

	if t.cap > 0 && len(indices) > t.cap {
		for _, j := range indices[t.cap:] {
			t.nodes[j].dead = true
		}
		t.propagate(indices[:t.cap])
	}

	if !concluded {
		return nil
	}

	leaf := &t.nodes[idx]
	if prior := leaf.result; prior != nil {
		if prior.Status != r.Status || prior.Origin != r.Origin {
			return fmt.Errorf("%w: same buffer concluded %s (%q) then %s (%q)",
				ErrFlaky, prior.Status, prior.Origin, r.Status, r.Origin)
		}
		return nil
	}
	if leaf.dead {
		return nil
	}
	if leaf.count > 0 {
		return fmt.Errorf("%w: run concluded %s after %d bytes where earlier runs read further",
			ErrFlaky, r.Status, len(buf))
	}

	leaf.dead = true
	leaf.result = r
	t.propagate(indices)
	return nil
}

// propagate walks path from its deepest node toward the root, killing
// every node whose possible children are all present and dead.
func (t *Tree) propagate(path []int) {
	for k := len(path) - 1; k >= 0; k-- {
		j := path[k]
		n := &t.nodes[j]
		if n.count < n.width() && !n.hasForced {
			return
		}
		if !t.allChildrenDead(j) {
			return
		}
		n.dead = true
	}
}

// PrescreenBuffer reports whether running buf could reach somewhere new.
//
// Description:
//
//	Returns false if buf (after applying known forced bytes and masks)
//	walks into a dead node, runs out before a block known to start along
//	its path completes, or ends inside the explored tree. Returns true as
//	soon as it leaves the explored tree.
func (t *Tree) PrescreenBuffer(buf []byte) bool {
	idx := 0
	for k, b := range buf {
		n := &t.nodes[idx]
		if n.dead {
			return false
		}
		if n.blockSize > 0 && k+n.blockSize > len(buf) {
			return false
		}
		child, ok := t.lookup(idx, n.effective(b))
		if !ok {
			return true
		}
		idx = child
	}
	return false
}

// GenerateNovelPrefix returns a prefix that leads outside the explored
// tree, or nil if the tree is exhausted.
//
// Description:
//
//	Walks from the root, following forced bytes and otherwise picking a
//	random byte within the node's mask, re-picking among live options
//	when the first pick is dead. Stops after the first byte with no
//	recorded transition. The prefix is padded with random bytes to cover
//	every block known to start along the path, so PrescreenBuffer accepts
//	it.
func (t *Tree) GenerateNovelPrefix(rnd *rand.Rand) []byte {
	if t.IsExhausted() {
		return nil
	}
	var prefix []byte
	need := 0
	idx := 0
	for {
		n := &t.nodes[idx]
		if n.blockSize > 0 {
			need = max(need, len(prefix)+n.blockSize)
		}

		if n.hasForced {
			prefix = append(prefix, n.forced)
			child, ok := t.lookup(idx, n.forced)
			if !ok {
				break
			}
			idx = child
			continue
		}

		c := byte(rnd.Intn(n.width()))
		child, ok := t.lookup(idx, c)
		if !ok {
			prefix = append(prefix, c)
			break
		}
		if t.nodes[child].dead {
			var live []byte
			for v := 0; v < n.width(); v++ {
				ch, ok := t.lookup(idx, byte(v))
				if !ok || !t.nodes[ch].dead {
					live = append(live, byte(v))
				}
			}
			if len(live) == 0 {
				// Every child is dead, so n is too.
				break
			}
			c = live[rnd.Intn(len(live))]
			child, ok = t.lookup(idx, c)
			if !ok {
				prefix = append(prefix, c)
				break
			}
		}
		prefix = append(prefix, c)
		idx = child
	}

	for len(prefix) < need {
		prefix = append(prefix, byte(rnd.Intn(256)))
	}
	return prefix
}

// Rewrite canonicalizes buf by applying known forced bytes and masks.
//
// Outputs:
//   - []byte: The canonical buffer. When a stored run is reached it is
//     truncated to that run's length.
//   - *data.Result: The stored run reached by the canonical buffer, or nil.
func (t *Tree) Rewrite(buf []byte) ([]byte, *data.Result) {
	out := append([]byte(nil), buf...)
	idx := 0
	for i, b := range out {
		n := &t.nodes[idx]
		out[i] = n.effective(b)
		child, ok := t.lookup(idx, out[i])
		if !ok {
			return out, nil
		}
		idx = child
		if r := t.nodes[idx].result; r != nil {
			return out[:i+1], r
		}
	}
	return out, nil
}

// Cursor tracks one in-progress run's position in the tree for
// RewriteForNovelty.
type Cursor struct {
	node        int
	evaluatedTo int
	hitNovelty  bool
}

// NewCursor returns a cursor at the root.
func (t *Tree) NewCursor() *Cursor {
	return &Cursor{}
}

// RewriteForNovelty nudges a block about to be drawn so that it does not
// lead into a dead subtree.
//
// Description:
//
//	consumed is everything the run has drawn so far and candidate the
//	block about to be appended. Each candidate byte whose transition is
//	dead is replaced with the smallest byte that is either unexplored or
//	live; the rest of the candidate is kept. Once the run has left the
//	explored tree the candidate is returned unchanged.
func (t *Tree) RewriteForNovelty(c *Cursor, consumed, candidate []byte) []byte {
	if c.hitNovelty {
		return candidate
	}
	idx := c.node
	for i := c.evaluatedTo; i < len(consumed); i++ {
		child, ok := t.lookup(idx, t.nodes[idx].effective(consumed[i]))
		if !ok {
			c.hitNovelty = true
			return candidate
		}
		idx = child
	}
	if t.nodes[idx].dead {
		return candidate
	}

	result := append([]byte(nil), candidate...)
	for i, b := range result {
		n := &t.nodes[idx]
		child, ok := t.lookup(idx, n.effective(b))
		if !ok {
			c.hitNovelty = true
			return result
		}
		if t.nodes[child].dead && !n.hasForced {
			replaced := false
			for v := 0; v < n.width(); v++ {
				ch, ok := t.lookup(idx, byte(v))
				if !ok {
					result[i] = byte(v)
					c.hitNovelty = true
					return result
				}
				if !t.nodes[ch].dead {
					result[i] = byte(v)
					child = ch
					replaced = true
					break
				}
			}
			if !replaced {
				return result
			}
		}
		idx = child
	}
	c.node = idx
	c.evaluatedTo = len(consumed) + len(result)
	return result
}

// Stats summarizes the tree's size.
type Stats struct {
	Nodes     int
	Dead      int
	Concluded int
}

// Stats returns node counts for reporting.
func (t *Tree) Stats() Stats {
	s := Stats{Nodes: len(t.nodes)}
	for i := range t.nodes {
		if t.nodes[i].dead {
			s.Dead++
		}
		if t.nodes[i].result != nil {
			s.Concluded++
		}
	}
	return s
}
