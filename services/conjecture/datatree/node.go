// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatree

import "github.com/AleutianAI/conjecture/services/conjecture/data"

// nodeKind is the transition representation of a node. Nodes are promoted
// in place from empty to single to dense as children accumulate.
type nodeKind uint8

const (
	kindEmpty nodeKind = iota
	kindSingle
	kindDense
)

// node is one position in the prefix tree. Children are arena indices; the
// root is index 0 and is never a child, so 0 marks an absent transition.
type node struct {
	kind  nodeKind
	key   byte
	child int32
	dense *[256]int32
	count int

	dead bool

	hasForced bool
	forced    byte

	// mask restricts the bytes that can appear here. 0xff when unmasked.
	mask byte

	// blockSize is the length of the block known to start here, 0 if none.
	blockSize int

	result *data.Result
}

func newNode() node {
	return node{mask: 0xff}
}

// width is the number of distinct bytes that can follow this node.
func (n *node) width() int {
	return int(n.mask) + 1
}

// effective maps a raw buffer byte to the byte the test would record here.
func (n *node) effective(b byte) byte {
	if n.hasForced {
		return n.forced
	}
	return b & n.mask
}

func (t *Tree) lookup(idx int, b byte) (int, bool) {
	n := &t.nodes[idx]
	switch n.kind {
	case kindSingle:
		if n.key == b {
			return int(n.child), true
		}
	case kindDense:
		if c := n.dense[b]; c != 0 {
			return int(c), true
		}
	}
	return 0, false
}

// insert adds a fresh child of idx under b and returns its index. The
// caller must know the transition is absent.
func (t *Tree) insert(idx int, b byte) int {
	child := len(t.nodes)
	t.nodes = append(t.nodes, newNode())

	n := &t.nodes[idx]
	switch n.kind {
	case kindEmpty:
		n.kind = kindSingle
		n.key = b
		n.child = int32(child)
	case kindSingle:
		table := new([256]int32)
		table[n.key] = n.child
		table[b] = int32(child)
		n.kind = kindDense
		n.dense = table
		n.child = 0
	case kindDense:
		n.dense[b] = int32(child)
	}
	n.count++
	return child
}

// children calls fn for every child of idx.
func (t *Tree) children(idx int, fn func(b byte, child int) bool) {
	n := &t.nodes[idx]
	switch n.kind {
	case kindSingle:
		fn(n.key, int(n.child))
	case kindDense:
		for b, c := range n.dense {
			if c != 0 && !fn(byte(b), int(c)) {
				return
			}
		}
	}
}

func (t *Tree) allChildrenDead(idx int) bool {
	dead := true
	t.children(idx, func(_ byte, c int) bool {
		if !t.nodes[c].dead {
			dead = false
			return false
		}
		return true
	})
	return dead
}
