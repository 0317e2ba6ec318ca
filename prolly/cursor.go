// Copyright 2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prolly

import (
	"bytes"
	"context"
	"sort"
)

// frame is one level of a Cursor's descent: the node at that level and the
// entry index currently positioned at within it.
type frame struct {
	node  *Node
	index int
}

// Cursor is a single-shot, forward-only traversal of a tree's leaves,
// modeled as an explicit stack of (node, index) frames rather than a
// generator/coroutine. frames[0] is the
// root; frames[len-1] is the current leaf.
type Cursor struct {
	ctx    context.Context
	store  ChunkReader
	cache  *decodedNodeCache
	frames []frame
	done   bool
}

// newCursor descends from root to the leaf containing the first key >=
// fromKey (or the last leaf, if fromKey exceeds every key), recording the
// chosen entry index at every level per the find-leaf rule.
func newCursor(ctx context.Context, store ChunkReader, cache *decodedNodeCache, root *Node, fromKey []byte) (*Cursor, error) {
	c := &Cursor{ctx: ctx, store: store, cache: cache}
	node := root
	for {
		if node.IsLeaf() || len(node.Entries) == 0 {
			break
		}
		idx := node.findEntry(fromKey)
		c.frames = append(c.frames, frame{node: node, index: idx})
		child, err := loadNode(ctx, store, cache, node.Entries[idx].childHash())
		if err != nil {
			return nil, err
		}
		node = child
	}

	// Within the chosen leaf, position at the first key >= fromKey. If every
	// key in the leaf is smaller, this is the tree's last leaf and the scan
	// yields nothing.
	idx := sort.Search(len(node.Entries), func(i int) bool {
		return bytes.Compare(node.Entries[i].Key, fromKey) >= 0
	})
	c.frames = append(c.frames, frame{node: node, index: idx})
	if idx >= len(node.Entries) {
		c.done = true
	}
	return c, nil
}

// Current returns the (key, value, size) triple the cursor is positioned
// at, and false if the cursor is exhausted.
func (c *Cursor) Current() (key, value []byte, size uint64, ok bool) {
	if c.done || len(c.frames) == 0 {
		return nil, nil, 0, false
	}
	leaf := c.frames[len(c.frames)-1]
	if leaf.index >= len(leaf.node.Entries) {
		return nil, nil, 0, false
	}
	e := leaf.node.Entries[leaf.index]
	return e.Key, e.Value, e.Size, true
}

// Next advances the cursor to the following leaf entry, crossing into the
// next leaf (and back up through ancestors as needed) when the current
// leaf is exhausted. Returns false once the traversal is finished.
func (c *Cursor) Next() (bool, error) {
	if c.done {
		return false, nil
	}
	top := len(c.frames) - 1
	c.frames[top].index++
	if c.frames[top].index < len(c.frames[top].node.Entries) {
		return true, nil
	}
	return c.advanceAcrossLeaves()
}

// advanceAcrossLeaves pops exhausted frames until it finds an ancestor with
// a next sibling entry, then redescends to that sibling's leftmost leaf.
func (c *Cursor) advanceAcrossLeaves() (bool, error) {
	for len(c.frames) > 1 {
		c.frames = c.frames[:len(c.frames)-1]
		top := len(c.frames) - 1
		c.frames[top].index++
		if c.frames[top].index < len(c.frames[top].node.Entries) {
			node := c.frames[top].node
			for {
				child, err := loadNode(c.ctx, c.store, c.cache, node.Entries[c.frames[len(c.frames)-1].index].childHash())
				if err != nil {
					return false, err
				}
				c.frames = append(c.frames, frame{node: child, index: 0})
				if child.IsLeaf() {
					return len(child.Entries) > 0, nil
				}
				node = child
			}
		}
	}
	c.done = true
	return false, nil
}
