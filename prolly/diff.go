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

	"github.com/dolthub/prollysync/hash"
)

// ChangeOp identifies the kind of a single leaf-level difference.
type ChangeOp int

const (
	ChangeAdd ChangeOp = iota
	ChangeRemove
	ChangeChange
)

// Change is one leaf-level difference between two tree roots, in ascending
// key order.
type Change struct {
	Op       ChangeOp
	Key      []byte
	OldValue []byte
	NewValue []byte
}

// DiffTrees yields the ordered sequence of differences between the trees
// rooted at rootA and rootB, both read through the same store. Identical
// roots short-circuit to no differences without reading either tree.
func DiffTrees(ctx context.Context, store ChunkReader, cache *decodedNodeCache, rootA, rootB hash.Hash) ([]Change, error) {
	if rootA == rootB {
		return nil, nil
	}
	if cache == nil {
		cache = newDecodedNodeCache()
	}

	nodeA, err := loadRootOrEmpty(ctx, store, cache, rootA)
	if err != nil {
		return nil, err
	}
	nodeB, err := loadRootOrEmpty(ctx, store, cache, rootB)
	if err != nil {
		return nil, err
	}

	var changes []Change
	if err := diffNodes(ctx, store, cache, nodeA, nodeB, &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

func loadRootOrEmpty(ctx context.Context, store ChunkReader, cache *decodedNodeCache, h hash.Hash) (*Node, error) {
	if h.IsEmpty() {
		return &Node{Level: 0}, nil
	}
	return loadNode(ctx, store, cache, h)
}

func diffNodes(ctx context.Context, store ChunkReader, cache *decodedNodeCache, a, b *Node, out *[]Change) error {
	if a.IsLeaf() && b.IsLeaf() {
		diffEntries(a.Entries, b.Entries, out)
		return nil
	}
	if !a.IsLeaf() && !b.IsLeaf() {
		return diffInternalNodes(ctx, store, cache, a, b, out)
	}

	// Mixed leaf/internal: the two trees' shapes diverged enough that no
	// structural alignment is possible at this level. Fall back to a flat
	// comparison of every pair reachable under each side.
	pairsA, err := collectPairs(ctx, store, cache, a)
	if err != nil {
		return err
	}
	pairsB, err := collectPairs(ctx, store, cache, b)
	if err != nil {
		return err
	}
	diffEntries(pairsA, pairsB, out)
	return nil
}

// diffInternalNodes compares two internal nodes' children. When the
// children align one-to-one by high key, identical child hashes are
// skipped outright and
// only differing pairs are recursed into. Misaligned children (a chunk
// boundary shifted) fall back to a flat comparison, exactly as the simpler
// leaf/internal mismatch case does.
func diffInternalNodes(ctx context.Context, store ChunkReader, cache *decodedNodeCache, a, b *Node, out *[]Change) error {
	ea, eb := a.Entries, b.Entries

	if len(ea) == len(eb) {
		aligned := true
		for i := range ea {
			if !bytes.Equal(ea[i].Key, eb[i].Key) {
				aligned = false
				break
			}
		}
		if aligned {
			for i := range ea {
				if ea[i].childHash() == eb[i].childHash() {
					continue
				}
				childA, err := loadNode(ctx, store, cache, ea[i].childHash())
				if err != nil {
					return err
				}
				childB, err := loadNode(ctx, store, cache, eb[i].childHash())
				if err != nil {
					return err
				}
				if err := diffNodes(ctx, store, cache, childA, childB, out); err != nil {
					return err
				}
			}
			return nil
		}
	}

	pairsA, err := collectPairs(ctx, store, cache, a)
	if err != nil {
		return err
	}
	pairsB, err := collectPairs(ctx, store, cache, b)
	if err != nil {
		return err
	}
	diffEntries(pairsA, pairsB, out)
	return nil
}

// collectPairs flattens every leaf entry reachable under n, in key order.
func collectPairs(ctx context.Context, store ChunkReader, cache *decodedNodeCache, n *Node) ([]Entry, error) {
	if n.IsLeaf() {
		return n.Entries, nil
	}
	var all []Entry
	for _, e := range n.Entries {
		child, err := loadNode(ctx, store, cache, e.childHash())
		if err != nil {
			return nil, err
		}
		pairs, err := collectPairs(ctx, store, cache, child)
		if err != nil {
			return nil, err
		}
		all = append(all, pairs...)
	}
	return all, nil
}

// diffEntries is the simultaneous ordered merge over two sorted entry
// sequences.
func diffEntries(a, b []Entry, out *[]Change) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		cmp := bytes.Compare(a[i].Key, b[j].Key)
		switch {
		case cmp == 0:
			if !bytes.Equal(a[i].Value, b[j].Value) {
				*out = append(*out, Change{Op: ChangeChange, Key: a[i].Key, OldValue: a[i].Value, NewValue: b[j].Value})
			}
			i++
			j++
		case cmp < 0:
			*out = append(*out, Change{Op: ChangeRemove, Key: a[i].Key, OldValue: a[i].Value})
			i++
		default:
			*out = append(*out, Change{Op: ChangeAdd, Key: b[j].Key, NewValue: b[j].Value})
			j++
		}
	}
	for ; i < len(a); i++ {
		*out = append(*out, Change{Op: ChangeRemove, Key: a[i].Key, OldValue: a[i].Value})
	}
	for ; j < len(b); j++ {
		*out = append(*out, Change{Op: ChangeAdd, Key: b[j].Key, NewValue: b[j].Value})
	}
}
