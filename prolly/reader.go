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

// Reader is the read-only view of a tree rooted at a fixed hash. It shares
// a decoded-node cache with a Tree only when both were given the same
// cache; otherwise it keeps a private one.
type Reader struct {
	store ChunkReader
	cache *decodedNodeCache
	root  hash.Hash
}

// NewReader opens a Reader over the tree rooted at root. root may be
// hash.EmptyHash, denoting the empty tree.
func NewReader(store ChunkReader, cache *decodedNodeCache, root hash.Hash) *Reader {
	if cache == nil {
		cache = newDecodedNodeCache()
	}
	return &Reader{store: store, cache: cache, root: root}
}

// findLeaf descends from root, choosing at each internal node the first
// entry whose key is >= key (or the last entry if none), returning the leaf
// node reached.
func findLeaf(ctx context.Context, store ChunkReader, cache *decodedNodeCache, root *Node, key []byte) (*Node, error) {
	node := root
	for !node.IsLeaf() {
		if len(node.Entries) == 0 {
			return node, nil
		}
		idx := node.findEntry(key)
		child, err := loadNode(ctx, store, cache, node.Entries[idx].childHash())
		if err != nil {
			return nil, err
		}
		node = child
	}
	return node, nil
}

func (r *Reader) loadRoot(ctx context.Context) (*Node, error) {
	if r.root.IsEmpty() {
		return &Node{Level: 0, Entries: nil}, nil
	}
	return loadNode(ctx, r.store, r.cache, r.root)
}

// Get returns the value for key, or ok=false if absent.
func (r *Reader) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	root, err := r.loadRoot(ctx)
	if err != nil {
		return nil, false, err
	}
	leaf, err := findLeaf(ctx, r.store, r.cache, root, key)
	if err != nil {
		return nil, false, err
	}
	idx, ok := leaf.searchLeaf(key)
	if !ok {
		return nil, false, nil
	}
	return leaf.Entries[idx].Value, true, nil
}

// Has reports whether key is present.
func (r *Reader) Has(ctx context.Context, key []byte) (bool, error) {
	_, ok, err := r.Get(ctx, key)
	return ok, err
}

// ScanEntry is one (key, value, size) triple returned by ScanAll.
type ScanEntry struct {
	Key   []byte
	Value []byte
	Size  uint64
}

// Scan returns a single-shot, in-order sequence of entries from the first
// key >= fromKey to the end of the tree.
func (r *Reader) Scan(ctx context.Context, fromKey []byte) (*Cursor, error) {
	root, err := r.loadRoot(ctx)
	if err != nil {
		return nil, err
	}
	return newCursor(ctx, r.store, r.cache, root, fromKey)
}

// ScanAll drains Scan(fromKey) into a slice, for small trees and tests.
func (r *Reader) ScanAll(ctx context.Context, fromKey []byte) ([]ScanEntry, error) {
	cur, err := r.Scan(ctx, fromKey)
	if err != nil {
		return nil, err
	}
	var out []ScanEntry
	for {
		k, v, sz, ok := cur.Current()
		if !ok {
			break
		}
		out = append(out, ScanEntry{Key: k, Value: v, Size: sz})
		more, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return out, nil
}

// Keys is Scan projected to keys only.
func (r *Reader) Keys(ctx context.Context, fromKey []byte) ([][]byte, error) {
	entries, err := r.ScanAll(ctx, fromKey)
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

func keyLess(a, b []byte) bool { return bytes.Compare(a, b) < 0 }
