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

// Package prolly implements the persistent, copy-on-write B-tree:
// byte-size-bounded nodes, a deterministic partition algorithm, and an
// explicit cursor stack for scans and diff traversal.
package prolly

import (
	"bytes"
	"sort"

	"github.com/dolthub/prollysync/hash"
)

// entryOverhead is the fixed per-entry bookkeeping weight folded into an
// entry's size, so a node of only tiny keys/values still counts toward
// the size bound at a reasonable rate.
const entryOverhead = 8

// Entry is one slot in a Node. For a leaf (Level == 0), Key/Value are the
// stored pair. For an internal node, Key is the subtree's high key (the
// last key reachable under it) and Value is the child's encoded hash —
// unless child is non-nil, meaning the child is still a pending, unhashed
// Node held directly in memory (Value is meaningless until Flush resolves
// it).
type Entry struct {
	Key   []byte
	Value []byte
	Size  uint64

	child *Node
}

func entrySize(key, value []byte) uint64 {
	return uint64(len(key)+len(value)) + entryOverhead
}

// internalEntrySize is an internal entry's size as if its child were
// already resolved to a hash, so a pending entry sizes the same as it will
// once flushed.
func internalEntrySize(key []byte) uint64 {
	return uint64(len(key)+hash.ByteLen) + entryOverhead
}

// newLeafEntry builds a leaf Entry, computing its size.
func newLeafEntry(key, value []byte) Entry {
	return Entry{Key: key, Value: value, Size: entrySize(key, value)}
}

// newInternalEntryFlushed builds an internal Entry referencing an
// already-hashed child.
func newInternalEntryFlushed(highKey []byte, childHash hash.Hash) Entry {
	v := make([]byte, hash.ByteLen)
	copy(v, childHash[:])
	return Entry{Key: highKey, Value: v, Size: internalEntrySize(highKey)}
}

// childHash returns e's child hash, valid only once e.child is nil (i.e.
// flushed) or was never pending.
func (e Entry) childHash() hash.Hash {
	var h hash.Hash
	copy(h[:], e.Value)
	return h
}

// Node is a single B-tree node: either a leaf (Level == 0) or an internal
// node whose entries point at children one level below. A pending (not yet
// flushed) node has hash == hash.EmptyHash and hashed == false.
type Node struct {
	Level   uint8
	Entries []Entry

	hash   hash.Hash
	hashed bool
}

// IsLeaf reports whether n is a level-0 node.
func (n *Node) IsLeaf() bool { return n.Level == 0 }

// TotalSize is the sum of n's entries' sizes, the quantity max_size and
// min_size bound.
func (n *Node) TotalSize() uint64 {
	var total uint64
	for _, e := range n.Entries {
		total += e.Size
	}
	return total
}

// HighKey returns the key of n's last entry, used as the parent Entry's key
// when n becomes a sibling of a partitioned run. Empty for an empty node.
func (n *Node) HighKey() []byte {
	if len(n.Entries) == 0 {
		return nil
	}
	return n.Entries[len(n.Entries)-1].Key
}

// findEntry returns the index of the first entry whose key is >= key, or
// len(Entries)-1 (the last entry) if none qualifies. Internal-node descent
// and leaf lookup both use this rule.
func (n *Node) findEntry(key []byte) int {
	idx := sort.Search(len(n.Entries), func(i int) bool {
		return bytes.Compare(n.Entries[i].Key, key) >= 0
	})
	if idx == len(n.Entries) {
		if idx == 0 {
			return 0
		}
		return idx - 1
	}
	return idx
}

// searchLeaf returns the index of the entry with an exact key match, or
// (-1, false) if key is absent.
func (n *Node) searchLeaf(key []byte) (int, bool) {
	idx := sort.Search(len(n.Entries), func(i int) bool {
		return bytes.Compare(n.Entries[i].Key, key) >= 0
	})
	if idx < len(n.Entries) && bytes.Equal(n.Entries[idx].Key, key) {
		return idx, true
	}
	return -1, false
}
