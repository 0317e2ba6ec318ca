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

	"github.com/dolthub/prollysync/hash"
)

// PartitionConfig bounds a node's byte size.
type PartitionConfig struct {
	MinSize uint64
	MaxSize uint64

	// EntrySize overrides how an entry's byte weight is computed. nil uses
	// the default (payload length plus a fixed per-entry overhead). For an
	// internal entry, value is the child hash's encoded width. Trees with a
	// custom EntrySize should write FormatB, which persists sizes, so that
	// re-reading a node reproduces them.
	EntrySize func(key, value []byte) uint64
}

// KV is one key/value pair passed to PutMany.
type KV struct {
	Key   []byte
	Value []byte
}

// Tree is the write side of a prolly tree: a root_hash, a tree
// of pending (not yet hashed) nodes reachable from the root, and a
// reference to wherever flushed node chunks are written.
type Tree struct {
	store  ChunkReader
	writer ChunkWriter
	cache  *decodedNodeCache
	config PartitionConfig
	format FormatVersion

	root     hash.Hash
	rootNode *Node
	touched  bool
}

// NewTree opens a Tree over root (hash.EmptyHash for a fresh tree). cache
// may be nil, in which case the Tree gets a private decoded-node cache;
// sharing one cache across Readers/Trees built over the same store lets
// them reuse each other's decodes.
func NewTree(store ChunkReader, writer ChunkWriter, cache *decodedNodeCache, cfg PartitionConfig, format FormatVersion, root hash.Hash) *Tree {
	if cache == nil {
		cache = newDecodedNodeCache()
	}
	return &Tree{store: store, writer: writer, cache: cache, config: cfg, format: format, root: root}
}

// Root returns the tree's last-flushed root hash. Mutations since the last
// Flush are not reflected.
func (t *Tree) Root() hash.Hash { return t.root }

func (t *Tree) ensureRoot(ctx context.Context) error {
	if t.rootNode != nil {
		return nil
	}
	if t.root.IsEmpty() {
		t.rootNode = &Node{Level: 0}
		return nil
	}
	n, err := loadNode(ctx, t.store, t.cache, t.root)
	if err != nil {
		return err
	}
	t.rootNode = n
	return nil
}

var internalSizingValue = make([]byte, hash.ByteLen)

// sizeOf computes an entry's byte weight via the configured size function.
func (t *Tree) sizeOf(key, value []byte) uint64 {
	if t.config.EntrySize != nil {
		return t.config.EntrySize(key, value)
	}
	return entrySize(key, value)
}

func (t *Tree) leafEntry(key, value []byte) Entry {
	return Entry{Key: key, Value: value, Size: t.sizeOf(key, value)}
}

// internalEntryPending sizes the entry as if its child were already
// resolved to a hash, so the size is stable across Flush.
func (t *Tree) internalEntryPending(highKey []byte, child *Node) Entry {
	return Entry{Key: highKey, Size: t.sizeOf(highKey, internalSizingValue), child: child}
}

// cowRoot returns the tree's root node, cloning it into pending (mutable)
// form first if it is currently a shared, already-hashed node.
func (t *Tree) cowRoot() *Node {
	if t.rootNode.hashed {
		t.rootNode = cloneForEdit(t.rootNode)
	}
	return t.rootNode
}

func cloneForEdit(n *Node) *Node {
	entries := make([]Entry, len(n.Entries))
	copy(entries, n.Entries)
	return &Node{Level: n.Level, Entries: entries}
}

// editableChild returns parent.Entries[idx]'s child in mutable (pending)
// form, loading and cloning it from store on first touch (copy-on-write).
func (t *Tree) editableChild(ctx context.Context, parent *Node, idx int) (*Node, error) {
	e := &parent.Entries[idx]
	if e.child != nil && !e.child.hashed {
		return e.child, nil
	}
	var n *Node
	var err error
	if e.child != nil {
		n = e.child
	} else {
		n, err = loadNode(ctx, t.store, t.cache, e.childHash())
		if err != nil {
			return nil, err
		}
	}
	clone := cloneForEdit(n)
	e.child = clone
	return clone, nil
}

// resolveChild returns e's child node without cloning, for read-only
// descent and for root flattening, which consumes the child outright.
func (t *Tree) resolveChild(ctx context.Context, e Entry) (*Node, error) {
	if e.child != nil {
		return e.child, nil
	}
	return loadNode(ctx, t.store, t.cache, e.childHash())
}

// Get returns the value for key, or ok=false if absent.
func (t *Tree) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := t.ensureRoot(ctx); err != nil {
		return nil, false, err
	}
	leaf, err := t.findLeafNode(ctx, t.rootNode, key)
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
func (t *Tree) Has(ctx context.Context, key []byte) (bool, error) {
	_, ok, err := t.Get(ctx, key)
	return ok, err
}

// findLeafNode descends read-only (no copy-on-write) to the leaf
// containing key, resolving pending children directly.
func (t *Tree) findLeafNode(ctx context.Context, node *Node, key []byte) (*Node, error) {
	for !node.IsLeaf() {
		if len(node.Entries) == 0 {
			return node, nil
		}
		idx := node.findEntry(key)
		child, err := t.resolveChild(ctx, node.Entries[idx])
		if err != nil {
			return nil, err
		}
		node = child
	}
	return node, nil
}

// Put inserts or replaces key's value.
func (t *Tree) Put(ctx context.Context, key, value []byte) error {
	if err := t.ensureRoot(ctx); err != nil {
		return err
	}
	t.touched = true

	path := []*Node{t.cowRoot()}
	var indices []int
	node := path[0]
	for !node.IsLeaf() && len(node.Entries) > 0 {
		idx := node.findEntry(key)
		indices = append(indices, idx)
		child, err := t.editableChild(ctx, node, idx)
		if err != nil {
			return err
		}
		path = append(path, child)
		node = child
	}

	leaf := node
	if i, ok := leaf.searchLeaf(key); ok {
		leaf.Entries[i] = t.leafEntry(key, value)
	} else {
		insertAt := sort.Search(len(leaf.Entries), func(i int) bool {
			return bytes.Compare(leaf.Entries[i].Key, key) >= 0
		})
		leaf.Entries = append(leaf.Entries, Entry{})
		copy(leaf.Entries[insertAt+1:], leaf.Entries[insertAt:])
		leaf.Entries[insertAt] = t.leafEntry(key, value)
	}

	return t.propagate(ctx, path, indices)
}

// Del removes key, returning whether it existed.
func (t *Tree) Del(ctx context.Context, key []byte) (bool, error) {
	if err := t.ensureRoot(ctx); err != nil {
		return false, err
	}
	t.touched = true

	path := []*Node{t.cowRoot()}
	var indices []int
	node := path[0]
	for !node.IsLeaf() {
		if len(node.Entries) == 0 {
			return false, nil
		}
		idx := node.findEntry(key)
		indices = append(indices, idx)
		child, err := t.editableChild(ctx, node, idx)
		if err != nil {
			return false, err
		}
		path = append(path, child)
		node = child
	}

	leaf := node
	idx, ok := leaf.searchLeaf(key)
	if !ok {
		return false, nil
	}
	leaf.Entries = append(leaf.Entries[:idx], leaf.Entries[idx+1:]...)

	if err := t.propagate(ctx, path, indices); err != nil {
		return false, err
	}
	return true, nil
}

// propagate applies merge-and-partition from the leaf back up to the root,
// then resolves root overflow, flattening, and emptying. A node left
// under-size by a mutation is merged with an adjacent sibling before
// partitioning, so deletes collapse structure the same way inserts grow it.
func (t *Tree) propagate(ctx context.Context, path []*Node, indices []int) error {
	for level := len(path) - 1; level > 0; level-- {
		child := path[level]
		parent := path[level-1]
		idx := indices[level-1]

		// start..end is the inclusive range of parent entries the partition
		// results replace; merging widens it to cover the absorbed sibling.
		start, end := idx, idx
		run := child.Entries
		if len(run) > 0 && child.TotalSize() < t.config.MinSize && len(parent.Entries) > 1 {
			sibIdx := idx + 1
			if sibIdx >= len(parent.Entries) {
				sibIdx = idx - 1
			}
			sib, err := t.editableChild(ctx, parent, sibIdx)
			if err != nil {
				return err
			}
			if sibIdx > idx {
				run = append(append([]Entry{}, run...), sib.Entries...)
				end = sibIdx
			} else {
				run = append(append([]Entry{}, sib.Entries...), run...)
				start = sibIdx
			}
		}

		var siblings []*Node
		if len(run) > 0 {
			groups := t.partitionEntries(run)
			siblings = make([]*Node, len(groups))
			for i, g := range groups {
				siblings[i] = &Node{Level: child.Level, Entries: g}
			}
		}
		// len(run) == 0: an empty child is removed from its parent rather
		// than kept as an empty sibling entry.

		newEntries := make([]Entry, 0, len(parent.Entries)+len(siblings))
		newEntries = append(newEntries, parent.Entries[:start]...)
		for _, s := range siblings {
			newEntries = append(newEntries, t.internalEntryPending(s.HighKey(), s))
		}
		newEntries = append(newEntries, parent.Entries[end+1:]...)
		parent.Entries = newEntries
	}

	return t.finishRoot(ctx, path[0])
}

// finishRoot resolves root-level invariants after a mutation: overflow
// (partition the root and grow a level), single-child flattening (cascades
// while true), and collapsing an entry-less internal root to the empty
// level-0 node. An internal root whose entries would each form their own
// group is left over-size: a new level above it would hold the same
// entries again.
func (t *Tree) finishRoot(ctx context.Context, root *Node) error {
	t.rootNode = root
	for {
		if len(t.rootNode.Entries) == 0 && t.rootNode.Level > 0 {
			t.rootNode = &Node{Level: 0}
			continue
		}

		total := t.rootNode.TotalSize()
		if total > t.config.MaxSize && len(t.rootNode.Entries) > 1 {
			groups := t.partitionEntries(t.rootNode.Entries)
			if len(groups) > 1 && (t.rootNode.IsLeaf() || len(groups) < len(t.rootNode.Entries)) {
				siblings := make([]*Node, len(groups))
				for i, g := range groups {
					if i == 0 {
						t.rootNode.Entries = g
						siblings[i] = t.rootNode
					} else {
						siblings[i] = &Node{Level: t.rootNode.Level, Entries: g}
					}
				}
				newRoot := &Node{Level: t.rootNode.Level + 1, Entries: make([]Entry, len(siblings))}
				for i, s := range siblings {
					newRoot.Entries[i] = t.internalEntryPending(s.HighKey(), s)
				}
				t.rootNode = newRoot
				continue
			}
		}

		if !t.rootNode.IsLeaf() && len(t.rootNode.Entries) == 1 {
			child, err := t.resolveChild(ctx, t.rootNode.Entries[0])
			if err != nil {
				return err
			}
			t.rootNode = child
			continue
		}

		break
	}
	return nil
}

// partitionEntries splits an ordered entry run into size-bounded groups,
// deterministically given the entries and the configured size bounds,
// greedily filling each group to within target size without letting a
// non-final group fall under the minimum.
func (t *Tree) partitionEntries(entries []Entry) [][]Entry {
	if len(entries) <= 1 {
		return [][]Entry{entries}
	}
	var total uint64
	for _, e := range entries {
		total += e.Size
	}
	if total <= t.config.MaxSize {
		return [][]Entry{entries}
	}

	n := (total + t.config.MaxSize - 1) / t.config.MaxSize
	target := total / n
	if target == 0 {
		target = 1
	}

	// suffix[i] is the total size of entries[i:], so a group is only closed
	// when what remains can still form a group of at least MinSize.
	suffix := make([]uint64, len(entries)+1)
	for i := len(entries) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + entries[i].Size
	}

	var groups [][]Entry
	var cur []Entry
	var curSize uint64
	for i, e := range entries {
		if len(cur) > 0 && curSize >= t.config.MinSize &&
			(curSize+e.Size > t.config.MaxSize || curSize+e.Size > target) {
			// An over-size singleton always stands alone; otherwise keep
			// filling rather than leave an under-size final group.
			if suffix[i] >= t.config.MinSize || curSize > t.config.MaxSize {
				groups = append(groups, cur)
				cur = nil
				curSize = 0
			}
		}
		cur = append(cur, e)
		curSize += e.Size
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// PutMany inserts or replaces a batch of pairs. Entries need not be sorted;
// among duplicate keys within the batch, the one occurring last in kvs
// wins. The batch is replayed in ascending key order through the same
// insert/partition machinery as Put, so PutMany on an empty tree and a
// sequence of sorted Puts over the same entries produce byte-identical
// roots.
func (t *Tree) PutMany(ctx context.Context, kvs []KV) error {
	if len(kvs) == 0 {
		return nil
	}
	for _, kv := range dedupLastWriteWins(kvs) {
		if err := t.Put(ctx, kv.Key, kv.Value); err != nil {
			return err
		}
	}
	return nil
}

// dedupLastWriteWins sorts kvs by key, keeping, for duplicate keys, the
// entry that occurred last in the original (unsorted) input.
func dedupLastWriteWins(kvs []KV) []KV {
	order := make([]string, 0, len(kvs))
	latest := make(map[string]KV, len(kvs))
	for _, kv := range kvs {
		k := string(kv.Key)
		if _, ok := latest[k]; !ok {
			order = append(order, k)
		}
		latest[k] = kv
	}
	out := make([]KV, len(order))
	for i, k := range order {
		out[i] = latest[k]
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].Key, out[j].Key) })
	return out
}

// Flush depth-first assigns hashes to all pending nodes and durably writes
// each as a chunk with refs = its children's hashes.
func (t *Tree) Flush(ctx context.Context) (hash.Hash, error) {
	if err := t.ensureRoot(ctx); err != nil {
		return hash.Hash{}, err
	}
	if !t.touched {
		return t.root, nil
	}
	h, err := t.flushNode(ctx, t.rootNode)
	if err != nil {
		return hash.Hash{}, err
	}
	t.root = h
	return h, nil
}

func (t *Tree) flushNode(ctx context.Context, n *Node) (hash.Hash, error) {
	if n.hashed {
		return n.hash, nil
	}

	refs := hash.HashSet{}
	for i := range n.Entries {
		e := &n.Entries[i]
		if e.child != nil {
			childHash, err := t.flushNode(ctx, e.child)
			if err != nil {
				return hash.Hash{}, err
			}
			v := make([]byte, hash.ByteLen)
			copy(v, childHash[:])
			e.Value = v
			e.child = nil
			refs.Insert(childHash)
		} else if !n.IsLeaf() {
			refs.Insert(e.childHash())
		}
	}

	data, err := encodeNode(n, t.format)
	if err != nil {
		return hash.Hash{}, err
	}
	h, err := t.writer.PutNodeChunk(ctx, data, refs)
	if err != nil {
		return hash.Hash{}, err
	}
	n.hash = h
	n.hashed = true
	if t.cache != nil {
		t.cache.cache.Add(h, n)
	}
	return h, nil
}
