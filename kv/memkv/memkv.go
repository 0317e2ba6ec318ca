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

// Package memkv is an in-memory reference implementation of kv.Store,
// backed by an ordered google/btree map under a single RWMutex. It gives
// tests the same byte-ordered, strict-serializable semantics a durable
// backend must provide, without touching disk.
package memkv

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/dolthub/prollysync/kv"
)

type item struct {
	key, value []byte
}

func (a item) Less(b btree.Item) bool {
	return bytes.Compare(a.key, b.(item).key) < 0
}

// Store is an in-memory kv.Store.
type Store struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// New creates an empty Store.
func New() *Store {
	return &Store{tree: btree.New(32)}
}

// Read opens a read transaction; it blocks concurrent writers until
// Release is called.
func (s *Store) Read(ctx context.Context) (kv.Read, error) {
	s.mu.RLock()
	return &ReadTx{store: s}, nil
}

// Write opens the (single) write transaction; it blocks until any other
// writer or reader in progress has released.
func (s *Store) Write(ctx context.Context) (kv.Write, error) {
	s.mu.Lock()
	return &WriteTx{ReadTx: ReadTx{store: s}, puts: map[string][]byte{}, dels: map[string]bool{}}, nil
}

// ReadTx is a read-only snapshot transaction.
type ReadTx struct {
	store    *Store
	released bool
}

// Has reports whether key is present.
func (r *ReadTx) Has(ctx context.Context, key []byte) (bool, error) {
	_, ok, err := r.Get(ctx, key)
	return ok, err
}

// Get returns the value stored for key.
func (r *ReadTx) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	found := r.store.tree.Get(item{key: key})
	if found == nil {
		return nil, false, nil
	}
	it := found.(item)
	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, true, nil
}

// Release ends the read transaction.
func (r *ReadTx) Release() {
	if r.released {
		return
	}
	r.released = true
	r.store.mu.RUnlock()
}

// WriteTx is the single in-flight write transaction.
type WriteTx struct {
	ReadTx
	puts map[string][]byte
	dels map[string]bool
}

// Get observes the transaction's own buffered writes before falling back
// to the committed state (read-your-writes).
func (w *WriteTx) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	ks := string(key)
	if w.dels[ks] {
		return nil, false, nil
	}
	if v, ok := w.puts[ks]; ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, true, nil
	}
	return w.ReadTx.Get(ctx, key)
}

// Has reports presence, honoring pending writes.
func (w *WriteTx) Has(ctx context.Context, key []byte) (bool, error) {
	_, ok, err := w.Get(ctx, key)
	return ok, err
}

// Put buffers key/value for the next Commit.
func (w *WriteTx) Put(ctx context.Context, key, value []byte) error {
	ks := string(key)
	delete(w.dels, ks)
	v := make([]byte, len(value))
	copy(v, value)
	w.puts[ks] = v
	return nil
}

// Del buffers a delete of key for the next Commit.
func (w *WriteTx) Del(ctx context.Context, key []byte) error {
	ks := string(key)
	delete(w.puts, ks)
	w.dels[ks] = true
	return nil
}

// Commit applies all buffered changes atomically and ends the
// transaction.
func (w *WriteTx) Commit(ctx context.Context) error {
	if w.released {
		return nil
	}
	for k, v := range w.puts {
		w.store.tree.ReplaceOrInsert(item{key: []byte(k), value: v})
	}
	for k := range w.dels {
		w.store.tree.Delete(item{key: []byte(k)})
	}
	w.Release()
	return nil
}

// Release aborts the transaction without applying buffered writes.
func (w *WriteTx) Release() {
	if w.released {
		return
	}
	w.released = true
	w.store.mu.Unlock()
}
