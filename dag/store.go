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

// Package dag implements the chunk graph store: an immutable,
// content-addressed store of typed chunks with explicit inter-chunk
// references, named head pointers, and refcount-based GC.
package dag

import (
	"context"

	"github.com/dolthub/prollysync/chunk"
	"github.com/dolthub/prollysync/hash"
	"github.com/dolthub/prollysync/kv"
)

// AssertValidHash validates a ref hash before it is accepted by
// CreateChunk/PutChunk. The default accepts everything; callers may inject
// a stricter predicate (e.g. reject the zero hash as a ref).
type AssertValidHash func(hash.Hash) bool

func defaultAssertValidHash(hash.Hash) bool { return true }

// Store is a DAG store over a kv.Store backend.
type Store struct {
	backend     kv.Store
	hasher      hash.Hasher
	assertValid AssertValidHash
}

// Option configures a Store.
type Option func(*Store)

// WithHasher overrides the default content hasher.
func WithHasher(h hash.Hasher) Option {
	return func(s *Store) { s.hasher = h }
}

// WithAssertValidHash overrides the ref-hash validator.
func WithAssertValidHash(fn AssertValidHash) Option {
	return func(s *Store) { s.assertValid = fn }
}

// New wraps backend as a DAG store.
func New(backend kv.Store, opts ...Option) *Store {
	s := &Store{backend: backend, hasher: hash.Of, assertValid: defaultAssertValidHash}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read opens a read transaction.
func (s *Store) Read(ctx context.Context) (*ReadTx, error) {
	r, err := s.backend.Read(ctx)
	if err != nil {
		return nil, err
	}
	return &ReadTx{kv: r}, nil
}

// Write opens a write transaction.
func (s *Store) Write(ctx context.Context) (*WriteTx, error) {
	w, err := s.backend.Write(ctx)
	if err != nil {
		return nil, err
	}
	return &WriteTx{
		ReadTx:      ReadTx{kv: w},
		store:       s,
		putChunks:   map[hash.Hash]chunk.Chunk{},
		headChanges: map[string]headChange{},
	}, nil
}

// ReadTx is a read-only view of the DAG.
type ReadTx struct {
	kv kv.Read
}

// GetChunk returns the chunk for h, or ok=false if absent.
func (tx *ReadTx) GetChunk(ctx context.Context, h hash.Hash) (chunk.Chunk, bool, error) {
	if h.IsEmpty() {
		return chunk.Chunk{}, false, nil
	}
	data, ok, err := tx.kv.Get(ctx, dataKey(h))
	if err != nil || !ok {
		return chunk.Chunk{}, false, err
	}
	refsBytes, _, err := tx.kv.Get(ctx, refsKey(h))
	if err != nil {
		return chunk.Chunk{}, false, err
	}
	refs, err := decodeRefs(refsBytes)
	if err != nil {
		return chunk.Chunk{}, false, err
	}
	return chunk.FromParts(h, data, refs), true, nil
}

// HasChunk reports whether h is present.
func (tx *ReadTx) HasChunk(ctx context.Context, h hash.Hash) (bool, error) {
	if h.IsEmpty() {
		return false, nil
	}
	return tx.kv.Has(ctx, dataKey(h))
}

// MustGetChunk returns the chunk for h, or a ChunkNotFoundError.
func (tx *ReadTx) MustGetChunk(ctx context.Context, h hash.Hash) (chunk.Chunk, error) {
	c, ok, err := tx.GetChunk(ctx, h)
	if err != nil {
		return chunk.Chunk{}, err
	}
	if !ok {
		return chunk.Chunk{}, errChunkNotFound(h)
	}
	return c, nil
}

// GetHead returns the hash a named head points to, or ok=false if absent.
func (tx *ReadTx) GetHead(ctx context.Context, name string) (hash.Hash, bool, error) {
	b, ok, err := tx.kv.Get(ctx, headKey(name))
	if err != nil || !ok {
		return hash.Hash{}, false, err
	}
	if len(b) != hash.ByteLen {
		return hash.Hash{}, false, errCorruptRefs(len(b))
	}
	var h hash.Hash
	copy(h[:], b)
	return h, true, nil
}

// MustGetHead returns the hash head name points to, or a HeadMissingError.
func (tx *ReadTx) MustGetHead(ctx context.Context, name string) (hash.Hash, error) {
	h, ok, err := tx.GetHead(ctx, name)
	if err != nil {
		return hash.Hash{}, err
	}
	if !ok {
		return hash.Hash{}, errHeadMissing(name)
	}
	return h, nil
}

// Release ends the transaction.
func (tx *ReadTx) Release() {
	tx.kv.Release()
}
