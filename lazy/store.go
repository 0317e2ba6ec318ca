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

// Package lazy implements the memory tier above a slower source DAG
// store: an unbounded memory-only chunk set plus a byte-size-bounded
// LRU cache of chunks pulled from source, with its own independent
// refcount-based GC over its own heads.
package lazy

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dolthub/prollysync/chunk"
	"github.com/dolthub/prollysync/hash"
	"github.com/dolthub/prollysync/lock"
)

// Source fetches a chunk by hash from the slower backing store. It is
// injected rather than a concrete dependency on package dag so the lazy
// store can sit above any chunk source a caller wires up (typically a
// dag.Store read transaction, opened and released per fetch).
type Source func(ctx context.Context, h hash.Hash) (chunk.Chunk, bool, error)

// Store is the lazy two-tier store. All state is guarded by lck; readers
// and writers serialize the same way the backends below them do.
type Store struct {
	source     Source
	cacheLimit uint64
	lck        *lock.RWLock
	sf         singleflight.Group

	heads   map[string]hash.Hash
	memOnly map[hash.Hash]chunk.Chunk
	// refcounts and refs are keyed by every hash the lazy store has ever
	// resolved a reachability count for, whether memory-only or a source
	// chunk it has observed (loaded or written). Refs for an unobserved
	// source chunk are simply absent until first touched.
	refcounts map[hash.Hash]uint64
	refs      map[hash.Hash]hash.HashSet

	// cacheMu serializes cache (and refs) mutation on the read path: a
	// cache hit reorders the LRU list and a source fetch may insert, both
	// of which the store's RW lock alone permits from concurrent readers.
	cacheMu sync.Mutex
	cache   *byteLRU
}

// New constructs a lazy store over source, with its own head namespace and
// an LRU cache bounded to cacheLimit bytes.
func New(source Source, cacheLimit uint64, lck *lock.RWLock) *Store {
	if lck == nil {
		lck = lock.New(nil)
	}
	return &Store{
		source:     source,
		cacheLimit: cacheLimit,
		lck:        lck,
		heads:      map[string]hash.Hash{},
		memOnly:    map[hash.Hash]chunk.Chunk{},
		refcounts:  map[hash.Hash]uint64{},
		refs:       map[hash.Hash]hash.HashSet{},
		cache:      newByteLRU(cacheLimit),
	}
}

// Read opens a read transaction.
func (s *Store) Read(ctx context.Context) *ReadTx {
	release := s.lck.RLock()
	return &ReadTx{store: s, release: release}
}

// Write opens a write transaction. Only one may be open at a time.
func (s *Store) Write(ctx context.Context) *WriteTx {
	release := s.lck.Lock()
	return &WriteTx{
		ReadTx:             ReadTx{store: s, release: release},
		pendingHeadChanges: map[string]headChange{},
		pendingMemOnly:     map[hash.Hash]chunk.Chunk{},
		pendingCached:      map[hash.Hash]cachedEntry{},
		createdChunks:      hash.HashSet{},
	}
}

// ChunksPersisted moves hashes that are currently memory-only into the LRU
// cache, subject to its size limit. Called by the persist pipeline once
// those chunks are durable in source.
func (s *Store) ChunksPersisted(ctx context.Context, hashes []hash.Hash) {
	release := s.lck.Lock()
	defer release()
	for _, h := range hashes {
		c, ok := s.memOnly[h]
		if !ok {
			continue
		}
		delete(s.memOnly, h)
		s.cache.insert(h, c, uint64(len(c.Data())))
	}
}

// WithSuspendedEvictsAndDeletes runs fn with cache eviction and queued
// deletes suspended for its duration, applying them once fn returns.
// fn is expected to open its own read/write transactions against s,
// so the store's lock is not held while fn runs.
func (s *Store) WithSuspendedEvictsAndDeletes(fn func() error) error {
	release := s.lck.Lock()
	s.cache.beginSuspend()
	release()

	err := fn()

	release = s.lck.Lock()
	s.cache.endSuspend(func(h hash.Hash) bool { return s.refcounts[h] == 0 })
	release()
	return err
}

type cachedEntry struct {
	chunk chunk.Chunk
	size  uint64
}

// ReadTx is a read-only view of the lazy store.
type ReadTx struct {
	store   *Store
	release lock.Release
}

// GetChunk resolves h through the tiers in order: memory-only, then LRU
// cache, then source (caching the result iff it is currently reachable).
func (tx *ReadTx) GetChunk(ctx context.Context, h hash.Hash) (chunk.Chunk, bool, error) {
	if h.IsEmpty() {
		return chunk.Chunk{}, false, nil
	}
	s := tx.store
	if c, ok := s.memOnly[h]; ok {
		return c, true, nil
	}
	s.cacheMu.Lock()
	c, ok := s.cache.get(h)
	s.cacheMu.Unlock()
	if ok {
		return c, true, nil
	}
	return tx.fetchFromSource(ctx, h)
}

// fetchFromSource loads h from source, deduping concurrent misses for the
// same hash via singleflight, and caches the result iff h is currently
// reachable from this store's own heads.
func (tx *ReadTx) fetchFromSource(ctx context.Context, h hash.Hash) (chunk.Chunk, bool, error) {
	s := tx.store
	type result struct {
		c  chunk.Chunk
		ok bool
	}
	v, err, _ := s.sf.Do(h.String(), func() (interface{}, error) {
		c, ok, err := s.source(ctx, h)
		return result{c, ok}, err
	})
	if err != nil {
		return chunk.Chunk{}, false, err
	}
	r := v.(result)
	if !r.ok {
		return chunk.Chunk{}, false, nil
	}
	if s.refcounts[h] > 0 {
		s.cacheMu.Lock()
		s.cache.insert(h, r.c, uint64(len(r.c.Data())))
		if _, known := s.refs[h]; !known {
			s.refs[h] = r.c.Refs()
		}
		s.cacheMu.Unlock()
	}
	return r.c, true, nil
}

// HasChunk reports whether h is resolvable via GetChunk.
func (tx *ReadTx) HasChunk(ctx context.Context, h hash.Hash) (bool, error) {
	_, ok, err := tx.GetChunk(ctx, h)
	return ok, err
}

// IsMemoryOnly reports whether h is currently held in the memory-only tier
// (never yet persisted to source), as opposed to cached from source or
// absent entirely. Used by the persist pipeline's gather walk, which must
// stop descending once it reaches a hash already backed by source.
func (tx *ReadTx) IsMemoryOnly(h hash.Hash) bool {
	_, ok := tx.store.memOnly[h]
	return ok
}

// HasLocally reports whether h is already resolvable without a source
// fetch (memory-only or LRU-cached). Unlike HasChunk, it never triggers
// fetchFromSource, so the refresh pipeline's gather walk can ask "do we
// already have this" without paying for (or racing) a source read.
func (tx *ReadTx) HasLocally(h hash.Hash) bool {
	s := tx.store
	if _, ok := s.memOnly[h]; ok {
		return true
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cache.has(h)
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
func (tx *ReadTx) GetHead(name string) (hash.Hash, bool) {
	h, ok := tx.store.heads[name]
	return h, ok
}

// Release ends the transaction.
func (tx *ReadTx) Release() {
	tx.release()
}
