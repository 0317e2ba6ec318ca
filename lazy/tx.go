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

package lazy

import (
	"context"

	"github.com/dolthub/prollysync/chunk"
	"github.com/dolthub/prollysync/d"
	"github.com/dolthub/prollysync/hash"
)

type headChange struct {
	old    hash.Hash
	hadOld bool
	new    hash.Hash
	hasNew bool
}

// WriteTx is a single lazy-store write transaction. It buffers head
// changes, chunks produced by this write, source chunks materialized
// during it, and the set of freshly hashed chunks until Commit.
type WriteTx struct {
	ReadTx
	pendingHeadChanges map[string]headChange
	pendingMemOnly     map[hash.Hash]chunk.Chunk
	pendingCached      map[hash.Hash]cachedEntry
	createdChunks      hash.HashSet
}

// CreateChunk hashes data as a fresh memory-only chunk, staged for this
// write. It is not reachable, and so not durable past this transaction,
// until Commit resolves it as referenced by a head.
func (tx *WriteTx) CreateChunk(data []byte, refs hash.HashSet, hasher hash.Hasher) (chunk.Chunk, error) {
	c, err := chunk.New(data, refs, hasher)
	if err != nil {
		return chunk.Chunk{}, err
	}
	tx.pendingMemOnly[c.Hash()] = c
	tx.createdChunks.Insert(c.Hash())
	return c, nil
}

// materialize stages a source chunk as a pending cached chunk, e.g. when
// refresh pulls a chunk from source into the lazy store directly rather
// than through the lazy GetChunk on-demand path.
func (tx *WriteTx) materialize(c chunk.Chunk) {
	tx.pendingCached[c.Hash()] = cachedEntry{chunk: c, size: uint64(len(c.Data()))}
}

// Materialize stages a chunk fetched from source as a cached chunk in this
// write, without going through the on-demand GetChunk path. Exported for
// the refresh pipeline, which gathers chunks from source itself (bounded by
// a byte budget) and then hands them to the memory tier in bulk.
func (tx *WriteTx) Materialize(c chunk.Chunk) {
	tx.materialize(c)
}

// GetChunk overrides ReadTx.GetChunk to also observe this transaction's own
// pending writes (read-your-writes).
func (tx *WriteTx) GetChunk(ctx context.Context, h hash.Hash) (chunk.Chunk, bool, error) {
	if c, ok := tx.pendingMemOnly[h]; ok {
		return c, true, nil
	}
	if e, ok := tx.pendingCached[h]; ok {
		return e.chunk, true, nil
	}
	return tx.ReadTx.GetChunk(ctx, h)
}

// HasChunk overrides ReadTx.HasChunk with the same read-your-writes
// behavior as GetChunk.
func (tx *WriteTx) HasChunk(ctx context.Context, h hash.Hash) (bool, error) {
	_, ok, err := tx.GetChunk(ctx, h)
	return ok, err
}

// MustGetChunk overrides ReadTx.MustGetChunk to also see pending writes.
func (tx *WriteTx) MustGetChunk(ctx context.Context, h hash.Hash) (chunk.Chunk, error) {
	c, ok, err := tx.GetChunk(ctx, h)
	if err != nil {
		return chunk.Chunk{}, err
	}
	if !ok {
		return chunk.Chunk{}, errChunkNotFound(h)
	}
	return c, nil
}

// GetHead overrides ReadTx.GetHead to observe this transaction's own
// pending head changes.
func (tx *WriteTx) GetHead(name string) (hash.Hash, bool) {
	if hc, ok := tx.pendingHeadChanges[name]; ok {
		return hc.new, hc.hasNew
	}
	return tx.ReadTx.GetHead(name)
}

// SetHead points name at h, staging a head update for Commit.
func (tx *WriteTx) SetHead(name string, h hash.Hash) {
	hc := tx.pendingHeadChange(name)
	hc.new, hc.hasNew = h, true
	tx.pendingHeadChanges[name] = hc
}

// RemoveHead removes name, staging a head removal for Commit.
func (tx *WriteTx) RemoveHead(name string) {
	hc := tx.pendingHeadChange(name)
	hc.new, hc.hasNew = hash.Hash{}, false
	tx.pendingHeadChanges[name] = hc
}

func (tx *WriteTx) pendingHeadChange(name string) headChange {
	if hc, ok := tx.pendingHeadChanges[name]; ok {
		return hc
	}
	old, ok := tx.ReadTx.GetHead(name)
	return headChange{old: old, hadOld: ok}
}

// Commit runs the lazy store's own refcount GC pass against the store's
// refcount/refs tables, then applies head changes. Invariant violations
// surfaced mid-GC are recovered here into ordinary errors.
func (tx *WriteTx) Commit(ctx context.Context) error {
	return d.Try(func() {
		d.PanicIfError(runGC(ctx, tx))
	})
}

// Release discards all staged chunks and head changes without applying
// them.
func (tx *WriteTx) Release() {
	tx.ReadTx.Release()
}
