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

package dag

import (
	"context"

	"github.com/dolthub/prollysync/chunk"
	"github.com/dolthub/prollysync/d"
	"github.com/dolthub/prollysync/hash"
	"github.com/dolthub/prollysync/kv"
)

type headChange struct {
	old    hash.Hash
	hadOld bool
	new    hash.Hash
	hasNew bool
}

// WriteTx is a single read/write DAG transaction. Like the backend it
// wraps, at most one WriteTx may be open at a time.
type WriteTx struct {
	ReadTx
	store       *Store
	putChunks   map[hash.Hash]chunk.Chunk
	headChanges map[string]headChange
}

func (tx *WriteTx) writeKV() kv.Write {
	return tx.kv.(kv.Write)
}

// CreateChunk hashes data with the store's hasher, validates refs, and
// stages the resulting chunk for this transaction. It does not become
// durable or reachable until Commit, and even then only if it ends up
// reachable from a head.
func (tx *WriteTx) CreateChunk(ctx context.Context, data []byte, refs hash.HashSet) (chunk.Chunk, error) {
	for r := range refs {
		if !tx.store.assertValid(r) {
			return chunk.Chunk{}, errInvalidHash(r)
		}
	}
	c, err := chunk.New(data, refs, tx.store.hasher)
	if err != nil {
		return chunk.Chunk{}, err
	}
	tx.putChunks[c.Hash()] = c
	return c, nil
}

// PutChunk stages an already-hashed chunk (e.g. one read from elsewhere)
// for this transaction, with the same reachability-gated durability as
// CreateChunk.
func (tx *WriteTx) PutChunk(ctx context.Context, c chunk.Chunk) error {
	if c.Refs().Has(c.Hash()) {
		return chunk.ErrSelfReference
	}
	for r := range c.Refs() {
		if !tx.store.assertValid(r) {
			return errInvalidHash(r)
		}
	}
	tx.putChunks[c.Hash()] = c
	return nil
}

// GetChunk overrides ReadTx.GetChunk to additionally observe this
// transaction's own staged-but-uncommitted puts (read-your-writes).
func (tx *WriteTx) GetChunk(ctx context.Context, h hash.Hash) (chunk.Chunk, bool, error) {
	if c, ok := tx.putChunks[h]; ok {
		return c, true, nil
	}
	return tx.ReadTx.GetChunk(ctx, h)
}

// HasChunk overrides ReadTx.HasChunk with the same read-your-writes
// behavior as GetChunk.
func (tx *WriteTx) HasChunk(ctx context.Context, h hash.Hash) (bool, error) {
	if _, ok := tx.putChunks[h]; ok {
		return true, nil
	}
	return tx.ReadTx.HasChunk(ctx, h)
}

// MustGetChunk overrides ReadTx.MustGetChunk to also see staged puts.
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
func (tx *WriteTx) GetHead(ctx context.Context, name string) (hash.Hash, bool, error) {
	if hc, ok := tx.headChanges[name]; ok {
		return hc.new, hc.hasNew, nil
	}
	return tx.ReadTx.GetHead(ctx, name)
}

// SetHead points name at h, staging a head update for Commit.
func (tx *WriteTx) SetHead(ctx context.Context, name string, h hash.Hash) error {
	hc, err := tx.pendingHeadChange(ctx, name)
	if err != nil {
		return err
	}
	hc.new, hc.hasNew = h, true
	tx.headChanges[name] = hc
	return nil
}

// RemoveHead deletes name, staging a head removal for Commit.
func (tx *WriteTx) RemoveHead(ctx context.Context, name string) error {
	hc, err := tx.pendingHeadChange(ctx, name)
	if err != nil {
		return err
	}
	hc.new, hc.hasNew = hash.Hash{}, false
	tx.headChanges[name] = hc
	return nil
}

func (tx *WriteTx) pendingHeadChange(ctx context.Context, name string) (headChange, error) {
	if hc, ok := tx.headChanges[name]; ok {
		return hc, nil
	}
	old, ok, err := tx.ReadTx.GetHead(ctx, name)
	if err != nil {
		return headChange{}, err
	}
	return headChange{old: old, hadOld: ok}, nil
}

// Commit runs the refcount GC algorithm and flushes all KV puts/deletes
// atomically. Invariant violations surfaced mid-GC (corrupt refcounts,
// malformed refs records) are recovered here into ordinary errors.
func (tx *WriteTx) Commit(ctx context.Context) error {
	err := d.Try(func() {
		d.PanicIfError(runGC(ctx, tx))
	})
	if err != nil {
		return err
	}
	return tx.writeKV().Commit(ctx)
}

// Release aborts the transaction, discarding all staged chunks and head
// changes.
func (tx *WriteTx) Release() {
	tx.writeKV().Release()
}
