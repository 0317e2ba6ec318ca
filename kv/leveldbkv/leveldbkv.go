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

// Package leveldbkv is a durable kv.Store backed by goleveldb. A single
// process-wide RWMutex gives the strict-serializable isolation the core
// requires (goleveldb snapshots give repeatable reads, but the core also
// needs a single-writer guarantee across transactions, which goleveldb
// does not provide on its own). Every value is snappy-compressed before it
// hits the LSM tree when that makes it smaller, and decompressed on read.
package leveldbkv

import (
	"bytes"
	"context"
	"sync"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/dolthub/prollysync/kv"
)

// compressPrefix marks values stored snappy-compressed and rawPrefix values
// stored as is (compression would not have shrunk them), so Get knows
// which form it is reading.
const compressPrefix = byte(1)
const rawPrefix = byte(0)

// Store is a durable kv.Store.
type Store struct {
	mu sync.RWMutex
	db *leveldb.DB
}

// Open opens (creating if needed) a leveldb database at dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "opening leveldb store")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeValue(v []byte) []byte {
	compressed := snappy.Encode(nil, v)
	if len(compressed) < len(v) {
		return append([]byte{compressPrefix}, compressed...)
	}
	return append([]byte{rawPrefix}, v...)
}

func decodeValue(v []byte) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	switch v[0] {
	case compressPrefix:
		return snappy.Decode(nil, v[1:])
	case rawPrefix:
		return v[1:], nil
	default:
		return nil, errors.Errorf("leveldbkv: unknown value prefix %d", v[0])
	}
}

// Read opens a snapshot read transaction.
func (s *Store) Read(ctx context.Context) (kv.Read, error) {
	s.mu.RLock()
	snap, err := s.db.GetSnapshot()
	if err != nil {
		s.mu.RUnlock()
		return nil, errors.Wrap(err, "opening leveldb snapshot")
	}
	return &ReadTx{store: s, snap: snap}, nil
}

// Write opens the single write transaction.
func (s *Store) Write(ctx context.Context) (kv.Write, error) {
	s.mu.Lock()
	batch := new(leveldb.Batch)
	return &WriteTx{store: s, batch: batch}, nil
}

// ReadTx is a point-in-time snapshot view.
type ReadTx struct {
	store    *Store
	snap     *leveldb.Snapshot
	released bool
}

// Has reports whether key is present in the snapshot.
func (r *ReadTx) Has(ctx context.Context, key []byte) (bool, error) {
	ok, err := r.snap.Has(key, nil)
	if err != nil {
		return false, errors.Wrap(err, "leveldbkv has")
	}
	return ok, nil
}

// Get returns the (decompressed) value for key.
func (r *ReadTx) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	raw, err := r.snap.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "leveldbkv get")
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Release ends the read transaction and its snapshot.
func (r *ReadTx) Release() {
	if r.released {
		return
	}
	r.released = true
	r.snap.Release()
	r.store.mu.RUnlock()
}

// pendingOp records one buffered mutation in commit order, so read-your-
// writes can replay the log newest-first to find the latest state of a key.
type pendingOp struct {
	key     []byte
	value   []byte
	deleted bool
}

// WriteTx buffers a leveldb batch.
type WriteTx struct {
	store    *Store
	batch    *leveldb.Batch
	released bool
	ops      []pendingOp
}

// Has reports presence, honoring the transaction's own buffered writes.
func (w *WriteTx) Has(ctx context.Context, key []byte) (bool, error) {
	_, ok, err := w.Get(ctx, key)
	return ok, err
}

// Get honors read-your-writes over the buffered batch before falling back
// to the committed database state.
func (w *WriteTx) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	for i := len(w.ops) - 1; i >= 0; i-- {
		if bytes.Equal(w.ops[i].key, key) {
			if w.ops[i].deleted {
				return nil, false, nil
			}
			return w.ops[i].value, true, nil
		}
	}
	raw, err := w.store.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "leveldbkv get")
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put buffers an encoded value into the pending batch.
func (w *WriteTx) Put(ctx context.Context, key, value []byte) error {
	w.batch.Put(key, encodeValue(value))
	w.ops = append(w.ops, pendingOp{key: key, value: value})
	return nil
}

// Del buffers a delete into the pending batch.
func (w *WriteTx) Del(ctx context.Context, key []byte) error {
	w.batch.Delete(key)
	w.ops = append(w.ops, pendingOp{key: key, deleted: true})
	return nil
}

// Commit flushes the batch to disk atomically.
func (w *WriteTx) Commit(ctx context.Context) error {
	if w.released {
		return nil
	}
	err := w.store.db.Write(w.batch, &opt.WriteOptions{Sync: true})
	w.Release()
	if err != nil {
		return errors.Wrap(err, "leveldbkv commit")
	}
	return nil
}

// Release discards the batch without writing it.
func (w *WriteTx) Release() {
	if w.released {
		return
	}
	w.released = true
	w.store.mu.Unlock()
}
