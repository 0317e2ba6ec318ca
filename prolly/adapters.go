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
	"context"

	"github.com/dolthub/prollysync/dag"
	"github.com/dolthub/prollysync/hash"
	"github.com/dolthub/prollysync/lazy"
)

// DagChunkWriter adapts a dag.WriteTx to ChunkWriter, for a Tree that
// flushes nodes straight into the durable DAG store.
func DagChunkWriter(tx *dag.WriteTx) ChunkWriter {
	return dagChunkWriter{tx}
}

type dagChunkWriter struct{ tx *dag.WriteTx }

func (a dagChunkWriter) PutNodeChunk(ctx context.Context, data []byte, refs hash.HashSet) (hash.Hash, error) {
	c, err := a.tx.CreateChunk(ctx, data, refs)
	if err != nil {
		return hash.Hash{}, err
	}
	return c.Hash(), nil
}

// LazyChunkWriter adapts a lazy.WriteTx to ChunkWriter, for a Tree whose
// nodes should land in the lazy store's memory-only tier first.
func LazyChunkWriter(tx *lazy.WriteTx, hasher hash.Hasher) ChunkWriter {
	return lazyChunkWriter{tx, hasher}
}

type lazyChunkWriter struct {
	tx     *lazy.WriteTx
	hasher hash.Hasher
}

func (a lazyChunkWriter) PutNodeChunk(ctx context.Context, data []byte, refs hash.HashSet) (hash.Hash, error) {
	c, err := a.tx.CreateChunk(data, refs, a.hasher)
	if err != nil {
		return hash.Hash{}, err
	}
	return c.Hash(), nil
}
