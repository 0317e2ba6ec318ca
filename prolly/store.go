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

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dolthub/prollysync/chunk"
	"github.com/dolthub/prollysync/hash"
)

// ChunkReader is the read-side dependency a Reader or Tree needs from
// whatever chunk source sits beneath it — a dag.ReadTx/WriteTx or a
// lazy.ReadTx/WriteTx each already expose a method with this exact
// signature, so no adapter is needed for reads.
type ChunkReader interface {
	GetChunk(ctx context.Context, h hash.Hash) (chunk.Chunk, bool, error)
}

// ChunkWriter is the write-side dependency a Tree needs: somewhere to
// durably place a freshly-hashed node chunk. dag.WriteTx and lazy.WriteTx
// have incompatible CreateChunk signatures (the latter has no ctx and
// takes an explicit hasher), so each gets a small adapter in adapters.go.
type ChunkWriter interface {
	PutNodeChunk(ctx context.Context, data []byte, refs hash.HashSet) (hash.Hash, error)
}

// decodedNodeCache is a count-bounded cache of decoded Node values keyed by
// chunk hash, so a cursor revisiting the same node hash along a shared
// prefix of two trees (common during diff) doesn't re-parse it from bytes
// every time.
type decodedNodeCache struct {
	cache *lru.Cache[hash.Hash, *Node]
}

// defaultCacheSize is the decoded-node cache's entry count bound. It isn't
// one of config.Params because it bounds a pure decode-memoization layer,
// not a semantic knob.
const defaultCacheSize = 4096

func newDecodedNodeCache() *decodedNodeCache {
	c, _ := lru.New[hash.Hash, *Node](defaultCacheSize)
	return &decodedNodeCache{cache: c}
}

// loadNode fetches and decodes the node at h, consulting/populating the
// decoded-node cache. A Node is immutable once flushed, so a cached decode
// is safe to hand out and reuse across callers.
func loadNode(ctx context.Context, r ChunkReader, cache *decodedNodeCache, h hash.Hash) (*Node, error) {
	if cache != nil {
		if n, ok := cache.cache.Get(h); ok {
			return n, nil
		}
	}
	c, ok, err := r.GetChunk(ctx, h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errChunkNotFound(h)
	}
	n, err := decodeNode(c.Data())
	if err != nil {
		return nil, err
	}
	n.hash = h
	n.hashed = true
	if cache != nil {
		cache.cache.Add(h, n)
	}
	return n, nil
}
