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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/prollysync/chunk"
	"github.com/dolthub/prollysync/hash"
)

// memSource is a fixture Source backed by a plain map, for tests that don't
// need a real dag.Store.
type memSource struct {
	chunks  map[hash.Hash]chunk.Chunk
	fetches int
}

func newMemSource() *memSource {
	return &memSource{chunks: map[hash.Hash]chunk.Chunk{}}
}

func (s *memSource) fetch(ctx context.Context, h hash.Hash) (chunk.Chunk, bool, error) {
	s.fetches++
	c, ok := s.chunks[h]
	return c, ok, nil
}

func (s *memSource) put(c chunk.Chunk) {
	s.chunks[c.Hash()] = c
}

func mustChunk(t *testing.T, data string, refs ...hash.Hash) chunk.Chunk {
	t.Helper()
	set := hash.NewHashSet(refs...)
	c, err := chunk.New([]byte(data), set, hash.Of)
	require.NoError(t, err)
	return c
}

func TestLazyStoreCreateAndCommitReachable(t *testing.T) {
	ctx := context.Background()
	src := newMemSource()
	s := New(src.fetch, 1<<20, nil)

	leaf := mustChunk(t, "leaf")

	tx := s.Write(ctx)
	c, err := tx.CreateChunk([]byte("leaf"), nil, hash.Of)
	require.NoError(t, err)
	assert.Equal(t, leaf.Hash(), c.Hash())
	tx.SetHead("main", c.Hash())
	require.NoError(t, tx.Commit(ctx))
	tx.Release()

	rtx := s.Read(ctx)
	defer rtx.Release()
	got, ok, err := rtx.GetChunk(ctx, leaf.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("leaf"), got.Data())

	h, ok := rtx.GetHead("main")
	require.True(t, ok)
	assert.Equal(t, leaf.Hash(), h)
}

func TestLazyStoreUnreachableChunkDroppedOnCommit(t *testing.T) {
	ctx := context.Background()
	src := newMemSource()
	s := New(src.fetch, 1<<20, nil)

	tx := s.Write(ctx)
	c, err := tx.CreateChunk([]byte("orphan"), nil, hash.Of)
	require.NoError(t, err)
	// Never set a head pointing at c.
	require.NoError(t, tx.Commit(ctx))
	tx.Release()

	rtx := s.Read(ctx)
	defer rtx.Release()
	_, ok, err := rtx.GetChunk(ctx, c.Hash())
	require.NoError(t, err)
	assert.False(t, ok, "unreachable chunk should have been dropped by GC")
	assert.Zero(t, s.refcounts[c.Hash()])
}

func TestLazyStoreReadCachesReachableSourceChunk(t *testing.T) {
	ctx := context.Background()
	src := newMemSource()
	leaf := mustChunk(t, "from-source")
	src.put(leaf)
	s := New(src.fetch, 1<<20, nil)
	s.refcounts[leaf.Hash()] = 1 // simulate reachability already established

	rtx := s.Read(ctx)
	_, ok, err := rtx.GetChunk(ctx, leaf.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	rtx.Release()

	_, cached := s.cache.get(leaf.Hash())
	assert.True(t, cached, "reachable source chunk should be cached on read")
}

func TestLazyStoreReadDoesNotCacheUnreachableSourceChunk(t *testing.T) {
	ctx := context.Background()
	src := newMemSource()
	leaf := mustChunk(t, "from-source")
	src.put(leaf)
	s := New(src.fetch, 1<<20, nil)
	// refcounts[leaf.Hash()] left at zero: not (yet) reachable from lazy heads.

	rtx := s.Read(ctx)
	_, ok, err := rtx.GetChunk(ctx, leaf.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	rtx.Release()

	_, cached := s.cache.get(leaf.Hash())
	assert.False(t, cached)
}

func TestChunksPersistedMovesMemOnlyToCache(t *testing.T) {
	ctx := context.Background()
	src := newMemSource()
	s := New(src.fetch, 1<<20, nil)

	tx := s.Write(ctx)
	c, err := tx.CreateChunk([]byte("x"), nil, hash.Of)
	require.NoError(t, err)
	tx.SetHead("main", c.Hash())
	require.NoError(t, tx.Commit(ctx))
	tx.Release()

	_, stillMemOnly := s.memOnly[c.Hash()]
	require.True(t, stillMemOnly)

	s.ChunksPersisted(ctx, []hash.Hash{c.Hash()})

	_, memOnly := s.memOnly[c.Hash()]
	assert.False(t, memOnly)
	_, cached := s.cache.get(c.Hash())
	assert.True(t, cached)
}

func TestWithSuspendedEvictsAndDeletesDefersEviction(t *testing.T) {
	ctx := context.Background()
	src := newMemSource()
	s := New(src.fetch, 4, nil) // room for exactly one 4-byte chunk

	tx := s.Write(ctx)
	a, err := tx.CreateChunk([]byte("aaaa"), nil, hash.Of)
	require.NoError(t, err)
	tx.SetHead("main", a.Hash())
	require.NoError(t, tx.Commit(ctx))
	tx.Release()
	s.ChunksPersisted(ctx, []hash.Hash{a.Hash()})
	b := mustChunk(t, "bbbb")

	err = s.WithSuspendedEvictsAndDeletes(func() error {
		// While suspended, a second insert over budget would normally
		// evict immediately; here eviction is deferred until the scope
		// exits.
		s.cache.insert(b.Hash(), b, uint64(len(b.Data())))
		assert.True(t, s.cache.has(a.Hash()))
		assert.True(t, s.cache.has(b.Hash()))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, s.cache.has(a.Hash()), "oldest entry is evicted once the scope exits")
	assert.True(t, s.cache.has(b.Hash()))
}
