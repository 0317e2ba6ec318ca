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

package diff

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/prollysync/chunk"
	"github.com/dolthub/prollysync/dag"
	"github.com/dolthub/prollysync/hash"
	"github.com/dolthub/prollysync/kv/memkv"
	"github.com/dolthub/prollysync/prolly"
)

var cfg = prolly.PartitionConfig{MinSize: 24, MaxSize: 64}

// poisonStore fails any GetChunk call, letting a test assert that a diff
// over identical roots never touches the underlying store.
type poisonStore struct{ t *testing.T }

func (p poisonStore) GetChunk(ctx context.Context, h hash.Hash) (chunk.Chunk, bool, error) {
	p.t.Fatalf("unexpected GetChunk(%s) on identical roots", h)
	return chunk.Chunk{}, false, nil
}

func buildTree(t *testing.T, ctx context.Context, kvs []prolly.KV) (*dag.Store, hash.Hash) {
	t.Helper()
	store := dag.New(memkv.New())
	wtx, err := store.Write(ctx)
	require.NoError(t, err)

	tr := prolly.NewTree(wtx, prolly.DagChunkWriter(wtx), nil, cfg, prolly.FormatA, hash.EmptyHash)
	require.NoError(t, tr.PutMany(ctx, kvs))

	root, err := tr.Flush(ctx)
	require.NoError(t, err)
	require.NoError(t, wtx.SetHead(ctx, "main", root))
	require.NoError(t, wtx.Commit(ctx))
	return store, root
}

func kv(k, v string) prolly.KV { return prolly.KV{Key: []byte(k), Value: []byte(v)} }

func TestDiffTreesIdenticalRootsShortCircuit(t *testing.T) {
	ctx := context.Background()
	_, root := buildTree(t, ctx, []prolly.KV{kv("a", "1")})

	entries, err := Trees(ctx, poisonStore{t}, root, root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiffTreesAddRemoveChange(t *testing.T) {
	ctx := context.Background()

	storeA, rootA := buildTree(t, ctx, []prolly.KV{
		kv("a", "1"),
		kv("b", "2"),
		kv("c", "3"),
	})

	wtx, err := storeA.Write(ctx)
	require.NoError(t, err)
	trB := prolly.NewTree(wtx, prolly.DagChunkWriter(wtx), nil, cfg, prolly.FormatA, rootA)
	require.NoError(t, trB.Put(ctx, []byte("b"), []byte("2-changed")))
	_, err = trB.Del(ctx, []byte("c"))
	require.NoError(t, err)
	require.NoError(t, trB.Put(ctx, []byte("d"), []byte("4")))
	rootB, err := trB.Flush(ctx)
	require.NoError(t, err)
	// Point a second head at rootB so GC on this commit keeps its new
	// chunks; rootA stays reachable under head "main" from buildTree.
	require.NoError(t, wtx.SetHead(ctx, "root-b", rootB))
	require.NoError(t, wtx.Commit(ctx))

	rtx, err := storeA.Read(ctx)
	require.NoError(t, err)
	defer rtx.Release()

	entries, err := Trees(ctx, rtx, rootA, rootB)
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, Change, entries[0].Op)
	assert.Equal(t, []byte("b"), entries[0].Key)
	assert.Equal(t, []byte("2"), entries[0].OldValue)
	assert.Equal(t, []byte("2-changed"), entries[0].NewValue)

	assert.Equal(t, Remove, entries[1].Op)
	assert.Equal(t, []byte("c"), entries[1].Key)

	assert.Equal(t, Add, entries[2].Op)
	assert.Equal(t, []byte("d"), entries[2].Key)
	assert.Equal(t, []byte("4"), entries[2].NewValue)
}

func TestDiffTreesAcrossPartitionBoundariesSkipsIdenticalSubtrees(t *testing.T) {
	ctx := context.Background()

	var kvs []prolly.KV
	for i := 0; i < 64; i++ {
		kvs = append(kvs, kv(fmt.Sprintf("key-%03d", i), fmt.Sprintf("value-%03d", i)))
	}
	storeA, rootA := buildTree(t, ctx, kvs)

	wtx, err := storeA.Write(ctx)
	require.NoError(t, err)
	trB := prolly.NewTree(wtx, prolly.DagChunkWriter(wtx), nil, cfg, prolly.FormatA, rootA)
	require.NoError(t, trB.Put(ctx, []byte("key-063"), []byte("value-063-changed")))
	rootB, err := trB.Flush(ctx)
	require.NoError(t, err)
	require.NoError(t, wtx.SetHead(ctx, "root-b", rootB))
	require.NoError(t, wtx.Commit(ctx))

	rtx, err := storeA.Read(ctx)
	require.NoError(t, err)
	defer rtx.Release()

	entries, err := Trees(ctx, rtx, rootA, rootB)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, Change, entries[0].Op)
	assert.Equal(t, []byte("key-063"), entries[0].Key)
}

func TestToSplicesGroupsContiguousChanges(t *testing.T) {
	entries := []Entry{
		{Op: Remove, Key: []byte("a")},
		{Op: Change, Key: []byte("b")},
		{Op: Add, Key: []byte("c")},
	}
	splices := ToSplices(entries)
	require.Len(t, splices, 1)
	assert.Len(t, splices[0].Removed, 2)
	assert.Len(t, splices[0].Added, 1)
}

func TestToSplicesSeparatesNonContiguousRuns(t *testing.T) {
	entries := []Entry{
		{Op: Add, Key: []byte("a")},
		{Op: Remove, Key: []byte("z")},
	}
	splices := ToSplices(entries)
	require.Len(t, splices, 2)
	assert.Len(t, splices[0].Added, 1)
	assert.Len(t, splices[1].Removed, 1)
}
