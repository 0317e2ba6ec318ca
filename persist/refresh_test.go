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

package persist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/prollysync/hash"
	"github.com/dolthub/prollysync/prolly"
)

func TestRefreshPullsSourceStateIntoMemory(t *testing.T) {
	ctx := context.Background()
	src, mem := newHarness(t)

	srcWtx, err := src.Write(ctx)
	require.NoError(t, err)
	root := putTree(t, ctx, srcWtx, prolly.DagChunkWriter(srcWtx), hash.Hash{}, map[string]string{"x": "9"})
	snap := Snapshot{Root: root, Cookie: Cookie("s1")}
	c, err := srcWtx.CreateChunk(ctx, encodeSnapshot(snap), snap.refs())
	require.NoError(t, err)
	require.NoError(t, srcWtx.SetHead(ctx, cgHead("client3"), c.Hash()))
	require.NoError(t, srcWtx.Commit(ctx))
	srcWtx.Release()

	opts := Options{Config: testCfg, Format: prolly.FormatA, Compare: bytesCompare, GatherBudget: 1 << 20, Backoff: time.Millisecond}
	aborted, err := Refresh(ctx, mem, src, "client3", opts)
	require.NoError(t, err)
	assert.False(t, aborted)

	memRtx := mem.Read(ctx)
	defer memRtx.Release()
	headHash, ok := memRtx.GetHead(cgHead("client3"))
	require.True(t, ok)
	memSnap, err := loadSnapshot(ctx, memRtx, headHash)
	require.NoError(t, err)
	assert.Equal(t, root, memSnap.Root)

	reader := prolly.NewReader(memRtx, nil, memSnap.Root)
	v, ok, err := reader.Get(ctx, []byte("x"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("9"), v)

	// The refresh-pin head is removed once the memory side picks the
	// gathered chunks up.
	srcRtx, err := src.Read(ctx)
	require.NoError(t, err)
	defer srcRtx.Release()
	_, hasPin, err := srcRtx.GetHead(ctx, refreshPinHead("client3"))
	require.NoError(t, err)
	assert.False(t, hasPin)
}

func TestRefreshNoSourceHeadIsNoop(t *testing.T) {
	ctx := context.Background()
	src, mem := newHarness(t)
	opts := Options{Config: testCfg, Format: prolly.FormatA, Compare: bytesCompare, GatherBudget: 1 << 20, Backoff: time.Millisecond}
	aborted, err := Refresh(ctx, mem, src, "nobody", opts)
	require.NoError(t, err)
	assert.False(t, aborted)
}

func TestRefreshClosedAfterGatherLeavesMemoryUntouchedAndPins(t *testing.T) {
	ctx := context.Background()
	src, mem := newHarness(t)

	srcWtx, err := src.Write(ctx)
	require.NoError(t, err)
	root := putTree(t, ctx, srcWtx, prolly.DagChunkWriter(srcWtx), hash.Hash{}, map[string]string{"x": "9"})
	snap := Snapshot{Root: root, Cookie: Cookie("s1")}
	c, err := srcWtx.CreateChunk(ctx, encodeSnapshot(snap), snap.refs())
	require.NoError(t, err)
	require.NoError(t, srcWtx.SetHead(ctx, cgHead("client4"), c.Hash()))
	require.NoError(t, srcWtx.Commit(ctx))
	srcWtx.Release()

	// closed() reports false on its first two polls (entry, post-gather) and
	// true afterward, so gather+pin commits but the memory-side apply never
	// runs.
	calls := 0
	closed := func() bool {
		calls++
		return calls > 2
	}
	opts := Options{Config: testCfg, Format: prolly.FormatA, Compare: bytesCompare, GatherBudget: 1 << 20, Backoff: time.Millisecond, Closed: closed}
	aborted, err := Refresh(ctx, mem, src, "client4", opts)
	require.NoError(t, err)
	assert.True(t, aborted)

	memRtx := mem.Read(ctx)
	defer memRtx.Release()
	_, hasMemHead := memRtx.GetHead(cgHead("client4"))
	assert.False(t, hasMemHead, "memory side should be untouched by an aborted refresh")

	srcRtx, err := src.Read(ctx)
	require.NoError(t, err)
	defer srcRtx.Release()
	pinHash, hasPin, err := srcRtx.GetHead(ctx, refreshPinHead("client4"))
	require.NoError(t, err)
	assert.True(t, hasPin, "gathered chunks should remain pinned across an abort")
	assert.Equal(t, c.Hash(), pinHash)
}
