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
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/dolthub/prollysync/chunk"
	"github.com/dolthub/prollysync/dag"
	"github.com/dolthub/prollysync/diff"
	"github.com/dolthub/prollysync/hash"
	"github.com/dolthub/prollysync/lazy"
	"github.com/dolthub/prollysync/prolly"
)

// Closed is polled at each protocol stage; when it reports true, Persist
// and Refresh abort cleanly without writing. A
// nil Closed is treated as "never".
type Closed func() bool

func (c Closed) hit() bool { return c != nil && c() }

// Options bundles the parameters Persist and Refresh need beyond the two
// stores themselves: the tree's own partition/format configuration (so a
// rebase produces nodes shaped the same as everything else in the tree),
// the cookie comparator, a cancellation predicate, and a logger.
type Options struct {
	Config  prolly.PartitionConfig
	Format  prolly.FormatVersion
	Compare CookieCompare
	Closed  Closed
	Log     *zap.Logger

	// GatherBudget bounds how many bytes of source chunks one Refresh pass
	// gathers (config.Params.RefreshGatherBudget).
	GatherBudget uint64
	// Backoff is how long Refresh sleeps between its source-side gather
	// and its memory-side apply (config.Params.RefreshBackoff).
	Backoff time.Duration
}

func (o Options) log() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}

// Persist moves a newer memory-tier snapshot into the source dag.Store so
// source reflects at least that snapshot. aborted
// is true only when Closed fired; err is nil in that case, per the
// cancellation contract ("a clean abort, not an error").
func Persist(ctx context.Context, memStore *lazy.Store, srcStore *dag.Store, clientGroup string, opts Options) (aborted bool, err error) {
	if opts.Closed.hit() {
		return true, nil
	}

	// Step 1: under a source read, the client-group's current snapshot.
	srcRtx, err := srcStore.Read(ctx)
	if err != nil {
		return false, err
	}
	srcHeadHash, hasSrcHead, err := srcRtx.GetHead(ctx, cgHead(clientGroup))
	if err != nil {
		srcRtx.Release()
		return false, err
	}
	var srcSnap Snapshot
	if hasSrcHead {
		srcSnap, err = loadSnapshot(ctx, srcRtx, srcHeadHash)
		if err != nil {
			srcRtx.Release()
			return false, err
		}
	}
	srcRtx.Release()

	if opts.Closed.hit() {
		return true, nil
	}

	// Step 2: under a memory read, this client's current snapshot and its
	// mutations beyond whatever source was last persisted from.
	memRtx := memStore.Read(ctx)
	memHeadHash, hasMemHead := memRtx.GetHead(cgHead(clientGroup))
	if !hasMemHead {
		memRtx.Release()
		return false, nil
	}
	memCur, err := loadSnapshot(ctx, memRtx, memHeadHash)
	if err != nil {
		memRtx.Release()
		return false, err
	}

	var ops []diff.Entry
	if hasSrcHead {
		memBase, err := findAncestorByLMID(ctx, memRtx, memHeadHash, srcSnap.LMID)
		if err != nil {
			memRtx.Release()
			return false, err
		}
		ops, err = diff.Trees(ctx, memRtx, memBase.Root, memCur.Root)
		if err != nil {
			memRtx.Release()
			return false, err
		}
	}

	newer := !hasSrcHead || opts.Compare(memCur.Cookie, srcSnap.Cookie) > 0

	var gathered []chunk.Chunk
	if newer {
		gathered, err = gatherMemoryOnly(ctx, memRtx, memCur.Root)
		if err != nil {
			memRtx.Release()
			return false, err
		}
	}
	memRtx.Release()

	if opts.Closed.hit() {
		return true, nil
	}

	// Step 4: under a source write, re-check and commit.
	srcWtx, err := srcStore.Write(ctx)
	if err != nil {
		return false, err
	}

	curSrcHeadHash, hasCurSrcHead, err := srcWtx.GetHead(ctx, cgHead(clientGroup))
	if err != nil {
		srcWtx.Release()
		return false, err
	}
	var curSrcSnap Snapshot
	if hasCurSrcHead {
		curSrcSnap, err = loadSnapshot(ctx, srcWtx, curSrcHeadHash)
		if err != nil {
			srcWtx.Release()
			return false, err
		}
	}
	stillNewer := !hasCurSrcHead || opts.Compare(memCur.Cookie, curSrcSnap.Cookie) > 0

	var newRoot hash.Hash
	newCookie := curSrcSnap.Cookie
	if stillNewer {
		for _, c := range gathered {
			if err := srcWtx.PutChunk(ctx, c); err != nil {
				srcWtx.Release()
				return false, err
			}
		}
		newRoot = memCur.Root
		newCookie = memCur.Cookie
	} else {
		newRoot, err = rebaseOntoNewBase(ctx, srcWtx, prolly.DagChunkWriter(srcWtx), opts.Config, opts.Format, curSrcSnap.Root, ops)
		if err != nil {
			srcWtx.Release()
			return false, err
		}
	}

	newSnap := Snapshot{Root: newRoot, Cookie: newCookie, LMID: memCur.LMID, Parent: curSrcHeadHash}
	newSnapChunk, err := srcWtx.CreateChunk(ctx, encodeSnapshot(newSnap), newSnap.refs())
	if err != nil {
		srcWtx.Release()
		return false, err
	}
	if err := srcWtx.SetHead(ctx, cgHead(clientGroup), newSnapChunk.Hash()); err != nil {
		srcWtx.Release()
		return false, err
	}
	if err := srcWtx.Commit(ctx); err != nil {
		return false, err
	}

	if stillNewer && len(gathered) > 0 {
		hashes := make([]hash.Hash, len(gathered))
		for i, c := range gathered {
			hashes[i] = c.Hash()
		}
		memStore.ChunksPersisted(ctx, hashes)
		opts.log().Info("persist: migrated memory-only chunks to source",
			zap.String("client_group", clientGroup),
			zap.Int("chunk_count", len(hashes)),
			zap.String("bytes", humanize.Bytes(totalBytes(gathered))),
		)
	}
	return false, nil
}
