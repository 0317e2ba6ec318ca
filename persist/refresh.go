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

// refreshPinHead protects chunks gathered in step 1 from the source store's
// own GC between the gather and the (possibly much later) memory-side
// apply, without needing a separate pin mechanism: it is just another head,
// removed once the memory side has durably picked the chunks up.
func refreshPinHead(clientGroup string) string { return "refresh-pin/" + clientGroup }

// Refresh pulls newer source-side state into the memory tier for
// clientGroup, rebasing any local memory-only mutations onto it.
// opts.GatherBudget bounds how many bytes of source chunks
// one pass gathers; a truncated gather is not an error. The pass still
// applies the new snapshot, and chunks left out of the gather are not
// copied into memory by it: they are read from source on demand.
func Refresh(ctx context.Context, memStore *lazy.Store, srcStore *dag.Store, clientGroup string, opts Options) (aborted bool, err error) {
	var gathered []chunk.Chunk
	var pinned bool
	var srcSnap Snapshot
	var hasSrcHead bool

	runErr := memStore.WithSuspendedEvictsAndDeletes(func() error {
		if opts.Closed.hit() {
			aborted = true
			return nil
		}

		// Step 1: under a source write, gather and pin.
		srcWtx, err := srcStore.Write(ctx)
		if err != nil {
			return err
		}
		srcHeadHash, ok, err := srcWtx.GetHead(ctx, cgHead(clientGroup))
		if err != nil {
			srcWtx.Release()
			return err
		}
		hasSrcHead = ok
		if !hasSrcHead {
			srcWtx.Release()
			return nil
		}
		srcSnap, err = loadSnapshot(ctx, srcWtx, srcHeadHash)
		if err != nil {
			srcWtx.Release()
			return err
		}

		memRtxPre := memStore.Read(ctx)
		if memHeadHash, ok := memRtxPre.GetHead(cgHead(clientGroup)); ok {
			memSnap, err := loadSnapshot(ctx, memRtxPre, memHeadHash)
			if err != nil {
				memRtxPre.Release()
				srcWtx.Release()
				return err
			}
			if opts.Compare(srcSnap.Cookie, memSnap.Cookie) <= 0 {
				// Memory already has this snapshot (or newer); nothing to pull.
				memRtxPre.Release()
				srcWtx.Release()
				return nil
			}
		}
		g, truncated, err := gatherSourceUncached(ctx, srcWtx, memRtxPre, srcSnap.Root, opts.GatherBudget)
		memRtxPre.Release()
		if err != nil {
			srcWtx.Release()
			return err
		}
		gathered = g

		if err := srcWtx.SetHead(ctx, refreshPinHead(clientGroup), srcHeadHash); err != nil {
			srcWtx.Release()
			return err
		}
		if err := srcWtx.Commit(ctx); err != nil {
			return err
		}
		pinned = true

		if truncated {
			opts.log().Info("refresh: gather budget exceeded, remaining chunks load from source on demand",
				zap.String("client_group", clientGroup))
		}

		if opts.Closed.hit() {
			aborted = true
			return nil
		}
		time.Sleep(opts.Backoff)
		if opts.Closed.hit() {
			aborted = true
			return nil
		}

		// Step 2: under a memory write, materialize and rebase.
		memWtx := memStore.Write(ctx)
		defer memWtx.Release()

		oldMemHeadHash, hasOldMemHead := memWtx.GetHead(cgHead(clientGroup))
		var oldMemSnap Snapshot
		if hasOldMemHead {
			oldMemSnap, err = loadSnapshot(ctx, memWtx, oldMemHeadHash)
			if err != nil {
				return err
			}
			// Re-check after the backoff: a competing pull/push may have
			// advanced memory past this snapshot while we slept.
			if opts.Compare(srcSnap.Cookie, oldMemSnap.Cookie) <= 0 {
				return nil
			}
		}

		var ops []diff.Entry
		if hasOldMemHead {
			memBase, err := findAncestorByLMID(ctx, memWtx, oldMemHeadHash, srcSnap.LMID)
			if err == nil {
				ops, err = diff.Trees(ctx, memWtx, memBase.Root, oldMemSnap.Root)
				if err != nil {
					return err
				}
			}
		}

		for _, c := range gathered {
			memWtx.Materialize(c)
		}

		newRoot, err := rebaseOntoNewBase(ctx, memWtx, prolly.LazyChunkWriter(memWtx, hash.Of), opts.Config, opts.Format, srcSnap.Root, ops)
		if err != nil {
			return err
		}

		newSnap := Snapshot{Root: newRoot, Cookie: srcSnap.Cookie, LMID: srcSnap.LMID, Parent: oldMemHeadHash}
		newSnapChunk, err := memWtx.CreateChunk(encodeSnapshot(newSnap), newSnap.refs(), hash.Of)
		if err != nil {
			return err
		}
		memWtx.SetHead(cgHead(clientGroup), newSnapChunk.Hash())
		if err := memWtx.Commit(ctx); err != nil {
			return err
		}

		opts.log().Info("refresh: pulled source state into memory",
			zap.String("client_group", clientGroup),
			zap.Int("chunk_count", len(gathered)),
			zap.String("bytes", humanize.Bytes(totalBytes(gathered))),
		)
		return nil
	})
	if runErr != nil {
		return false, runErr
	}
	if aborted {
		return true, nil
	}
	if !hasSrcHead {
		return false, nil
	}

	// Only unpin once the memory side has durably picked the chunks up.
	if pinned {
		unpinWtx, err := srcStore.Write(ctx)
		if err != nil {
			return false, err
		}
		defer unpinWtx.Release()
		if err := unpinWtx.RemoveHead(ctx, refreshPinHead(clientGroup)); err != nil {
			return false, err
		}
		if err := unpinWtx.Commit(ctx); err != nil {
			return false, err
		}
	}
	return false, nil
}
