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

	"github.com/dolthub/prollysync/chunk"
	"github.com/dolthub/prollysync/hash"
	"github.com/dolthub/prollysync/lazy"
)

// gatherMemoryOnly walks the chunk graph reachable from root, collecting
// every memory-only chunk and stopping descent as soon as it reaches a
// hash that is no longer memory-only.
func gatherMemoryOnly(ctx context.Context, tx *lazy.ReadTx, root hash.Hash) ([]chunk.Chunk, error) {
	if root.IsEmpty() {
		return nil, nil
	}
	var out []chunk.Chunk
	visited := hash.HashSet{}

	var walk func(h hash.Hash) error
	walk = func(h hash.Hash) error {
		if visited.Has(h) {
			return nil
		}
		visited.Insert(h)
		if !tx.IsMemoryOnly(h) {
			return nil
		}
		c, ok, err := tx.GetChunk(ctx, h)
		if err != nil {
			return err
		}
		if !ok {
			return errChunkGone(h)
		}
		out = append(out, c)
		for r := range c.Refs() {
			if err := walk(r); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

// gatherSourceUncached walks the chunk graph reachable from root on the
// source side, collecting chunks the memory tier does not already have
// locally, up to budget bytes. It stops the
// entire walk, not just the current branch, once the budget is reached —
// the budget bounds one refresh pass's cost, not any particular subtree.
func gatherSourceUncached(ctx context.Context, src chunkReader, mem *lazy.ReadTx, root hash.Hash, budget uint64) ([]chunk.Chunk, bool, error) {
	if root.IsEmpty() {
		return nil, false, nil
	}
	var out []chunk.Chunk
	var total uint64
	truncated := false
	visited := hash.HashSet{}

	var walk func(h hash.Hash) error
	walk = func(h hash.Hash) error {
		if visited.Has(h) {
			return nil
		}
		visited.Insert(h)
		if mem.HasLocally(h) {
			return nil
		}
		if total >= budget {
			truncated = true
			return errBudgetExceeded
		}
		c, ok, err := src.GetChunk(ctx, h)
		if err != nil {
			return err
		}
		if !ok {
			return errChunkGone(h)
		}
		out = append(out, c)
		total += uint64(len(c.Data()))
		for r := range c.Refs() {
			if err := walk(r); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root); err != nil && err != errBudgetExceeded {
		return nil, false, err
	}
	return out, truncated, nil
}

func totalBytes(chunks []chunk.Chunk) uint64 {
	var n uint64
	for _, c := range chunks {
		n += uint64(len(c.Data()))
	}
	return n
}
