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

	"github.com/dolthub/prollysync/hash"
)

// gcState mirrors package dag's gcState, but resolves counts and refs
// against the lazy store's own tables and this write's pending chunks
// instead of a KV backend.
type gcState struct {
	tx *WriteTx

	storedCount map[hash.Hash]uint64
	result      map[hash.Hash]int64
	refsCache   map[hash.Hash]hash.HashSet
}

// runGC computes the lazy store's refcount updates for tx's staged head
// changes and pending chunks, applies them (dropping memory-only chunks
// that hit zero, handing the rest to the cache), and applies head changes.
func runGC(ctx context.Context, tx *WriteTx) error {
	g := &gcState{
		tx:          tx,
		storedCount: map[hash.Hash]uint64{},
		result:      map[hash.Hash]int64{},
		refsCache:   map[hash.Hash]hash.HashSet{},
	}

	type pending struct {
		h     hash.Hash
		delta int64
	}
	var queue []pending
	enqueue := func(h hash.Hash, delta int64) {
		if h.IsEmpty() || delta == 0 {
			return
		}
		queue = append(queue, pending{h, delta})
	}

	for _, hc := range tx.pendingHeadChanges {
		if hc.hadOld && hc.hasNew && hc.old == hc.new {
			continue
		}
		if hc.hadOld {
			enqueue(hc.old, -1)
		}
		if hc.hasNew {
			enqueue(hc.new, 1)
		}
	}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		before, err := g.currentCount(p.h)
		if err != nil {
			return err
		}
		after := before + p.delta
		if after < 0 {
			return errInvalidRefcount(after)
		}
		g.result[p.h] = after

		crossedUp := before == 0 && after > 0
		crossedDown := before > 0 && after == 0
		if !crossedUp && !crossedDown {
			continue
		}

		refs, err := g.refsOf(ctx, p.h)
		if err != nil {
			return err
		}
		if crossedUp {
			for r := range refs {
				enqueue(r, 1)
			}
		} else {
			for r := range refs {
				enqueue(r, -1)
			}
		}
	}

	return g.apply()
}

func (g *gcState) currentCount(h hash.Hash) (int64, error) {
	if c, ok := g.result[h]; ok {
		return c, nil
	}
	if c, ok := g.storedCount[h]; ok {
		return int64(c), nil
	}
	n := g.tx.store.refcounts[h]
	g.storedCount[h] = n
	return int64(n), nil
}

// refsOf resolves h's ref set from pending writes, the store's existing
// memory-only/cache/refs tables, or — on first observation — by reading
// the chunk itself (which, for an as-yet-unobserved source chunk, triggers
// the same fetch-and-maybe-cache path as a plain GetChunk).
func (g *gcState) refsOf(ctx context.Context, h hash.Hash) (hash.HashSet, error) {
	if refs, ok := g.refsCache[h]; ok {
		return refs, nil
	}
	if refs, ok := g.tx.store.refs[h]; ok {
		g.refsCache[h] = refs
		return refs, nil
	}
	c, ok, err := g.tx.GetChunk(ctx, h)
	if err != nil {
		return nil, err
	}
	if !ok {
		g.refsCache[h] = hash.HashSet{}
		return hash.HashSet{}, nil
	}
	g.refsCache[h] = c.Refs()
	return c.Refs(), nil
}

// apply writes the resolved refcounts into the store's tables, dropping
// memory-only chunks that hit zero and handing everything else (including
// pending_cached_chunks) to the LRU cache, then applies head changes.
func (g *gcState) apply() error {
	s := g.tx.store

	for h, count := range g.result {
		if count == 0 {
			delete(s.refcounts, h)
			delete(s.refs, h)
			delete(s.memOnly, h)
			s.cache.requestDelete(h)
			continue
		}

		s.refcounts[h] = uint64(count)

		if c, isNew := g.tx.pendingMemOnly[h]; isNew {
			s.memOnly[h] = c
			s.refs[h] = c.Refs()
			continue
		}
		if e, isNew := g.tx.pendingCached[h]; isNew {
			s.refs[h] = e.chunk.Refs()
			s.cache.insert(h, e.chunk, e.size)
			continue
		}
		if _, known := s.refs[h]; !known {
			if refs, ok := g.refsCache[h]; ok {
				s.refs[h] = refs
			}
		}
	}

	for name, hc := range g.tx.pendingHeadChanges {
		if hc.hasNew {
			s.heads[name] = hc.new
		} else {
			delete(s.heads, name)
		}
	}

	return nil
}
