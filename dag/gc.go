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

package dag

import (
	"context"

	"github.com/dolthub/prollysync/hash"
)

// gcState tracks, for the duration of one commit's GC pass, the counts and
// ref adjacency the algorithm has already resolved, so each hash's refs
// are loaded from the KV (or pending puts) at most once.
type gcState struct {
	tx *WriteTx

	// storedCount caches each hash's refcount as it stood before this
	// commit (0 if the hash has no "r" record yet).
	storedCount map[hash.Hash]uint64
	// result is the count each touched hash will have after this
	// commit's deltas are applied.
	result map[hash.Hash]int64
	// refsCache memoizes each hash's ref set, sourced from pending puts
	// or the KV's "m" record.
	refsCache map[hash.Hash]hash.HashSet
}

// runGC computes refcount updates for tx's staged head changes and newly
// put chunks, then applies all resulting
// writes/deletes to the underlying KV write transaction. It does not call
// Commit on the backend; the caller does that once this returns.
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

	for _, hc := range tx.headChanges {
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

		before, err := g.currentCount(ctx, p.h)
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

	return g.apply(ctx)
}

// currentCount returns the count a hash has accumulated so far in this GC
// pass, falling back to its stored (pre-commit) refcount the first time
// it's touched.
func (g *gcState) currentCount(ctx context.Context, h hash.Hash) (int64, error) {
	if c, ok := g.result[h]; ok {
		return c, nil
	}
	if c, ok := g.storedCount[h]; ok {
		return int64(c), nil
	}
	raw, ok, err := g.tx.ReadTx.kv.Get(ctx, refcountKey(h))
	if err != nil {
		return 0, err
	}
	if !ok {
		g.storedCount[h] = 0
		return 0, nil
	}
	n, err := decodeRefcount(raw)
	if err != nil {
		return 0, err
	}
	g.storedCount[h] = uint64(n)
	return int64(n), nil
}

// refsOf returns h's ref set, from pending puts if h was staged in this
// transaction, else from the KV's "m" record.
func (g *gcState) refsOf(ctx context.Context, h hash.Hash) (hash.HashSet, error) {
	if refs, ok := g.refsCache[h]; ok {
		return refs, nil
	}
	if c, ok := g.tx.putChunks[h]; ok {
		g.refsCache[h] = c.Refs()
		return c.Refs(), nil
	}
	raw, _, err := g.tx.ReadTx.kv.Get(ctx, refsKey(h))
	if err != nil {
		return nil, err
	}
	refs, err := decodeRefs(raw)
	if err != nil {
		return nil, err
	}
	g.refsCache[h] = refs
	return refs, nil
}

// apply writes the resolved refcounts/deletes and head changes to the
// underlying KV write transaction.
func (g *gcState) apply(ctx context.Context) error {
	w := g.tx.writeKV()

	for h, count := range g.result {
		if count == 0 {
			if err := w.Del(ctx, dataKey(h)); err != nil {
				return err
			}
			if err := w.Del(ctx, refsKey(h)); err != nil {
				return err
			}
			if err := w.Del(ctx, refcountKey(h)); err != nil {
				return err
			}
			continue
		}

		if c, isNew := g.tx.putChunks[h]; isNew {
			if err := w.Put(ctx, dataKey(h), c.Data()); err != nil {
				return err
			}
			if refs := encodeRefs(c.Refs()); refs != nil {
				if err := w.Put(ctx, refsKey(h), refs); err != nil {
					return err
				}
			}
		}

		encoded, err := encodeRefcount(uint64(count))
		if err != nil {
			return err
		}
		if err := w.Put(ctx, refcountKey(h), encoded); err != nil {
			return err
		}
	}

	for name, hc := range g.tx.headChanges {
		if hc.hasNew {
			if err := w.Put(ctx, headKey(name), hc.new[:]); err != nil {
				return err
			}
		} else {
			if err := w.Del(ctx, headKey(name)); err != nil {
				return err
			}
		}
	}

	return nil
}
