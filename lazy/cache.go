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
	"container/list"

	"github.com/dolthub/prollysync/chunk"
	"github.com/dolthub/prollysync/hash"
)

// cacheEntry pairs a cached chunk with its byte size, so the cache can
// track total occupancy without recomputing sizes on every eviction pass.
type cacheEntry struct {
	hash  hash.Hash
	chunk chunk.Chunk
	size  uint64
}

// byteLRU is an ordered map from hash to cached chunk, kept in
// insertion/promotion order (the back of the list is the least recently
// used entry, the next to be evicted). It is
// not safe for concurrent use; callers serialize access under the store's
// lock.
type byteLRU struct {
	limit     uint64
	totalSize uint64
	order     *list.List // of *cacheEntry, front = most recently used
	index     map[hash.Hash]*list.Element

	// suspendDepth > 0 delays eviction: insertions still happen, but
	// evict() is a no-op until the scope exits.
	suspendDepth int
	// pendingDeletes holds deletes requested during suspension, applied
	// on scope exit if the hash's refcount is still (observed) zero.
	pendingDeletes map[hash.Hash]struct{}
}

func newByteLRU(limit uint64) *byteLRU {
	return &byteLRU{
		limit:          limit,
		order:          list.New(),
		index:          map[hash.Hash]*list.Element{},
		pendingDeletes: map[hash.Hash]struct{}{},
	}
}

// get looks up h, promoting it to most-recently-used on a hit.
func (c *byteLRU) get(h hash.Hash) (chunk.Chunk, bool) {
	el, ok := c.index[h]
	if !ok {
		return chunk.Chunk{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).chunk, true
}

// has reports presence without changing LRU order.
func (c *byteLRU) has(h hash.Hash) bool {
	_, ok := c.index[h]
	return ok
}

// insert adds or refreshes h, as most-recently-used. A chunk whose own
// size exceeds the cache limit is never inserted.
func (c *byteLRU) insert(h hash.Hash, ch chunk.Chunk, size uint64) {
	if size > c.limit {
		return
	}
	if el, ok := c.index[h]; ok {
		entry := el.Value.(*cacheEntry)
		c.totalSize -= entry.size
		entry.chunk, entry.size = ch, size
		c.totalSize += size
		c.order.MoveToFront(el)
		c.evict()
		return
	}
	entry := &cacheEntry{hash: h, chunk: ch, size: size}
	el := c.order.PushFront(entry)
	c.index[h] = el
	c.totalSize += size
	c.evict()
}

// remove drops h from the cache unconditionally.
func (c *byteLRU) remove(h hash.Hash) {
	el, ok := c.index[h]
	if !ok {
		return
	}
	c.totalSize -= el.Value.(*cacheEntry).size
	c.order.Remove(el)
	delete(c.index, h)
}

// beginSuspend delays eviction/delete application until the matching
// endSuspend call. Suspension scopes may nest.
func (c *byteLRU) beginSuspend() {
	c.suspendDepth++
}

// endSuspend applies any deletes requested during suspension (if the
// predicate stillZero still holds for them) and then evicts down to the
// byte limit, exactly once the outermost scope exits.
func (c *byteLRU) endSuspend(stillZero func(hash.Hash) bool) {
	if c.suspendDepth == 0 {
		return
	}
	c.suspendDepth--
	if c.suspendDepth > 0 {
		return
	}
	for h := range c.pendingDeletes {
		if stillZero(h) {
			c.remove(h)
		}
	}
	c.pendingDeletes = map[hash.Hash]struct{}{}
	c.evict()
}

// requestDelete removes h now, unless a suspension scope is active, in
// which case the delete is queued for the scope's exit.
func (c *byteLRU) requestDelete(h hash.Hash) {
	if c.suspendDepth > 0 {
		c.pendingDeletes[h] = struct{}{}
		return
	}
	c.remove(h)
}

// evict drops entries from the LRU end until within the byte limit, unless
// suspended.
func (c *byteLRU) evict() {
	if c.suspendDepth > 0 {
		return
	}
	for c.totalSize > c.limit {
		back := c.order.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*cacheEntry)
		c.totalSize -= entry.size
		c.order.Remove(back)
		delete(c.index, entry.hash)
	}
}
