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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/prollysync/hash"
)

func TestByteLRUEvictsOldestFirst(t *testing.T) {
	c := newByteLRU(10)
	a := mustChunk(t, "aaaaa") // 5 bytes
	b := mustChunk(t, "bbbbb") // 5 bytes
	cc := mustChunk(t, "ccccc") // 5 bytes, pushes total to 15 > 10

	c.insert(a.Hash(), a, 5)
	c.insert(b.Hash(), b, 5)
	c.evict()
	require.LessOrEqual(t, c.totalSize, uint64(10))

	c.insert(cc.Hash(), cc, 5)
	c.evict()

	_, aStillThere := c.get(a.Hash())
	assert.False(t, aStillThere, "oldest entry should have been evicted")
	_, bStillThere := c.get(b.Hash())
	assert.True(t, bStillThere)
	_, ccThere := c.get(cc.Hash())
	assert.True(t, ccThere)
}

func TestByteLRUGetPromotes(t *testing.T) {
	c := newByteLRU(10)
	a := mustChunk(t, "aaaaa")
	b := mustChunk(t, "bbbbb")
	c.insert(a.Hash(), a, 5)
	c.insert(b.Hash(), b, 5)

	_, ok := c.get(a.Hash()) // promote a to most-recently-used
	require.True(t, ok)

	cc := mustChunk(t, "ccccc")
	c.insert(cc.Hash(), cc, 5)
	c.evict() // over budget: b (now oldest) should go, not a

	_, aThere := c.get(a.Hash())
	assert.True(t, aThere)
	_, bThere := c.get(b.Hash())
	assert.False(t, bThere)
}

func TestByteLRURejectsOversizedEntry(t *testing.T) {
	c := newByteLRU(4)
	big := mustChunk(t, "toobig")
	c.insert(big.Hash(), big, 6)
	_, ok := c.get(big.Hash())
	assert.False(t, ok)
	assert.Zero(t, c.totalSize)
}

func TestByteLRUSuspendDefersDeleteAndEviction(t *testing.T) {
	c := newByteLRU(100)
	a := mustChunk(t, "a")
	c.insert(a.Hash(), a, 1)

	c.beginSuspend()
	c.requestDelete(a.Hash())
	_, stillThere := c.get(a.Hash())
	assert.True(t, stillThere, "delete should be queued, not applied, while suspended")

	c.endSuspend(func(hash.Hash) bool { return true })
	_, gone := c.get(a.Hash())
	assert.False(t, gone)
}

func TestByteLRUSuspendSkipsDeleteIfNoLongerZero(t *testing.T) {
	c := newByteLRU(100)
	a := mustChunk(t, "a")
	c.insert(a.Hash(), a, 1)

	c.beginSuspend()
	c.requestDelete(a.Hash())
	c.endSuspend(func(hash.Hash) bool { return false }) // refcount rose again before scope exit

	_, stillThere := c.get(a.Hash())
	assert.True(t, stillThere)
}

func TestByteLRUNestedSuspendOnlyAppliesOnOutermostExit(t *testing.T) {
	c := newByteLRU(100)
	a := mustChunk(t, "a")
	c.insert(a.Hash(), a, 1)

	c.beginSuspend()
	c.beginSuspend()
	c.requestDelete(a.Hash())
	c.endSuspend(func(hash.Hash) bool { return true })
	_, stillThere := c.get(a.Hash())
	assert.True(t, stillThere, "inner endSuspend should not apply queued deletes")

	c.endSuspend(func(hash.Hash) bool { return true })
	_, gone := c.get(a.Hash())
	assert.False(t, gone)
}
