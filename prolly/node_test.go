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

package prolly

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dolthub/prollysync/hash"
)

func TestNodeFindEntryPicksFirstGreaterOrEqual(t *testing.T) {
	n := &Node{Level: 1, Entries: []Entry{
		newInternalEntryFlushed([]byte("c"), hash.Hash{1}),
		newInternalEntryFlushed([]byte("f"), hash.Hash{2}),
		newInternalEntryFlushed([]byte("k"), hash.Hash{3}),
	}}

	assert.Equal(t, 0, n.findEntry([]byte("a")))
	assert.Equal(t, 0, n.findEntry([]byte("c")))
	assert.Equal(t, 1, n.findEntry([]byte("d")))
	assert.Equal(t, 2, n.findEntry([]byte("z")))
}

func TestNodeFindEntryEmptyNode(t *testing.T) {
	n := &Node{Level: 1}
	assert.Equal(t, 0, n.findEntry([]byte("anything")))
}

func TestNodeSearchLeaf(t *testing.T) {
	n := &Node{Level: 0, Entries: []Entry{
		newLeafEntry([]byte("a"), []byte("1")),
		newLeafEntry([]byte("m"), []byte("2")),
	}}

	idx, ok := n.searchLeaf([]byte("m"))
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = n.searchLeaf([]byte("z"))
	assert.False(t, ok)
}

func TestNodeHighKeyIsLastEntryKey(t *testing.T) {
	n := &Node{Level: 0, Entries: []Entry{
		newLeafEntry([]byte("a"), []byte("1")),
		newLeafEntry([]byte("z"), []byte("2")),
	}}
	assert.Equal(t, []byte("z"), n.HighKey())

	empty := &Node{Level: 0}
	assert.Nil(t, empty.HighKey())
}

func TestNodeTotalSize(t *testing.T) {
	n := &Node{Level: 0, Entries: []Entry{
		newLeafEntry([]byte("a"), []byte("1")),
		newLeafEntry([]byte("bb"), []byte("22")),
	}}
	assert.Equal(t, entrySize([]byte("a"), []byte("1"))+entrySize([]byte("bb"), []byte("22")), n.TotalSize())
}
