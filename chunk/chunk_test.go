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

package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/prollysync/hash"
)

func TestNewContentAddressing(t *testing.T) {
	refs := hash.NewHashSet(hash.Of([]byte("child")))

	a, err := New([]byte("payload"), refs, nil)
	require.NoError(t, err)
	b, err := New([]byte("payload"), refs, nil)
	require.NoError(t, err)

	assert.Equal(t, a.Hash(), b.Hash(), "equal data and refs must yield an equal hash")

	c, err := New([]byte("different payload"), refs, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestNewDefaultsToHashOf(t *testing.T) {
	c, err := New([]byte("x"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, hash.Of([]byte("x")), c.Hash())
}

func TestNewRejectsSelfReference(t *testing.T) {
	data := []byte("self")
	refs := hash.NewHashSet(hash.Of(data))

	_, err := New(data, refs, nil)
	assert.ErrorIs(t, err, ErrSelfReference)
}

func TestNewCopiesRefs(t *testing.T) {
	extra := hash.Of([]byte("added-later"))
	refs := hash.NewHashSet(hash.Of([]byte("child")))

	c, err := New([]byte("x"), refs, nil)
	require.NoError(t, err)

	refs.Insert(extra)
	assert.False(t, c.Refs().Has(extra), "mutating the caller's set must not alter the chunk")
}

func TestFromPartsNilRefs(t *testing.T) {
	h := hash.Of([]byte("x"))
	c := FromParts(h, []byte("x"), nil)
	assert.Equal(t, h, c.Hash())
	assert.NotNil(t, c.Refs())
	assert.Empty(t, c.Refs())
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, Chunk{}.IsEmpty())

	c, err := New([]byte("x"), nil, nil)
	require.NoError(t, err)
	assert.False(t, c.IsEmpty())
}
