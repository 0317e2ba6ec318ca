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

package memkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/prollysync/kv"
)

var _ kv.Store = (*Store)(nil)

func TestPutCommitGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	w, err := s.Write(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Put(ctx, []byte("k"), []byte("v")))
	require.NoError(t, w.Commit(ctx))

	r, err := s.Read(ctx)
	require.NoError(t, err)
	defer r.Release()

	got, ok, err := r.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	ok, err = r.Has(ctx, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteReadsItsOwnBufferedWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	w, err := s.Write(ctx)
	require.NoError(t, err)
	defer w.Release()

	require.NoError(t, w.Put(ctx, []byte("k"), []byte("v")))
	got, ok, err := w.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, w.Del(ctx, []byte("k")))
	_, ok, err = w.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseDiscardsBufferedWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	w, err := s.Write(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Put(ctx, []byte("k"), []byte("v")))
	w.Release()

	r, err := s.Read(ctx)
	require.NoError(t, err)
	defer r.Release()

	ok, err := r.Has(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok, "released write must not have applied its puts")
}

func TestDelCommitRemovesKey(t *testing.T) {
	ctx := context.Background()
	s := New()

	w, err := s.Write(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Put(ctx, []byte("k"), []byte("v")))
	require.NoError(t, w.Commit(ctx))

	w, err = s.Write(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Del(ctx, []byte("k")))
	require.NoError(t, w.Commit(ctx))

	r, err := s.Read(ctx)
	require.NoError(t, err)
	defer r.Release()

	ok, err := r.Has(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetReturnsACopy(t *testing.T) {
	ctx := context.Background()
	s := New()

	w, err := s.Write(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Put(ctx, []byte("k"), []byte("v")))
	require.NoError(t, w.Commit(ctx))

	r, err := s.Read(ctx)
	require.NoError(t, err)
	got, _, err := r.Get(ctx, []byte("k"))
	require.NoError(t, err)
	got[0] = 'x'
	r.Release()

	r, err = s.Read(ctx)
	require.NoError(t, err)
	defer r.Release()
	again, _, err := r.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), again, "mutating a returned value must not alter the store")
}
