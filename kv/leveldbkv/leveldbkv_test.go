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

package leveldbkv

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/prollysync/kv"
)

var _ kv.Store = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestPutCommitGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// A highly repetitive value exercises the snappy path; a tiny one the
	// raw-prefix path. Both must round-trip unchanged.
	compressible := bytes.Repeat([]byte("abcdefgh"), 512)
	tiny := []byte("v")

	w, err := s.Write(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Put(ctx, []byte("big"), compressible))
	require.NoError(t, w.Put(ctx, []byte("small"), tiny))
	require.NoError(t, w.Commit(ctx))

	r, err := s.Read(ctx)
	require.NoError(t, err)
	defer r.Release()

	got, ok, err := r.Get(ctx, []byte("big"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, compressible, got)

	got, ok, err = r.Get(ctx, []byte("small"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tiny, got)
}

func TestWriteReadsItsOwnBufferedWrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	w, err := s.Write(ctx)
	require.NoError(t, err)
	defer w.Release()

	require.NoError(t, w.Put(ctx, []byte("k"), []byte("v")))
	got, ok, err := w.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, w.Del(ctx, []byte("k")))
	ok, err = w.Has(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseDiscardsBufferedWrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	w, err := s.Write(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Put(ctx, []byte("k"), []byte("v")))
	w.Release()

	r, err := s.Read(ctx)
	require.NoError(t, err)
	defer r.Release()

	ok, err := r.Has(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValuesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	w, err := s.Write(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Put(ctx, []byte("k"), []byte("durable")))
	require.NoError(t, w.Commit(ctx))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	r, err := s.Read(ctx)
	require.NoError(t, err)
	defer r.Release()

	got, ok, err := r.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("durable"), got)
}
