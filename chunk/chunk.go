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

// Package chunk defines the immutable, content-addressed unit the DAG and
// lazy stores traffic in.
package chunk

import (
	"github.com/pkg/errors"

	"github.com/dolthub/prollysync/hash"
)

// ErrSelfReference is returned when a chunk's refs contain its own hash.
var ErrSelfReference = errors.New("chunk may not reference its own hash")

// Chunk is an immutable (hash, data, refs) triple. data is opaque to the
// DAG; refs is an unordered, duplicate-free set of hashes this chunk points
// to. A Chunk is never mutated after construction.
type Chunk struct {
	hash hash.Hash
	data []byte
	refs hash.HashSet
}

// New constructs a Chunk from data and refs using hasher, rejecting a
// self-referential refs set. refs is copied, so the caller may keep using
// its set; data is not copied and must not be mutated afterward by the
// caller.
func New(data []byte, refs hash.HashSet, hasher hash.Hasher) (Chunk, error) {
	if hasher == nil {
		hasher = hash.Of
	}
	h := hasher(data)
	if refs.Has(h) {
		return Chunk{}, ErrSelfReference
	}
	frozen := make(hash.HashSet, len(refs))
	for r := range refs {
		frozen[r] = struct{}{}
	}
	return Chunk{hash: h, data: data, refs: frozen}, nil
}

// FromParts reconstructs a Chunk whose hash was already computed (e.g. when
// reading it back from a KV backend). It does not re-validate self-
// reference; the backend is trusted to have validated it on write.
func FromParts(h hash.Hash, data []byte, refs hash.HashSet) Chunk {
	if refs == nil {
		refs = hash.HashSet{}
	}
	return Chunk{hash: h, data: data, refs: refs}
}

// Hash returns the chunk's content hash.
func (c Chunk) Hash() hash.Hash { return c.hash }

// Data returns the chunk's opaque payload. Callers must treat it as
// read-only.
func (c Chunk) Data() []byte { return c.data }

// Refs returns the chunk's reference set. Callers must treat it as
// read-only.
func (c Chunk) Refs() hash.HashSet { return c.refs }

// IsEmpty reports whether c is the zero Chunk, used as a "not found"
// sentinel by KV-backed stores.
func (c Chunk) IsEmpty() bool {
	return c.hash.IsEmpty() && c.data == nil
}
