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
	"fmt"

	"github.com/dolthub/prollysync/hash"
)

// ChunkNotFoundError is returned by MustGetChunk when no chunk exists for
// the given hash.
type ChunkNotFoundError struct {
	Hash hash.Hash
}

func (e ChunkNotFoundError) Error() string {
	return fmt.Sprintf("chunk not found: %s", e.Hash)
}

func errChunkNotFound(h hash.Hash) error { return ChunkNotFoundError{Hash: h} }

// HeadMissingError is returned when a named head does not exist.
type HeadMissingError struct {
	Name string
}

func (e HeadMissingError) Error() string {
	return fmt.Sprintf("head missing: %s", e.Name)
}

func errHeadMissing(name string) error { return HeadMissingError{Name: name} }

// InvalidHashError is returned when a ref fails the injected
// assert-valid-hash predicate.
type InvalidHashError struct {
	Hash hash.Hash
}

func (e InvalidHashError) Error() string {
	return fmt.Sprintf("invalid hash: %s", e.Hash)
}

func errInvalidHash(h hash.Hash) error { return InvalidHashError{Hash: h} }

// InvalidRefcountError is returned when a stored or computed refcount falls
// outside [0, 65535].
type InvalidRefcountError struct {
	Value int64
}

func (e InvalidRefcountError) Error() string {
	return fmt.Sprintf("invalid refcount: %d", e.Value)
}

func errInvalidRefcount(v int64) error { return InvalidRefcountError{Value: v} }

// CorruptRefsError is returned when a stored refs record is not a multiple
// of the hash width.
type CorruptRefsError struct {
	Len int
}

func (e CorruptRefsError) Error() string {
	return fmt.Sprintf("corrupt refs record: %d bytes", e.Len)
}

func errCorruptRefs(n int) error { return CorruptRefsError{Len: n} }
