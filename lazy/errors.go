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
	"fmt"

	"github.com/dolthub/prollysync/hash"
)

// ChunkNotFoundError is returned by MustGetChunk when no chunk exists for
// the given hash in memory, cache, or source.
type ChunkNotFoundError struct {
	Hash hash.Hash
}

func (e ChunkNotFoundError) Error() string {
	return fmt.Sprintf("chunk not found: %s", e.Hash)
}

func errChunkNotFound(h hash.Hash) error { return ChunkNotFoundError{Hash: h} }

// InvalidRefcountError mirrors dag.InvalidRefcountError for the lazy
// store's own refcount table.
type InvalidRefcountError struct {
	Value int64
}

func (e InvalidRefcountError) Error() string {
	return fmt.Sprintf("invalid lazy refcount: %d", e.Value)
}

func errInvalidRefcount(v int64) error { return InvalidRefcountError{Value: v} }
