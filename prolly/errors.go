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
	"fmt"

	"github.com/dolthub/prollysync/hash"
)

// ChunkNotFoundError is returned when a node hash can't be resolved via the
// underlying chunk source. It is fatal to the caller: a missing node chunk
// indicates corruption or incomplete lazy-store state.
type ChunkNotFoundError struct {
	Hash hash.Hash
}

func (e ChunkNotFoundError) Error() string {
	return fmt.Sprintf("prolly: node chunk not found: %s", e.Hash)
}

func errChunkNotFound(h hash.Hash) error { return ChunkNotFoundError{Hash: h} }
