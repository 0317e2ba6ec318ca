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

package persist

import (
	"fmt"

	"github.com/dolthub/prollysync/hash"
)

// ErrChunkGone is returned when a gather walk expected to resolve a hash it
// had already confirmed was reachable, but the chunk is missing — a sign
// the store's invariants were violated concurrently with the walk.
type ErrChunkGone struct{ Hash hash.Hash }

func (e ErrChunkGone) Error() string { return fmt.Sprintf("chunk %s unexpectedly missing during gather", e.Hash) }

func errChunkGone(h hash.Hash) error { return ErrChunkGone{Hash: h} }

// errBudgetExceeded is an internal sentinel a gather walk returns to unwind
// every pending recursive call at once, rather than threading a "stop now"
// flag through every return path.
var errBudgetExceeded = fmt.Errorf("gather budget exceeded")
