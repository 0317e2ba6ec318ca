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
	"context"

	"github.com/dolthub/prollysync/hash"
	"github.com/dolthub/prollysync/lazy"
)

// cgHead derives a client-group's head name, shared between the source
// dag.Store and the memory lazy.Store's independent head namespaces.
func cgHead(clientGroup string) string { return "cg/" + clientGroup }

// CommitMemorySnapshot records a new memory-side snapshot for clientGroup,
// chaining it onto whatever snapshot the head previously pointed at and
// bumping the last-mutation-id. Callers invoke this after mutating a
// prolly.Tree flushed into the lazy store, each time they want that root
// to become persist's next candidate snapshot.
func CommitMemorySnapshot(ctx context.Context, memStore *lazy.Store, clientGroup string, root hash.Hash, cookie Cookie) (hash.Hash, error) {
	wtx := memStore.Write(ctx)
	defer wtx.Release()

	var lmid uint64
	var parent hash.Hash
	if headHash, ok := wtx.GetHead(cgHead(clientGroup)); ok {
		prev, err := loadSnapshot(ctx, wtx, headHash)
		if err != nil {
			return hash.Hash{}, err
		}
		lmid = prev.LMID + 1
		parent = headHash
	}

	snap := Snapshot{Root: root, Cookie: cookie, LMID: lmid, Parent: parent}
	c, err := wtx.CreateChunk(encodeSnapshot(snap), snap.refs(), hash.Of)
	if err != nil {
		return hash.Hash{}, err
	}
	wtx.SetHead(cgHead(clientGroup), c.Hash())
	if err := wtx.Commit(ctx); err != nil {
		return hash.Hash{}, err
	}
	return c.Hash(), nil
}
