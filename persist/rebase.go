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

	"github.com/dolthub/prollysync/diff"
	"github.com/dolthub/prollysync/hash"
	"github.com/dolthub/prollysync/prolly"
)

// rebaseOntoNewBase replays a sequence of key-level differences onto a
// tree rooted at newBase, producing the new root. Persist/refresh use this
// in place of a textual three-way merge: since every op carries its own
// key and final value, replaying them is safe regardless of what else the
// new base already contains.
func rebaseOntoNewBase(ctx context.Context, store prolly.ChunkReader, writer prolly.ChunkWriter, cfg prolly.PartitionConfig, format prolly.FormatVersion, newBase hash.Hash, ops []diff.Entry) (hash.Hash, error) {
	if len(ops) == 0 {
		return newBase, nil
	}
	tr := prolly.NewTree(store, writer, nil, cfg, format, newBase)
	for _, op := range ops {
		switch op.Op {
		case diff.Add, diff.Change:
			if err := tr.Put(ctx, op.Key, op.NewValue); err != nil {
				return hash.Hash{}, err
			}
		case diff.Remove:
			if _, err := tr.Del(ctx, op.Key); err != nil {
				return hash.Hash{}, err
			}
		}
	}
	return tr.Flush(ctx)
}
