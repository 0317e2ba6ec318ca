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

// Package diff computes the ordered leaf-level difference between two tree
// roots. The traversal itself lives in package prolly,
// which alone holds the node-internal state (entries, child hashes) the
// identical-subtree-hash skip optimization needs; this package is the
// public, stable surface consumers are meant to import.
package diff

import (
	"context"

	"github.com/dolthub/prollysync/hash"
	"github.com/dolthub/prollysync/prolly"
)

// Op identifies the kind of a single difference.
type Op int

const (
	Add Op = iota
	Remove
	Change
)

func (o Op) String() string {
	switch o {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Change:
		return "change"
	default:
		return "unknown"
	}
}

// Entry is one leaf-level difference between two tree roots, keys in
// ascending order.
type Entry struct {
	Op       Op
	Key      []byte
	OldValue []byte
	NewValue []byte
}

// Trees yields the ordered sequence of differences between the trees rooted
// at rootA and rootB, read through the same store. Identical roots
// short-circuit to no differences without reading either tree.
func Trees(ctx context.Context, store prolly.ChunkReader, rootA, rootB hash.Hash) ([]Entry, error) {
	changes, err := prolly.DiffTrees(ctx, store, nil, rootA, rootB)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(changes))
	for i, c := range changes {
		out[i] = Entry{Op: Op(c.Op), Key: c.Key, OldValue: c.OldValue, NewValue: c.NewValue}
	}
	return out, nil
}
