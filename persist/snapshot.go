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
	"encoding/binary"
	"fmt"

	"github.com/dolthub/prollysync/chunk"
	"github.com/dolthub/prollysync/hash"
)

// Snapshot is the commit-like record a client-group head points at: a
// prolly tree root, the sync-layer cookie ordering it, the last-mutation-id
// it was produced at, and a pointer to its predecessor snapshot (forming a
// chain a caller can walk back through, the way a dag.Store head points at
// a chunk-graph). It is itself stored as a chunk, so it rides the same
// refcount GC as everything else: its Parent and Root are both refs.
type Snapshot struct {
	Root   hash.Hash
	Cookie Cookie
	LMID   uint64
	Parent hash.Hash // hash.EmptyHash for the first snapshot in a chain
}

// ErrCorruptSnapshot is returned when a chunk's bytes cannot be parsed as a
// Snapshot.
type ErrCorruptSnapshot struct{ Reason string }

func (e ErrCorruptSnapshot) Error() string { return "corrupt snapshot: " + e.Reason }

func errCorruptSnapshot(format string, args ...interface{}) error {
	return ErrCorruptSnapshot{Reason: fmt.Sprintf(format, args...)}
}

// refs returns the chunk refs a Snapshot's encoding must carry, so GC keeps
// both its tree and its snapshot history reachable as long as the head is.
func (s Snapshot) refs() hash.HashSet {
	refs := hash.HashSet{}
	if !s.Root.IsEmpty() {
		refs.Insert(s.Root)
	}
	if !s.Parent.IsEmpty() {
		refs.Insert(s.Parent)
	}
	return refs
}

// encodeSnapshot serializes s as [root(20) | lmid(8) | parent(20) |
// cookieLen(4) | cookie].
func encodeSnapshot(s Snapshot) []byte {
	buf := make([]byte, 0, hash.ByteLen*2+8+4+len(s.Cookie))
	buf = append(buf, s.Root[:]...)
	var lmid [8]byte
	binary.BigEndian.PutUint64(lmid[:], s.LMID)
	buf = append(buf, lmid[:]...)
	buf = append(buf, s.Parent[:]...)
	var clen [4]byte
	binary.BigEndian.PutUint32(clen[:], uint32(len(s.Cookie)))
	buf = append(buf, clen[:]...)
	buf = append(buf, s.Cookie...)
	return buf
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	const fixed = hash.ByteLen*2 + 8 + 4
	if len(data) < fixed {
		return Snapshot{}, errCorruptSnapshot("too short: %d bytes", len(data))
	}
	var s Snapshot
	copy(s.Root[:], data[:hash.ByteLen])
	pos := hash.ByteLen
	s.LMID = binary.BigEndian.Uint64(data[pos : pos+8])
	pos += 8
	copy(s.Parent[:], data[pos:pos+hash.ByteLen])
	pos += hash.ByteLen
	clen := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	if pos+int(clen) != len(data) {
		return Snapshot{}, errCorruptSnapshot("cookie length mismatch: want %d, have %d", clen, len(data)-pos)
	}
	s.Cookie = append(Cookie(nil), data[pos:]...)
	return s, nil
}

// chunkReader is the minimal read dependency snapshot lookup needs, shared
// by dag.ReadTx/WriteTx and lazy.ReadTx/WriteTx.
type chunkReader interface {
	GetChunk(ctx context.Context, h hash.Hash) (chunk.Chunk, bool, error)
}

// loadSnapshot decodes the Snapshot stored at h.
func loadSnapshot(ctx context.Context, r chunkReader, h hash.Hash) (Snapshot, error) {
	c, ok, err := r.GetChunk(ctx, h)
	if err != nil {
		return Snapshot{}, err
	}
	if !ok {
		return Snapshot{}, errCorruptSnapshot("snapshot chunk %s not found", h)
	}
	return decodeSnapshot(c.Data())
}

// findAncestorByLMID walks s's parent chain (inclusive) looking for the
// snapshot recorded at exactly lmid, returning it. Used to recover the
// memory-side base a source client-group head was last persisted from.
func findAncestorByLMID(ctx context.Context, r chunkReader, head hash.Hash, lmid uint64) (Snapshot, error) {
	h := head
	for {
		if h.IsEmpty() {
			return Snapshot{}, errCorruptSnapshot("no ancestor snapshot recorded at lmid %d", lmid)
		}
		s, err := loadSnapshot(ctx, r, h)
		if err != nil {
			return Snapshot{}, err
		}
		if s.LMID == lmid {
			return s, nil
		}
		h = s.Parent
	}
}
