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
	"encoding/binary"
	"sort"

	"github.com/dolthub/prollysync/hash"
)

// KV key layout:
//   c/<hash>/d -> chunk data payload
//   c/<hash>/m -> refs list (omitted when empty)
//   c/<hash>/r -> refcount, unsigned 16-bit big-endian
//   h/<name>   -> head hash

func dataKey(h hash.Hash) []byte {
	return append([]byte("c/"+h.String()+"/"), 'd')
}

func refsKey(h hash.Hash) []byte {
	return append([]byte("c/"+h.String()+"/"), 'm')
}

func refcountKey(h hash.Hash) []byte {
	return append([]byte("c/"+h.String()+"/"), 'r')
}

func headKey(name string) []byte {
	return append([]byte("h/"), []byte(name)...)
}

// encodeRefcount serializes a refcount as a 2-byte big-endian value. Values
// outside [0, 65535] are a programmer error.
func encodeRefcount(n uint64) ([]byte, error) {
	if n > 65535 {
		return nil, errInvalidRefcount(int64(n))
	}
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(n))
	return buf, nil
}

func decodeRefcount(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, errInvalidRefcount(int64(len(b)))
	}
	return binary.BigEndian.Uint16(b), nil
}

// encodeRefs serializes a ref set as a flat concatenation of fixed-width
// hashes, in ascending order for determinism.
func encodeRefs(refs hash.HashSet) []byte {
	if len(refs) == 0 {
		return nil
	}
	list := refs.ToSlice()
	sort.Slice(list, func(i, j int) bool { return list[i].Less(list[j]) })
	buf := make([]byte, 0, len(list)*hash.ByteLen)
	for _, h := range list {
		buf = append(buf, h[:]...)
	}
	return buf
}

func decodeRefs(b []byte) (hash.HashSet, error) {
	if len(b)%hash.ByteLen != 0 {
		return nil, errCorruptRefs(len(b))
	}
	out := make(hash.HashSet, len(b)/hash.ByteLen)
	for i := 0; i < len(b); i += hash.ByteLen {
		var h hash.Hash
		copy(h[:], b[i:i+hash.ByteLen])
		out.Insert(h)
	}
	return out, nil
}
