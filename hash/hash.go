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

// Package hash provides the opaque, comparable, printable chunk identifier
// used throughout the core. Hash is the sole means of chunk identity:
// equal content always produces an equal Hash.
package hash

import (
	"golang.org/x/crypto/blake2b"

	"github.com/dolthub/prollysync/d"
)

// ByteLen is the width of a Hash in bytes.
const ByteLen = 20

// StringLen is the width of a Hash's printable base32 form.
const StringLen = 32

// Hash identifies a chunk by content. The zero value is EmptyHash, meaning
// "no chunk" / "no tree".
type Hash [ByteLen]byte

// EmptyHash is the distinguished hash denoting the absence of a chunk.
var EmptyHash = Hash{}

// Hasher produces a fresh Hash for a byte slice. The default, Of, truncates
// a blake2b-256 digest; callers may inject an alternate content-based
// hasher as long as it is deterministic in data.
type Hasher func(data []byte) Hash

// Of computes the default content hash of data.
func Of(data []byte) Hash {
	digest := blake2b.Sum256(data)
	var h Hash
	copy(h[:], digest[:ByteLen])
	return h
}

// IsEmpty reports whether h is the distinguished empty hash.
func (h Hash) IsEmpty() bool {
	return h == EmptyHash
}

// Compare provides a total order over hashes, used for deterministic byte-
// ordered iteration (e.g. of a HashSet).
func (h Hash) Compare(other Hash) int {
	for i := range h {
		if h[i] != other[i] {
			if h[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether h sorts before other.
func (h Hash) Less(other Hash) bool {
	return h.Compare(other) < 0
}

// String renders h as a StringLen-character base32 string using the
// alphabet "0123456789abcdefghijklmnopqrstuv".
func (h Hash) String() string {
	return encode(h)
}

// MaybeParse parses s into a Hash, returning ok=false rather than panicking
// on malformed input.
func MaybeParse(s string) (Hash, bool) {
	if len(s) != StringLen {
		return Hash{}, false
	}
	data, ok := decode(s)
	if !ok {
		return Hash{}, false
	}
	var h Hash
	copy(h[:], data)
	return h, true
}

// Parse parses s into a Hash, panicking if s is not a well-formed hash
// string. Used at boundaries (config, tests) where malformed input is a
// programmer error, not a runtime condition to recover from.
func Parse(s string) Hash {
	h, ok := MaybeParse(s)
	if !ok {
		d.Panic("invalid hash: %s", s)
	}
	return h
}

// HashSet is an unordered set of hashes, used for ref lists and refresh/
// persist gather sets.
type HashSet map[Hash]struct{}

// NewHashSet builds a HashSet from the given hashes.
func NewHashSet(hashes ...Hash) HashSet {
	s := make(HashSet, len(hashes))
	for _, h := range hashes {
		s[h] = struct{}{}
	}
	return s
}

// Insert adds h to the set.
func (s HashSet) Insert(h Hash) { s[h] = struct{}{} }

// Has reports whether h is in the set.
func (s HashSet) Has(h Hash) bool {
	_, ok := s[h]
	return ok
}

// Remove deletes h from the set.
func (s HashSet) Remove(h Hash) { delete(s, h) }

// ToSlice returns the set's members in unspecified order.
func (s HashSet) ToSlice() []Hash {
	out := make([]Hash, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	return out
}
