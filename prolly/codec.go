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
	"encoding/binary"
	"fmt"
)

// FormatVersion selects the wire encoding a Tree writes new nodes with.
// Readers accept either version regardless of which one they write.
type FormatVersion byte

const (
	// FormatA encodes entries as [key, value]; size is recomputed on
	// decode from key/value lengths.
	FormatA FormatVersion = 'A'
	// FormatB additionally persists each entry's size, letting a writer
	// record a size that isn't purely a function of key/value length.
	FormatB FormatVersion = 'B'
)

// ErrCorruptNode is returned when a chunk's bytes cannot be parsed as a
// node under either format version.
type ErrCorruptNode struct {
	Reason string
}

func (e ErrCorruptNode) Error() string { return "corrupt node: " + e.Reason }

func errCorrupt(format string, args ...interface{}) error {
	return ErrCorruptNode{Reason: fmt.Sprintf(format, args...)}
}

// encodeNode serializes n under the given format version.
func encodeNode(n *Node, version FormatVersion) ([]byte, error) {
	switch version {
	case FormatA, FormatB:
	default:
		return nil, errCorrupt("unknown format version %q", byte(version))
	}

	size := 2 + 4 // version + level + entry count
	for _, e := range n.Entries {
		size += 4 + len(e.Key) + 4 + len(e.Value)
		if version == FormatB {
			size += 8
		}
	}

	buf := make([]byte, 0, size)
	buf = append(buf, byte(version), n.Level)
	buf = appendUint32(buf, uint32(len(n.Entries)))
	for _, e := range n.Entries {
		buf = appendUint32(buf, uint32(len(e.Key)))
		buf = append(buf, e.Key...)
		buf = appendUint32(buf, uint32(len(e.Value)))
		buf = append(buf, e.Value...)
		if version == FormatB {
			buf = appendUint64(buf, e.Size)
		}
	}
	return buf, nil
}

// decodeNode parses data into a Node, accepting either format version.
func decodeNode(data []byte) (*Node, error) {
	if len(data) < 6 {
		return nil, errCorrupt("too short: %d bytes", len(data))
	}
	version := FormatVersion(data[0])
	if version != FormatA && version != FormatB {
		return nil, errCorrupt("unknown format version %q", data[0])
	}
	level := data[1]
	pos := 2

	count, pos, err := readUint32(data, pos)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		var keyLen, valLen uint32
		var key, val []byte

		keyLen, pos, err = readUint32(data, pos)
		if err != nil {
			return nil, err
		}
		key, pos, err = readBytes(data, pos, int(keyLen))
		if err != nil {
			return nil, err
		}
		valLen, pos, err = readUint32(data, pos)
		if err != nil {
			return nil, err
		}
		val, pos, err = readBytes(data, pos, int(valLen))
		if err != nil {
			return nil, err
		}

		var entrySz uint64
		if version == FormatB {
			entrySz, pos, err = readUint64(data, pos)
			if err != nil {
				return nil, err
			}
		} else {
			entrySz = entrySize(key, val)
		}
		entries = append(entries, Entry{Key: key, Value: val, Size: entrySz})
	}

	if pos != len(data) {
		return nil, errCorrupt("%d trailing bytes", len(data)-pos)
	}

	return &Node{Level: level, Entries: entries}, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func readUint32(data []byte, pos int) (uint32, int, error) {
	if pos+4 > len(data) {
		return 0, 0, errCorrupt("truncated uint32 at offset %d", pos)
	}
	return binary.BigEndian.Uint32(data[pos : pos+4]), pos + 4, nil
}

func readUint64(data []byte, pos int) (uint64, int, error) {
	if pos+8 > len(data) {
		return 0, 0, errCorrupt("truncated uint64 at offset %d", pos)
	}
	return binary.BigEndian.Uint64(data[pos : pos+8]), pos + 8, nil
}

func readBytes(data []byte, pos, n int) ([]byte, int, error) {
	if pos+n > len(data) {
		return nil, 0, errCorrupt("truncated field at offset %d (want %d bytes)", pos, n)
	}
	out := make([]byte, n)
	copy(out, data[pos:pos+n])
	return out, pos + n, nil
}
