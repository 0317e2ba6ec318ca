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

// Package kv defines the contract the core requires of an underlying
// transactional key/value backend. It is an external collaborator: the
// core consumes it but never defines concrete storage mechanics beyond the
// key layout in package dag. The two implementations under kv/memkv and
// kv/leveldbkv are reference backends, not part of the core's compiled
// surface.
package kv

import "context"

// Store opens read and write transactions against a backend providing
// strict serializable isolation: unbounded concurrent readers, or exactly
// one writer, with a writer's uncommitted state invisible to concurrent
// readers.
type Store interface {
	// Read opens a read transaction. The returned Read observes a
	// consistent snapshot until Release is called.
	Read(ctx context.Context) (Read, error)

	// Write opens a write transaction, blocking until any other writer
	// has committed or released. The returned Write must be committed or
	// released by the caller.
	Write(ctx context.Context) (Write, error)
}

// Read is a read-only view over the backend's ordered byte-keyed space.
type Read interface {
	// Has reports whether key is present.
	Has(ctx context.Context, key []byte) (bool, error)
	// Get returns the value for key, or (nil, false) if absent.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	// Release ends the transaction, allowing a pending writer to proceed.
	Release()
}

// Write is a read/write transaction. Puts and deletes are buffered until
// Commit, which must apply them atomically.
type Write interface {
	Read

	// Put stores value under key, superseding any existing value.
	Put(ctx context.Context, key, value []byte) error
	// Del removes key, a no-op if it is already absent.
	Del(ctx context.Context, key []byte) error
	// Commit atomically applies all buffered puts/deletes and ends the
	// transaction.
	Commit(ctx context.Context) error
	// Release aborts the transaction without applying any buffered
	// change, also ending it. Release after Commit is a no-op.
	Release()
}
