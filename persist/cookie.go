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

// Package persist implements the persist (memory → source) and refresh
// (source → memory) protocols that move snapshots between a lazy.Store's
// memory tier and its backing dag.Store.
package persist

import "github.com/google/uuid"

// Cookie is an opaque token a sync layer attaches to a snapshot to order it
// against others. The core never interprets a cookie's bytes itself; it
// only asks the injected comparator to order two of them.
type Cookie []byte

// NewClientGroupID mints a fresh client-group identifier. Production
// callers are free to name client groups however their deployment likes;
// this exists for test fixtures and example wiring that need a unique name
// without inventing a naming scheme of their own.
func NewClientGroupID() string {
	return uuid.New().String()
}

// CookieCompare orders two cookies, returning <0, 0, or >0 the way
// bytes.Compare does. Supplied by the sync layer; this package never
// assumes anything about cookie structure beyond what the comparator says.
type CookieCompare func(a, b Cookie) int
