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

// Package config collects the tunable parameters the core's algorithms
// treat as injected values: node size bounds, the lazy cache's byte
// budget, and the refresh protocol's gather budget and backoff. None of
// these change the core's semantics; they're the knobs a deployment turns.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
)

// StorageVersion is recorded alongside persisted data; its interpretation
// is external to the core.
const StorageVersion = "1"

// Params holds the tunable parameters for one store instance.
type Params struct {
	// MinNodeSize and MaxNodeSize bound a non-root B-tree node's byte
	// size.
	MinNodeSize uint64 `toml:"min_node_size"`
	MaxNodeSize uint64 `toml:"max_node_size"`

	// CacheSizeLimit bounds the lazy store's LRU cache in bytes.
	CacheSizeLimit uint64 `toml:"cache_size_limit"`

	// RefreshGatherBudget bounds how many bytes of chunks refresh will
	// gather from source in one pass.
	RefreshGatherBudget uint64 `toml:"refresh_gather_budget"`

	// RefreshBackoff is how long refresh sleeps between its source-side
	// gather and its memory-side apply, to let a competing pull/push
	// land first. In TOML it is written as a duration string such as
	// "300ms".
	RefreshBackoff time.Duration `toml:"refresh_backoff"`
}

// Default returns the parameters used when none are configured.
func Default() Params {
	return Params{
		MinNodeSize:         1 << 11, // 2KB
		MaxNodeSize:         1 << 12, // 4KB
		CacheSizeLimit:      128 << 20,
		RefreshGatherBudget: 5 << 20,
		RefreshBackoff:      300 * time.Millisecond,
	}
}

// Load reads Params from a TOML file at path, filling any field the file
// omits with Default's value.
func Load(path string) (Params, error) {
	f := struct {
		Params
		RefreshBackoff string `toml:"refresh_backoff"`
	}{Params: Default()}
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return Params{}, err
	}
	if f.RefreshBackoff != "" {
		d, err := time.ParseDuration(f.RefreshBackoff)
		if err != nil {
			return Params{}, err
		}
		f.Params.RefreshBackoff = d
	}
	return f.Params, nil
}
