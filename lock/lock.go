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

// Package lock provides the single-writer/multi-reader lock each store in
// the core sits behind, with a purely observational logging
// wrapper around acquisition: waiter counts and hold durations are logged
// but never change behavior.
package lock

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// RWLock wraps sync.RWMutex with waiter/hold-time instrumentation.
type RWLock struct {
	mu      sync.RWMutex
	log     *zap.Logger
	waiters int64
}

// New creates an RWLock that logs through log. A nil log disables logging.
func New(log *zap.Logger) *RWLock {
	if log == nil {
		log = zap.NewNop()
	}
	return &RWLock{log: log}
}

// Release ends a held lock section. It is returned by Lock/RLock so callers
// use a scoped-acquisition pattern that releases on every exit path,
// including panics.
type Release func()

// Lock acquires the writer lock, logging the waiter count observed at the
// start of the wait and the time spent waiting plus (via the returned
// Release) the hold duration.
func (l *RWLock) Lock() Release {
	waiting := atomic.AddInt64(&l.waiters, 1)
	start := time.Now()
	l.mu.Lock()
	waitDur := time.Since(start)
	l.log.Debug("lock acquired", zap.Int64("waiters_observed", waiting), zap.Duration("wait", waitDur))
	atomic.AddInt64(&l.waiters, -1)
	holdStart := time.Now()
	released := false
	return func() {
		if released {
			return
		}
		released = true
		l.log.Debug("lock released", zap.Duration("held", time.Since(holdStart)))
		l.mu.Unlock()
	}
}

// RLock acquires a reader lock with the same instrumentation as Lock.
func (l *RWLock) RLock() Release {
	waiting := atomic.AddInt64(&l.waiters, 1)
	start := time.Now()
	l.mu.RLock()
	waitDur := time.Since(start)
	l.log.Debug("rlock acquired", zap.Int64("waiters_observed", waiting), zap.Duration("wait", waitDur))
	atomic.AddInt64(&l.waiters, -1)
	holdStart := time.Now()
	released := false
	return func() {
		if released {
			return
		}
		released = true
		l.log.Debug("rlock released", zap.Duration("held", time.Since(holdStart)))
		l.mu.RUnlock()
	}
}
