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

// Package d holds the invariant-checking helpers used throughout the core.
// Invariant violations (self-referential chunks, malformed hashes, corrupt
// refcounts) are programmer/data errors: they panic immediately at the
// point of discovery and are recovered into ordinary errors at a
// transaction boundary via Try, rather than threaded through every return
// value on the happy path.
package d

import (
	"fmt"

	"github.com/pkg/errors"
)

// wrappedError attaches a message to an underlying cause while keeping the
// cause inspectable via Cause().
type wrappedError struct {
	msg   string
	cause error
}

func (w wrappedError) Error() string {
	if w.cause == nil {
		return w.msg
	}
	return w.msg + ": " + w.cause.Error()
}

func (w wrappedError) Cause() error { return w.cause }

// Wrap wraps err so that Unwrap (or Cause) recovers it; no stack is
// recorded. Wrapping nil returns nil. Wrapping an already-wrapped error
// returns it unchanged.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(wrappedError); ok {
		return err
	}
	return wrappedError{msg: err.Error(), cause: err}
}

// Unwrap returns the underlying cause of err, or err itself if it isn't a
// wrappedError.
func Unwrap(err error) error {
	if we, ok := err.(wrappedError); ok {
		return we.cause
	}
	return err
}

func causeInTypes(err error, types ...error) bool {
	for _, t := range types {
		if errorsSameType(err, t) {
			return true
		}
	}
	return false
}

func errorsSameType(a, b error) bool {
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

// Try runs fn and converts any panic into a returned error. If fn panics
// with something other than an error, or with an error not found among
// types (when types is non-empty), the panic is re-raised.
func Try(fn func(), types ...error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(error)
			if !ok {
				panic(r)
			}
			if len(types) > 0 && !causeInTypes(Unwrap(rerr), types...) && !causeInTypes(rerr, types...) {
				panic(r)
			}
			err = Unwrap(rerr)
		}
	}()
	fn()
	return nil
}

// TryCatch runs fn, and if it panics with an error, passes that error to
// catch. catch may itself panic (to re-raise) or return a replacement
// error.
func TryCatch(fn func(), catch func(error) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(error)
			if !ok {
				panic(r)
			}
			err = catch(rerr)
		}
	}()
	fn()
	return nil
}

// Panic formats a message and panics with it as an error.
func Panic(format string, args ...interface{}) {
	if len(args) == 0 {
		panic(errors.New(format))
	}
	panic(errors.New(fmt.Sprintf(format, args...)))
}

// PanicIfError panics with err if it is non-nil.
func PanicIfError(err error) {
	if err != nil {
		panic(err)
	}
}

// PanicIfTrue panics if cond is true.
func PanicIfTrue(cond bool, args ...interface{}) {
	if cond {
		if len(args) > 0 {
			if format, ok := args[0].(string); ok {
				Panic(format, args[1:]...)
			}
		}
		panic(errors.New("expected condition to be false"))
	}
}

// PanicIfFalse panics if cond is false.
func PanicIfFalse(cond bool, args ...interface{}) {
	PanicIfTrue(!cond, args...)
}

// PanicIfNotType asserts that v has the same dynamic type as one of types,
// and returns it as an error for convenience at call sites that immediately
// want to use it.
func PanicIfNotType(v error, types ...error) error {
	if !causeInTypes(v, types...) {
		panic(errors.Errorf("unexpected error type %T: %v", v, v))
	}
	return v
}
