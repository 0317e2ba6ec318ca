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

package d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testError struct{ msg string }

func (e testError) Error() string { return e.msg }

type otherError struct{}

func (otherError) Error() string { return "other" }

func TestTryConvertsErrorPanicToError(t *testing.T) {
	want := testError{msg: "boom"}
	err := Try(func() { panic(want) })
	assert.Equal(t, want, err)

	assert.NoError(t, Try(func() {}))
}

func TestTryRepanicsNonError(t *testing.T) {
	assert.Panics(t, func() {
		_ = Try(func() { panic("not an error") })
	})
}

func TestTryFiltersByType(t *testing.T) {
	err := Try(func() { panic(testError{msg: "expected"}) }, testError{})
	assert.Equal(t, testError{msg: "expected"}, err)

	assert.Panics(t, func() {
		_ = Try(func() { panic(otherError{}) }, testError{})
	}, "a panic outside the listed types must re-raise")
}

func TestTryCatchReplacesError(t *testing.T) {
	replacement := testError{msg: "replaced"}
	err := TryCatch(
		func() { panic(otherError{}) },
		func(error) error { return replacement },
	)
	assert.Equal(t, replacement, err)
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	cause := testError{msg: "cause"}
	wrapped := Wrap(cause)
	require.Error(t, wrapped)
	assert.Equal(t, cause, Unwrap(wrapped))

	assert.NoError(t, Wrap(nil))
	assert.Equal(t, wrapped, Wrap(wrapped), "wrapping twice is a no-op")
}

func TestPanicHelpers(t *testing.T) {
	assert.NotPanics(t, func() { PanicIfError(nil) })
	assert.Panics(t, func() { PanicIfError(testError{msg: "x"}) })

	assert.NotPanics(t, func() { PanicIfTrue(false) })
	assert.Panics(t, func() { PanicIfTrue(true) })

	assert.NotPanics(t, func() { PanicIfFalse(true) })
	assert.Panics(t, func() { PanicIfFalse(false, "want %s", "true") })
}
