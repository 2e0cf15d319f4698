// Copyright 2021 The gVisor Authors.
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

// Package syncerr contains the status errors returned by tasksync
// primitives, exported as error interface pointers. Callers compare against
// them with errors.Is, since packages wrap them with additional context.
package syncerr

import (
	goerrors "errors"

	"gvisor.dev/tasksync/pkg/errors"
)

var (
	// ErrNotInitialized is returned when an operation is attempted on an
	// object whose underlying lock failed to construct, or on a zero value
	// that was never initialized.
	ErrNotInitialized = errors.New(errors.NotInitialized, "not initialized")

	// ErrTimeout is returned when a blocking operation exceeded its deadline
	// without success.
	ErrTimeout = errors.New(errors.Timeout, "timed out")

	// ErrLockFailed is returned when the underlying primitive reported a
	// lock failure distinct from a timeout.
	ErrLockFailed = errors.New(errors.LockFailed, "lock failed")

	// ErrUnlockFailed is returned when the underlying primitive reported an
	// unlock failure, for example unlocking a lock that is not held.
	ErrUnlockFailed = errors.New(errors.UnlockFailed, "unlock failed")

	// ErrBadInitialCount is returned when a latch or semaphore is
	// constructed with an out-of-range initial value.
	ErrBadInitialCount = errors.New(errors.BadInitialCount, "initial count out of range")

	// ErrBadCount is returned for out-of-range count arguments.
	ErrBadCount = errors.New(errors.BadCount, "count out of range")

	// ErrCountUnderflow is returned when a count down would drive a counter
	// below zero.
	ErrCountUnderflow = errors.New(errors.CountUnderflow, "count would become negative")

	// ErrBadTableSize is returned when a wait-state table size is not a
	// positive power of two.
	ErrBadTableSize = errors.New(errors.BadTableSize, "table size must be a positive power of two")
)

var all = []*errors.Error{
	ErrNotInitialized,
	ErrTimeout,
	ErrLockFailed,
	ErrUnlockFailed,
	ErrBadInitialCount,
	ErrBadCount,
	ErrCountUnderflow,
	ErrBadTableSize,
}

// CodeOf returns the status code carried by err. It returns errors.OK for a
// nil error and errors.Unknown for errors that do not wrap one of the values
// in this package.
func CodeOf(err error) errors.Code {
	if err == nil {
		return errors.OK
	}
	var e *errors.Error
	if goerrors.As(err, &e) {
		return e.Code()
	}
	return errors.Unknown
}

// Lookup returns the error value for the given code, if any.
func Lookup(code errors.Code) (*errors.Error, bool) {
	for _, e := range all {
		if e.Code() == code {
			return e, true
		}
	}
	return nil, false
}

// IsTimeout returns true if err is or wraps ErrTimeout.
func IsTimeout(err error) bool {
	return goerrors.Is(err, ErrTimeout)
}
