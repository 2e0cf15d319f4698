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

// Package errors holds the standardized error definition for tasksync.
package errors

import (
	"fmt"
)

// Code is the status reported by a synchronization operation.
type Code uint32

// Status codes. OK is never carried by an *Error; it is what a nil error
// maps to.
const (
	OK Code = iota
	NotInitialized
	Timeout
	LockFailed
	UnlockFailed
	BadInitialCount
	BadCount
	CountUnderflow
	BadTableSize
	Unknown
)

var codeNames = [...]string{
	OK:              "ok",
	NotInitialized:  "not_initialized",
	Timeout:         "timeout",
	LockFailed:      "lock_failed",
	UnlockFailed:    "unlock_failed",
	BadInitialCount: "bad_initial_count",
	BadCount:        "bad_count",
	CountUnderflow:  "count_underflow",
	BadTableSize:    "bad_table_size",
	Unknown:         "unknown",
}

// String implements fmt.Stringer.String.
func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

// Error represents a status code with a descriptive message.
type Error struct {
	code    Code
	message string
}

// New creates a new *Error.
func New(code Code, message string) *Error {
	return &Error{
		code:    code,
		message: message,
	}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Code returns the underlying status code.
func (e *Error) Code() Code { return e.code }
