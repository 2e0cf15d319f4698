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

// Package host provides the blocking primitives that tasksync consumes from
// the host scheduler: a blocking lock usable from task and interrupt
// context, a FIFO condition variable, a yield primitive and timeouts.
package host

import (
	"fmt"
	"time"

	"gvisor.dev/tasksync/pkg/errors/syncerr"
)

// BlockingLock is a mutual-exclusion primitive supplied by the host.
//
// Task-context callers use Lock and Unlock. Interrupt-context callers must
// use LockFromInterrupt and UnlockFromInterrupt, which never block and
// present the same return contract.
type BlockingLock interface {
	// Lock acquires the lock, waiting at most timeout. It returns nil,
	// syncerr.ErrTimeout, syncerr.ErrNotInitialized or syncerr.ErrLockFailed.
	Lock(timeout time.Duration) error

	// Unlock releases the lock. It returns nil, syncerr.ErrUnlockFailed or
	// syncerr.ErrNotInitialized.
	Unlock() error

	// LockFromInterrupt acquires the lock only if it is free, returning
	// syncerr.ErrTimeout otherwise.
	LockFromInterrupt() error

	// UnlockFromInterrupt releases the lock without blocking.
	UnlockFromInterrupt() error
}

// LockKind names a BlockingLock implementation.
type LockKind string

// Supported lock kinds.
const (
	// LockChannel is the channel-woken Mutex.
	LockChannel LockKind = "channel"

	// LockFutex is the futex(2)-backed FutexMutex.
	LockFutex LockKind = "futex"
)

// Set implements flag.Value.
func (k *LockKind) Set(v string) error {
	switch LockKind(v) {
	case LockChannel, LockFutex:
		*k = LockKind(v)
		return nil
	default:
		return fmt.Errorf("invalid lock kind %q", v)
	}
}

// Get implements flag.Getter.
func (k *LockKind) Get() any {
	return *k
}

// String implements flag.Value and fmt.Stringer.
func (k LockKind) String() string {
	return string(k)
}

// MarshalText implements encoding.TextMarshaler.
func (k LockKind) MarshalText() ([]byte, error) {
	return []byte(k), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *LockKind) UnmarshalText(b []byte) error {
	return k.Set(string(b))
}

// NewLock returns a new, unlocked BlockingLock of the given kind. The empty
// kind selects LockChannel. Construction failures wrap
// syncerr.ErrNotInitialized.
func NewLock(kind LockKind) (BlockingLock, error) {
	switch kind {
	case "", LockChannel:
		return NewMutex(), nil
	case LockFutex:
		return NewFutexMutex()
	default:
		return nil, fmt.Errorf("unknown lock kind %q: %w", kind, syncerr.ErrNotInitialized)
	}
}
