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

// Package timedlock provides a mutual exclusion lock whose acquisition can
// time out.
package timedlock

import (
	"fmt"
	"time"

	"gvisor.dev/tasksync/pkg/errors/syncerr"
	"gvisor.dev/tasksync/pkg/host"
	"gvisor.dev/tasksync/pkg/sync"
)

// TimedLock is a mutual exclusion lock built from a condition variable and a
// governing lock. Unlike host.Mutex, it may be held for long periods: waiters
// sleep on the condition variable rather than on the governing lock, which
// is only held for the duration of a state transition.
//
// TimedLock implements host.BlockingLock.
//
// The zero value is not usable: every method returns
// syncerr.ErrNotInitialized. Use New.
type TimedLock struct {
	_ sync.NoCopy

	// mu is the governing lock.
	mu host.BlockingLock

	// cond is signalled when locked is cleared.
	cond host.Cond

	// locked is true while the lock is held.
	//
	// +checklocks:mu
	locked bool
}

// New returns an unlocked TimedLock whose governing lock is of the given
// kind.
func New(kind host.LockKind) (*TimedLock, error) {
	mu, err := host.NewLock(kind)
	if err != nil {
		return nil, err
	}
	return &TimedLock{mu: mu}, nil
}

// MustNew calls New and panics if it returns an error.
func MustNew(kind host.LockKind) *TimedLock {
	l, err := New(kind)
	if err != nil {
		panic(fmt.Sprintf("Unable to create timed lock: %v", err))
	}
	return l
}

// Lock acquires l, blocking for at most timeout. It returns
// syncerr.ErrTimeout if l is still held by someone else when the timeout
// passes. A non-positive timeout never blocks.
func (l *TimedLock) Lock(timeout time.Duration) error {
	if l.mu == nil {
		return syncerr.ErrNotInitialized
	}
	dl := host.NewDeadline(timeout)
	// The governing lock is only held for short transitions, so acquiring it
	// is not charged against the timeout.
	if err := l.mu.Lock(host.Forever); err != nil {
		return err
	}
	for l.locked {
		err := l.cond.Wait(l.mu, dl.Remaining())
		if err == nil {
			continue
		}
		if !syncerr.IsTimeout(err) {
			return err
		}
		if l.locked {
			if err := l.mu.Unlock(); err != nil {
				return err
			}
			return syncerr.ErrTimeout
		}
	}
	l.locked = true
	return l.mu.Unlock()
}

// TryLock acquires l if it is not held, and returns true if it did.
func (l *TimedLock) TryLock() bool {
	return l.Lock(0) == nil
}

// Unlock releases l and wakes one goroutine blocked in Lock, if any. It
// returns syncerr.ErrUnlockFailed if l is not held.
func (l *TimedLock) Unlock() error {
	return l.unlock(true)
}

// UnlockQuiet releases l without waking anyone. It is for callers that know
// no waiter can make progress; a waiter left sleeping is only released by a
// later Unlock or its own timeout.
func (l *TimedLock) UnlockQuiet() error {
	return l.unlock(false)
}

func (l *TimedLock) unlock(signal bool) error {
	if l.mu == nil {
		return syncerr.ErrNotInitialized
	}
	if err := l.mu.Lock(host.Forever); err != nil {
		return err
	}
	if !l.locked {
		if err := l.mu.Unlock(); err != nil {
			return err
		}
		return syncerr.ErrUnlockFailed
	}
	l.locked = false
	if signal {
		l.cond.Signal()
	}
	return l.mu.Unlock()
}

// LockFromInterrupt acquires l only if that requires no blocking at all, and
// returns syncerr.ErrTimeout otherwise.
func (l *TimedLock) LockFromInterrupt() error {
	if l.mu == nil {
		return syncerr.ErrNotInitialized
	}
	if err := l.mu.LockFromInterrupt(); err != nil {
		return err
	}
	if l.locked {
		if err := l.mu.UnlockFromInterrupt(); err != nil {
			return err
		}
		return syncerr.ErrTimeout
	}
	l.locked = true
	return l.mu.UnlockFromInterrupt()
}

// UnlockFromInterrupt is Unlock for callers that must not block. It returns
// syncerr.ErrTimeout if the governing lock is busy; l is then still held.
func (l *TimedLock) UnlockFromInterrupt() error {
	if l.mu == nil {
		return syncerr.ErrNotInitialized
	}
	if err := l.mu.LockFromInterrupt(); err != nil {
		return err
	}
	if !l.locked {
		if err := l.mu.UnlockFromInterrupt(); err != nil {
			return err
		}
		return syncerr.ErrUnlockFailed
	}
	l.locked = false
	l.cond.Signal()
	return l.mu.UnlockFromInterrupt()
}

// Locker returns a sync.Locker that blocks without a timeout. Its methods
// panic if the underlying operation fails.
func (l *TimedLock) Locker() sync.Locker {
	return locker{l}
}

type locker struct {
	l *TimedLock
}

// Lock implements sync.Locker.Lock.
func (k locker) Lock() {
	if err := k.l.Lock(host.Forever); err != nil {
		panic(fmt.Sprintf("timedlock: Lock: %v", err))
	}
}

// Unlock implements sync.Locker.Unlock.
func (k locker) Unlock() {
	if err := k.l.Unlock(); err != nil {
		panic(fmt.Sprintf("timedlock: Unlock: %v", err))
	}
}

var _ host.BlockingLock = (*TimedLock)(nil)
