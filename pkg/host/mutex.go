// Copyright 2018 The gVisor Authors.
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

package host

import (
	"sync/atomic"
	"time"

	"gvisor.dev/tasksync/pkg/errors/syncerr"
)

// Mutex is a BlockingLock that implements TryLock and bounded waits in
// addition to Lock and Unlock.
//
// The zero value is not initialized; every operation on it returns
// syncerr.ErrNotInitialized until Init is called.
type Mutex struct {
	// v is 1 when unlocked, 0 when locked without waiters and negative when
	// locked and contended.
	v  atomic.Int32
	ch chan struct{}
}

// NewMutex returns an initialized, unlocked Mutex.
func NewMutex() *Mutex {
	m := &Mutex{}
	m.Init()
	return m
}

// Init initializes the mutex.
func (m *Mutex) Init() {
	m.v.Store(1)
	m.ch = make(chan struct{}, 1)
}

// Lock implements BlockingLock.Lock. If the mutex is currently held by
// another goroutine, Lock waits up to timeout for a chance to acquire it.
func (m *Mutex) Lock(timeout time.Duration) error {
	if m.ch == nil {
		return syncerr.ErrNotInitialized
	}

	// Uncontended case.
	if m.v.Add(-1) == 0 {
		return nil
	}

	dl := NewDeadline(timeout)
	var timer *time.Timer
	for {
		// Try to acquire the mutex again, at the same time making sure
		// that m.v is negative, which indicates to the owner of the
		// lock that it is contended, which will force it to try to wake
		// someone up when it releases the mutex.
		if v := m.v.Load(); v >= 0 && m.v.Swap(-1) == 1 {
			if timer != nil {
				timer.Stop()
			}
			return nil
		}

		// Wait for the mutex to be released before trying again.
		if dl.Forever() {
			<-m.ch
			continue
		}
		r := dl.Remaining()
		if r == 0 {
			return syncerr.ErrTimeout
		}
		if timer == nil {
			timer = time.NewTimer(r)
		} else {
			timer.Reset(r)
		}
		select {
		case <-m.ch:
		case <-timer.C:
		}
	}
}

// TryLock attempts to acquire the mutex without blocking. If the mutex is
// currently held by another goroutine, it fails to acquire it and returns
// false.
func (m *Mutex) TryLock() bool {
	if m.ch == nil {
		return false
	}
	v := m.v.Load()
	if v <= 0 {
		return false
	}
	return m.v.CompareAndSwap(1, 0)
}

// Unlock implements BlockingLock.Unlock.
func (m *Mutex) Unlock() error {
	if m.ch == nil {
		return syncerr.ErrNotInitialized
	}
	switch m.v.Swap(1) {
	case 1:
		// Not locked.
		return syncerr.ErrUnlockFailed
	case 0:
		// There were no pending waiters.
		return nil
	}

	// Wake some waiter up.
	select {
	case m.ch <- struct{}{}:
	default:
	}
	return nil
}

// LockFromInterrupt implements BlockingLock.LockFromInterrupt.
func (m *Mutex) LockFromInterrupt() error {
	if m.ch == nil {
		return syncerr.ErrNotInitialized
	}
	if !m.TryLock() {
		return syncerr.ErrTimeout
	}
	return nil
}

// UnlockFromInterrupt implements BlockingLock.UnlockFromInterrupt.
func (m *Mutex) UnlockFromInterrupt() error {
	return m.Unlock()
}
