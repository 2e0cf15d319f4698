// Copyright 2019 The gVisor Authors.
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

//go:build linux
// +build linux

package host

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
	"gvisor.dev/tasksync/pkg/abi/linux"
	"gvisor.dev/tasksync/pkg/errors/syncerr"
)

// States of FutexMutex.word.
const (
	futexUnlocked = iota
	futexLocked
	futexContended
)

// FutexMutex is a BlockingLock that blocks in the host kernel using
// FUTEX_WAIT_PRIVATE and FUTEX_WAKE_PRIVATE on a single 32-bit word.
type FutexMutex struct {
	// word is accessed using atomic memory operations and by the host
	// kernel.
	word uint32

	// ready is immutable after NewFutexMutex.
	ready bool
}

// NewFutexMutex returns an unlocked FutexMutex. It fails with an error
// wrapping syncerr.ErrNotInitialized if the host does not support futexes.
func NewFutexMutex() (*FutexMutex, error) {
	m := &FutexMutex{}
	if _, err := futexWake(&m.word, 1); err != nil {
		return nil, fmt.Errorf("futex probe failed: %v: %w", err, syncerr.ErrNotInitialized)
	}
	m.ready = true
	return m, nil
}

// Lock implements BlockingLock.Lock.
func (m *FutexMutex) Lock(timeout time.Duration) error {
	if !m.ready {
		return syncerr.ErrNotInitialized
	}
	if atomic.CompareAndSwapUint32(&m.word, futexUnlocked, futexLocked) {
		return nil
	}

	dl := NewDeadline(timeout)
	for {
		// Mark the lock contended so that the owner issues a FUTEX_WAKE. If
		// it was free in the meantime, we now own it.
		if atomic.SwapUint32(&m.word, futexContended) == futexUnlocked {
			return nil
		}
		r := dl.Remaining()
		if r == 0 {
			return syncerr.ErrTimeout
		}
		if err := futexWait(&m.word, futexContended, r); err != nil {
			return fmt.Errorf("FUTEX_WAIT: %v: %w", err, syncerr.ErrLockFailed)
		}
	}
}

// Unlock implements BlockingLock.Unlock.
func (m *FutexMutex) Unlock() error {
	if !m.ready {
		return syncerr.ErrNotInitialized
	}
	switch atomic.SwapUint32(&m.word, futexUnlocked) {
	case futexUnlocked:
		return syncerr.ErrUnlockFailed
	case futexLocked:
		return nil
	}
	if _, err := futexWake(&m.word, 1); err != nil {
		return fmt.Errorf("FUTEX_WAKE: %v: %w", err, syncerr.ErrUnlockFailed)
	}
	return nil
}

// LockFromInterrupt implements BlockingLock.LockFromInterrupt.
func (m *FutexMutex) LockFromInterrupt() error {
	if !m.ready {
		return syncerr.ErrNotInitialized
	}
	if !atomic.CompareAndSwapUint32(&m.word, futexUnlocked, futexLocked) {
		return syncerr.ErrTimeout
	}
	return nil
}

// UnlockFromInterrupt implements BlockingLock.UnlockFromInterrupt.
func (m *FutexMutex) UnlockFromInterrupt() error {
	return m.Unlock()
}

// futexWait blocks while *addr == val, for at most timeout. Spurious
// returns, value mismatches, interruptions and timeouts are all reported as
// success; the caller re-checks its own state.
func futexWait(addr *uint32, val uint32, timeout time.Duration) error {
	var tsp *unix.Timespec
	if timeout != Forever {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		tsp = &ts
	}
	_, _, e := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), linux.FUTEX_WAIT|linux.FUTEX_PRIVATE_FLAG, uintptr(val), uintptr(unsafe.Pointer(tsp)), 0, 0)
	switch e {
	case 0, unix.EAGAIN, unix.EINTR, unix.ETIMEDOUT:
		return nil
	default:
		return e
	}
}

// futexWake wakes up to n waiters blocked on addr and returns how many were
// woken.
func futexWake(addr *uint32, n int) (int, error) {
	r, _, e := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), linux.FUTEX_WAKE|linux.FUTEX_PRIVATE_FLAG, uintptr(n), 0, 0, 0)
	if e != 0 {
		return 0, e
	}
	return int(r), nil
}
