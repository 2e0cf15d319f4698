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

//go:build !linux
// +build !linux

package host

import (
	"fmt"
	"runtime"
	"time"

	"gvisor.dev/tasksync/pkg/errors/syncerr"
)

// FutexMutex is unavailable on this platform; NewFutexMutex always fails.
type FutexMutex struct{}

// NewFutexMutex returns an error wrapping syncerr.ErrNotInitialized.
func NewFutexMutex() (*FutexMutex, error) {
	return nil, fmt.Errorf("futex locks are not supported on %s: %w", runtime.GOOS, syncerr.ErrNotInitialized)
}

// Lock implements BlockingLock.Lock.
func (*FutexMutex) Lock(time.Duration) error { return syncerr.ErrNotInitialized }

// Unlock implements BlockingLock.Unlock.
func (*FutexMutex) Unlock() error { return syncerr.ErrNotInitialized }

// LockFromInterrupt implements BlockingLock.LockFromInterrupt.
func (*FutexMutex) LockFromInterrupt() error { return syncerr.ErrNotInitialized }

// UnlockFromInterrupt implements BlockingLock.UnlockFromInterrupt.
func (*FutexMutex) UnlockFromInterrupt() error { return syncerr.ErrNotInitialized }
