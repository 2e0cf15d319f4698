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

// Package semaphore provides a bounded counting semaphore.
package semaphore

import (
	"fmt"
	"time"

	"gvisor.dev/tasksync/pkg/atomicbitops"
	"gvisor.dev/tasksync/pkg/errors/syncerr"
	"gvisor.dev/tasksync/pkg/host"
	"gvisor.dev/tasksync/pkg/sync"
)

// Semaphore is a counting semaphore holding between zero and a fixed maximum
// number of permits.
type Semaphore struct {
	_ sync.NoCopy

	// count is the number of available permits, in [0, max].
	count atomicbitops.Int64

	max int64
}

// New returns a Semaphore with initial permits out of max. It returns
// syncerr.ErrBadInitialCount unless 0 <= initial <= max and max > 0.
func New(initial, max int64) (*Semaphore, error) {
	if initial < 0 || max <= 0 || initial > max {
		return nil, fmt.Errorf("initial %d, max %d: %w", initial, max, syncerr.ErrBadInitialCount)
	}
	s := &Semaphore{max: max}
	s.count.Store(initial)
	return s, nil
}

// Available returns the number of available permits.
func (s *Semaphore) Available() int64 {
	return s.count.Load()
}

// TryAcquire takes a permit if one is available, and returns true if it did.
func (s *Semaphore) TryAcquire() bool {
	for {
		c := s.count.Load()
		if c == 0 {
			return false
		}
		if s.count.CompareAndSwap(c, c-1) {
			return true
		}
	}
}

// Acquire takes a permit, blocking for at most timeout until one is
// available. It returns syncerr.ErrTimeout if none became available in time.
func (s *Semaphore) Acquire(timeout time.Duration) error {
	dl := host.NewDeadline(timeout)
	for !s.TryAcquire() {
		if err := s.count.Wait(0, dl.Remaining()); err != nil {
			return err
		}
	}
	return nil
}

// Release returns n permits and wakes waiting acquirers. It returns
// syncerr.ErrBadCount, leaving the semaphore unchanged, if n is not positive
// or the release would exceed the maximum.
func (s *Semaphore) Release(n int64) error {
	if n <= 0 {
		return fmt.Errorf("release %d: %w", n, syncerr.ErrBadCount)
	}
	for {
		c := s.count.Load()
		if c > s.max-n {
			return fmt.Errorf("release %d with %d of %d available: %w", n, c, s.max, syncerr.ErrBadCount)
		}
		if s.count.CompareAndSwap(c, c+n) {
			break
		}
	}
	return s.count.NotifyAll(host.Forever)
}
