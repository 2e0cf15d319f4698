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

// Package latch provides a one-shot countdown synchronization point.
package latch

import (
	"fmt"
	"time"

	"gvisor.dev/tasksync/pkg/atomicbitops"
	"gvisor.dev/tasksync/pkg/errors/syncerr"
	"gvisor.dev/tasksync/pkg/host"
	"gvisor.dev/tasksync/pkg/log"
	"gvisor.dev/tasksync/pkg/sync"
)

// Latch is a counter that goroutines decrement and wait on. Once it reaches
// zero it stays there, and all present and future waits succeed.
type Latch struct {
	_ sync.NoCopy

	// count only decreases. It never goes below zero.
	count atomicbitops.Int64
}

// New returns a Latch that opens after expected decrements. It returns
// syncerr.ErrBadInitialCount if expected is negative.
func New(expected int64) (*Latch, error) {
	if expected < 0 {
		return nil, fmt.Errorf("expected count %d: %w", expected, syncerr.ErrBadInitialCount)
	}
	l := &Latch{}
	l.count.Store(expected)
	return l, nil
}

// Count returns the remaining count.
func (l *Latch) Count() int64 {
	return l.count.Load()
}

// CountDown decrements the count by n. The goroutine whose decrement brings
// the count to zero wakes all waiters. timeout bounds the first attempt at
// that notification; if the governing lock is busy the notification is
// repeated without a bound, since a latch at zero cannot be counted down
// again to retry it.
//
// It returns syncerr.ErrBadCount if n is negative and does nothing if n is
// zero. It returns syncerr.ErrCountUnderflow, leaving the count unchanged, if
// n exceeds the remaining count.
func (l *Latch) CountDown(n int64, timeout time.Duration) error {
	switch {
	case n < 0:
		return fmt.Errorf("count down by %d: %w", n, syncerr.ErrBadCount)
	case n == 0:
		return nil
	}
	for {
		c := l.count.Load()
		if n > c {
			return fmt.Errorf("count down by %d with %d remaining: %w", n, c, syncerr.ErrCountUnderflow)
		}
		if !l.count.CompareAndSwap(c, c-n) {
			continue
		}
		if c-n != 0 {
			return nil
		}
		return l.notifyOpen(timeout)
	}
}

func (l *Latch) notifyOpen(timeout time.Duration) error {
	err := l.count.NotifyAll(timeout)
	if !syncerr.IsTimeout(err) {
		return err
	}
	log.Debugf("Latch notification timed out after %v, retrying without a deadline", timeout)
	return l.count.NotifyAll(host.Forever)
}

// TryWait returns true if the count has reached zero.
func (l *Latch) TryWait() bool {
	return l.count.Load() == 0
}

// Wait blocks until the count reaches zero or timeout passes, in which case
// it returns syncerr.ErrTimeout.
func (l *Latch) Wait(timeout time.Duration) error {
	return l.wait(host.NewDeadline(timeout))
}

func (l *Latch) wait(dl host.Deadline) error {
	for {
		c := l.count.Load()
		if c == 0 {
			return nil
		}
		if err := l.count.Wait(c, dl.Remaining()); err != nil {
			return err
		}
	}
}

// ArriveAndWait is CountDown(n) followed by Wait. timeout bounds both steps
// together.
func (l *Latch) ArriveAndWait(n int64, timeout time.Duration) error {
	dl := host.NewDeadline(timeout)
	if err := l.CountDown(n, dl.Remaining()); err != nil {
		return err
	}
	return l.wait(dl)
}
