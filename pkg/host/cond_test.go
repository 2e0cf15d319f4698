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

package host

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/tasksync/pkg/errors/syncerr"
)

// waitForWaiters polls until c has n queued waiters.
func waitForWaiters(t *testing.T, c *Cond, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for c.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d waiters, have %d", n, c.Len())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCondWaitTimeout(t *testing.T) {
	forEachLock(t, func(t *testing.T, newLock func() BlockingLock) {
		var c Cond
		l := newLock()
		mustLock(t, l)

		if err := c.Wait(l, 20*time.Millisecond); !errors.Is(err, syncerr.ErrTimeout) {
			t.Fatalf("Wait = %v, want %v", err, syncerr.ErrTimeout)
		}
		// Wait must return with the lock held.
		if err := l.LockFromInterrupt(); !errors.Is(err, syncerr.ErrTimeout) {
			t.Fatalf("lock not held after Wait: LockFromInterrupt = %v", err)
		}
		if c.Len() != 0 {
			t.Errorf("timed out waiter still queued: Len = %d", c.Len())
		}

		// A zero timeout is a probe.
		if err := c.Wait(l, 0); !errors.Is(err, syncerr.ErrTimeout) {
			t.Fatalf("Wait(0) = %v, want %v", err, syncerr.ErrTimeout)
		}
		mustUnlock(t, l)
	})
}

func TestCondSignalFIFO(t *testing.T) {
	var c Cond
	l := NewMutex()

	const n = 3
	order := make(chan int, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			if err := l.Lock(Forever); err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			if err := c.Wait(l, Forever); err != nil {
				t.Errorf("Wait: %v", err)
			}
			order <- i
			l.Unlock()
		}(i)
		// Queue waiters one at a time so that arrival order is known.
		waitForWaiters(t, &c, i+1)
	}

	var got []int
	for i := 0; i < n; i++ {
		c.Signal()
		select {
		case v := <-order:
			got = append(got, v)
		case <-time.After(5 * time.Second):
			t.Fatalf("Signal %d did not wake a waiter", i)
		}
	}
	if diff := cmp.Diff([]int{0, 1, 2}, got); diff != "" {
		t.Errorf("wake order mismatch (-want +got):\n%s", diff)
	}
}

func TestCondBroadcast(t *testing.T) {
	forEachLock(t, func(t *testing.T, newLock func() BlockingLock) {
		var c Cond
		l := newLock()

		const n = 8
		done := make(chan error, n)
		for i := 0; i < n; i++ {
			go func() {
				if err := l.Lock(Forever); err != nil {
					done <- err
					return
				}
				err := c.Wait(l, Forever)
				l.Unlock()
				done <- err
			}()
		}
		waitForWaiters(t, &c, n)

		c.Broadcast()
		for i := 0; i < n; i++ {
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Wait: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("Broadcast woke only %d of %d waiters", i, n)
			}
		}
	})
}

func TestCondSignalNoWaiters(t *testing.T) {
	var c Cond
	c.Signal()
	c.Broadcast()
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestCondWaitUnlockFailure(t *testing.T) {
	var c Cond
	l := NewMutex()
	// l is not held, so the release inside Wait fails.
	if err := c.Wait(l, Forever); !errors.Is(err, syncerr.ErrUnlockFailed) {
		t.Fatalf("Wait = %v, want %v", err, syncerr.ErrUnlockFailed)
	}
	if c.Len() != 0 {
		t.Errorf("failed waiter still queued: Len = %d", c.Len())
	}
}
