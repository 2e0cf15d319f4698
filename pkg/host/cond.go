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
	"container/list"
	"time"

	"gvisor.dev/tasksync/pkg/errors/syncerr"
	"gvisor.dev/tasksync/pkg/sync"
)

// condWaiter is queued in a Cond by Wait.
type condWaiter struct {
	// C is sent to exactly once when the waiter is dequeued by Signal or
	// Broadcast.
	C chan struct{}
}

// Cond is a condition variable whose waiters are woken in FIFO order. Unlike
// sync.Cond, the lock is an explicit argument of Wait, and Wait accepts a
// timeout.
//
// The zero value is a Cond with no waiters.
type Cond struct {
	// mu protects waiters. It is never held while blocking.
	mu sync.Mutex

	// waiters holds *condWaiter, oldest first.
	waiters list.List
}

// Wait atomically releases l and blocks the caller until it is woken by
// Signal or Broadcast, or until timeout passes. In all cases l is reacquired
// before Wait returns.
//
// Wait returns syncerr.ErrTimeout only if the caller was not woken. A wakeup
// that races with the timeout is consumed as a wakeup. Errors from l are
// returned as-is; if l could not be reacquired the caller does not hold it.
//
// As with all Mesa-style condition variables, callers must re-check their
// predicate after Wait returns.
func (c *Cond) Wait(l BlockingLock, timeout time.Duration) error {
	w := &condWaiter{C: make(chan struct{}, 1)}
	c.mu.Lock()
	e := c.waiters.PushBack(w)
	c.mu.Unlock()

	if err := l.Unlock(); err != nil {
		c.remove(e)
		return err
	}

	timedOut := false
	switch {
	case timeout == Forever:
		<-w.C
	case timeout <= 0:
		select {
		case <-w.C:
		default:
			timedOut = true
		}
	default:
		t := time.NewTimer(timeout)
		select {
		case <-w.C:
		case <-t.C:
			timedOut = true
		}
		t.Stop()
	}
	if timedOut && !c.remove(e) {
		// Dequeued by Signal or Broadcast after the timer fired; the wakeup
		// is ours.
		<-w.C
		timedOut = false
	}

	if err := l.Lock(Forever); err != nil {
		return err
	}
	if timedOut {
		return syncerr.ErrTimeout
	}
	return nil
}

// remove dequeues e if it is still queued, and returns true if it was.
func (c *Cond) remove(e *list.Element) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Removed elements have their list cleared, which makes Remove a no-op;
	// check membership through Value instead.
	if e.Value == nil {
		return false
	}
	c.waiters.Remove(e)
	e.Value = nil
	return true
}

// popLocked dequeues the oldest waiter.
//
// Preconditions: c.mu must be locked.
func (c *Cond) popLocked() *condWaiter {
	e := c.waiters.Front()
	if e == nil {
		return nil
	}
	w := c.waiters.Remove(e).(*condWaiter)
	e.Value = nil
	return w
}

// Signal wakes the oldest waiter, if any.
func (c *Cond) Signal() {
	c.mu.Lock()
	w := c.popLocked()
	c.mu.Unlock()
	if w != nil {
		w.C <- struct{}{}
	}
}

// Broadcast wakes all waiters.
func (c *Cond) Broadcast() {
	c.mu.Lock()
	var woke []*condWaiter
	for w := c.popLocked(); w != nil; w = c.popLocked() {
		woke = append(woke, w)
	}
	c.mu.Unlock()
	for _, w := range woke {
		w.C <- struct{}{}
	}
}

// Len returns the number of queued waiters.
func (c *Cond) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters.Len()
}
