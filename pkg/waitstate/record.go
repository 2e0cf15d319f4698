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

package waitstate

import (
	"fmt"
	"sync/atomic"
	"time"

	"gvisor.dev/tasksync/pkg/errors/syncerr"
	"gvisor.dev/tasksync/pkg/host"
	"gvisor.dev/tasksync/pkg/log"
)

// point identifies a scheduling point of the wait/notify protocol.
type point int

const (
	// pointRegistered is reached by a waiter after incrementing the waiter
	// count and before taking its version snapshot.
	pointRegistered point = iota

	// pointSnapshotted is reached by a waiter after taking its version
	// snapshot and before its first slow-path predicate check.
	pointSnapshotted

	// pointBeforeBlock is reached by a waiter after its predicate was found
	// false and before it takes the lock to decide whether to block.
	pointBeforeBlock

	// pointNotifyChecked is reached by a notifier after it has read the
	// waiter count and, if needed, bumped the version, but before it
	// broadcasts.
	pointNotifyChecked
)

// interruptLog reports notifications from interrupt context that could not
// be delivered. Such failures may repeat at a high rate.
var interruptLog = log.BasicRateLimitedLogger(time.Second)

// Record is the wait state shared by all addresses that hash to the same
// slot of a Table.
//
// Records are only created by NewTable.
type Record struct {
	// waiters is the number of goroutines between registration and
	// deregistration in Wait. It is advisory: notifiers use it only to skip
	// the version bump when nobody can be waiting.
	waiters atomic.Int32

	// mu is the governing lock. It protects version and serializes the
	// waiter's "version unchanged, so block" decision against the
	// notifier's bump.
	mu host.BlockingLock

	// cond is where waiters block.
	cond host.Cond

	// version counts notifications that observed a registered waiter. It
	// only increases, wrapping on overflow.
	//
	// +checklocks:mu
	version uint64

	// params is shared with the rest of the table.
	params *params
}

func (r *Record) at(p point) {
	if h := r.params.hook; h != nil {
		h(p)
	}
}

// Waiters returns the number of registered waiters. The value may be stale by
// the time it is returned.
func (r *Record) Waiters() int32 {
	return r.waiters.Load()
}

// Version returns the current version.
func (r *Record) Version() uint64 {
	if err := r.mu.Lock(host.Forever); err != nil {
		panic(fmt.Sprintf("waitstate: locking record: %v", err))
	}
	v := r.version
	if err := r.mu.Unlock(); err != nil {
		panic(fmt.Sprintf("waitstate: unlocking record: %v", err))
	}
	return v
}

// Wait blocks until pred returns true or timeout passes. pred is typically a
// load and comparison of a value at an address that hashes to r, and must
// not block.
//
// pred is first evaluated a bounded number of times without touching the
// governing lock. If that fails, the caller registers as a waiter and blocks
// until a Notify on r. Notifications for other addresses that share r cause
// extra evaluations of pred, never a missed wakeup: any Notify that follows
// a change making pred true wakes the caller.
//
// The timeout bounds the whole call, including any time spent acquiring the
// governing lock. A non-positive timeout never blocks. Wait returns
// syncerr.ErrTimeout if the time passes with pred still false, and returns
// errors from the governing lock as-is.
func (r *Record) Wait(pred func() bool, timeout time.Duration) error {
	p := r.params
	for i := 0; i < p.spinCount; i++ {
		if pred() {
			waitsMetric.Increment(outcomeFast)
			return nil
		}
		if i+1 < p.spinCount {
			p.sched.Yield()
		}
	}
	if timeout <= 0 {
		waitsMetric.Increment(outcomeTimeout)
		return syncerr.ErrTimeout
	}
	err := r.waitSlow(pred, host.NewDeadline(timeout))
	switch {
	case err == nil:
		waitsMetric.Increment(outcomeSlow)
	case syncerr.IsTimeout(err):
		waitsMetric.Increment(outcomeTimeout)
	default:
		waitsMetric.Increment(outcomeError)
	}
	return err
}

// waitSlow registers the caller as a waiter and blocks until pred returns
// true or dl passes.
func (r *Record) waitSlow(pred func() bool, dl host.Deadline) error {
	r.waiters.Add(1)
	defer r.waiters.Add(-1)
	r.at(pointRegistered)

	// Any Notify that starts after this snapshot observes waiters != 0 and
	// bumps the version, so the check under the lock below cannot miss it.
	if err := r.mu.Lock(dl.Remaining()); err != nil {
		return r.timedOut(pred, err)
	}
	prev := r.version
	if err := r.mu.Unlock(); err != nil {
		return err
	}
	r.at(pointSnapshotted)

	woken := false
	for !pred() {
		if woken {
			recheckMetric.Increment()
		}
		r.at(pointBeforeBlock)
		if dl.Expired() {
			return syncerr.ErrTimeout
		}
		if err := r.mu.Lock(dl.Remaining()); err != nil {
			return r.timedOut(pred, err)
		}
		var werr error
		if r.version == prev {
			blocksMetric.Increment()
			werr = r.cond.Wait(r.mu, dl.Remaining())
			if werr != nil && !syncerr.IsTimeout(werr) {
				// The lock is in an unknown state; leave it alone.
				return werr
			}
		}
		prev = r.version
		if err := r.mu.Unlock(); err != nil {
			return err
		}
		if werr != nil {
			return r.timedOut(pred, werr)
		}
		woken = true
	}
	return nil
}

// timedOut converts a timeout into success if pred has become true in the
// meantime.
func (r *Record) timedOut(pred func() bool, err error) error {
	if syncerr.IsTimeout(err) && pred() {
		return nil
	}
	return err
}

// Notify wakes all goroutines blocked in Wait on r. It must be called after
// the change that should make their predicates true.
//
// The version is bumped only if a waiter is registered. The timeout bounds
// the acquisition of the governing lock. If the lock cannot be taken the
// version is left alone and the error is returned, but goroutines already
// blocked on r are still woken to re-check their predicates.
func (r *Record) Notify(timeout time.Duration) error {
	var err error
	if r.waiters.Load() != 0 {
		if err = r.mu.Lock(timeout); err == nil {
			r.version++
			err = r.mu.Unlock()
		}
		if err != nil {
			notifyFailuresMetric.Increment(pathTask)
		}
	} else {
		skippedBumpsMetric.Increment()
	}
	r.at(pointNotifyChecked)
	r.cond.Broadcast()
	notifiesMetric.Increment(pathTask)
	return err
}

// NotifyFromInterrupt is Notify for callers that must not block. It uses the
// interrupt path of the governing lock, and returns syncerr.ErrTimeout if the
// lock is held by someone else. Blocked goroutines are woken either way.
func (r *Record) NotifyFromInterrupt() error {
	var err error
	if r.waiters.Load() != 0 {
		if err = r.mu.LockFromInterrupt(); err != nil {
			interruptLog.Warningf("Version not bumped from interrupt context: %v", err)
		} else {
			r.version++
			if err = r.mu.UnlockFromInterrupt(); err != nil {
				interruptLog.Warningf("Failed to release record from interrupt context: %v", err)
			}
		}
		if err != nil {
			notifyFailuresMetric.Increment(pathInterrupt)
		}
	} else {
		skippedBumpsMetric.Increment()
	}
	r.at(pointNotifyChecked)
	r.cond.Broadcast()
	notifiesMetric.Increment(pathInterrupt)
	return err
}
