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

package latch

import (
	"errors"
	"testing"
	"time"

	"gvisor.dev/tasksync/pkg/errors/syncerr"
	"gvisor.dev/tasksync/pkg/host"
	"gvisor.dev/tasksync/pkg/test/testutil"
	"gvisor.dev/tasksync/pkg/waitstate"
)

func mustNew(t *testing.T, expected int64) *Latch {
	t.Helper()
	l, err := New(expected)
	if err != nil {
		t.Fatalf("New(%d) failed: %v", expected, err)
	}
	return l
}

func TestNewNegative(t *testing.T) {
	if _, err := New(-1); !errors.Is(err, syncerr.ErrBadInitialCount) {
		t.Errorf("New(-1) = %v, want %v", err, syncerr.ErrBadInitialCount)
	}
}

func TestZeroIsOpen(t *testing.T) {
	l := mustNew(t, 0)
	if !l.TryWait() {
		t.Errorf("TryWait() = false on a zero latch")
	}
	if err := l.Wait(0); err != nil {
		t.Errorf("Wait(0) = %v on a zero latch", err)
	}
}

// TestArriveAndWait: three goroutines arrive at a latch of three.
func TestArriveAndWait(t *testing.T) {
	l := mustNew(t, 3)
	if err := testutil.RunConcurrently(3, func(int) error {
		return l.ArriveAndWait(1, 1000*time.Millisecond)
	}); err != nil {
		t.Fatalf("ArriveAndWait failed: %v", err)
	}
	if !l.TryWait() {
		t.Errorf("TryWait() = false after all arrivals")
	}
}

func TestWaitTimeout(t *testing.T) {
	l := mustNew(t, 1)
	start := time.Now()
	if err := l.Wait(20 * time.Millisecond); !errors.Is(err, syncerr.ErrTimeout) {
		t.Fatalf("Wait = %v, want %v", err, syncerr.ErrTimeout)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Wait returned after %v", elapsed)
	}
	if err := l.Wait(0); !errors.Is(err, syncerr.ErrTimeout) {
		t.Errorf("Wait(0) = %v, want %v", err, syncerr.ErrTimeout)
	}
	// A non-blocking arrival that opens the latch succeeds.
	if err := l.ArriveAndWait(1, 0); err != nil {
		t.Errorf("final ArriveAndWait = %v, want nil", err)
	}
}

func TestCountDownArguments(t *testing.T) {
	l := mustNew(t, 2)
	if err := l.CountDown(-1, host.Forever); !errors.Is(err, syncerr.ErrBadCount) {
		t.Errorf("CountDown(-1) = %v, want %v", err, syncerr.ErrBadCount)
	}
	if err := l.CountDown(0, host.Forever); err != nil {
		t.Errorf("CountDown(0) = %v, want nil", err)
	}
	if err := l.CountDown(3, host.Forever); !errors.Is(err, syncerr.ErrCountUnderflow) {
		t.Errorf("CountDown(3) = %v, want %v", err, syncerr.ErrCountUnderflow)
	}
	if got := l.Count(); got != 2 {
		t.Errorf("Count() = %d after rejected calls, want 2", got)
	}
}

func TestTerminalState(t *testing.T) {
	l := mustNew(t, 2)
	if err := l.CountDown(2, host.Forever); err != nil {
		t.Fatalf("CountDown(2) failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := l.Wait(0); err != nil {
			t.Errorf("Wait(0) = %v on an open latch", err)
		}
		if err := l.CountDown(1, host.Forever); !errors.Is(err, syncerr.ErrCountUnderflow) {
			t.Errorf("CountDown(1) = %v on an open latch, want %v", err, syncerr.ErrCountUnderflow)
		}
		if got := l.Count(); got != 0 {
			t.Fatalf("Count() = %d, want 0", got)
		}
	}
}

// TestConcurrentDecrementsWake checks that waiters are released when many
// concurrent decrements together reach zero, even though no single
// decrement equals the value it observed.
func TestConcurrentDecrementsWake(t *testing.T) {
	const (
		waiters    = 3
		decrements = 8
	)
	for i := 0; i < testutil.Iterations("LATCH_ITERATIONS", 50); i++ {
		l := mustNew(t, decrements)
		if err := testutil.RunConcurrently(waiters+decrements, func(j int) error {
			if j < waiters {
				return l.Wait(10 * time.Second)
			}
			testutil.Perturb()
			return l.CountDown(1, host.Forever)
		}); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if !l.TryWait() {
			t.Fatalf("iteration %d: latch not open", i)
		}
	}
}

func TestWaitersReleasedTogether(t *testing.T) {
	l := mustNew(t, 1)
	const waiters = 4
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			errs <- l.Wait(host.Forever)
		}()
	}
	// Give the waiters a chance to block; correctness does not depend on it.
	time.Sleep(10 * time.Millisecond)
	if err := l.CountDown(1, host.Forever); err != nil {
		t.Fatalf("CountDown failed: %v", err)
	}
	for i := 0; i < waiters; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Errorf("Wait failed: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("waiter %d not released", i)
		}
	}
}

// TestCountDownLockBusy checks that the decrement that opens the latch still
// releases waiters when the governing lock of their record is held past the
// CountDown timeout.
func TestCountDownLockBusy(t *testing.T) {
	mu := host.NewMutex()
	restore := waitstate.Install(waitstate.MustNewTable(waitstate.Options{
		Size:    1,
		NewLock: func() (host.BlockingLock, error) { return mu, nil },
	}))
	defer restore()
	rec := waitstate.Default().ForAddress(0)

	l := mustNew(t, 1)
	waited := make(chan error, 1)
	go func() {
		waited <- l.Wait(host.Forever)
	}()
	testutil.WaitFor(t, "waiter to register", func() bool { return rec.Waiters() == 1 }, 5*time.Second)

	if err := mu.Lock(host.Forever); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	counted := make(chan error, 1)
	go func() {
		counted <- l.CountDown(1, 10*time.Millisecond)
	}()
	testutil.WaitFor(t, "count to reach zero", l.TryWait, 5*time.Second)
	time.Sleep(30 * time.Millisecond)
	select {
	case err := <-counted:
		t.Errorf("CountDown returned %v while the governing lock was held", err)
	default:
	}
	if err := mu.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	for _, tc := range []struct {
		name string
		ch   chan error
	}{
		{"CountDown", counted},
		{"Wait", waited},
	} {
		select {
		case err := <-tc.ch:
			if err != nil {
				t.Errorf("%s failed: %v", tc.name, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("%s did not return after the governing lock was released", tc.name)
		}
	}
}
