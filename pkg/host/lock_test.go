// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gvisor.dev/tasksync/pkg/errors/syncerr"
)

// forEachLock runs fn against every lock kind available on this host.
func forEachLock(t *testing.T, fn func(t *testing.T, newLock func() BlockingLock)) {
	for _, kind := range []LockKind{LockChannel, LockFutex} {
		t.Run(string(kind), func(t *testing.T) {
			if _, err := NewLock(kind); err != nil {
				if errors.Is(err, syncerr.ErrNotInitialized) {
					t.Skipf("lock kind %q unavailable: %v", kind, err)
				}
				t.Fatalf("NewLock(%q) failed: %v", kind, err)
			}
			fn(t, func() BlockingLock {
				l, err := NewLock(kind)
				if err != nil {
					t.Fatalf("NewLock(%q) failed: %v", kind, err)
				}
				return l
			})
		})
	}
}

func mustLock(t *testing.T, l BlockingLock) {
	t.Helper()
	if err := l.Lock(Forever); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
}

func mustUnlock(t *testing.T, l BlockingLock) {
	t.Helper()
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
}

func TestBasicLock(t *testing.T) {
	forEachLock(t, func(t *testing.T, newLock func() BlockingLock) {
		m := newLock()
		mustLock(t, m)

		// Try blocking lock the mutex from a different goroutine. This must
		// not block because the mutex is held.
		ch := make(chan error, 2)
		go func() {
			ch <- m.Lock(Forever)
			ch <- m.Unlock()
		}()

		select {
		case <-ch:
			t.Fatalf("Lock succeeded on locked mutex")
		case <-time.After(100 * time.Millisecond):
		}

		// Unlock the mutex and make sure that the goroutine waiting on Lock()
		// unblocks and succeeds.
		mustUnlock(t, m)

		for i := 0; i < 2; i++ {
			select {
			case err := <-ch:
				if err != nil {
					t.Fatalf("waiter failed: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("Lock failed to acquire unlocked mutex")
			}
		}

		// Make sure we can lock and unlock again.
		mustLock(t, m)
		mustUnlock(t, m)
	})
}

func TestLockTimeout(t *testing.T) {
	forEachLock(t, func(t *testing.T, newLock func() BlockingLock) {
		m := newLock()
		mustLock(t, m)

		start := time.Now()
		if err := m.Lock(50 * time.Millisecond); !errors.Is(err, syncerr.ErrTimeout) {
			t.Fatalf("Lock on held mutex = %v, want %v", err, syncerr.ErrTimeout)
		}
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Errorf("Lock timed out after %v, want at least 50ms", elapsed)
		}
		if err := m.Lock(0); !errors.Is(err, syncerr.ErrTimeout) {
			t.Fatalf("Lock(0) on held mutex = %v, want %v", err, syncerr.ErrTimeout)
		}

		// The timed out waiters must not have left the mutex unusable.
		mustUnlock(t, m)
		if err := m.Lock(0); err != nil {
			t.Fatalf("Lock(0) on free mutex = %v, want nil", err)
		}
		mustUnlock(t, m)
	})
}

func TestUnlockUnlocked(t *testing.T) {
	forEachLock(t, func(t *testing.T, newLock func() BlockingLock) {
		m := newLock()
		if err := m.Unlock(); !errors.Is(err, syncerr.ErrUnlockFailed) {
			t.Fatalf("Unlock on free mutex = %v, want %v", err, syncerr.ErrUnlockFailed)
		}
		// The failed unlock must leave the mutex free.
		mustLock(t, m)
		mustUnlock(t, m)
	})
}

func TestInterruptPath(t *testing.T) {
	forEachLock(t, func(t *testing.T, newLock func() BlockingLock) {
		m := newLock()
		if err := m.LockFromInterrupt(); err != nil {
			t.Fatalf("LockFromInterrupt on free mutex = %v", err)
		}
		if err := m.LockFromInterrupt(); !errors.Is(err, syncerr.ErrTimeout) {
			t.Fatalf("LockFromInterrupt on held mutex = %v, want %v", err, syncerr.ErrTimeout)
		}
		if err := m.UnlockFromInterrupt(); err != nil {
			t.Fatalf("UnlockFromInterrupt = %v", err)
		}
		mustLock(t, m)
		mustUnlock(t, m)
	})
}

func TestMutualExclusion(t *testing.T) {
	forEachLock(t, func(t *testing.T, newLock func() BlockingLock) {
		m := newLock()

		// Test mutual exclusion by running "gr" goroutines concurrently, and
		// have each one increment a counter "iters" times within the critical
		// section established by the mutex.
		//
		// If at the end the counter is not gr * iters, then we know that
		// goroutines ran concurrently within the critical section.
		const gr = 100
		const iters = 1000
		v := 0
		var failures atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < gr; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < iters; j++ {
					if err := m.Lock(Forever); err != nil {
						failures.Add(1)
						return
					}
					v++
					if err := m.Unlock(); err != nil {
						failures.Add(1)
						return
					}
				}
			}()
		}
		wg.Wait()

		if n := failures.Load(); n != 0 {
			t.Fatalf("%d lock operations failed", n)
		}
		if v != gr*iters {
			t.Fatalf("Bad count: got %v, want %v", v, gr*iters)
		}
	})
}

func TestMutualExclusionWithTryLock(t *testing.T) {
	var m Mutex
	m.Init()

	// Similar to the previous, with the addition of some goroutines that
	// only increment the count if TryLock succeeds.
	const gr = 100
	const iters = 1000
	total := int64(gr * iters)
	var tryTotal int64
	v := int64(0)
	var wg sync.WaitGroup
	for i := 0; i < gr; i++ {
		wg.Add(2)
		go func() {
			for j := 0; j < iters; j++ {
				m.Lock(Forever)
				v++
				m.Unlock()
			}
			wg.Done()
		}()
		go func() {
			local := int64(0)
			for j := 0; j < iters; j++ {
				if m.TryLock() {
					v++
					m.Unlock()
					local++
				}
			}
			atomic.AddInt64(&tryTotal, local)
			wg.Done()
		}()
	}

	wg.Wait()

	t.Logf("tryTotal = %d", tryTotal)
	total += tryTotal

	if v != total {
		t.Fatalf("Bad count: got %v, want %v", v, total)
	}
}

func TestZeroValueMutex(t *testing.T) {
	var m Mutex
	if err := m.Lock(Forever); !errors.Is(err, syncerr.ErrNotInitialized) {
		t.Errorf("Lock = %v, want %v", err, syncerr.ErrNotInitialized)
	}
	if err := m.Unlock(); !errors.Is(err, syncerr.ErrNotInitialized) {
		t.Errorf("Unlock = %v, want %v", err, syncerr.ErrNotInitialized)
	}
	if err := m.LockFromInterrupt(); !errors.Is(err, syncerr.ErrNotInitialized) {
		t.Errorf("LockFromInterrupt = %v, want %v", err, syncerr.ErrNotInitialized)
	}
	if m.TryLock() {
		t.Errorf("TryLock succeeded on uninitialized mutex")
	}
}

func TestNewLockUnknownKind(t *testing.T) {
	if _, err := NewLock("spinning"); !errors.Is(err, syncerr.ErrNotInitialized) {
		t.Errorf("NewLock(spinning) = %v, want %v", err, syncerr.ErrNotInitialized)
	}
}

func TestLockKindSet(t *testing.T) {
	var k LockKind
	if err := k.Set("futex"); err != nil || k != LockFutex {
		t.Errorf("Set(futex) = %v, kind %q", err, k)
	}
	if err := k.Set("bogus"); err == nil {
		t.Errorf("Set(bogus) succeeded")
	}
}

// BenchmarkLock measures uncontended and contended lock/unlock pairs for
// each lock kind.
func BenchmarkLock(b *testing.B) {
	for _, kind := range []LockKind{LockChannel, LockFutex} {
		if _, err := NewLock(kind); err != nil {
			continue
		}
		for n, max := 1, 4*runtime.GOMAXPROCS(0); n > 0 && n <= max; n *= 2 {
			b.Run(fmt.Sprintf("%s/%d", kind, n), func(b *testing.B) {
				m, _ := NewLock(kind)

				var ready sync.WaitGroup
				begin := make(chan struct{})
				var end sync.WaitGroup
				for i := 0; i < n; i++ {
					ready.Add(1)
					end.Add(1)
					go func() {
						ready.Done()
						<-begin
						for j := 0; j < b.N; j++ {
							m.Lock(Forever)
							m.Unlock()
						}
						end.Done()
					}()
				}

				ready.Wait()
				b.ResetTimer()
				close(begin)
				end.Wait()
			})
		}
	}
}
