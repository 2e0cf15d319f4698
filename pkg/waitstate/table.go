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

// Package waitstate implements a futex-style wait/notify engine keyed by
// memory address.
//
// Waiters and notifiers for an address meet at a Record chosen by hashing
// the address into a fixed-size Table. Unrelated addresses may hash to the
// same Record; this costs extra wakeups and contention on the Record's lock,
// but never a lost wakeup, because every waiter re-checks its own predicate.
package waitstate

import (
	"errors"
	"fmt"
	"sync/atomic"

	"gvisor.dev/tasksync/pkg/errors/syncerr"
	"gvisor.dev/tasksync/pkg/host"
	"gvisor.dev/tasksync/pkg/log"
	"gvisor.dev/tasksync/pkg/sync"
)

const (
	// DefaultSize is the number of records in a table built with a zero
	// Options.Size.
	DefaultSize = 16

	// DefaultSpinCount is the number of predicate evaluations made before a
	// waiter registers, unless configured otherwise.
	DefaultSpinCount = 10
)

// Table maps addresses to wait-state records.
type Table interface {
	// ForAddress returns the record for addr. It is a pure function of addr
	// for the lifetime of the table.
	ForAddress(addr uintptr) *Record

	// BucketIndex returns the index of the record for addr.
	BucketIndex(addr uintptr) int

	// Size returns the number of records in the table.
	Size() int
}

// Options configures a HashedTable.
type Options struct {
	// Size is the number of records. It must be a power of two; zero selects
	// DefaultSize.
	Size int

	// SpinCount is the number of times Record.Wait evaluates its predicate,
	// yielding in between, before it registers as a waiter. Zero selects
	// DefaultSpinCount. A negative value disables spinning: the predicate is
	// evaluated once and the caller registers without yielding.
	SpinCount int

	// LockKind selects the governing lock implementation of every record.
	LockKind host.LockKind

	// NewLock, if not nil, builds the governing lock of each record instead
	// of LockKind. It lets a host supply its own blocking lock.
	NewLock func() (host.BlockingLock, error)

	// Scheduler is used to yield during the spin phase. nil selects
	// host.GoScheduler.
	Scheduler host.Scheduler
}

// params is shared by all records of a table and is immutable after
// construction.
type params struct {
	spinCount int
	sched     host.Scheduler

	// hook, if not nil, is called at scheduling points of the wait/notify
	// protocol. It exists so tests can force interleavings.
	hook func(point)
}

// HashedTable is a Table backed by a fixed, power-of-two sized array of
// records. It is never resized.
type HashedTable struct {
	records []Record
	mask    uintptr
	params  params
}

// NewTable returns a new HashedTable. If the governing lock of any record
// cannot be constructed, NewTable returns an error wrapping
// syncerr.ErrNotInitialized.
func NewTable(opts Options) (*HashedTable, error) {
	size := opts.Size
	if size == 0 {
		size = DefaultSize
	}
	if size < 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("size %d: %w", size, syncerr.ErrBadTableSize)
	}
	t := &HashedTable{
		records: make([]Record, size),
		mask:    uintptr(size - 1),
		params: params{
			spinCount: opts.SpinCount,
			sched:     opts.Scheduler,
		},
	}
	switch {
	case t.params.spinCount == 0:
		t.params.spinCount = DefaultSpinCount
	case t.params.spinCount < 0:
		t.params.spinCount = 1
	}
	if t.params.sched == nil {
		t.params.sched = host.GoScheduler{}
	}
	newLock := opts.NewLock
	if newLock == nil {
		newLock = func() (host.BlockingLock, error) {
			return host.NewLock(opts.LockKind)
		}
	}
	for i := range t.records {
		l, err := newLock()
		if err != nil {
			if !errors.Is(err, syncerr.ErrNotInitialized) {
				err = fmt.Errorf("%w: %w", syncerr.ErrNotInitialized, err)
			}
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		t.records[i].mu = l
		t.records[i].params = &t.params
	}
	log.Debugf("Created wait-state table: size=%d spin=%d lock=%q", size, t.params.spinCount, opts.LockKind)
	return t, nil
}

// MustNewTable calls NewTable and panics if it returns an error.
func MustNewTable(opts Options) *HashedTable {
	t, err := NewTable(opts)
	if err != nil {
		panic(fmt.Sprintf("Unable to create wait-state table: %v", err))
	}
	return t
}

// bucketIndexForAddr returns the index into a table of mask+1 records for
// addr.
//
// The low bits of addr carry little information for word-aligned values, and
// the high bits are usually equal across a process. Summing shifted copies
// folds every useful bit into the low bits while mapping adjacent words to
// adjacent buckets.
func bucketIndexForAddr(addr, mask uintptr) uintptr {
	h1 := (addr >> 2) + (addr >> 12) + (addr >> 22)
	h2 := (addr >> 32) + (addr >> 42)
	return (h1 + h2) & mask
}

// ForAddress implements Table.ForAddress.
func (t *HashedTable) ForAddress(addr uintptr) *Record {
	return &t.records[bucketIndexForAddr(addr, t.mask)]
}

// BucketIndex implements Table.BucketIndex.
func (t *HashedTable) BucketIndex(addr uintptr) int {
	return int(bucketIndexForAddr(addr, t.mask))
}

// Size implements Table.Size.
func (t *HashedTable) Size() int {
	return len(t.records)
}

// Record returns the i'th record.
func (t *HashedTable) Record(i int) *Record {
	return &t.records[i]
}

// defaultTable is the process-wide table, built on first use.
var defaultTable = sync.OnceValue(func() Table {
	return MustNewTable(Options{})
})

// tableRef boxes a Table for atomic.Pointer.
type tableRef struct {
	Table
}

// installed, if set, overrides defaultTable.
var installed atomic.Pointer[tableRef]

// Default returns the process-wide table. Unless another table has been
// installed, it is a DefaultSize table built on first use and never
// destroyed.
func Default() Table {
	if r := installed.Load(); r != nil {
		return r.Table
	}
	return defaultTable()
}

// Install makes t the process-wide table and returns a function that
// restores the previous one.
//
// Waiters blocked on records of the replaced table are not moved, so Install
// must only be called while no waits are in progress, e.g. during startup.
func Install(t Table) (restore func()) {
	prev := installed.Swap(&tableRef{t})
	return func() {
		installed.Store(prev)
	}
}
