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

package atomicbitops

import (
	"time"
	"unsafe"

	"gvisor.dev/tasksync/pkg/waitstate"
)

// recordFor returns the wait-state record for the value at p.
func recordFor(p unsafe.Pointer) *waitstate.Record {
	return waitstate.Default().ForAddress(uintptr(p))
}

// Wait blocks until the value is observed to differ from old, or timeout
// passes, in which case it returns syncerr.ErrTimeout. A change that is
// reverted before Wait observes it may be missed; a value that already
// differs returns immediately.
//
// Wait only returns early for a change if the writer calls NotifyOne or
// NotifyAll after it.
func (i *Int32) Wait(old int32, timeout time.Duration) error {
	return recordFor(unsafe.Pointer(i.ptr())).Wait(func() bool { return i.Load() != old }, timeout)
}

// NotifyOne wakes goroutines blocked in Wait on i. It may wake all of them.
func (i *Int32) NotifyOne(timeout time.Duration) error {
	return recordFor(unsafe.Pointer(i.ptr())).Notify(timeout)
}

// NotifyAll wakes all goroutines blocked in Wait on i.
func (i *Int32) NotifyAll(timeout time.Duration) error {
	return recordFor(unsafe.Pointer(i.ptr())).Notify(timeout)
}

// NotifyFromInterrupt is NotifyAll for callers that must not block.
func (i *Int32) NotifyFromInterrupt() error {
	return recordFor(unsafe.Pointer(i.ptr())).NotifyFromInterrupt()
}

// Wait is Int32.Wait for a Uint32.
func (u *Uint32) Wait(old uint32, timeout time.Duration) error {
	return recordFor(unsafe.Pointer(u.ptr())).Wait(func() bool { return u.Load() != old }, timeout)
}

// NotifyOne is Int32.NotifyOne for a Uint32.
func (u *Uint32) NotifyOne(timeout time.Duration) error {
	return recordFor(unsafe.Pointer(u.ptr())).Notify(timeout)
}

// NotifyAll is Int32.NotifyAll for a Uint32.
func (u *Uint32) NotifyAll(timeout time.Duration) error {
	return recordFor(unsafe.Pointer(u.ptr())).Notify(timeout)
}

// NotifyFromInterrupt is Int32.NotifyFromInterrupt for a Uint32.
func (u *Uint32) NotifyFromInterrupt() error {
	return recordFor(unsafe.Pointer(u.ptr())).NotifyFromInterrupt()
}

// Wait is Int32.Wait for an Int64.
func (i *Int64) Wait(old int64, timeout time.Duration) error {
	return recordFor(unsafe.Pointer(i.ptr())).Wait(func() bool { return i.Load() != old }, timeout)
}

// NotifyOne is Int32.NotifyOne for an Int64.
func (i *Int64) NotifyOne(timeout time.Duration) error {
	return recordFor(unsafe.Pointer(i.ptr())).Notify(timeout)
}

// NotifyAll is Int32.NotifyAll for an Int64.
func (i *Int64) NotifyAll(timeout time.Duration) error {
	return recordFor(unsafe.Pointer(i.ptr())).Notify(timeout)
}

// NotifyFromInterrupt is Int32.NotifyFromInterrupt for an Int64.
func (i *Int64) NotifyFromInterrupt() error {
	return recordFor(unsafe.Pointer(i.ptr())).NotifyFromInterrupt()
}

// Wait is Int32.Wait for a Uint64.
func (u *Uint64) Wait(old uint64, timeout time.Duration) error {
	return recordFor(unsafe.Pointer(u.ptr())).Wait(func() bool { return u.Load() != old }, timeout)
}

// NotifyOne is Int32.NotifyOne for a Uint64.
func (u *Uint64) NotifyOne(timeout time.Duration) error {
	return recordFor(unsafe.Pointer(u.ptr())).Notify(timeout)
}

// NotifyAll is Int32.NotifyAll for a Uint64.
func (u *Uint64) NotifyAll(timeout time.Duration) error {
	return recordFor(unsafe.Pointer(u.ptr())).Notify(timeout)
}

// NotifyFromInterrupt is Int32.NotifyFromInterrupt for a Uint64.
func (u *Uint64) NotifyFromInterrupt() error {
	return recordFor(unsafe.Pointer(u.ptr())).NotifyFromInterrupt()
}

// Wait is Int32.Wait for a Bool.
func (b *Bool) Wait(old bool, timeout time.Duration) error {
	return recordFor(unsafe.Pointer(b.ptr())).Wait(func() bool { return b.Load() != old }, timeout)
}
