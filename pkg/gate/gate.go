// Copyright 2018 The gVisor Authors.
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

// Package gate provides a usage Gate synchronization primitive.
package gate

import (
	"time"

	"gvisor.dev/tasksync/pkg/atomicbitops"
	"gvisor.dev/tasksync/pkg/host"
)

const (
	// gateClosed is the bit set in the gate's user count to indicate that
	// it has been closed. It is the MSB of the 32-bit field; the other 31
	// bits carry the actual count.
	gateClosed = 0x80000000
)

// Gate is a synchronization primitive that allows concurrent goroutines to
// "enter" it as long as it hasn't been closed yet. Once it's been closed,
// goroutines cannot enter it anymore, but are allowed to leave, and the closer
// will be informed when all goroutines have left.
//
// Goroutines entering never block: they either enter immediately or fail to
// enter. The closer blocks, for at most its timeout, until all goroutines
// inside the gate have left.
//
// Users:
//
//	if !g.Enter() {
//		// Gate is closed, we can't use the object.
//		return
//	}
//
//	// Do something with object.
//	[...]
//
//	g.Leave()
//
// Closer:
//
//	// Prevent new users from using the object, and wait for the existing
//	// ones to complete.
//	if err := g.Close(timeout); err != nil {
//		...
//	}
//
// The zero value is an open gate.
type Gate struct {
	// userCount holds the number of users inside the gate, and gateClosed.
	userCount atomicbitops.Uint32
}

// Enter tries to enter the gate. It will succeed if it hasn't been closed yet,
// in which case the caller must eventually call Leave().
func (g *Gate) Enter() bool {
	if g == nil {
		return false
	}
	for {
		v := g.userCount.Load()
		if v&gateClosed != 0 {
			return false
		}
		if g.userCount.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

// Leave leaves the gate. This must only be called after a successful call to
// Enter(). If the gate has been closed and this is the last one inside the
// gate, it wakes the closer; an error doing so is returned.
func (g *Gate) Leave() error {
	for {
		v := g.userCount.Load()
		if v&^gateClosed == 0 {
			panic("leaving a gate with zero usage count")
		}
		if g.userCount.CompareAndSwap(v, v-1) {
			if v == gateClosed+1 {
				return g.userCount.NotifyAll(host.Forever)
			}
			return nil
		}
	}
}

// Close closes the gate for entering, and waits until all goroutines [that are
// currently inside the gate] leave before returning. It returns
// syncerr.ErrTimeout if some are still inside when timeout passes; the gate
// stays closed and Close may be called again to keep waiting.
func (g *Gate) Close(timeout time.Duration) error {
	dl := host.NewDeadline(timeout)
	for {
		v := g.userCount.Load()
		if v&gateClosed == 0 {
			if !g.userCount.CompareAndSwap(v, v|gateClosed) {
				continue
			}
			v |= gateClosed
		}
		if v == gateClosed {
			return nil
		}
		if err := g.userCount.Wait(v, dl.Remaining()); err != nil {
			return err
		}
	}
}

// Closed returns true if the gate has been closed.
func (g *Gate) Closed() bool {
	return g.userCount.Load()&gateClosed != 0
}
