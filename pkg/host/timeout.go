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
	"math"
	"time"
)

// Forever is the timeout that never expires.
const Forever = time.Duration(math.MaxInt64)

// Ticks is a timeout expressed in scheduler ticks.
type Ticks uint32

// MaxTicks is the reserved tick count meaning "wait indefinitely".
const MaxTicks = Ticks(math.MaxUint32)

// DefaultTickPeriod is the duration of one tick unless configured otherwise.
const DefaultTickPeriod = time.Millisecond

// Duration converts t to a timeout, given the duration of one tick. MaxTicks
// converts to Forever, as does any count whose duration overflows.
func (t Ticks) Duration(period time.Duration) time.Duration {
	if t == MaxTicks {
		return Forever
	}
	if period <= 0 {
		period = DefaultTickPeriod
	}
	if uint64(t) > uint64(math.MaxInt64/period) {
		return Forever
	}
	return time.Duration(t) * period
}

// Deadline is an absolute deadline derived from a relative timeout. Multi-step
// blocking operations compute one Deadline up front and pass what remains of
// it to each step.
//
// The zero value is a deadline that has already expired.
type Deadline struct {
	at      time.Time
	forever bool
}

// NewDeadline returns the deadline that expires timeout from now. A timeout
// of Forever never expires; a timeout <= 0 has already expired.
func NewDeadline(timeout time.Duration) Deadline {
	if timeout == Forever {
		return Deadline{forever: true}
	}
	if timeout <= 0 {
		return Deadline{}
	}
	return Deadline{at: time.Now().Add(timeout)}
}

// Forever returns true if d never expires.
func (d Deadline) Forever() bool {
	return d.forever
}

// Remaining returns the timeout left before d expires: Forever for a deadline
// that never expires, and 0 once it has expired.
func (d Deadline) Remaining() time.Duration {
	if d.forever {
		return Forever
	}
	if d.at.IsZero() {
		return 0
	}
	if r := time.Until(d.at); r > 0 {
		return r
	}
	return 0
}

// Expired returns true if d has passed.
func (d Deadline) Expired() bool {
	return d.Remaining() == 0
}
