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
	"gvisor.dev/tasksync/pkg/sync"
)

// Scheduler is the part of the host task scheduler consumed by the wait
// protocol.
type Scheduler interface {
	// Yield voluntarily relinquishes the processor without blocking.
	Yield()
}

// GoScheduler yields to the Go runtime scheduler.
type GoScheduler struct{}

// Yield implements Scheduler.Yield.
func (GoScheduler) Yield() {
	sync.Goyield()
}
