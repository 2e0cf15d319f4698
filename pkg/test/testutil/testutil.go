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

// Package testutil contains utility functions for synchronization tests.
package testutil

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/tasksync/pkg/log"
)

// PollInterval is the delay between attempts of Poll.
const PollInterval = time.Millisecond

// Poll is a shorthand function to poll for something with given timeout.
func Poll(cb func() error, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return PollContext(ctx, cb)
}

// PollContext is like Poll, but takes a context instead of a timeout.
func PollContext(ctx context.Context, cb func() error) error {
	b := backoff.WithContext(backoff.NewConstantBackOff(PollInterval), ctx)
	return backoff.Retry(cb, b)
}

// WaitFor polls until cond returns true or timeout passes, and fails the test
// in the latter case. what describes cond in the failure message.
func WaitFor(t testing.TB, what string, cond func() bool, timeout time.Duration) {
	t.Helper()
	err := Poll(func() error {
		if !cond() {
			return fmt.Errorf("still waiting for %s", what)
		}
		return nil
	}, timeout)
	if err != nil {
		t.Fatalf("Timed out after %v: %v", timeout, err)
	}
}

// RunConcurrently runs fn(0) through fn(n-1) in separate goroutines, waits
// for all of them to return, and returns the first error.
func RunConcurrently(n int, fn func(i int) error) error {
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}

// Perturb does nothing, yields the processor or sleeps for a few
// microseconds, chosen at random. It is used to shake out interleavings of
// concurrent code.
func Perturb() {
	switch rand.IntN(4) {
	case 0:
		runtime.Gosched()
	case 1:
		time.Sleep(time.Duration(rand.IntN(50)) * time.Microsecond)
	}
}

// Iterations returns the value of the environment variable named name, or def
// if it is unset or malformed. It lets stress tests run longer on demand.
func Iterations(name string, def int) int {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// SetTestLogger sends log output to t for the duration of the test.
func SetTestLogger(t *testing.T) {
	prev := log.Log().Emitter
	log.SetTarget(&log.TestEmitter{TestLogger: t})
	t.Cleanup(func() {
		log.SetTarget(prev)
	})
}
