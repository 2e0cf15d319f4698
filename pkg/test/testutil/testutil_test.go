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

package testutil

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoll(t *testing.T) {
	calls := 0
	err := Poll(func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("Poll called callback %d times, want 3", calls)
	}
}

func TestPollTimeout(t *testing.T) {
	want := errors.New("never")
	err := Poll(func() error { return want }, 20*time.Millisecond)
	if err == nil {
		t.Fatalf("Poll succeeded, want error")
	}
}

func TestRunConcurrently(t *testing.T) {
	var sum atomic.Int64
	if err := RunConcurrently(10, func(i int) error {
		sum.Add(int64(i))
		return nil
	}); err != nil {
		t.Fatalf("RunConcurrently failed: %v", err)
	}
	if got, want := sum.Load(), int64(45); got != want {
		t.Errorf("sum = %d, want %d", got, want)
	}

	want := errors.New("boom")
	if err := RunConcurrently(4, func(i int) error {
		if i == 2 {
			return want
		}
		return nil
	}); err != want {
		t.Errorf("RunConcurrently returned %v, want %v", err, want)
	}
}

func TestIterations(t *testing.T) {
	t.Setenv("TESTUTIL_ITERATIONS", "7")
	if got := Iterations("TESTUTIL_ITERATIONS", 3); got != 7 {
		t.Errorf("Iterations = %d, want 7", got)
	}
	t.Setenv("TESTUTIL_ITERATIONS", "bogus")
	if got := Iterations("TESTUTIL_ITERATIONS", 3); got != 3 {
		t.Errorf("Iterations = %d, want 3", got)
	}
}
