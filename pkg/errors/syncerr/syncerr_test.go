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

package syncerr

import (
	goerrors "errors"
	"fmt"
	"testing"

	"gvisor.dev/tasksync/pkg/errors"
)

func TestCodeOf(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want errors.Code
	}{
		{"nil", nil, errors.OK},
		{"direct", ErrTimeout, errors.Timeout},
		{"wrapped", fmt.Errorf("bucket 3: %w", ErrLockFailed), errors.LockFailed},
		{"double wrapped", fmt.Errorf("a: %w", fmt.Errorf("b: %w", ErrBadInitialCount)), errors.BadInitialCount},
		{"foreign", goerrors.New("boom"), errors.Unknown},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Errorf("CodeOf(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	for _, e := range all {
		got, ok := Lookup(e.Code())
		if !ok || got != e {
			t.Errorf("Lookup(%v) = %v, %t, want %v, true", e.Code(), got, ok, e)
		}
	}
	if _, ok := Lookup(errors.OK); ok {
		t.Errorf("Lookup(OK) succeeded")
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(fmt.Errorf("lock: %w", ErrTimeout)) {
		t.Errorf("IsTimeout on wrapped ErrTimeout returned false")
	}
	if IsTimeout(ErrLockFailed) {
		t.Errorf("IsTimeout(ErrLockFailed) returned true")
	}
}
