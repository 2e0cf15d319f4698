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
package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPatternOpts(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
	o := PatternOpts{Command: "stress", Start: start}
	got := o.Build("/tmp/syncctl/%COMMAND%-%TIMESTAMP%.log")
	if want := "/tmp/syncctl/stress-20240301-123045.000000.log"; got != want {
		t.Errorf("Build = %q, want %q", got, want)
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFile(filepath.Join(dir, "logs", "%COMMAND%.log"), os.O_WRONLY|os.O_CREATE|os.O_APPEND, PatternOpts{Command: "buckets"})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if want := filepath.Join(dir, "logs", "buckets.log"); f.Name() != want {
		t.Errorf("opened %q, want %q", f.Name(), want)
	}

	if f, err := OpenFile("", os.O_RDONLY, PatternOpts{}); f != nil || err != nil {
		t.Errorf("OpenFile with empty pattern = %v, %v, want nil, nil", f, err)
	}
}
