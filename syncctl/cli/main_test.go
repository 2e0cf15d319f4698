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

package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/subcommands"
	"gvisor.dev/tasksync/pkg/log"
)

func TestNewEmitter(t *testing.T) {
	for _, format := range []string{"text", "json", "json-k8s"} {
		var buf bytes.Buffer
		newEmitter(format, &buf).Emit(0, log.Info, time.Now(), "hello %d", 42)
		if !strings.Contains(buf.String(), "hello 42") {
			t.Errorf("%s emitter wrote %q", format, buf.String())
		}
	}
}

func TestForEachCmd(t *testing.T) {
	names := map[string]bool{}
	forEachCmd(func(cmd subcommands.Command, _ string) {
		if names[cmd.Name()] {
			t.Errorf("command %q registered twice", cmd.Name())
		}
		names[cmd.Name()] = true
	})
	for _, want := range []string{"help", "flags", "commands", "stress", "buckets", "export-metrics"} {
		if !names[want] {
			t.Errorf("command %q not registered", want)
		}
	}
}
