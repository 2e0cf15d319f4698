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

package waitstate

import (
	"gvisor.dev/tasksync/pkg/metric"
)

// Values of the "outcome" field of waitsMetric.
const (
	outcomeFast    = "fast"
	outcomeSlow    = "slow"
	outcomeTimeout = "timeout"
	outcomeError   = "error"
)

// Values of the "path" field of notifiesMetric.
const (
	pathTask      = "task"
	pathInterrupt = "interrupt"
)

var (
	waitsMetric = metric.MustCreateNewUint64Metric(
		"/waitstate/waits",
		"Number of completed waits, by outcome.",
		metric.NewField("outcome", outcomeFast, outcomeSlow, outcomeTimeout, outcomeError))

	blocksMetric = metric.MustCreateNewUint64Metric(
		"/waitstate/blocks",
		"Number of times a waiter blocked on a record's condition variable.")

	recheckMetric = metric.MustCreateNewUint64Metric(
		"/waitstate/rechecks",
		"Number of wakeups after which the waiter's predicate was still false.")

	notifiesMetric = metric.MustCreateNewUint64Metric(
		"/waitstate/notifies",
		"Number of successful notifications, by calling context.",
		metric.NewField("path", pathTask, pathInterrupt))

	skippedBumpsMetric = metric.MustCreateNewUint64Metric(
		"/waitstate/skipped_version_bumps",
		"Number of notifications that found no registered waiter and left the version unchanged.")

	notifyFailuresMetric = metric.MustCreateNewUint64Metric(
		"/waitstate/notify_failures",
		"Number of notifications that could not acquire the governing lock.",
		metric.NewField("path", pathTask, pathInterrupt))
)
