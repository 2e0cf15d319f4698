// Copyright 2020 The gVisor Authors.
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

// Package config provides basic infrastructure to set configuration settings
// for syncctl. Each setting is a flag registered in RegisterFlags, and may
// also be set from a TOML file named by the -config flag.
package config

import (
	"fmt"
	"slices"
	"time"

	"gvisor.dev/tasksync/pkg/errors/syncerr"
	"gvisor.dev/tasksync/pkg/host"
	"gvisor.dev/tasksync/pkg/log"
	"gvisor.dev/tasksync/pkg/waitstate"
)

// Config holds configuration that is not part of the command line of the
// individual subcommands.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name, and a toml tag with the key used
//     in configuration files.
//  3. Register a new flag in flags.go, with name and description.
//  4. Add any validation to Validate.
type Config struct {
	// TableSize is the number of records in the process-wide wait-state
	// table. It must be a power of two.
	TableSize int `flag:"table-size" toml:"table_size"`

	// SpinCount is the number of predicate evaluations before a waiter
	// registers. Negative disables spinning.
	SpinCount int `flag:"spin-count" toml:"spin_count"`

	// LockKind selects the governing lock of every record and timed lock.
	LockKind host.LockKind `flag:"lock-kind" toml:"lock_kind"`

	// TickPeriod is the duration of one scheduler tick, used to convert
	// tick-denominated timeouts.
	TickPeriod time.Duration `flag:"tick-period" toml:"tick_period"`

	// DefaultTimeout bounds blocking operations that are not given a
	// timeout of their own. Zero means wait forever.
	DefaultTimeout time.Duration `flag:"default-timeout" toml:"default_timeout"`

	// Debug enables debug logging.
	Debug bool `flag:"debug" toml:"debug"`

	// DebugLogFormat is the log format: text, json or json-k8s.
	DebugLogFormat string `flag:"debug-log-format" toml:"debug_log_format"`

	// LogFilename is the file to log to. Empty logs to stderr.
	LogFilename string `flag:"log" toml:"log"`

	// MetricsPrefix is prepended to every exported metric name.
	MetricsPrefix string `flag:"metrics-prefix" toml:"metrics_prefix"`
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	if c.TableSize <= 0 || c.TableSize&(c.TableSize-1) != 0 {
		return fmt.Errorf("table-size %d is not a power of two: %w", c.TableSize, syncerr.ErrBadTableSize)
	}
	switch c.LockKind {
	case host.LockChannel, host.LockFutex:
	default:
		return fmt.Errorf("invalid lock-kind %q", c.LockKind)
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick-period must be positive, got %v", c.TickPeriod)
	}
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("default-timeout must not be negative, got %v", c.DefaultTimeout)
	}
	if !slices.Contains(log.Formats, c.DebugLogFormat) {
		return fmt.Errorf("invalid debug-log-format %q", c.DebugLogFormat)
	}
	return nil
}

// TableOptions returns the options of the process-wide wait-state table.
func (c *Config) TableOptions() waitstate.Options {
	return waitstate.Options{
		Size:      c.TableSize,
		SpinCount: c.SpinCount,
		LockKind:  c.LockKind,
	}
}

// Timeout returns DefaultTimeout, or host.Forever if it is zero.
func (c *Config) Timeout() time.Duration {
	if c.DefaultTimeout == 0 {
		return host.Forever
	}
	return c.DefaultTimeout
}

// TicksTimeout converts a tick count to a timeout. host.MaxTicks means
// forever.
func (c *Config) TicksTimeout(t host.Ticks) time.Duration {
	return t.Duration(c.TickPeriod)
}

// Log logs the configuration at debug level.
func (c *Config) Log() {
	log.Debugf("Config.TableSize: %d", c.TableSize)
	log.Debugf("Config.SpinCount: %d", c.SpinCount)
	log.Debugf("Config.LockKind: %s", c.LockKind)
	log.Debugf("Config.TickPeriod: %v", c.TickPeriod)
	log.Debugf("Config.DefaultTimeout: %v", c.DefaultTimeout)
	log.Debugf("Config.DebugLogFormat: %s", c.DebugLogFormat)
	log.Debugf("Config.LogFilename: %s", c.LogFilename)
	log.Debugf("Config.MetricsPrefix: %s", c.MetricsPrefix)
}
