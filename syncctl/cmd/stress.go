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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/tasksync/pkg/atomicbitops"
	"gvisor.dev/tasksync/pkg/errors/syncerr"
	"gvisor.dev/tasksync/pkg/gate"
	"gvisor.dev/tasksync/pkg/host"
	"gvisor.dev/tasksync/pkg/latch"
	"gvisor.dev/tasksync/pkg/log"
	"gvisor.dev/tasksync/pkg/metric"
	"gvisor.dev/tasksync/pkg/semaphore"
	"gvisor.dev/tasksync/pkg/sync"
	"gvisor.dev/tasksync/pkg/timedlock"
	"gvisor.dev/tasksync/syncctl/cmd/util"
	"gvisor.dev/tasksync/syncctl/config"
)

// StressOpts are the parameters of a stress run.
type StressOpts struct {
	// Goroutines is the number of concurrent goroutines.
	Goroutines int

	// Iterations is the number of operations per goroutine.
	Iterations int

	// Timeout bounds each blocking operation.
	Timeout time.Duration

	// Retries is the number of times a timed out lock acquisition is
	// retried, with exponential backoff, before the run fails.
	Retries uint64

	// LockKind is the governing lock of any lock created by the run.
	LockKind host.LockKind
}

// stressor runs one stress scenario.
type stressor func(ctx context.Context, opts StressOpts) error

var stressors = map[string]stressor{
	"atomic":    stressAtomic,
	"gate":      stressGate,
	"latch":     stressLatch,
	"semaphore": stressSemaphore,
	"timedlock": stressTimedLock,
}

// Stressors returns the names of all stress scenarios.
func Stressors() []string {
	names := make([]string, 0, len(stressors))
	for name := range stressors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunStress runs the named stress scenario.
func RunStress(ctx context.Context, name string, opts StressOpts) error {
	run, ok := stressors[name]
	if !ok {
		return fmt.Errorf("unknown primitive %q, want one of %s", name, strings.Join(Stressors(), ", "))
	}
	if opts.Goroutines <= 0 || opts.Iterations <= 0 {
		return fmt.Errorf("goroutines and iterations must be positive, got %d and %d", opts.Goroutines, opts.Iterations)
	}
	return run(ctx, opts)
}

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	primitive     string
	goroutines    int
	iterations    int
	timeoutTicks  uint
	retries       uint64
	exportMetrics bool
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "exercise a synchronization primitive from many goroutines"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return fmt.Sprintf(`stress [flags] - runs concurrent operations on one primitive (%s) and checks its invariants.
`, strings.Join(Stressors(), ", "))
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.primitive, "primitive", "latch", "primitive to exercise: "+strings.Join(Stressors(), ", "))
	f.IntVar(&s.goroutines, "goroutines", 8, "number of concurrent goroutines.")
	f.IntVar(&s.iterations, "iterations", 1000, "number of operations per goroutine.")
	f.UintVar(&s.timeoutTicks, "timeout-ticks", 0, "per-operation timeout in scheduler ticks (see -tick-period). 0 uses -default-timeout.")
	f.Uint64Var(&s.retries, "retries", 3, "retries of a timed out lock acquisition before failing.")
	f.BoolVar(&s.exportMetrics, "export-metrics", false, "print metrics in Prometheus format after the run.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	timeout := conf.Timeout()
	if s.timeoutTicks > uint(host.MaxTicks) {
		return util.Errorf("-timeout-ticks=%d is out of range, use %d to wait forever", s.timeoutTicks, host.MaxTicks)
	}
	if s.timeoutTicks != 0 {
		timeout = conf.TicksTimeout(host.Ticks(s.timeoutTicks))
	}
	opts := StressOpts{
		Goroutines: s.goroutines,
		Iterations: s.iterations,
		Timeout:    timeout,
		Retries:    s.retries,
		LockKind:   conf.LockKind,
	}
	log.Debugf("Stressing %s: %+v", s.primitive, opts)

	start := time.Now()
	if err := RunStress(ctx, s.primitive, opts); err != nil {
		return util.Errorf("stress %s: %v", s.primitive, err)
	}
	util.Infof("stress %s: %d goroutines x %d iterations in %v", s.primitive, s.goroutines, s.iterations, time.Since(start))

	if s.exportMetrics {
		if _, err := metric.WritePrometheus(os.Stdout, conf.MetricsPrefix); err != nil {
			return util.Errorf("writing metrics: %v", err)
		}
	}
	return subcommands.ExitSuccess
}

// stressLatch runs Iterations rounds in which every goroutine arrives at a
// fresh latch and waits for the others.
func stressLatch(ctx context.Context, opts StressOpts) error {
	for i := 0; i < opts.Iterations; i++ {
		l, err := latch.New(int64(opts.Goroutines))
		if err != nil {
			return err
		}
		g, ctx := errgroup.WithContext(ctx)
		for j := 0; j < opts.Goroutines; j++ {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return l.ArriveAndWait(1, opts.Timeout)
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("round %d: %w", i, err)
		}
		if !l.TryWait() {
			return fmt.Errorf("round %d: latch not open after all arrivals", i)
		}
	}
	return nil
}

// lockWithRetry acquires l, retrying timeouts with exponential backoff.
func lockWithRetry(ctx context.Context, l *timedlock.TimedLock, opts StressOpts) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), opts.Retries), ctx)
	return backoff.RetryNotify(func() error {
		err := l.Lock(opts.Timeout)
		if err != nil && !syncerr.IsTimeout(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, next time.Duration) {
		log.Debugf("Lock failed, retrying in %v: %v", next, err)
	})
}

// stressTimedLock increments a counter under a TimedLock and checks that no
// two goroutines ever hold it together.
func stressTimedLock(ctx context.Context, opts StressOpts) error {
	l, err := timedlock.New(opts.LockKind)
	if err != nil {
		return err
	}
	// Both are protected by l.
	holders, total := 0, 0
	g, ctx := errgroup.WithContext(ctx)
	for j := 0; j < opts.Goroutines; j++ {
		g.Go(func() error {
			for i := 0; i < opts.Iterations; i++ {
				if err := lockWithRetry(ctx, l, opts); err != nil {
					return err
				}
				holders++
				if holders != 1 {
					return fmt.Errorf("%d concurrent holders", holders)
				}
				total++
				holders--
				if err := l.Unlock(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if want := opts.Goroutines * opts.Iterations; total != want {
		return fmt.Errorf("counted %d critical sections, want %d", total, want)
	}
	return nil
}

// stressAtomic passes a token around a ring of goroutines. Goroutine j may
// only advance the shared counter when it holds the value j modulo the ring
// size, so every step is a wait followed by a store and notify.
func stressAtomic(ctx context.Context, opts StressOpts) error {
	var turn atomicbitops.Int64
	n := int64(opts.Goroutines)
	g, ctx := errgroup.WithContext(ctx)
	for j := int64(0); j < n; j++ {
		g.Go(func() error {
			for i := int64(0); i < int64(opts.Iterations); i++ {
				mine := i*n + j
				for {
					cur := turn.Load()
					if cur == mine {
						break
					}
					if cur > mine {
						return fmt.Errorf("goroutine %d missed turn %d, counter at %d", j, mine, cur)
					}
					if err := ctx.Err(); err != nil {
						return err
					}
					if err := turn.Wait(cur, opts.Timeout); err != nil {
						return fmt.Errorf("goroutine %d waiting for turn %d at %d: %w", j, mine, cur, err)
					}
				}
				turn.Store(mine + 1)
				if err := turn.NotifyAll(opts.Timeout); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if got, want := turn.Load(), n*int64(opts.Iterations); got != want {
		return fmt.Errorf("counter at %d, want %d", got, want)
	}
	return nil
}

// stressSemaphore bounds the goroutines in a section by a semaphore with
// half as many permits.
func stressSemaphore(ctx context.Context, opts StressOpts) error {
	permits := int64(opts.Goroutines/2 + 1)
	s, err := semaphore.New(permits, permits)
	if err != nil {
		return err
	}
	var holders atomicbitops.Int64
	var wg sync.WaitGroupErr
	for range opts.Goroutines {
		wg.Run(func() error {
			for i := 0; i < opts.Iterations; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := s.Acquire(opts.Timeout); err != nil {
					return err
				}
				if h := holders.Add(1); h > permits {
					wg.ReportError(fmt.Errorf("%d holders of %d permits", h, permits))
				}
				holders.Add(-1)
				if err := s.Release(1); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := wg.Error(); err != nil {
		return err
	}
	if got := s.Available(); got != permits {
		return fmt.Errorf("%d permits available after the run, want %d", got, permits)
	}
	return nil
}

// stressGate runs Iterations rounds in which goroutines repeatedly enter and
// leave a gate until it is closed, and checks that Close returns only once
// every user has left.
func stressGate(ctx context.Context, opts StressOpts) error {
	for i := 0; i < opts.Iterations; i++ {
		var g gate.Gate
		var inside atomicbitops.Int32
		eg, ctx := errgroup.WithContext(ctx)
		for j := 0; j < opts.Goroutines; j++ {
			eg.Go(func() error {
				for g.Enter() {
					inside.Add(1)
					runtime.Gosched()
					inside.Add(-1)
					if err := g.Leave(); err != nil {
						return err
					}
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				return nil
			})
		}
		runtime.Gosched()
		if err := g.Close(opts.Timeout); err != nil {
			return fmt.Errorf("round %d: %w", i, err)
		}
		if n := inside.Load(); n != 0 {
			return fmt.Errorf("round %d: %d users inside a closed gate", i, n)
		}
		if err := eg.Wait(); err != nil {
			return fmt.Errorf("round %d: %w", i, err)
		}
	}
	return nil
}
