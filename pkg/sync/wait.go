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

package sync

// WaitGroupErr is a WaitGroup whose goroutines may report an error. Only the
// first reported error is kept.
type WaitGroupErr struct {
	WaitGroup

	mu       Mutex
	firstErr error // +checklocks:mu
}

// ReportError records err if it is the first non-nil error reported. It does
// not call Done.
func (w *WaitGroupErr) ReportError(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.firstErr == nil {
		w.firstErr = err
	}
}

// Run runs fn in a new goroutine tracked by w, reporting its error.
func (w *WaitGroupErr) Run(fn func() error) {
	w.Add(1)
	go func() {
		defer w.Done()
		w.ReportError(fn())
	}()
}

// Error waits for the counter to reach 0 and returns the first reported error
// if any.
func (w *WaitGroupErr) Error() error {
	w.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.firstErr
}
