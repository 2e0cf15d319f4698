// Copyright 2020 The gVisor Authors.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sync

import (
	"errors"
	"testing"
)

func TestWaitGroupErr(t *testing.T) {
	var wg WaitGroupErr
	first := errors.New("first")
	ready := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		wg.ReportError(first)
		close(ready)
	}()
	go func() {
		defer wg.Done()
		<-ready
		wg.ReportError(errors.New("second"))
	}()
	if err := wg.Error(); err != first {
		t.Errorf("Error() = %v, want %v", err, first)
	}
}

func TestWaitGroupErrNoError(t *testing.T) {
	var wg WaitGroupErr
	wg.Add(1)
	go wg.Done()
	if err := wg.Error(); err != nil {
		t.Errorf("Error() = %v, want nil", err)
	}
}

func TestWaitGroupErrRun(t *testing.T) {
	var wg WaitGroupErr
	failed := errors.New("failed")
	for i := 0; i < 4; i++ {
		wg.Run(func() error {
			if i == 2 {
				return failed
			}
			return nil
		})
	}
	if err := wg.Error(); err != failed {
		t.Errorf("Error() = %v, want %v", err, failed)
	}
}

func TestGoyield(t *testing.T) {
	done := make(chan struct{})
	go func() {
		close(done)
	}()
	for {
		select {
		case <-done:
			return
		default:
			Goyield()
		}
	}
}
