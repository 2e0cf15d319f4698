// Copyright 2020 The gVisor Authors.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sync

import (
	"runtime"
)

// Goyield relinquishes the processor to other runnable goroutines without
// blocking. The calling goroutine stays runnable and is resumed
// automatically.
func Goyield() {
	runtime.Gosched()
}
