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
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"unsafe"

	"github.com/google/subcommands"
	"gvisor.dev/tasksync/pkg/waitstate"
	"gvisor.dev/tasksync/syncctl/cmd/util"
)

// Buckets implements subcommands.Command for the "buckets" command.
type Buckets struct {
	words int
}

// Name implements subcommands.Command.Name.
func (*Buckets) Name() string {
	return "buckets"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Buckets) Synopsis() string {
	return "show how addresses map to wait-state records"
}

// Usage implements subcommands.Command.Usage.
func (*Buckets) Usage() string {
	return `buckets [-words=<n>] [<address>...] - prints the wait-state record index of each address.

Addresses are parsed as Go integer literals, e.g. 0x7f001000. Without
addresses, n contiguous 32-bit words are allocated and the number of words
mapping to each record is printed.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Buckets) SetFlags(f *flag.FlagSet) {
	f.IntVar(&b.words, "words", 64, "number of contiguous words to map when no address is given.")
}

// Execute implements subcommands.Command.Execute.
func (b *Buckets) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	t := waitstate.Default()
	if f.NArg() == 0 {
		if b.words <= 0 {
			f.Usage()
			return subcommands.ExitUsageError
		}
		if err := WriteHistogram(os.Stdout, t, b.words); err != nil {
			return util.Errorf("%v", err)
		}
		return subcommands.ExitSuccess
	}

	addrs := make([]uintptr, 0, f.NArg())
	for _, arg := range f.Args() {
		a, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return util.Errorf("invalid address %q: %v", arg, err)
		}
		addrs = append(addrs, uintptr(a))
	}
	if err := WriteBuckets(os.Stdout, t, addrs); err != nil {
		return util.Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}

// WriteBuckets writes the record index of each address in addrs.
func WriteBuckets(w io.Writer, t waitstate.Table, addrs []uintptr) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "ADDRESS\tBUCKET\n")
	for _, a := range addrs {
		fmt.Fprintf(tw, "%#x\t%d\n", a, t.BucketIndex(a))
	}
	return tw.Flush()
}

// WriteHistogram allocates n contiguous 32-bit words and writes how many of
// them map to each record of t.
func WriteHistogram(w io.Writer, t waitstate.Table, n int) error {
	words := make([]uint32, n)
	counts := make([]int, t.Size())
	for i := range words {
		counts[t.BucketIndex(uintptr(unsafe.Pointer(&words[i])))]++
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "BUCKET\tWORDS\t\n")
	for i, c := range counts {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", i, c, strings.Repeat("#", c))
	}
	return tw.Flush()
}
