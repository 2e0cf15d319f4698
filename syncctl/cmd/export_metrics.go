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
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/tasksync/pkg/log"
	"gvisor.dev/tasksync/pkg/metric"
	"gvisor.dev/tasksync/syncctl/cmd/util"
	"gvisor.dev/tasksync/syncctl/config"
)

// MetricExport implements subcommands.Command for the "export-metrics"
// command.
type MetricExport struct {
	exporterPrefix string
}

// Name implements subcommands.Command.Name.
func (*MetricExport) Name() string {
	return "export-metrics"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*MetricExport) Synopsis() string {
	return "export metric data of this process"
}

// Usage implements subcommands.Command.Usage.
func (*MetricExport) Usage() string {
	return `export-metrics [-exporter-prefix=<prefix>] - prints every registered metric in Prometheus metric format
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *MetricExport) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.exporterPrefix, "exporter-prefix", "", "Prefix for all metric names, following Prometheus exporter convention. Defaults to -metrics-prefix.")
}

// Execute implements subcommands.Command.Execute.
func (m *MetricExport) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	prefix := conf.MetricsPrefix
	if m.exporterPrefix != "" {
		prefix = m.exporterPrefix
	}
	if !metric.ValidPrometheusPrefix(prefix) {
		return util.Errorf("invalid exporter prefix %q", prefix)
	}
	written, err := metric.WritePrometheus(os.Stdout, prefix)
	if err != nil {
		return util.Errorf("Cannot write metrics to stdout: %v", err)
	}
	log.Infof("Wrote %d bytes of Prometheus metric data to stdout", written)
	return subcommands.ExitSuccess
}
