// Copyright 2023 The gVisor Authors.
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

package metric

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// prefixRegexp matches valid exporter prefixes.
var prefixRegexp = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)?$`)

// ValidPrometheusPrefix returns true if prefix can be prepended to metric
// names.
func ValidPrometheusPrefix(prefix string) bool {
	return prefixRegexp.MatchString(prefix)
}

// PrometheusName returns the Prometheus metric name for a metric named name
// (e.g. "/waitstate/waits"), with the given exporter prefix.
func PrometheusName(prefix, name string) string {
	return prefix + strings.ReplaceAll(strings.TrimPrefix(name, "/"), "/", "_")
}

// toFamily converts m to a Prometheus counter family.
func (m *Uint64Metric) toFamily(prefix string) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(PrometheusName(prefix, m.name)),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	if m.description != "" {
		mf.Help = proto.String(m.description)
	}
	for _, s := range m.samples() {
		pm := &dto.Metric{
			Counter: &dto.Counter{Value: proto.Float64(float64(s.value))},
		}
		names := make([]string, 0, len(s.labels))
		for n := range s.labels {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			pm.Label = append(pm.Label, &dto.LabelPair{
				Name:  proto.String(n),
				Value: proto.String(s.labels[n]),
			})
		}
		mf.Metric = append(mf.Metric, pm)
	}
	return mf
}

// WritePrometheus writes every registered metric to w in the Prometheus text
// exposition format, and returns the number of bytes written. Metric names
// are prefixed with prefix, following Prometheus exporter convention.
func WritePrometheus(w io.Writer, prefix string) (int, error) {
	total := 0
	for _, m := range registered() {
		n, err := expfmt.MetricFamilyToText(w, m.toFamily(prefix))
		total += n
		if err != nil {
			return total, fmt.Errorf("writing metric %q: %w", m.name, err)
		}
	}
	return total, nil
}
