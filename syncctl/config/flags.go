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

package config

import (
	"flag"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gvisor.dev/tasksync/pkg/host"
	"gvisor.dev/tasksync/pkg/metric"
	"gvisor.dev/tasksync/pkg/waitstate"
)

// configFlag names the flag holding the path of a TOML configuration file.
const configFlag = "config"

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String(configFlag, "", "path to a TOML file with configuration settings. Flags set on the command line take precedence.")

	// Debugging flags.
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("debug-log-format", "text", "log format: text (default), json, or json-k8s.")
	flagSet.String("log", "", "file path where log messages are written, default is stderr.")

	// Wait-state flags.
	flagSet.Int("table-size", waitstate.DefaultSize, "number of records in the wait-state table; must be a power of two.")
	flagSet.Int("spin-count", waitstate.DefaultSpinCount, "predicate evaluations before a waiter blocks; negative disables spinning.")
	lockKind := host.LockChannel
	flagSet.Var(&lockKind, "lock-kind", "governing lock implementation: channel (default) or futex.")

	// Timing flags.
	flagSet.Duration("tick-period", host.DefaultTickPeriod, "duration of one scheduler tick.")
	flagSet.Duration("default-timeout", 0, "timeout of blocking operations not given one explicitly; 0 waits forever.")

	// Metrics flags.
	flagSet.String("metrics-prefix", "syncctl_", "prefix for all exported metric names, following Prometheus exporter convention.")
}

// NewFromFlags creates a new Config with values coming from command line
// flags and, if the -config flag is set, a TOML file. Flags explicitly set on
// the command line override the file.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}
	conf.setFlags(flagSet.VisitAll)

	if fl := flagSet.Lookup(configFlag); fl != nil && fl.Value.String() != "" {
		path := fl.Value.String()
		md, err := toml.DecodeFile(path, conf)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("config file %q: unknown keys %s", path, strings.Join(keys, ", "))
		}
		conf.setFlags(flagSet.Visit)
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if !metric.ValidPrometheusPrefix(conf.MetricsPrefix) {
		return nil, fmt.Errorf("invalid metrics-prefix %q", conf.MetricsPrefix)
	}
	return conf, nil
}

// setFlags copies into c the value of every flag visited by visit that has
// a corresponding field.
func (c *Config) setFlags(visit func(func(*flag.Flag))) {
	fields := fieldsByFlag()
	obj := reflect.ValueOf(c).Elem()
	visit(func(fl *flag.Flag) {
		i, ok := fields[fl.Name]
		if !ok {
			return
		}
		getter, ok := fl.Value.(flag.Getter)
		if !ok {
			panic(fmt.Sprintf("Flag %q does not implement flag.Getter", fl.Name))
		}
		obj.Field(i).Set(reflect.ValueOf(getter.Get()))
	})
}

// fieldsByFlag maps flag names to Config field indices.
func fieldsByFlag() map[string]int {
	st := reflect.TypeOf(Config{})
	m := make(map[string]int, st.NumField())
	for i := 0; i < st.NumField(); i++ {
		if name, ok := st.Field(i).Tag.Lookup("flag"); ok {
			m[name] = i
		}
	}
	return m
}

// ToFlags returns a slice of flags that correspond to the given Config.
// Flags equal to their default are omitted.
func (c *Config) ToFlags() []string {
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	var rv []string
	obj := reflect.ValueOf(c).Elem()
	for name, i := range fieldsByFlag() {
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		val := getVal(obj.Field(i))
		if val == fl.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", name, val))
	}
	sort.Strings(rv)
	return rv
}

func getVal(field reflect.Value) string {
	if str, ok := field.Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
