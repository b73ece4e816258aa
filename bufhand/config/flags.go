// Copyright 2026 The bufhand Authors.
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
	"fmt"
	"reflect"
	"strconv"

	"bufhand.dev/bufhand/bufhand/flag"
	"bufhand.dev/bufhand/pkg/dmabuf"
	"bufhand.dev/bufhand/pkg/gnttab"
	"bufhand.dev/bufhand/pkg/handoff"
	"bufhand.dev/bufhand/pkg/log"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	// Debugging flags.
	flagSet.String("log", "", "file path where command failures are appended as JSON records.")
	flagSet.String("log-format", "text", "log format: text (default), json, or json-k8s.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("debug-log", "", "additional location for debug logs.")
	flagSet.String("debug-log-format", "text", "log format: text (default), json, or json-k8s.")

	// Buffer layout flags.
	flagSet.Int("range-count", 4, "number of ranges in the buffer.")
	flagSet.Uint("range-pages", 4, "length of each range, in pages.")
	fill := FillMode(dmabuf.Uniform)
	flagSet.Var(&fill, "fill", "range contents: uniform (marker byte only) or diagnostic (marker byte plus a description line).")
	flagSet.String("layout", "", "TOML file listing the ranges, replaces --range-count and --range-pages.")

	// Device flags.
	flagSet.String("udmabuf-dev", dmabuf.DefaultUdmabufPath, "udmabuf device node.")
	flagSet.String("gntdev", gnttab.DefaultPath, "Xen grant device node.")

	// Handoff flags.
	flagSet.Duration("grace", handoff.DefaultGrace, "how long the sender keeps the buffer after a handoff when --ack is not set.")
	flagSet.Bool("ack", false, "receiver acknowledges the mapped buffer and the sender waits for it.")
	flagSet.Uint("dump-stride", 1024, "receiver logs one byte every this many bytes.")
	flagSet.Bool("probe-read", false, "receiver reads one byte from the dma-buf descriptor before mapping it.")
	flagSet.Uint("max-refs", handoff.DefaultMaxRefs, "largest grant reference count accepted from a remote peer.")
	flagSet.Uint("dmabuf-flags", 0, "GNTDEV_DMA_FLAG_* bits used when exporting a remote buffer.")
}

// NewFromFlags creates a new Config with values coming from command line flags.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}

	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(flag.Get(fl.Value))
		obj.Field(i).Set(x)
	}

	if err := conf.ResolveLayout(); err != nil {
		return nil, err
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
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

// Log logs every flag-backed setting and the resolved layout.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if name, ok := f.Tag.Lookup("flag"); ok {
			log.Infof("\t%s (--%s): %s", f.Name, name, getVal(obj.Field(i)))
		}
	}
	if c.Layout != nil {
		log.Infof("\tLayout: %d ranges, %d bytes", len(c.Layout.Ranges), c.Layout.Size())
	}
}
