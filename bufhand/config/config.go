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

// Package config provides basic infrastructure to set configuration settings
// for bufhand. Each setting that can be changed from the command line must
// be registered with RegisterFlags and have a matching field in Config.
package config

import (
	"fmt"
	"time"

	"bufhand.dev/bufhand/pkg/dmabuf"
)

// Config holds configuration that is shared by all bufhand commands.
type Config struct {
	// LogFilename is the file command failures are appended to, if not
	// empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// DebugLog is an additional location for debug logs.
	DebugLog string `flag:"debug-log"`

	// DebugLogFormat is the log format for debug.
	DebugLogFormat string `flag:"debug-log-format"`

	// RangeCount is the number of ranges in the default layout.
	RangeCount int `flag:"range-count"`

	// RangePages is the length of each range of the default layout, in
	// pages.
	RangePages uint `flag:"range-pages"`

	// Fill selects how ranges are initialized.
	Fill FillMode `flag:"fill"`

	// LayoutFile, if set, is a TOML file describing the ranges. It
	// replaces RangeCount and RangePages.
	LayoutFile string `flag:"layout"`

	// UdmabufDevice is the udmabuf device node.
	UdmabufDevice string `flag:"udmabuf-dev"`

	// GntdevDevice is the Xen grant device node.
	GntdevDevice string `flag:"gntdev"`

	// Grace is how long a sender keeps its view of the buffer after a
	// handoff when no acknowledgment is expected.
	Grace time.Duration `flag:"grace"`

	// Ack makes receivers acknowledge a mapped buffer and senders wait for
	// it instead of sleeping for Grace.
	Ack bool `flag:"ack"`

	// DumpStride is the distance between bytes logged by the receiver.
	DumpStride uint `flag:"dump-stride"`

	// ProbeRead makes the receiver read one byte from the dma-buf
	// descriptor before mapping it.
	ProbeRead bool `flag:"probe-read"`

	// MaxRefs bounds the reference count accepted from a remote peer.
	MaxRefs uint `flag:"max-refs"`

	// DmabufFlags are passed to the grant device when a remote buffer is
	// exported, a combination of GNTDEV_DMA_FLAG_*.
	DmabufFlags uint `flag:"dmabuf-flags"`

	// Layout is the resolved list of ranges. It is not a flag: it is
	// loaded from LayoutFile or built from RangeCount and RangePages.
	Layout *Layout
}

func (c *Config) validate() error {
	for _, f := range []string{c.LogFormat, c.DebugLogFormat} {
		switch f {
		case "text", "json", "json-k8s":
		default:
			return fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'json-k8s'", f)
		}
	}
	if c.RangeCount <= 0 {
		return fmt.Errorf("range-count must be positive, got %d", c.RangeCount)
	}
	if c.RangePages == 0 {
		return fmt.Errorf("range-pages must be positive")
	}
	if c.DumpStride == 0 {
		return fmt.Errorf("dump-stride must be positive")
	}
	if c.MaxRefs == 0 || uint64(c.MaxRefs) > uint64(^uint32(0)) {
		return fmt.Errorf("max-refs must be between 1 and %d, got %d", ^uint32(0), c.MaxRefs)
	}
	if uint64(c.DmabufFlags) > uint64(^uint32(0)) {
		return fmt.Errorf("dmabuf-flags %#x does not fit in 32 bits", c.DmabufFlags)
	}
	if c.Grace < 0 {
		return fmt.Errorf("grace must not be negative, got %v", c.Grace)
	}
	if c.Layout != nil {
		return c.Layout.Validate()
	}
	return nil
}

// ResolveLayout sets Layout from LayoutFile, or from RangeCount and
// RangePages when no file is given.
func (c *Config) ResolveLayout() error {
	if c.LayoutFile == "" {
		c.Layout = DefaultLayout(c.RangeCount, uint64(c.RangePages))
		return nil
	}
	l, err := LoadLayout(c.LayoutFile)
	if err != nil {
		return err
	}
	c.Layout = l
	return nil
}

// RangeSpecs returns the ranges to create for Layout.
func (c *Config) RangeSpecs() []dmabuf.RangeSpec {
	return c.Layout.Specs(dmabuf.FillMode(c.Fill))
}

// FillMode is a flag value selecting a dmabuf.FillMode.
type FillMode dmabuf.FillMode

// Set implements flag.Value.
func (f *FillMode) Set(v string) error {
	m, err := dmabuf.ParseFillMode(v)
	if err != nil {
		return err
	}
	*f = FillMode(m)
	return nil
}

// Get implements flag.Getter.
func (f *FillMode) Get() any {
	return *f
}

// String implements flag.Value.
func (f FillMode) String() string {
	return dmabuf.FillMode(f).String()
}
