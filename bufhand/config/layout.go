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
	"strings"

	"github.com/BurntSushi/toml"

	"bufhand.dev/bufhand/pkg/dmabuf"
	"bufhand.dev/bufhand/pkg/hostarch"
)

// maxRangeBytes bounds a single range.
const maxRangeBytes = 1 << 32

// RangeConfig is one [[range]] table of a layout file.
type RangeConfig struct {
	// Name is the memfd name. Empty means dmabuf.DefaultRangeName.
	Name string `toml:"name"`

	// Pages is the length of the range in pages.
	Pages uint64 `toml:"pages"`

	// Marker is the fill byte. Absent means the range's 1-based position.
	Marker *int `toml:"marker"`
}

// Layout lists the ranges of a buffer, in buffer order.
//
// A layout file looks like:
//
//	[[range]]
//	name = "udmabuf-range"
//	pages = 4
//	marker = 1
type Layout struct {
	Ranges []RangeConfig `toml:"range"`
}

// DefaultLayout returns count ranges of pages pages each.
func DefaultLayout(count int, pages uint64) *Layout {
	l := &Layout{Ranges: make([]RangeConfig, count)}
	for i := range l.Ranges {
		l.Ranges[i] = RangeConfig{Name: dmabuf.DefaultRangeName, Pages: pages}
	}
	return l
}

// LoadLayout reads a layout file. Unknown keys are an error.
func LoadLayout(path string) (*Layout, error) {
	var l Layout
	md, err := toml.DecodeFile(path, &l)
	if err != nil {
		return nil, fmt.Errorf("reading layout %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("layout %q: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("layout %q: %w", path, err)
	}
	return &l, nil
}

// Validate checks that the layout describes at least one range and that
// every range is a whole, positive number of pages with a byte marker.
func (l *Layout) Validate() error {
	if len(l.Ranges) == 0 {
		return fmt.Errorf("no ranges")
	}
	for i, r := range l.Ranges {
		if r.Pages == 0 {
			return fmt.Errorf("range %d: pages must be positive", i)
		}
		if r.Pages > maxRangeBytes/hostarch.PageSize {
			return fmt.Errorf("range %d: %d pages exceeds the %d byte limit", i, r.Pages, uint64(maxRangeBytes))
		}
		if r.Marker != nil && (*r.Marker < 0 || *r.Marker > 0xff) {
			return fmt.Errorf("range %d: marker %d does not fit in a byte", i, *r.Marker)
		}
	}
	return nil
}

// Size returns the total length of the buffer in bytes.
func (l *Layout) Size() uint64 {
	var size uint64
	for _, r := range l.Ranges {
		size += r.Pages * hostarch.PageSize
	}
	return size
}

// Specs returns one range spec per layout entry.
func (l *Layout) Specs(mode dmabuf.FillMode) []dmabuf.RangeSpec {
	specs := make([]dmabuf.RangeSpec, len(l.Ranges))
	for i, r := range l.Ranges {
		name := r.Name
		if name == "" {
			name = dmabuf.DefaultRangeName
		}
		marker := byte(i + 1)
		if r.Marker != nil {
			marker = byte(*r.Marker)
		}
		specs[i] = dmabuf.RangeSpec{
			Name:   name,
			Length: r.Pages * hostarch.PageSize,
			Fill:   dmabuf.Fill{Mode: mode, Marker: marker, ID: i},
		}
	}
	return specs
}

// String renders the layout as a table, one range per line.
func (l *Layout) String() string {
	var b strings.Builder
	var off uint64
	for i, s := range l.Specs(dmabuf.Uniform) {
		fmt.Fprintf(&b, "range[%d] %-16s offset %#010x length %#010x marker %#02x\n", i, s.Name, off, s.Length, s.Fill.Marker)
		off += s.Length
	}
	fmt.Fprintf(&b, "total %d bytes in %d ranges\n", off, len(l.Ranges))
	return b.String()
}
