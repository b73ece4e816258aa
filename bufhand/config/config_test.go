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
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bufhand.dev/bufhand/bufhand/flag"
	"bufhand.dev/bufhand/pkg/dmabuf"
	"bufhand.dev/bufhand/pkg/hostarch"
	"bufhand.dev/bufhand/pkg/test/testutil"
)

func newFlags(t *testing.T) *flag.FlagSet {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	return testFlags
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlags(t))
	if err != nil {
		t.Fatal(err)
	}
	// All defaults doesn't require setting flags.
	flags := c.ToFlags()
	if len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
	if got, want := c.Layout.Size(), uint64(16*hostarch.PageSize); got != want {
		t.Errorf("default layout is %d bytes, want %d", got, want)
	}
	if c.Grace != 2*time.Second {
		t.Errorf("Grace=%v, want: 2s", c.Grace)
	}
}

func TestFromFlags(t *testing.T) {
	testFlags := newFlags(t)
	for name, val := range map[string]string{
		"debug":       "true",
		"range-count": "2",
		"range-pages": "8",
		"fill":        "diagnostic",
		"grace":       "500ms",
		"ack":         "true",
	} {
		if err := testFlags.Lookup(name).Value.Set(val); err != nil {
			t.Errorf("Flag set %s=%s: %v", name, val, err)
		}
	}

	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Debug {
		t.Errorf("Debug=%v, want: true", c.Debug)
	}
	if want := FillMode(dmabuf.Diagnostic); c.Fill != want {
		t.Errorf("Fill=%v, want: %v", c.Fill, want)
	}
	if want := 500 * time.Millisecond; c.Grace != want {
		t.Errorf("Grace=%v, want: %v", c.Grace, want)
	}
	specs := c.RangeSpecs()
	if len(specs) != 2 {
		t.Fatalf("got %d ranges, want 2", len(specs))
	}
	for i, s := range specs {
		want := dmabuf.RangeSpec{
			Name:   dmabuf.DefaultRangeName,
			Length: 8 * hostarch.PageSize,
			Fill:   dmabuf.Fill{Mode: dmabuf.Diagnostic, Marker: byte(i + 1), ID: i},
		}
		if diff := cmp.Diff(want, s); diff != "" {
			t.Errorf("range %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestToFlagsFromFlags(t *testing.T) {
	testFlags := newFlags(t)
	testFlags.Set("debug", "true")
	testFlags.Set("range-count", "3")
	testFlags.Set("fill", "diagnostic")
	testFlags.Set("grace", "1s")
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}

	got := c.ToFlags()
	want := []string{"--debug=true", "--range-count=3", "--fill=diagnostic", "--grace=1s"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ToFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidFlags(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value string
	}{
		{"log-format", "xml"},
		{"debug-log-format", "xml"},
		{"range-count", "0"},
		{"range-pages", "0"},
		{"dump-stride", "0"},
		{"max-refs", "0"},
		{"grace", "-1s"},
		{"layout", "/nonexistent/layout.toml"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newFlags(t)
			if err := testFlags.Set(tc.name, tc.value); err != nil {
				t.Fatalf("Set(%q, %q): %v", tc.name, tc.value, err)
			}
			if _, err := NewFromFlags(testFlags); err == nil {
				t.Errorf("NewFromFlags accepted --%s=%s", tc.name, tc.value)
			}
		})
	}
	if err := newFlags(t).Set("fill", "random"); err == nil {
		t.Errorf("--fill=random accepted")
	}
}

func writeLayout(t *testing.T, text string) string {
	t.Helper()
	path, cleanup, err := testutil.WriteTmpFile("layout-*.toml", text)
	if err != nil {
		t.Fatalf("WriteTmpFile: %v", err)
	}
	t.Cleanup(cleanup)
	return path
}

func TestLayoutFile(t *testing.T) {
	path := writeLayout(t, `
[[range]]
name = "head"
pages = 1
marker = 0xaa

[[range]]
pages = 3
`)
	testFlags := newFlags(t)
	testFlags.Set("layout", path)
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	want := []dmabuf.RangeSpec{
		{Name: "head", Length: hostarch.PageSize, Fill: dmabuf.Fill{Marker: 0xaa, ID: 0}},
		{Name: dmabuf.DefaultRangeName, Length: 3 * hostarch.PageSize, Fill: dmabuf.Fill{Marker: 2, ID: 1}},
	}
	if diff := cmp.Diff(want, c.RangeSpecs()); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}
	if got := c.Layout.Size(); got != 4*hostarch.PageSize {
		t.Errorf("Size() = %d, want %d", got, 4*hostarch.PageSize)
	}
	if s := c.Layout.String(); !strings.Contains(s, "head") || !strings.Contains(s, "2 ranges") {
		t.Errorf("String() = %q, want it to list both ranges", s)
	}
}

func TestLayoutFileInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		text string
	}{
		{"empty", ``},
		{"zero pages", "[[range]]\npages = 0\n"},
		{"big marker", "[[range]]\npages = 1\nmarker = 256\n"},
		{"unknown key", "[[range]]\npages = 1\nsize = 4096\n"},
		{"syntax", "[[range]\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadLayout(writeLayout(t, tc.text)); err == nil {
				t.Errorf("LoadLayout accepted %q", tc.text)
			}
		})
	}
}
