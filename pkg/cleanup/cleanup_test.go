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

package cleanup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recorder []string

func (r *recorder) fn(name string) func() {
	return func() { *r = append(*r, name) }
}

func TestClean(t *testing.T) {
	for _, tc := range []struct {
		name    string
		release bool
		want    []string
	}{
		{name: "error path", want: []string{"close", "unmap", "destroy"}},
		{name: "success path", release: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var rec recorder
			func() {
				cu := Make(rec.fn("destroy"))
				defer cu.Clean()
				cu.Add(rec.fn("unmap"))
				cu.Add(rec.fn("close"))
				if tc.release {
					cu.Release()
				}
			}()
			if diff := cmp.Diff(tc.want, []string(rec)); diff != "" {
				t.Errorf("cleanup calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestZeroValue(t *testing.T) {
	var rec recorder
	var cu Cleanup
	cu.Clean()
	cu.Add(rec.fn("a"))
	cu.Add(rec.fn("b"))
	cu.Clean()
	cu.Clean()
	if diff := cmp.Diff([]string{"b", "a"}, []string(rec)); diff != "" {
		t.Errorf("cleanup calls mismatch (-want +got):\n%s", diff)
	}
}

func TestReleaseReturnsCleaner(t *testing.T) {
	var rec recorder
	cu := Make(rec.fn("first"))
	cu.Add(rec.fn("second"))
	run := cu.Release()
	cu.Clean()
	if len(rec) != 0 {
		t.Fatalf("Clean after Release ran %q", rec)
	}
	run()
	if diff := cmp.Diff([]string{"second", "first"}, []string(rec)); diff != "" {
		t.Errorf("released cleaner calls mismatch (-want +got):\n%s", diff)
	}
}
