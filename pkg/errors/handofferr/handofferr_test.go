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

package handofferr

import (
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestPhase(t *testing.T) {
	for _, tc := range []struct {
		kind Kind
		want Phase
	}{
		{Allocation, PhaseAllocation},
		{Size, PhaseAllocation},
		{Resize, PhaseAllocation},
		{Map, PhaseAllocation},
		{Seal, PhaseAllocation},
		{Facility, PhaseAssembly},
		{Creation, PhaseAssembly},
		{Transport, PhaseTransport},
		{Protocol, PhaseTransport},
		{Grant, PhaseConversion},
	} {
		if got := tc.kind.Phase(); got != tc.want {
			t.Errorf("%v.Phase() = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestErrorString(t *testing.T) {
	err := New(Seal, "fcntl(F_ADD_SEALS)", unix.EPERM)
	want := "allocation: seal error: fcntl(F_ADD_SEALS): operation not permitted"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got := New(Protocol, "short header", nil).Error(); got != "transport: protocol error: short header" {
		t.Errorf("Error() without cause = %q", got)
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("receiving: %w", New(Grant, "exp_from_refs", unix.EINVAL))
	if !errors.Is(err, ErrGrant) {
		t.Errorf("errors.Is(%v, ErrGrant) = false", err)
	}
	if errors.Is(err, ErrProtocol) {
		t.Errorf("errors.Is(%v, ErrProtocol) = true", err)
	}
	if !errors.Is(err, unix.EINVAL) {
		t.Errorf("errno not reachable through %v", err)
	}
	if k, ok := KindOf(err); !ok || k != Grant {
		t.Errorf("KindOf(%v) = %v, %t", err, k, ok)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Errorf("KindOf(plain) reported a kind")
	}
}
