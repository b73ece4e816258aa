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

package handoff

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"bufhand.dev/bufhand/pkg/errors/handofferr"
)

func TestAck(t *testing.T) {
	var buf bytes.Buffer
	if err := SendAck(&buf); err != nil {
		t.Fatalf("SendAck: %v", err)
	}
	if err := AwaitRelease(&buf, time.Hour, true); err != nil {
		t.Errorf("AwaitRelease: %v", err)
	}
}

func TestAwaitReleaseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		data []byte
		want error
	}{
		{"eof", nil, handofferr.ErrTransport},
		{"wrong byte", []byte{'A'}, handofferr.ErrProtocol},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := AwaitRelease(bytes.NewReader(tc.data), time.Hour, true); !errors.Is(err, tc.want) {
				t.Errorf("AwaitRelease: got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestAwaitReleaseGrace(t *testing.T) {
	const grace = 50 * time.Millisecond
	start := time.Now()
	// Without ack the reader is never touched.
	if err := AwaitRelease(errReader{errors.New("unused")}, grace, false); err != nil {
		t.Fatalf("AwaitRelease: %v", err)
	}
	if elapsed := time.Since(start); elapsed < grace {
		t.Errorf("AwaitRelease returned after %v, want at least %v", elapsed, grace)
	}
}
