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

// Package handofferr defines the errors returned while building and handing
// off a buffer. Every error names the phase it belongs to so an operator can
// tell a local resource problem from a peer or transport problem.
package handofferr

import (
	"errors"
	"fmt"
)

// Phase is the stage of a handoff in which an error occurred.
type Phase int

// Phases, in the order a sender goes through them.
const (
	PhaseAllocation Phase = iota
	PhaseAssembly
	PhaseTransport
	PhaseConversion
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseAllocation:
		return "allocation"
	case PhaseAssembly:
		return "assembly"
	case PhaseTransport:
		return "transport"
	case PhaseConversion:
		return "conversion"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Kind classifies an error.
type Kind int

// Error kinds.
const (
	// Allocation: backing storage could not be created.
	Allocation Kind = iota + 1
	// Size: a length is zero or not a whole number of pages.
	Size
	// Resize: backing storage could not be sized.
	Resize
	// Map: a mapping could not be created or torn down.
	Map
	// Seal: the kernel rejected the grow/shrink seals.
	Seal
	// Facility: the buffer-object facility could not be opened.
	Facility
	// Creation: the buffer-object facility refused the creation request.
	Creation
	// Transport: the channel failed.
	Transport
	// Protocol: the peer sent malformed or inconsistent data.
	Protocol
	// Grant: the hypervisor rejected a grant conversion.
	Grant
)

var kindNames = map[Kind]string{
	Allocation: "allocation error",
	Size:       "size error",
	Resize:     "resize error",
	Map:        "map error",
	Seal:       "seal error",
	Facility:   "facility error",
	Creation:   "creation error",
	Transport:  "transport error",
	Protocol:   "protocol error",
	Grant:      "grant error",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Phase returns the phase errors of this kind belong to.
func (k Kind) Phase() Phase {
	switch k {
	case Allocation, Size, Resize, Map, Seal:
		return PhaseAllocation
	case Facility, Creation:
		return PhaseAssembly
	case Transport, Protocol:
		return PhaseTransport
	default:
		return PhaseConversion
	}
}

// Error is a classified error.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op describes the operation that failed, e.g. "memfd_create".
	Op string

	// Err is the underlying cause, may be nil.
	Err error
}

// Error implements error.Error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind.Phase(), e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Kind.Phase(), e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. The sentinels
// below carry no Op, so errors.Is(err, ErrProtocol) matches any protocol
// error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New returns a new *Error.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf returns a new *Error whose cause is built from format and args.
func Newf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Sentinels for use with errors.Is.
var (
	ErrAllocation = &Error{Kind: Allocation}
	ErrSize       = &Error{Kind: Size}
	ErrResize     = &Error{Kind: Resize}
	ErrMap        = &Error{Kind: Map}
	ErrSeal       = &Error{Kind: Seal}
	ErrFacility   = &Error{Kind: Facility}
	ErrCreation   = &Error{Kind: Creation}
	ErrTransport  = &Error{Kind: Transport}
	ErrProtocol   = &Error{Kind: Protocol}
	ErrGrant      = &Error{Kind: Grant}
)
