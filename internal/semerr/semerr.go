// Copyright 2024 Google Inc. All Rights Reserved.
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

// Package semerr defines the closed error taxonomy shared by every
// component, and the POSIX errno mapping the Face uses to answer the
// kernel.
package semerr

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind classifies the cause of an Error. It is closed: callers should not
// invent new kinds outside this package.
type Kind int

const (
	Other Kind = iota
	DatabaseFailure
	IoFailure
	FuseFailure
	EmbeddingFailure
	InvalidPath
	StateFailure
)

func (k Kind) String() string {
	switch k {
	case DatabaseFailure:
		return "DatabaseFailure"
	case IoFailure:
		return "IoFailure"
	case FuseFailure:
		return "FuseFailure"
	case EmbeddingFailure:
		return "EmbeddingFailure"
	case InvalidPath:
		return "InvalidPath"
	case StateFailure:
		return "StateFailure"
	default:
		return "Other"
	}
}

// Error wraps an underlying cause with a Kind so callers can branch on
// failure class without string-matching messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap annotates err with a Kind and the operation that produced it. Wrap
// returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err, defaulting to Other for errors this
// package didn't produce.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Other
}

// Errno maps err onto the POSIX error a fuse.Server op handler returns to
// the kernel. The Face uses this exclusively; no other component should be
// translating errors into kernel errno values.
func Errno(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrPending):
		return syscall.EAGAIN
	case KindOf(err) == InvalidPath:
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}

// ErrNotFound is returned by store lookups that find nothing; callers
// translate it to ENOENT at the Face boundary rather than EIO.
var ErrNotFound = errors.New("not found")

// ErrPending signals the Face should answer EAGAIN: the caller asked about
// a phrase whose ResultBinding has not been computed yet.
var ErrPending = errors.New("result not yet computed")
