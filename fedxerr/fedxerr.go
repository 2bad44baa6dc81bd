// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fedxerr defines the federation-level error type. Errors raised by
// members, the optimizer, the scheduler and the connection are wrapped into
// an *Error at each component boundary so that callers only ever see one
// error type, tagged with a Kind.
package fedxerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a federation error.
type Kind int

// Kinds of federation errors.
const (
	// QueryEvaluation is the generic kind for evaluation failures that have no
	// more specific classification.
	QueryEvaluation Kind = iota
	// MemberFailure indicates a single member's store errored or timed out.
	MemberFailure
	// OptimizerFallback indicates the optimizer could not classify a node and
	// fell back to a conservative plan. It is only ever logged.
	OptimizerFallback
	// SchedulerTimeout indicates a task ran past its query's deadline.
	SchedulerTimeout
	// WriteRejected indicates every writable member rejected a write, or the
	// federation is read-only.
	WriteRejected
	// ResourceLeakGuard indicates a failure while constructing a stream, after
	// which the partially opened resources were closed.
	ResourceLeakGuard
)

var kindNames = [...]string{
	QueryEvaluation:   "query evaluation",
	MemberFailure:     "member failure",
	OptimizerFallback: "optimizer fallback",
	SchedulerTimeout:  "scheduler timeout",
	WriteRejected:     "write rejected",
	ResourceLeakGuard: "resource leak guard",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the federation-level error.
type Error struct {
	Kind Kind
	// Op names the operation that failed, such as "evaluate" or "addStatement".
	Op string
	// Member is the id of the member involved, if any.
	Member string
	// Err is the root cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("fedx: ")
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" during ")
		b.WriteString(e.Op)
	}
	if e.Member != "" {
		fmt.Fprintf(&b, " (member %s)", e.Member)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the root cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a new federation error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf returns a new federation error whose cause is built from format.
func Newf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap wraps err into a federation error of the given kind. It returns nil if
// err is nil. If err already is (or wraps) an *Error, that error is returned
// unchanged so that the first classification wins as it crosses boundaries.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WrapMember is like Wrap but also records the member id.
func WrapMember(kind Kind, op string, member string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Op: op, Member: member, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. The second
// return value is false if err does not contain an *Error.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return QueryEvaluation, false
}

// Is reports whether err contains an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
