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

package source

import (
	"errors"
	"fmt"

	"github.com/ebay/fedx/rdf"
)

// ErrRejected is matched by errors.Is for every *RejectedError.
var ErrRejected = errors.New("statement rejected")

// RejectedError is returned by Conn.Add when the member does not accept a
// statement of that shape. The federation then tries another member.
type RejectedError struct {
	Statement rdf.Statement
	Reason    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("statement rejected: %s: %v", e.Reason, e.Statement)
}

// Is allows errors.Is(err, ErrRejected).
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// StorageError is a failure of the member's storage layer, as opposed to a
// bug or a malformed request.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorage returns true if err is or wraps a *StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
