// Copyright 2024 The dnspoll Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dnspoll

import (
	"errors"
	"fmt"
)

// LibraryInitError indicates that the resolution library's process-wide
// initialization failed. No driver is produced and no process-wide
// reference is retained.
type LibraryInitError struct {
	Err error
}

func (e *LibraryInitError) Error() string {
	return fmt.Sprintf("failed to init resolution library: %v", e.Err)
}

func (e *LibraryInitError) Unwrap() error {
	return e.Err
}

// SessionInitError indicates that the resolution library refused to open a
// session. It carries the library's diagnostic.
type SessionInitError struct {
	Err error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("failed to open resolution session: %v", e.Err)
}

func (e *SessionInitError) Unwrap() error {
	return e.Err
}

var (
	// errDriverClosed is the shutdown reason given to descriptors when the
	// driver is closed.
	errDriverClosed = errors.New("driver closed")
	// errStallTimeout is the shutdown reason given to descriptors when the
	// driver exceeds its stall timeout.
	errStallTimeout = errors.New("driver stall timeout exceeded")
	// errStale is the shutdown reason for descriptors the library no
	// longer reports interest in.
	errStale = errors.New("descriptor no longer in use")
)
