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

package session

// MaxInterest is the maximum number of sockets a library reports interest
// in per round. It mirrors the fixed cap that c-ares imposes on getsock
// queries; Interests must never return a longer slice.
const MaxInterest = 16

// Interest describes one socket the library currently wants driven, and in
// which directions. A socket may be reported with both directions set; one
// with neither set is meaningless and is ignored by the driver.
type Interest struct {
	// Socket is the raw descriptor value, owned by the library.
	Socket int
	// Readable is true if the library wants to be driven when the socket
	// becomes readable.
	Readable bool
	// Writable is true if the library wants to be driven when the socket
	// becomes writable.
	Writable bool
}

// Session is one instance of the library's internal state: its socket set,
// its in-flight queries, and their timers. A Session is driven by exactly
// one driver, but the library must tolerate concurrent Process calls for
// different sockets of the same session, backed by its own locking (as
// c-ares is).
type Session interface {
	// Interests returns the sockets the library currently wants driven,
	// at most MaxInterest of them. The set may change after every Process
	// call as queries progress, retry on other transports, or complete.
	// An empty result means the session has no outstanding work.
	Interests() []Interest

	// Process drives one step of protocol processing for the given socket
	// in the given direction(s). It may complete pending queries (invoking
	// the library's own completion callbacks) and may change the interest
	// set.
	Process(socket int, readable, writable bool)

	// Cancel fails every outstanding query on the session. The library
	// reports the cancellation to each query's completion callback; the
	// interest set becomes empty as a result.
	Cancel()

	// Close destroys the session. It must not be called while the session
	// still has outstanding work.
	Close() error
}

// Library is the process-wide face of a resolution library.
//
// Init and Cleanup are reference-counted by the driver package: Init runs
// when the first driver against this Library is created, Cleanup when the
// last one is closed. Implementations therefore see them strictly paired
// and never nested.
type Library interface {
	// Init prepares process-wide library state. An error aborts driver
	// construction and carries the library's diagnostic text.
	Init() error
	// Cleanup tears down the state built by Init.
	Cleanup()
	// NewSession opens a fresh session against the library.
	NewSession() (Session, error)
}
