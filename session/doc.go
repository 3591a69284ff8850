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

// Package session defines the boundary between the dnspoll driver and a
// synchronous name-resolution library such as c-ares. Such a library owns
// its sockets, its pending queries, and the DNS protocol itself; it does no
// I/O scheduling of its own. Instead it reports which of its sockets it
// currently cares about, and expects its caller to invoke its processing
// entry point whenever one of those sockets becomes ready.
//
// The [Library] interface covers the library's process-wide lifecycle and
// the opening of per-use state; the [Session] interface covers one unit of
// that state: its interest set, its processing step, and cancellation of
// everything outstanding on it.
//
// Implementations wrap a real resolution library (typically via cgo). The
// dnspoll module itself ships none: DNS protocol logic is entirely the
// library's concern.
package session
