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

// Package dnspoll bridges a synchronous, callback-free name-resolution
// library (the model of c-ares: "ask me which sockets I care about, then
// drive me when one is ready") into a readiness-driven I/O runtime.
//
// The core type is [Driver]. It owns one resolution session, mirrors each
// socket the library reports interest in onto a poller-managed descriptor
// with one-shot read/write notifications, and keeps that mapping
// reconciled as the library's socket set changes between rounds: nodes are
// reused for sockets still in use, created for new ones, and shut down for
// sockets the library dropped, so descriptors never leak. Each fired
// notification drives one step of library processing and triggers the next
// reconciliation; the loop terminates itself when the library reports no
// more work.
//
// The collaborators are specified at their interface boundaries only:
// [github.com/dnspoll/dnspoll/session] for the resolution library and
// [github.com/dnspoll/dnspoll/poller] for the runtime's event loop. The
// query layer above this package issues lookups against
// [Driver.Session] and calls [Driver.Start] to get them driven; query
// construction, retries, and result parsing are its business, not this
// package's.
//
// Descriptor shutdown is the sole cancellation primitive: closing the
// driver (or an optional stall timeout, see [WithStallTimeout]) shuts the
// descriptors down, which makes any in-flight notification fire with an
// error outcome, cancels the session's outstanding queries, and lets the
// reconciliation loop drain. Runtime descriptor errors never surface from
// this package; the library reports the cancellation through each query's
// own completion callback.
package dnspoll
