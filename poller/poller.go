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

package poller

// Group is a set of descriptors that a higher-level wait primitive can
// block on together. A driver borrows one Group for its lifetime and
// registers every descriptor it mirrors into it.
type Group interface {
	// Register wraps the given raw descriptor in a runtime-managed FD and
	// adds it to the group. The name is used for tracing only. The raw
	// descriptor remains owned by whoever created it; the returned FD only
	// observes it.
	Register(fd int, name string) (FD, error)

	// Deregister removes an FD previously returned by Register from the
	// group. It must be called before the FD is closed.
	Deregister(fd FD)
}

// FD is a runtime-managed file descriptor with one-shot, per-direction
// readiness notification.
//
// Callbacks are invoked with a nil error when the descriptor became ready,
// or with a non-nil error when the descriptor was shut down before (or
// instead of) becoming ready. A callback fires at most once per arming and
// must be re-armed after each fire.
//
// Implementations must never invoke a callback synchronously from within
// NotifyOnRead, NotifyOnWrite, or Shutdown; callbacks run on the poller's
// own dispatch goroutines. Callers rely on this to hold their locks across
// Shutdown calls.
type FD interface {
	// Raw returns the underlying raw descriptor value.
	Raw() int

	// NotifyOnRead arms a one-shot read-readiness notification. At most
	// one may be outstanding at a time; arming while one is outstanding is
	// undefined. Arming an already-shut-down FD fires the callback
	// (asynchronously) with the shutdown reason.
	NotifyOnRead(callback func(error))

	// NotifyOnWrite is NotifyOnRead for write readiness.
	NotifyOnWrite(callback func(error))

	// Shutdown signals cancellation: every outstanding notification fires
	// with the given reason instead of hanging, and subsequent arms fire
	// immediately with it. Shutdown is idempotent; the first reason wins.
	Shutdown(reason error)

	// Close disposes the FD. It must not be called while a notification is
	// outstanding; Shutdown first makes that condition reachable.
	Close() error
}
