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
	"github.com/dnspoll/dnspoll/internal"
)

// SetClock replaces the driver's clock, so tests can drive the stall
// timer with a fake.
func (d *Driver) SetClock(clock internal.Clock) {
	d.clock = clock
}

// IsActive reports the driver's working flag.
func (d *Driver) IsActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// TrackedSockets returns the raw descriptor values currently tracked.
func (d *Driver) TrackedSockets() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	sockets := make([]int, 0, len(d.tracked))
	for socket := range d.tracked {
		sockets = append(sockets, socket)
	}
	return sockets
}

// NodeRefs returns the refcount of the tracked node for the given socket,
// or 0 if the socket is not tracked.
func (d *Driver) NodeRefs(socket int) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	node, ok := d.tracked[socket]
	if !ok {
		return 0
	}
	return node.refs.Load()
}

// NodeArmed returns the armed flags of the tracked node for the given
// socket. Both are false if the socket is not tracked.
func (d *Driver) NodeArmed(socket int) (readArmed, writeArmed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	node, ok := d.tracked[socket]
	if !ok {
		return false, false
	}
	return node.armed()
}

// NodeIdentity returns an opaque identity for the tracked node of the
// given socket, for asserting that reconciliation reused (or did not
// reuse) a node across rounds. Returns nil if the socket is not tracked.
func (d *Driver) NodeIdentity(socket int) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	node, ok := d.tracked[socket]
	if !ok {
		return nil
	}
	return node
}
