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
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dnspoll/dnspoll/poller"
	"go.uber.org/zap"
)

// fdNode mirrors one socket the resolution library currently uses onto a
// poller-managed descriptor. It is shared between the driver's tracked set
// and the callback of each outstanding notification, so its lifetime is
// reference counted: one reference for the tracked set, plus one per armed
// direction. The node frees its descriptor when the count reaches zero.
type fdNode struct {
	// driver is a non-owning back-reference, used only to re-enter
	// reconciliation after an event. The driver outlives every node it
	// creates.
	driver *Driver
	fd     poller.FD

	refs atomic.Int32

	mu sync.Mutex
	// +checklocks:mu
	readArmed bool
	// +checklocks:mu
	writeArmed bool
}

func newFDNode(driver *Driver, fd poller.FD) *fdNode {
	node := &fdNode{driver: driver, fd: fd}
	node.refs.Store(1)
	return node
}

func (n *fdNode) retain() {
	refs := n.refs.Add(1)
	if refs < 2 {
		panic(fmt.Sprintf("dnspoll: retain of a dead fd node on descriptor %d", n.fd.Raw()))
	}
	if ce := n.driver.logger.Check(zap.DebugLevel, "ref fd node"); ce != nil {
		ce.Write(zap.Int("fd", n.fd.Raw()), zap.Int32("refs", refs))
	}
}

// release drops one reference. On the transition to zero the descriptor is
// deregistered, shut down, and disposed, and the node is reported freed to
// the driver. Releasing below zero is a double-release bug.
func (n *fdNode) release() {
	refs := n.refs.Add(-1)
	if refs < 0 {
		panic(fmt.Sprintf("dnspoll: double release of fd node on descriptor %d", n.fd.Raw()))
	}
	if ce := n.driver.logger.Check(zap.DebugLevel, "unref fd node"); ce != nil {
		ce.Write(zap.Int("fd", n.fd.Raw()), zap.Int32("refs", refs))
	}
	if refs > 0 {
		return
	}
	n.mu.Lock()
	readArmed, writeArmed := n.readArmed, n.writeArmed
	n.mu.Unlock()
	if readArmed || writeArmed {
		panic(fmt.Sprintf("dnspoll: fd node on descriptor %d freed with a direction still armed", n.fd.Raw()))
	}
	driver := n.driver
	driver.group.Deregister(n.fd)
	n.fd.Shutdown(errStale)
	_ = n.fd.Close()
	driver.logger.Debug("delete fd node", zap.Int("fd", n.fd.Raw()))
	driver.nodes.Done()
}

// arm ensures a one-shot notification is outstanding for each wanted
// direction. Arming an already-armed direction is a no-op; this is what
// prevents duplicate in-flight notifications per descriptor per direction.
// The registration's reference is taken before the poller call, so the
// node cannot be freed while the registration is being armed.
func (n *fdNode) arm(readable, writable bool) {
	if readable && n.markArmed(read) {
		n.retain()
		if ce := n.driver.logger.Check(zap.DebugLevel, "notify on read"); ce != nil {
			ce.Write(zap.Int("fd", n.fd.Raw()))
		}
		n.fd.NotifyOnRead(n.onReadable)
	}
	if writable && n.markArmed(write) {
		n.retain()
		if ce := n.driver.logger.Check(zap.DebugLevel, "notify on write"); ce != nil {
			ce.Write(zap.Int("fd", n.fd.Raw()))
		}
		n.fd.NotifyOnWrite(n.onWritable)
	}
}

type direction bool

const (
	read  direction = false
	write direction = true
)

// markArmed flips the direction's armed flag, reporting false if it
// was already set. The node lock is held only for the flag update, never
// across a poller call.
func (n *fdNode) markArmed(dir direction) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	flag := &n.readArmed
	if dir == write {
		flag = &n.writeArmed
	}
	if *flag {
		return false
	}
	*flag = true
	return true
}

func (n *fdNode) onReadable(err error) {
	n.mu.Lock()
	n.readArmed = false
	n.mu.Unlock()
	n.driver.onEvent(n, true, false, err)
}

func (n *fdNode) onWritable(err error) {
	n.mu.Lock()
	n.writeArmed = false
	n.mu.Unlock()
	n.driver.onEvent(n, false, true, err)
}

func (n *fdNode) armed() (readArmed, writeArmed bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.readArmed, n.writeArmed
}
