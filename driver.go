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
	"time"

	"github.com/dnspoll/dnspoll/internal"
	"github.com/dnspoll/dnspoll/poller"
	"github.com/dnspoll/dnspoll/session"
	"go.uber.org/zap"
)

// Driver keeps one resolution session's socket set mirrored onto
// poller-managed descriptors with one-shot readiness notifications.
//
// A Driver is created per session via [NewDriver], kicked by [Driver.Start]
// whenever new work is issued against the session, and torn down exactly
// once with [Driver.Close]. Between Start and going idle it runs the
// reconciliation loop: each readiness event drives one step of library
// processing and then re-derives the tracked descriptor set from the
// library's current interest.
type Driver struct {
	lib     session.Library
	session session.Session
	// group is borrowed from the caller; descriptors are registered into
	// it for the driver's lifetime.
	group poller.Group

	logger       *zap.Logger
	clock        internal.Clock
	stallTimeout time.Duration

	// nodes counts live fd nodes; Close waits on it before touching
	// session state, because outstanding registrations hold references
	// back into the driver.
	nodes sync.WaitGroup

	mu sync.Mutex
	// +checklocks:mu
	tracked map[int]*fdNode
	// +checklocks:mu
	active bool
	// +checklocks:mu
	closing bool
	// +checklocks:mu
	stallTimer internal.Timer
}

// NewDriver returns a driver bound to the given descriptor group, backed
// by a fresh session of the given library. The library's process-wide
// state is initialized on the first driver created against it and torn
// down when the last one is closed. On failure no driver is produced and
// no process-wide reference is retained; the error is a [*LibraryInitError]
// or [*SessionInitError] carrying the library's diagnostic.
func NewDriver(group poller.Group, lib session.Library, opts ...DriverOption) (*Driver, error) {
	if err := acquireLibrary(lib); err != nil {
		return nil, &LibraryInitError{Err: err}
	}
	sess, err := lib.NewSession()
	if err != nil {
		releaseLibrary(lib)
		return nil, &SessionInitError{Err: err}
	}
	driver := &Driver{
		lib:     lib,
		session: sess,
		group:   group,
		logger:  zap.NewNop(),
		clock:   internal.NewRealClock(),
		tracked: map[int]*fdNode{},
	}
	for _, opt := range opts {
		opt.apply(driver)
	}
	return driver, nil
}

// Session returns the driver's session handle, for issuing queries
// directly against the library. Callers should Start the driver after
// issuing work so the session's sockets get driven.
func (d *Driver) Session() session.Session {
	return d.session
}

// Start kicks the reconciliation loop. It is idempotent: if the driver is
// already working, Start is a no-op. The loop is self-terminating; once
// the library reports no interesting sockets the driver goes idle until
// the next Start.
func (d *Driver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active || d.closing {
		return
	}
	d.active = true
	if d.stallTimeout > 0 {
		d.stallTimer = d.clock.AfterFunc(d.stallTimeout, d.onStall)
	}
	d.reconcileLocked()
}

// Close shuts down every tracked descriptor, waits for all outstanding
// notifications to fire and release their references, then destroys the
// session and drops the process-wide library reference. No Start call may
// follow Close. Closing a driver twice is a bug and panics.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		panic("dnspoll: driver closed twice")
	}
	d.closing = true
	d.stopStallTimerLocked()
	for _, node := range d.tracked {
		node.fd.Shutdown(errDriverClosed)
	}
	d.mu.Unlock()

	// Every pending registration now fires with an error outcome; the
	// cancellation it triggers empties the library's interest set and the
	// follow-up reconciliations retire the remaining nodes. Session state
	// must not be destroyed before that has fully quiesced.
	d.nodes.Wait()

	d.mu.Lock()
	if remaining := len(d.tracked); remaining != 0 {
		panic(fmt.Sprintf("dnspoll: %d descriptors still tracked after drain", remaining))
	}
	d.mu.Unlock()

	err := d.session.Close()
	releaseLibrary(d.lib)
	d.logger.Debug("driver destroyed")
	return err
}

// reconcileLocked re-derives the tracked descriptor set from the library's
// current interest and re-arms notifications. Nodes for sockets still in
// use are reused (re-registering with the poller is not free); sockets no
// longer reported are shut down so descriptors never leak.
//
// +checklocks:d.mu
func (d *Driver) reconcileLocked() {
	var interests []session.Interest
	if !d.closing {
		interests = d.session.Interests()
	}
	next := make(map[int]*fdNode, len(interests))
	for _, interest := range interests {
		if !interest.Readable && !interest.Writable {
			continue
		}
		node, ok := next[interest.Socket]
		if !ok {
			node, ok = d.tracked[interest.Socket]
			if ok {
				delete(d.tracked, interest.Socket)
			} else {
				node = d.newNodeLocked(interest.Socket)
				if node == nil {
					continue
				}
			}
			next[interest.Socket] = node
		}
		node.arm(interest.Readable, interest.Writable)
	}
	// Anything left in the old set was not reported this round, so the
	// library is done with it. A registration already in flight will still
	// fire, observe the shutdown, and release its reference.
	for _, node := range d.tracked {
		node.fd.Shutdown(errStale)
		node.release()
	}
	d.tracked = next
	if len(next) == 0 {
		d.active = false
		d.stopStallTimerLocked()
		d.logger.Debug("driver idle")
	}
}

// +checklocks:d.mu
func (d *Driver) newNodeLocked(socket int) *fdNode {
	fd, err := d.group.Register(socket, fmt.Sprintf("dnspoll-%d", socket))
	if err != nil {
		// The socket stays untracked this round; the next reconciliation
		// retries as long as the library keeps reporting it.
		d.logger.Error("failed to register descriptor with poller group",
			zap.Int("fd", socket),
			zap.Error(err),
		)
		return nil
	}
	d.nodes.Add(1)
	d.logger.Debug("new fd node", zap.Int("fd", socket))
	return newFDNode(d, fd)
}

// onEvent handles one fired notification. A ready outcome drives library
// processing. An error outcome means the descriptor was shut down (by
// Close, a stall timeout, or the poller); it cancels all outstanding
// queries on the session, and the library reports the cancellation through
// each query's own completion callback. Either way the registration's
// reference is dropped and reconciliation runs again, re-arming
// still-wanted directions and retiring sockets the library dropped as a
// side effect of processing.
func (d *Driver) onEvent(node *fdNode, readable, writable bool, err error) {
	if err == nil {
		if ce := d.logger.Check(zap.DebugLevel, "descriptor ready"); ce != nil {
			ce.Write(zap.Int("fd", node.fd.Raw()), zap.Bool("readable", readable), zap.Bool("writable", writable))
		}
		d.session.Process(node.fd.Raw(), readable, writable)
	} else {
		if ce := d.logger.Check(zap.DebugLevel, "descriptor shut down"); ce != nil {
			ce.Write(zap.Int("fd", node.fd.Raw()), zap.Error(err))
		}
		d.session.Cancel()
	}
	node.release()
	d.mu.Lock()
	d.reconcileLocked()
	d.mu.Unlock()
}

// onStall fires when the driver has stayed busy past the configured stall
// timeout. Shutting the descriptors down converts the stall into the
// normal cancellation path.
func (d *Driver) onStall() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active || d.closing {
		return
	}
	d.logger.Warn("driver stalled, shutting down descriptors",
		zap.Duration("timeout", d.stallTimeout),
		zap.Int("descriptors", len(d.tracked)),
	)
	for _, node := range d.tracked {
		node.fd.Shutdown(errStallTimeout)
	}
}

// +checklocks:d.mu
func (d *Driver) stopStallTimerLocked() {
	if d.stallTimer != nil {
		d.stallTimer.Stop()
		d.stallTimer = nil
	}
}
