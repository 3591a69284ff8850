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

package dnspoll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dnspoll/dnspoll"
	"github.com/dnspoll/dnspoll/internal/clocktest"
	"github.com/dnspoll/dnspoll/internal/drivertesting"
	"github.com/dnspoll/dnspoll/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

func newTestDriver(t *testing.T, opts ...dnspoll.DriverOption) (*dnspoll.Driver, *drivertesting.FakeSession, *drivertesting.FakeGroup, *drivertesting.FakeLibrary) {
	t.Helper()
	sess := drivertesting.NewFakeSession()
	lib := drivertesting.NewFakeLibrary(sess)
	group := drivertesting.NewFakeGroup()
	opts = append(opts, dnspoll.WithLogger(zaptest.NewLogger(t)))
	driver, err := dnspoll.NewDriver(group, lib, opts...)
	require.NoError(t, err)
	return driver, sess, group, lib
}

func TestDriverSingleReadLifecycle(t *testing.T) {
	t.Parallel()

	driver, sess, group, _ := newTestDriver(t)
	sess.SetInterests(session.Interest{Socket: 5, Readable: true})
	driver.Start()

	require.True(t, driver.IsActive())
	require.ElementsMatch(t, []int{5}, driver.TrackedSockets())
	// One reference held by the tracked set, one by the armed read.
	assert.EqualValues(t, 2, driver.NodeRefs(5))
	readArmed, writeArmed := driver.NodeArmed(5)
	assert.True(t, readArmed)
	assert.False(t, writeArmed)
	require.True(t, group.FD(5).ReadArmed())

	// The library completes its query during processing: the next interest
	// set is empty, so the node must be retired and the driver go idle.
	sess.SetInterests()
	require.True(t, group.FD(5).FireRead())

	require.Equal(t, []drivertesting.ProcessCall{{Socket: 5, Readable: true}}, sess.Processed())
	assert.Empty(t, driver.TrackedSockets())
	assert.False(t, driver.IsActive())
	assert.True(t, group.FD(5).Deregistered())
	assert.True(t, group.FD(5).IsClosed())

	require.NoError(t, driver.Close())
}

func TestDriverReadFireLeavesWriteArmed(t *testing.T) {
	t.Parallel()

	driver, sess, group, _ := newTestDriver(t)
	sess.SetInterests(session.Interest{Socket: 5, Readable: true, Writable: true})
	driver.Start()

	assert.EqualValues(t, 3, driver.NodeRefs(5))
	require.True(t, group.FD(5).ReadArmed())
	require.True(t, group.FD(5).WriteArmed())

	// Reading drained the socket; the library now only wants writes.
	sess.SetInterests(session.Interest{Socket: 5, Writable: true})
	require.True(t, group.FD(5).FireRead())

	// The write registration keeps the node alive and untouched.
	require.ElementsMatch(t, []int{5}, driver.TrackedSockets())
	assert.EqualValues(t, 2, driver.NodeRefs(5))
	readArmed, writeArmed := driver.NodeArmed(5)
	assert.False(t, readArmed)
	assert.True(t, writeArmed)
	assert.False(t, group.FD(5).IsClosed())

	sess.SetInterests()
	require.True(t, group.FD(5).FireWrite())
	assert.Empty(t, driver.TrackedSockets())
	assert.True(t, group.FD(5).IsClosed())

	require.NoError(t, driver.Close())
}

func TestDriverDiffAcrossRounds(t *testing.T) {
	t.Parallel()

	driver, sess, group, _ := newTestDriver(t)
	sess.SetInterests(
		session.Interest{Socket: 5, Readable: true},
		session.Interest{Socket: 6, Readable: true},
	)
	driver.Start()
	require.ElementsMatch(t, []int{5, 6}, driver.TrackedSockets())
	node6 := driver.NodeIdentity(6)

	// Processing socket 5 closes it and opens socket 7 (a retry on
	// another transport, say). Socket 6 is untouched.
	sess.SetInterests(
		session.Interest{Socket: 6, Readable: true},
		session.Interest{Socket: 7, Readable: true},
	)
	require.True(t, group.FD(5).FireRead())

	require.ElementsMatch(t, []int{6, 7}, driver.TrackedSockets())
	assert.True(t, group.FD(5).IsClosed(), "descriptor no longer reported must be shut down")
	assert.Same(t, node6, driver.NodeIdentity(6), "descriptor still in use must reuse its node")
	assert.EqualValues(t, 2, driver.NodeRefs(6))
	require.True(t, group.FD(7).ReadArmed())

	require.NoError(t, driver.Close())
	assert.True(t, group.FD(6).IsClosed())
	assert.True(t, group.FD(7).IsClosed())
}

func TestDriverUnchangedInterestDoesNotRearm(t *testing.T) {
	t.Parallel()

	driver, sess, group, _ := newTestDriver(t)
	sess.SetInterests(
		session.Interest{Socket: 5, Readable: true},
		session.Interest{Socket: 6, Readable: true},
	)
	driver.Start()
	require.EqualValues(t, 2, driver.NodeRefs(5))

	// Firing socket 6 triggers another reconciliation round against an
	// unchanged interest set. Socket 5's registration is still armed, so
	// the round must leave its refcount alone; a duplicate registration
	// would panic inside the fake.
	require.True(t, group.FD(6).FireRead())

	assert.EqualValues(t, 2, driver.NodeRefs(5))
	assert.EqualValues(t, 2, driver.NodeRefs(6), "fired direction must be re-armed")
	require.True(t, group.FD(6).ReadArmed())

	sess.SetInterests()
	group.FD(5).FireRead()
	group.FD(6).FireRead()
	require.NoError(t, driver.Close())
}

func TestDriverIdleAndRestart(t *testing.T) {
	t.Parallel()

	driver, sess, group, _ := newTestDriver(t)
	driver.Start()
	assert.False(t, driver.IsActive(), "empty interest set must leave the driver idle")
	assert.Empty(t, driver.TrackedSockets())

	sess.SetInterests(session.Interest{Socket: 5, Readable: true})
	driver.Start()
	assert.True(t, driver.IsActive())
	require.ElementsMatch(t, []int{5}, driver.TrackedSockets())

	// Start while already working is a no-op.
	driver.Start()
	assert.EqualValues(t, 2, driver.NodeRefs(5))

	sess.SetInterests()
	require.True(t, group.FD(5).FireRead())
	assert.False(t, driver.IsActive())

	require.NoError(t, driver.Close())
}

func TestDriverCloseCancelsInFlightRegistration(t *testing.T) {
	t.Parallel()

	driver, sess, group, lib := newTestDriver(t)
	sess.SetInterests(session.Interest{Socket: 7, Readable: true})
	driver.Start()
	require.True(t, group.FD(7).ReadArmed())

	// Close shuts the descriptor down; the armed read fires with an error
	// outcome, cancels the session, and the node drains to zero before
	// teardown completes.
	require.NoError(t, driver.Close())

	assert.GreaterOrEqual(t, sess.Cancels(), 1)
	assert.Empty(t, sess.Processed(), "an error outcome must not drive processing")
	assert.Empty(t, driver.TrackedSockets())
	assert.True(t, group.FD(7).IsClosed())
	assert.True(t, sess.Closed())
	assert.Equal(t, 1, lib.Cleanups())
}

func TestDriverDirectionChangeReusesNode(t *testing.T) {
	t.Parallel()

	driver, sess, group, _ := newTestDriver(t)
	sess.SetInterests(session.Interest{Socket: 5, Writable: true})
	driver.Start()
	node5 := driver.NodeIdentity(5)

	// The write flushed the query; now the library waits for the answer.
	sess.SetInterests(session.Interest{Socket: 5, Readable: true})
	require.True(t, group.FD(5).FireWrite())

	assert.Same(t, node5, driver.NodeIdentity(5))
	readArmed, writeArmed := driver.NodeArmed(5)
	assert.True(t, readArmed)
	assert.False(t, writeArmed)
	assert.EqualValues(t, 2, driver.NodeRefs(5))

	sess.SetInterests()
	require.True(t, group.FD(5).FireRead())
	require.NoError(t, driver.Close())
}

func TestNewDriverLibraryInitError(t *testing.T) {
	t.Parallel()

	sess := drivertesting.NewFakeSession()
	lib := drivertesting.NewFakeLibrary(sess)
	lib.InitErr = errors.New("no usable sockets")
	group := drivertesting.NewFakeGroup()

	driver, err := dnspoll.NewDriver(group, lib)
	require.Nil(t, driver)
	var initErr *dnspoll.LibraryInitError
	require.ErrorAs(t, err, &initErr)
	require.ErrorContains(t, err, "no usable sockets")
	assert.Equal(t, 0, lib.Inits())

	// The failed construction retained no process-wide reference: a later
	// attempt initializes from scratch.
	lib.InitErr = nil
	driver, err = dnspoll.NewDriver(group, lib)
	require.NoError(t, err)
	assert.Equal(t, 1, lib.Inits())
	require.NoError(t, driver.Close())
	assert.Equal(t, 1, lib.Cleanups())
}

func TestNewDriverSessionInitError(t *testing.T) {
	t.Parallel()

	lib := drivertesting.NewFakeLibrary(nil)
	lib.SessionErr = errors.New("channel refused")

	driver, err := dnspoll.NewDriver(drivertesting.NewFakeGroup(), lib)
	require.Nil(t, driver)
	var sessionErr *dnspoll.SessionInitError
	require.ErrorAs(t, err, &sessionErr)
	require.ErrorContains(t, err, "channel refused")
	// The process-wide reference taken for this driver was released.
	assert.Equal(t, 1, lib.Inits())
	assert.Equal(t, 1, lib.Cleanups())
}

func TestDriverSharedLibraryRefcount(t *testing.T) {
	t.Parallel()

	lib := drivertesting.NewFakeLibrary(nil)
	group := drivertesting.NewFakeGroup()

	first, err := dnspoll.NewDriver(group, lib)
	require.NoError(t, err)
	second, err := dnspoll.NewDriver(group, lib)
	require.NoError(t, err)
	assert.Equal(t, 1, lib.Inits(), "process-wide init must run once")

	require.NoError(t, first.Close())
	assert.Equal(t, 0, lib.Cleanups())
	require.NoError(t, second.Close())
	assert.Equal(t, 1, lib.Cleanups())
}

func TestDriverCloseTwicePanics(t *testing.T) {
	t.Parallel()

	driver, _, _, _ := newTestDriver(t)
	require.NoError(t, driver.Close())
	require.Panics(t, func() {
		_ = driver.Close()
	})
}

func TestDriverRegistrationFailureSkipsSocket(t *testing.T) {
	t.Parallel()

	driver, sess, group, _ := newTestDriver(t)
	group.RegisterErr = errors.New("group full")
	sess.SetInterests(session.Interest{Socket: 5, Readable: true})
	driver.Start()
	assert.Empty(t, driver.TrackedSockets())
	assert.False(t, driver.IsActive())

	// Once the group recovers, the next start picks the socket up.
	group.RegisterErr = nil
	driver.Start()
	require.ElementsMatch(t, []int{5}, driver.TrackedSockets())

	sess.SetInterests()
	require.True(t, group.FD(5).FireRead())
	require.NoError(t, driver.Close())
}

func TestDriverStallTimeoutCancelsSession(t *testing.T) {
	t.Parallel()

	const timeout = 5 * time.Second
	clock := clocktest.NewFakeClock()
	driver, sess, group, _ := newTestDriver(t, dnspoll.WithStallTimeout(timeout))
	driver.SetClock(clock)

	sess.SetInterests(session.Interest{Socket: 5, Readable: true})
	driver.Start()
	require.True(t, driver.IsActive())

	clock.Advance(timeout)

	// The timeout shuts the descriptor down; the armed read fires with an
	// error outcome on the poller's dispatch goroutine, cancels the
	// session, and the loop drains to idle.
	require.Eventually(t, func() bool {
		return !driver.IsActive()
	}, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, sess.Cancels(), 1)
	assert.Empty(t, driver.TrackedSockets())
	assert.True(t, group.FD(5).IsClosed())

	require.NoError(t, driver.Close())
}

func TestDriverStallTimerStopsWhenIdle(t *testing.T) {
	t.Parallel()

	const timeout = 5 * time.Second
	clock := clocktest.NewFakeClock()
	driver, sess, group, _ := newTestDriver(t, dnspoll.WithStallTimeout(timeout))
	driver.SetClock(clock)

	sess.SetInterests(session.Interest{Socket: 5, Readable: true})
	driver.Start()
	sess.SetInterests()
	require.True(t, group.FD(5).FireRead())
	require.False(t, driver.IsActive())

	// The work finished before the deadline; advancing past it must not
	// cancel anything.
	clock.Advance(2 * timeout)
	assert.Equal(t, 0, sess.Cancels())

	require.NoError(t, driver.Close())
}

func TestDriverConcurrentCallbacks(t *testing.T) {
	t.Parallel()

	driver, sess, group, _ := newTestDriver(t)
	sockets := []int{10, 11, 12, 13}
	interests := make([]session.Interest, len(sockets))
	for i, socket := range sockets {
		interests[i] = session.Interest{Socket: socket, Readable: true, Writable: true}
	}
	sess.SetInterests(interests...)
	driver.Start()

	// Hammer the driver with readiness events from parallel dispatch
	// goroutines. Every fire triggers processing plus a reconciliation
	// that re-arms the direction; the fakes panic on double arming,
	// double close, or a registration against a freed descriptor.
	grp, _ := errgroup.WithContext(context.Background())
	for _, socket := range sockets {
		fd := group.FD(socket)
		grp.Go(func() error {
			for i := 0; i < 50; i++ {
				fd.FireRead()
			}
			return nil
		})
		grp.Go(func() error {
			for i := 0; i < 50; i++ {
				fd.FireWrite()
			}
			return nil
		})
	}
	require.NoError(t, grp.Wait())

	require.ElementsMatch(t, sockets, driver.TrackedSockets())
	for _, socket := range sockets {
		assert.EqualValues(t, 3, driver.NodeRefs(socket))
	}

	// Drain: the library is done with everything.
	sess.SetInterests()
	require.True(t, group.FD(10).FireRead())
	require.Eventually(t, func() bool {
		return !driver.IsActive()
	}, time.Second, time.Millisecond)
	for _, socket := range sockets {
		assert.True(t, group.FD(socket).IsClosed())
	}

	require.NoError(t, driver.Close())
}
