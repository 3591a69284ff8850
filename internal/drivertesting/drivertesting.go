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

// Package drivertesting provides fake implementations of the session and
// poller boundaries for testing the driver. The fakes record every call
// and panic on misuse, so a misbehaving driver fails tests loudly rather
// than silently.
package drivertesting

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dnspoll/dnspoll/poller"
	"github.com/dnspoll/dnspoll/session"
)

// ProcessCall records one invocation of FakeSession.Process.
type ProcessCall struct {
	Socket   int
	Readable bool
	Writable bool
}

// FakeSession is a scriptable implementation of session.Session. Tests set
// the interest set it reports with SetInterests; Cancel empties it, the
// way cancellation empties a real library's socket set.
type FakeSession struct {
	// OnProcess, if set, is invoked from Process after the call is
	// recorded. It should be set before the session is driven, to avoid
	// races. Tests use it to change the interest set in reaction to
	// processing, the way real query progress does.
	OnProcess func(socket int, readable, writable bool)

	mu        sync.Mutex
	interests []session.Interest
	processed []ProcessCall
	cancels   int
	closes    int
}

// NewFakeSession constructs a new FakeSession with an empty interest set.
func NewFakeSession() *FakeSession {
	return &FakeSession{}
}

// SetInterests replaces the interest set reported by Interests.
func (s *FakeSession) SetInterests(interests ...session.Interest) {
	if len(interests) > session.MaxInterest {
		panic(fmt.Sprintf("fake session given %d interests; the library cap is %d", len(interests), session.MaxInterest))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interests = interests
}

// Interests implements session.Session.
func (s *FakeSession) Interests() []session.Interest {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]session.Interest, len(s.interests))
	copy(snapshot, s.interests)
	return snapshot
}

// Process implements session.Session. It records the call and then invokes
// the OnProcess hook, if any.
func (s *FakeSession) Process(socket int, readable, writable bool) {
	s.mu.Lock()
	s.processed = append(s.processed, ProcessCall{Socket: socket, Readable: readable, Writable: writable})
	hook := s.OnProcess
	s.mu.Unlock()
	if hook != nil {
		hook(socket, readable, writable)
	}
}

// Cancel implements session.Session. It empties the interest set.
func (s *FakeSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	s.interests = nil
}

// Close implements session.Session.
func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes > 1 {
		panic("fake session closed twice")
	}
	return nil
}

// Processed returns a snapshot of all recorded Process calls.
func (s *FakeSession) Processed() []ProcessCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]ProcessCall, len(s.processed))
	copy(snapshot, s.processed)
	return snapshot
}

// Cancels returns how many times Cancel has been called.
func (s *FakeSession) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

// Closed reports whether Close has been called.
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes > 0
}

// FakeLibrary is an implementation of session.Library whose failure modes
// are scriptable. Its session, if not provided, is created on first use.
type FakeLibrary struct {
	// InitErr, if non-nil, is returned by Init. Set before use.
	InitErr error
	// SessionErr, if non-nil, is returned by NewSession. Set before use.
	SessionErr error

	mu       sync.Mutex
	session  *FakeSession
	inits    int
	cleanups int
}

// NewFakeLibrary constructs a FakeLibrary that hands out the given session.
// A nil session means NewSession creates a fresh FakeSession per call.
func NewFakeLibrary(sess *FakeSession) *FakeLibrary {
	return &FakeLibrary{session: sess}
}

// Init implements session.Library.
func (l *FakeLibrary) Init() error {
	if l.InitErr != nil {
		return l.InitErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inits++
	return nil
}

// Cleanup implements session.Library.
func (l *FakeLibrary) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanups++
	if l.cleanups > l.inits {
		panic("fake library cleaned up more times than initialized")
	}
}

// NewSession implements session.Library.
func (l *FakeLibrary) NewSession() (session.Session, error) {
	if l.SessionErr != nil {
		return nil, l.SessionErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return NewFakeSession(), nil
	}
	return l.session, nil
}

// Inits returns how many times Init has succeeded.
func (l *FakeLibrary) Inits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inits
}

// Cleanups returns how many times Cleanup has been called.
func (l *FakeLibrary) Cleanups() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cleanups
}

// FakeGroup is an implementation of poller.Group handing out FakeFDs.
type FakeGroup struct {
	// RegisterErr, if non-nil, makes every Register call fail. Set before
	// use, or between reconciliation rounds.
	RegisterErr error

	mu  sync.Mutex
	fds map[int]*FakeFD
}

// NewFakeGroup constructs a new FakeGroup.
func NewFakeGroup() *FakeGroup {
	return &FakeGroup{fds: map[int]*FakeFD{}}
}

// Register implements poller.Group.
func (g *FakeGroup) Register(fd int, name string) (poller.FD, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.RegisterErr != nil {
		return nil, g.RegisterErr
	}
	if existing, ok := g.fds[fd]; ok && !existing.Deregistered() {
		panic(fmt.Sprintf("descriptor %d registered twice", fd))
	}
	fake := &FakeFD{raw: fd, name: name}
	g.fds[fd] = fake
	return fake, nil
}

// Deregister implements poller.Group.
func (g *FakeGroup) Deregister(fd poller.FD) {
	fake, ok := fd.(*FakeFD)
	if !ok {
		panic("deregister of a descriptor this group did not create")
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.deregistered {
		panic(fmt.Sprintf("descriptor %d deregistered twice", fake.raw))
	}
	fake.deregistered = true
}

// FD returns the most recently registered FakeFD for the given raw
// descriptor, or nil if it was never registered.
func (g *FakeGroup) FD(raw int) *FakeFD {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fds[raw]
}

// ErrShutdown is the reason FakeFD.Shutdown records when called with nil.
var ErrShutdown = errors.New("descriptor shut down")

// FakeFD is an implementation of poller.FD whose readiness events are
// fired by the test. Shutdown dispatches pending callbacks on their own
// goroutines, honoring the poller.FD contract that callbacks never run
// synchronously inside Shutdown.
type FakeFD struct {
	raw  int
	name string

	mu           sync.Mutex
	readCB       func(error)
	writeCB      func(error)
	shutdown     bool
	reason       error
	closed       bool
	deregistered bool
}

// Raw implements poller.FD.
func (f *FakeFD) Raw() int {
	return f.raw
}

// Name returns the trace name the descriptor was registered with.
func (f *FakeFD) Name() string {
	return f.name
}

// NotifyOnRead implements poller.FD.
func (f *FakeFD) NotifyOnRead(callback func(error)) {
	f.notify(&f.readCB, callback)
}

// NotifyOnWrite implements poller.FD.
func (f *FakeFD) NotifyOnWrite(callback func(error)) {
	f.notify(&f.writeCB, callback)
}

func (f *FakeFD) notify(slot *func(error), callback func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		panic(fmt.Sprintf("notification armed on closed descriptor %d", f.raw))
	}
	if f.shutdown {
		reason := f.reason
		go callback(reason)
		return
	}
	if *slot != nil {
		panic(fmt.Sprintf("notification armed twice on descriptor %d", f.raw))
	}
	*slot = callback
}

// Shutdown implements poller.FD. Pending callbacks fire with the given
// reason on fresh goroutines; the first call's reason wins.
func (f *FakeFD) Shutdown(reason error) {
	if reason == nil {
		reason = ErrShutdown
	}
	f.mu.Lock()
	if f.shutdown {
		f.mu.Unlock()
		return
	}
	f.shutdown = true
	f.reason = reason
	readCB, writeCB := f.readCB, f.writeCB
	f.readCB, f.writeCB = nil, nil
	f.mu.Unlock()
	if readCB != nil {
		go readCB(reason)
	}
	if writeCB != nil {
		go writeCB(reason)
	}
}

// Close implements poller.FD.
func (f *FakeFD) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readCB != nil || f.writeCB != nil {
		panic(fmt.Sprintf("descriptor %d closed with a notification outstanding", f.raw))
	}
	if f.closed {
		panic(fmt.Sprintf("descriptor %d closed twice", f.raw))
	}
	if !f.deregistered {
		panic(fmt.Sprintf("descriptor %d closed while still in its group", f.raw))
	}
	f.closed = true
	return nil
}

// FireRead invokes the pending read callback, if any, with a nil error on
// the caller's goroutine, simulating the poller's dispatch of a readiness
// event. It reports whether a callback was pending.
func (f *FakeFD) FireRead() bool {
	return f.fire(&f.readCB)
}

// FireWrite is FireRead for the write direction.
func (f *FakeFD) FireWrite() bool {
	return f.fire(&f.writeCB)
}

func (f *FakeFD) fire(slot *func(error)) bool {
	f.mu.Lock()
	callback := *slot
	*slot = nil
	f.mu.Unlock()
	if callback == nil {
		return false
	}
	callback(nil)
	return true
}

// ReadArmed reports whether a read notification is outstanding.
func (f *FakeFD) ReadArmed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCB != nil
}

// WriteArmed reports whether a write notification is outstanding.
func (f *FakeFD) WriteArmed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCB != nil
}

// IsShutdown reports whether Shutdown has been called.
func (f *FakeFD) IsShutdown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdown
}

// IsClosed reports whether Close has been called.
func (f *FakeFD) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Deregistered reports whether the descriptor was removed from its group.
func (f *FakeFD) Deregistered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deregistered
}

var (
	_ session.Session = (*FakeSession)(nil)
	_ session.Library = (*FakeLibrary)(nil)
	_ poller.Group    = (*FakeGroup)(nil)
	_ poller.FD       = (*FakeFD)(nil)
)
