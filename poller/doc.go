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

// Package poller defines the boundary between the dnspoll driver and the
// surrounding runtime's event loop. The runtime owns descriptor
// registration, edge-triggered readiness detection, and callback dispatch;
// the driver only needs to wrap raw descriptors, arm one-shot readiness
// notifications on them, and shut them down.
//
// The dnspoll module ships no poller implementation: how readiness is
// detected (epoll, kqueue, IOCP, a test harness) is the runtime's business.
// [github.com/dnspoll/dnspoll/internal/drivertesting] provides a fake for
// tests.
package poller
