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
	"sync"

	"github.com/dnspoll/dnspoll/session"
)

// libraries reference-counts process-wide initialization per resolution
// library: Init runs on the first acquisition, Cleanup on the last
// release. A single lock serializes the init/teardown pair.
//
//nolint:gochecknoglobals
var libraries = struct {
	mu sync.Mutex
	// +checklocks:mu
	refs map[session.Library]int
}{refs: map[session.Library]int{}}

func acquireLibrary(lib session.Library) error {
	libraries.mu.Lock()
	defer libraries.mu.Unlock()
	if libraries.refs[lib] == 0 {
		if err := lib.Init(); err != nil {
			return err
		}
	}
	libraries.refs[lib]++
	return nil
}

func releaseLibrary(lib session.Library) {
	libraries.mu.Lock()
	defer libraries.mu.Unlock()
	refs := libraries.refs[lib]
	switch {
	case refs == 0:
		panic("dnspoll: release of a resolution library that was never acquired")
	case refs == 1:
		delete(libraries.refs, lib)
		lib.Cleanup()
	default:
		libraries.refs[lib] = refs - 1
	}
}
