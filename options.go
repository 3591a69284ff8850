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
	"time"

	"go.uber.org/zap"
)

// DriverOption is an option for configuring a [Driver] at construction.
type DriverOption interface {
	apply(driver *Driver)
}

// WithLogger configures the driver to trace its descriptor bookkeeping to
// the given logger. The per-event trace (ref/unref, arming, readiness) is
// emitted at debug level. The default is a no-op logger.
func WithLogger(logger *zap.Logger) DriverOption {
	return driverOption(func(driver *Driver) {
		driver.logger = logger
	})
}

// WithStallTimeout bounds how long the driver may stay busy after a Start
// before its descriptors are shut down and the session's outstanding work
// is cancelled. The cancellation status reaches each query's completion
// callback through the library's own mechanism, exactly as an external
// shutdown would. Zero (the default) disables the timeout.
func WithStallTimeout(timeout time.Duration) DriverOption {
	return driverOption(func(driver *Driver) {
		driver.stallTimeout = timeout
	})
}

type driverOption func(driver *Driver)

func (o driverOption) apply(driver *Driver) {
	o(driver)
}
