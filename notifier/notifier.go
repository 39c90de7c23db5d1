// Copyright (c) 2026 - The Eventcore authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package notifier contains the subscribing eventcore.Notifier implementations
// in its subpackages and their shared acceptance test.
package notifier

import (
	"context"

	ec "github.com/kanello/eventcore"
)

// Bus is a notifier that handlers can subscribe to.
type Bus interface {
	ec.Notifier

	// AddHandler subscribes a handler to the matching published events. Handlers
	// with the same type share the deliveries, across buses of the same app.
	AddHandler(context.Context, ec.EventMatcher, ec.EventHandler) error

	// Errors returns the asynchronous handling errors.
	Errors() <-chan error
}
