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

package eventcore

import "context"

// EventCodec is a codec for marshaling and unmarshaling events to and from
// bytes, used by the notifier transports.
type EventCodec interface {
	// MarshalEvent marshals an event into bytes.
	MarshalEvent(context.Context, Event) ([]byte, error)
	// UnmarshalEvent unmarshals an event from bytes.
	UnmarshalEvent(context.Context, []byte) (Event, error)
}
