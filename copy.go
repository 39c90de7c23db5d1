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

import (
	"fmt"
	"maps"

	"github.com/jinzhu/copier"
)

// CopyEvent returns a copy of the event that shares no data with it. The data
// is deep copied into a new value from the registered factory, the metadata
// map is copied one level deep.
func CopyEvent(event Event) (Event, error) {
	var data EventData

	if event.Data() != nil {
		var err error
		if data, err = CreateEventData(event.EventType()); err != nil {
			return nil, fmt.Errorf("could not create event data: %w", err)
		}

		if err := copier.CopyWithOption(data, event.Data(), copier.Option{DeepCopy: true}); err != nil {
			return nil, fmt.Errorf("could not copy event data: %w", err)
		}
	}

	return NewEvent(event.EventType(), data, event.Timestamp(),
		ForAggregate(event.AggregateType(), event.AggregateID(), event.Generation()),
		FromSource(event.DomainVersion(), event.Source()),
		WithMetadata(maps.Clone(event.Metadata())),
	), nil
}
