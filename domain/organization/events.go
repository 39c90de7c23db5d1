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

package organization

import (
	ec "github.com/kanello/eventcore"
)

const (
	// UserRegisteredEvent is the event after a username has been registered.
	UserRegisteredEvent = ec.EventType("organization:user_registered")
	// UserDeletedEvent is the event after a username has been freed.
	UserDeletedEvent = ec.EventType("organization:user_deleted")
)

func init() {
	ec.RegisterEventData(UserRegisteredEvent, func() ec.EventData {
		return &UserRegisteredData{}
	})
	ec.RegisterEventData(UserDeletedEvent, func() ec.EventData {
		return &UserDeletedData{}
	})
}

// UserRegisteredData is the event data for the UserRegistered event.
type UserRegisteredData struct {
	Username string `json:"username" bson:"username"`
	Email    string `json:"email"    bson:"email"`
}

// UserDeletedData is the event data for the UserDeleted event.
type UserDeletedData struct {
	Username string `json:"username" bson:"username"`
}
