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
	"maps"
	"slices"
)

// State is the state of an organization, derived from its events. A state is
// never modified once created; Evolve returns a new one.
type State struct {
	// TakenUsernames is the set of currently registered usernames.
	TakenUsernames map[string]struct{}
	// Generation is the number of events applied to the state.
	Generation uint64
}

// NewState returns the state of an organization without events.
func NewState() State {
	return State{
		TakenUsernames: map[string]struct{}{},
	}
}

// Has returns true if the username is registered.
func (s State) Has(username string) bool {
	_, ok := s.TakenUsernames[username]

	return ok
}

// Usernames returns the registered usernames in sorted order.
func (s State) Usernames() []string {
	return slices.Sorted(maps.Keys(s.TakenUsernames))
}

// Clone returns a copy of the state that shares no memory with it.
func (s State) Clone() State {
	taken := make(map[string]struct{}, len(s.TakenUsernames)+1)
	maps.Copy(taken, s.TakenUsernames)

	return State{
		TakenUsernames: taken,
		Generation:     s.Generation,
	}
}
