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

// Package organization is the organization aggregate, which keeps track of
// the usernames registered in an organization.
package organization

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	ec "github.com/kanello/eventcore"
)

// AggregateType is the aggregate type for organizations.
const AggregateType = ec.AggregateType("organization")

// Defaults for the event source tags.
const (
	DefaultDomainVersion = "1.0"
	DefaultSource        = "events://kanello.de/organization"
)

// Rejection codes.
const (
	RejectionUsernameEmpty    = "USERNAME_EMPTY"
	RejectionUsernameTaken    = "USERNAME_TAKEN"
	RejectionUsernameNotFound = "USERNAME_NOT_FOUND"
)

// Config is the configuration of the behavior, tagged on every created event.
type Config struct {
	// DomainVersion is the version of the domain, defaults to DefaultDomainVersion.
	DomainVersion string
	// Source is the identifier of the event source, defaults to DefaultSource.
	Source string
}

// Behavior is the eventcore.Behavior of organizations.
type Behavior struct {
	domainVersion string
	source        string
}

var _ = ec.Behavior[State](&Behavior{})

// NewBehavior creates a Behavior, empty config fields use the defaults.
func NewBehavior(cfg Config) *Behavior {
	b := &Behavior{
		domainVersion: cfg.DomainVersion,
		source:        cfg.Source,
	}

	if b.domainVersion == "" {
		b.domainVersion = DefaultDomainVersion
	}

	if b.source == "" {
		b.source = DefaultSource
	}

	return b
}

// AggregateType implements the AggregateType method of the eventcore.Behavior interface.
func (b *Behavior) AggregateType() ec.AggregateType {
	return AggregateType
}

// InitialState implements the InitialState method of the eventcore.Behavior interface.
func (b *Behavior) InitialState() State {
	return NewState()
}

// Generation implements the Generation method of the eventcore.Behavior interface.
func (b *Behavior) Generation(s State) uint64 {
	return s.Generation
}

// Decide implements the Decide method of the eventcore.Behavior interface.
func (b *Behavior) Decide(s State, cmd ec.Command, now time.Time) ([]ec.Event, error) {
	switch cmd := cmd.(type) {
	case *RegisterUser:
		if strings.TrimSpace(cmd.Username) == "" {
			return nil, ec.Reject(RejectionUsernameEmpty, "username is required")
		}

		if s.Has(cmd.Username) {
			return nil, ec.Reject(RejectionUsernameTaken,
				fmt.Sprintf("username %q is taken", cmd.Username))
		}

		return []ec.Event{
			b.newEvent(s, cmd.ID, 0, UserRegisteredEvent, &UserRegisteredData{
				Username: cmd.Username,
				Email:    cmd.Email,
			}, now),
		}, nil

	case *DeleteUser:
		if strings.TrimSpace(cmd.Username) == "" {
			return nil, ec.Reject(RejectionUsernameEmpty, "username is required")
		}

		if !s.Has(cmd.Username) {
			return nil, ec.Reject(RejectionUsernameNotFound,
				fmt.Sprintf("username %q is not registered", cmd.Username))
		}

		return []ec.Event{
			b.newEvent(s, cmd.ID, 0, UserDeletedEvent, &UserDeletedData{
				Username: cmd.Username,
			}, now),
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ec.ErrUnknownCommand, cmd.CommandType())
}

// Evolve implements the Evolve method of the eventcore.Behavior interface.
func (b *Behavior) Evolve(s State, event ec.Event) State {
	next := s.Clone()
	next.Generation = s.Generation + 1

	switch event.EventType() {
	case UserRegisteredEvent:
		if data, ok := event.Data().(*UserRegisteredData); ok {
			next.TakenUsernames[data.Username] = struct{}{}
		}
	case UserDeletedEvent:
		if data, ok := event.Data().(*UserDeletedData); ok {
			delete(next.TakenUsernames, data.Username)
		}
	}

	return next
}

// newEvent creates the event at position i of a decision on the state.
func (b *Behavior) newEvent(s State, id uuid.UUID, i int, t ec.EventType, data ec.EventData, now time.Time) ec.Event {
	return ec.NewEvent(t, data, now,
		ec.ForAggregate(AggregateType, id, s.Generation+uint64(i)+1),
		ec.FromSource(b.domainVersion, b.source),
	)
}
