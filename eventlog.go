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
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EventLog is an append-only, per aggregate ordered log of committed events.
type EventLog interface {
	// Append appends the events to the log of an aggregate, all or none of
	// them. The events must be for consecutive generations following
	// expectedGeneration. Returns an error wrapping ErrConflict if the
	// recorded generation of the aggregate is not expectedGeneration.
	Append(ctx context.Context, id uuid.UUID, expectedGeneration uint64, events []Event) error

	// Load loads all events for the aggregate in generation order. An
	// aggregate without events results in an empty slice.
	Load(ctx context.Context, id uuid.UUID) ([]Event, error)

	// Close closes the log.
	Close() error
}

var (
	// ErrConflict is when the recorded generation of an aggregate did not
	// match the expected generation when appending.
	ErrConflict = errors.New("generation conflict")
	// ErrMissingEvents is when there is no events to append.
	ErrMissingEvents = errors.New("missing events")
	// ErrNilEvent is when a batch to append holds a nil event.
	ErrNilEvent = errors.New("nil event")
	// ErrMismatchedEventAggregateIDs is when events are for another aggregate.
	ErrMismatchedEventAggregateIDs = errors.New("mismatched event aggregate IDs")
	// ErrMismatchedEventAggregateTypes is when events are for different
	// aggregate types.
	ErrMismatchedEventAggregateTypes = errors.New("mismatched event aggregate types")
	// ErrIncorrectEventGeneration is when an event is for another generation
	// of the aggregate than the one it would be appended at.
	ErrIncorrectEventGeneration = errors.New("mismatching event generation")
	// ErrEventLogClosed is when the log is used after being closed.
	ErrEventLogClosed = errors.New("event log closed")
)

// EventLog operations.
const (
	EventLogOpLoad   = "load"
	EventLogOpAppend = "append"
)

// EventLogError is an error in the event log.
type EventLogError struct {
	// Err is the error.
	Err error
	// BaseErr is an optional underlying error, for example from the DB driver.
	BaseErr error
	// Op is the operation for the error.
	Op string
	// AggregateID of related operation.
	AggregateID uuid.UUID
	// Generation the operation was expecting.
	Generation uint64
	// Events of the related operation.
	Events []Event
}

// Error implements the Error method of the errors.Error interface.
func (e *EventLogError) Error() string {
	str := "event log: "

	if e.Op != "" {
		str += e.Op + ": "
	}

	if e.Err != nil {
		str += e.Err.Error()
	} else {
		str += "unknown error"
	}

	if e.BaseErr != nil {
		str += ": " + e.BaseErr.Error()
	}

	if e.AggregateID != uuid.Nil {
		str += fmt.Sprintf(", %s (g%d)", e.AggregateID, e.Generation)
	}

	if len(e.Events) > 0 {
		var es []string
		for _, ev := range e.Events {
			if ev != nil {
				es = append(es, ev.String())
			} else {
				es = append(es, "nil event")
			}
		}

		str += fmt.Sprintf(" [%v]", es)
	}

	return str
}

// Unwrap implements the errors.Unwrap method.
func (e *EventLogError) Unwrap() error {
	return e.Err
}

// CheckAppend validates a batch of events for appending to the log of an
// aggregate at an expected generation. Log implementations use it before
// touching their storage.
func CheckAppend(id uuid.UUID, expectedGeneration uint64, events []Event) error {
	if len(events) == 0 {
		return &EventLogError{
			Err:         ErrMissingEvents,
			Op:          EventLogOpAppend,
			AggregateID: id,
			Generation:  expectedGeneration,
		}
	}

	for _, e := range events {
		if e == nil {
			return &EventLogError{
				Err:         ErrNilEvent,
				Op:          EventLogOpAppend,
				AggregateID: id,
				Generation:  expectedGeneration,
				Events:      events,
			}
		}
	}

	at := events[0].AggregateType()

	for i, e := range events {
		// Only accept events belonging to the same aggregate.
		if e.AggregateID() != id {
			return &EventLogError{
				Err:         ErrMismatchedEventAggregateIDs,
				Op:          EventLogOpAppend,
				AggregateID: id,
				Generation:  expectedGeneration,
				Events:      events,
			}
		}

		if e.AggregateType() != at {
			return &EventLogError{
				Err:         ErrMismatchedEventAggregateTypes,
				Op:          EventLogOpAppend,
				AggregateID: id,
				Generation:  expectedGeneration,
				Events:      events,
			}
		}

		// Only accept events that apply to the correct generation.
		if e.Generation() != expectedGeneration+uint64(i)+1 {
			return &EventLogError{
				Err:         ErrIncorrectEventGeneration,
				Op:          EventLogOpAppend,
				AggregateID: id,
				Generation:  expectedGeneration,
				Events:      events,
			}
		}
	}

	return nil
}
