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

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	ec "github.com/kanello/eventcore"
)

// EventLog implements eventcore.EventLog as an in memory structure. Appended
// events are copied, later changes to their data are not seen by the log.
type EventLog struct {
	records map[uuid.UUID]*aggregateRecord
	mu      sync.RWMutex
	closed  bool
}

type aggregateRecord struct {
	generation uint64
	events     []ec.Event
}

// NewEventLog creates a new EventLog using memory as storage.
func NewEventLog() *EventLog {
	return &EventLog{
		records: map[uuid.UUID]*aggregateRecord{},
	}
}

// Append implements the Append method of the eventcore.EventLog interface.
func (l *EventLog) Append(ctx context.Context, id uuid.UUID, expectedGeneration uint64, events []ec.Event) error {
	if err := ec.CheckAppend(id, expectedGeneration, events); err != nil {
		return err
	}

	// Copy before locking, the copies are thrown away on conflicts.
	copies := make([]ec.Event, len(events))

	for i, e := range events {
		c, err := ec.CopyEvent(e)
		if err != nil {
			return &ec.EventLogError{
				Err:         fmt.Errorf("could not copy event: %w", err),
				Op:          ec.EventLogOpAppend,
				AggregateID: id,
				Generation:  expectedGeneration,
				Events:      events,
			}
		}

		copies[i] = c
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return &ec.EventLogError{
			Err:         ec.ErrEventLogClosed,
			Op:          ec.EventLogOpAppend,
			AggregateID: id,
			Generation:  expectedGeneration,
		}
	}

	r, ok := l.records[id]
	if !ok {
		r = &aggregateRecord{}
	}

	if r.generation != expectedGeneration {
		return &ec.EventLogError{
			Err:         ec.ErrConflict,
			BaseErr:     fmt.Errorf("recorded generation is %d", r.generation),
			Op:          ec.EventLogOpAppend,
			AggregateID: id,
			Generation:  expectedGeneration,
			Events:      events,
		}
	}

	r.events = append(r.events, copies...)
	r.generation += uint64(len(copies))
	l.records[id] = r

	return nil
}

// Load implements the Load method of the eventcore.EventLog interface.
func (l *EventLog) Load(ctx context.Context, id uuid.UUID) ([]ec.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, &ec.EventLogError{
			Err:         ec.ErrEventLogClosed,
			Op:          ec.EventLogOpLoad,
			AggregateID: id,
		}
	}

	r, ok := l.records[id]
	if !ok {
		return []ec.Event{}, nil
	}

	events := make([]ec.Event, 0, len(r.events))

	for _, event := range r.events {
		e, err := ec.CopyEvent(event)
		if err != nil {
			return nil, &ec.EventLogError{
				Err:         err,
				Op:          ec.EventLogOpLoad,
				AggregateID: id,
			}
		}

		events = append(events, e)
	}

	return events, nil
}

// Close implements the Close method of the eventcore.EventLog interface.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true

	return nil
}
