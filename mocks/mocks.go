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

// Package mocks contains mocked implementations of the eventcore interfaces,
// useful in testing.
package mocks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	ec "github.com/kanello/eventcore"
)

func init() {
	ec.RegisterEventData(EventType, func() ec.EventData { return &EventData{} })
	ec.RegisterEventData(EventOtherType, func() ec.EventData { return &EventData{} })
}

const (
	// AggregateType is the type for Behavior.
	AggregateType ec.AggregateType = "Aggregate"

	// EventType is a the type for Event.
	EventType ec.EventType = "Event"
	// EventOtherType is the type for EventOther.
	EventOtherType ec.EventType = "EventOther"

	// CommandType is the type for Command.
	CommandType ec.CommandType = "Command"
	// CommandOtherType is the type for CommandOther.
	CommandOtherType ec.CommandType = "CommandOther"
)

// RejectionCode is the rejection code used by Behavior.
const RejectionCode = "REJECTED"

// EventData is a mocked event data, useful in testing.
type EventData struct {
	Content string `json:"content" bson:"content"`
}

// Command is a mocked eventcore.Command, useful in testing. It results in
// one event per content item.
type Command struct {
	ID      uuid.UUID
	Content string
	// Extra content that results in additional events.
	Extra []string `ec:"optional"`
}

func (t Command) AggregateID() uuid.UUID          { return t.ID }
func (t Command) AggregateType() ec.AggregateType { return AggregateType }
func (t Command) CommandType() ec.CommandType     { return CommandType }

// CommandOther is a mocked eventcore.Command, useful in testing. It is
// always rejected by Behavior.
type CommandOther struct {
	ID      uuid.UUID
	Content string
}

func (t CommandOther) AggregateID() uuid.UUID          { return t.ID }
func (t CommandOther) AggregateType() ec.AggregateType { return AggregateType }
func (t CommandOther) CommandType() ec.CommandType     { return CommandOtherType }

// State is the state of Behavior.
type State struct {
	Contents   []string
	Generation uint64
}

// Clone returns a copy of the state.
func (s State) Clone() State {
	return State{
		Contents:   append([]string(nil), s.Contents...),
		Generation: s.Generation,
	}
}

// Behavior is a mocked eventcore.Behavior, useful in testing.
type Behavior struct {
	// Used to simulate errors in Decide.
	Err error
	// Delay is slept in Decide, to widen races in tests.
	Delay time.Duration

	mu        sync.Mutex
	decisions int
}

var _ = ec.Behavior[State](&Behavior{})

// AggregateType implements the AggregateType method of the eventcore.Behavior interface.
func (b *Behavior) AggregateType() ec.AggregateType { return AggregateType }

// InitialState implements the InitialState method of the eventcore.Behavior interface.
func (b *Behavior) InitialState() State { return State{} }

// Generation implements the Generation method of the eventcore.Behavior interface.
func (b *Behavior) Generation(s State) uint64 { return s.Generation }

// Decide implements the Decide method of the eventcore.Behavior interface.
func (b *Behavior) Decide(s State, cmd ec.Command, now time.Time) ([]ec.Event, error) {
	b.mu.Lock()
	b.decisions++
	b.mu.Unlock()

	if b.Delay > 0 {
		time.Sleep(b.Delay)
	}

	if b.Err != nil {
		return nil, b.Err
	}

	switch cmd := cmd.(type) {
	case Command:
		var events []ec.Event
		for i, c := range append([]string{cmd.Content}, cmd.Extra...) {
			events = append(events, ec.NewEvent(EventType, &EventData{c}, now,
				ec.ForAggregate(AggregateType, cmd.ID, s.Generation+uint64(i)+1)))
		}

		return events, nil
	case CommandOther:
		return nil, ec.Reject(RejectionCode, "other commands are rejected")
	}

	return nil, fmt.Errorf("%w: %s", ec.ErrUnknownCommand, cmd.CommandType())
}

// Evolve implements the Evolve method of the eventcore.Behavior interface.
func (b *Behavior) Evolve(s State, event ec.Event) State {
	next := s.Clone()
	next.Generation++

	if data, ok := event.Data().(*EventData); ok {
		next.Contents = append(next.Contents, data.Content)
	}

	return next
}

// Decisions returns the number of calls to Decide.
func (b *Behavior) Decisions() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.decisions
}

// CommandHandler is a mocked eventcore.CommandHandler, useful in testing.
type CommandHandler struct {
	Commands []ec.Command
	Context  context.Context
	// Events returned for every command.
	Events []ec.Event
	// Used to simulate errors when handling.
	Err error
}

// HandleCommand implements the HandleCommand method of the eventcore.CommandHandler interface.
func (t *CommandHandler) HandleCommand(ctx context.Context, cmd ec.Command) ([]ec.Event, error) {
	if t.Err != nil {
		return nil, t.Err
	}

	t.Commands = append(t.Commands, cmd)
	t.Context = ctx

	return t.Events, nil
}

// EventHandler is a mocked eventcore.EventHandler, useful in testing.
type EventHandler struct {
	Type    ec.EventHandlerType
	Events  []ec.Event
	Context context.Context
	Recv    chan ec.Event
	// Used to simulate errors when handling.
	Err error

	mu sync.Mutex
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(handlerType ec.EventHandlerType) *EventHandler {
	return &EventHandler{
		Type:    handlerType,
		Events:  make([]ec.Event, 0),
		Context: context.Background(),
		Recv:    make(chan ec.Event, 100),
	}
}

// HandlerType implements the HandlerType method of the eventcore.EventHandler interface.
func (m *EventHandler) HandlerType() ec.EventHandlerType {
	return m.Type
}

// HandleEvent implements the HandleEvent method of the eventcore.EventHandler interface.
func (m *EventHandler) HandleEvent(ctx context.Context, event ec.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	m.Events = append(m.Events, event)
	m.Context = ctx

	select {
	case m.Recv <- event:
	default:
	}

	return nil
}

// Handled returns a copy of the handled events.
func (m *EventHandler) Handled() []ec.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]ec.Event(nil), m.Events...)
}

// WaitForEvent is a helper to wait until an event has been handled, it timeouts
// after 1 second.
func (m *EventHandler) WaitForEvent(t *testing.T) ec.Event {
	t.Helper()

	select {
	case e := <-m.Recv:
		return e
	case <-time.After(time.Second):
		t.Error("did not receive event in time")
	}

	return nil
}

// EventLog is a mocked eventcore.EventLog, useful in testing. It keeps the
// events in memory and checks generations like a real log.
type EventLog struct {
	Context context.Context
	// Used to simulate errors when appending.
	AppendErr error
	// Used to simulate errors when loading.
	LoadErr error
	// Appends counts the successful appends.
	Appends int
	// Loads counts the calls to Load.
	Loads int

	mu     sync.Mutex
	events map[uuid.UUID][]ec.Event
}

// Append implements the Append method of the eventcore.EventLog interface.
func (m *EventLog) Append(ctx context.Context, id uuid.UUID, expectedGeneration uint64, events []ec.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Context = ctx

	if m.AppendErr != nil {
		return m.AppendErr
	}

	if err := ec.CheckAppend(id, expectedGeneration, events); err != nil {
		return err
	}

	if m.events == nil {
		m.events = map[uuid.UUID][]ec.Event{}
	}

	if current := uint64(len(m.events[id])); current != expectedGeneration {
		return &ec.EventLogError{
			Err:         ec.ErrConflict,
			Op:          ec.EventLogOpAppend,
			AggregateID: id,
			Generation:  expectedGeneration,
			Events:      events,
		}
	}

	m.events[id] = append(m.events[id], events...)
	m.Appends++

	return nil
}

// Load implements the Load method of the eventcore.EventLog interface.
func (m *EventLog) Load(ctx context.Context, id uuid.UUID) ([]ec.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Context = ctx
	m.Loads++

	if m.LoadErr != nil {
		return nil, m.LoadErr
	}

	return append([]ec.Event{}, m.events[id]...), nil
}

// Close implements the Close method of the eventcore.EventLog interface.
func (m *EventLog) Close() error {
	return nil
}

// Counts returns the number of appends and loads.
func (m *EventLog) Counts() (appends, loads int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.Appends, m.Loads
}

// SetErrors sets the simulated errors.
func (m *EventLog) SetErrors(appendErr, loadErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendErr = appendErr
	m.LoadErr = loadErr
}

// Notifier is a mocked eventcore.Notifier, useful in testing.
type Notifier struct {
	Events  []ec.Event
	Context context.Context
	Recv    chan []ec.Event
	// Used to simulate errors when publishing.
	Err error
	// Delay is slept before publishing, honoring the context.
	Delay time.Duration

	mu     sync.Mutex
	closed bool
}

// NewNotifier creates a new Notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		Recv: make(chan []ec.Event, 100),
	}
}

// Publish implements the Publish method of the eventcore.Notifier interface.
func (m *Notifier) Publish(ctx context.Context, id uuid.UUID, events []ec.Event) error {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Context = ctx

	if m.Err != nil {
		return m.Err
	}

	m.Events = append(m.Events, events...)

	select {
	case m.Recv <- events:
	default:
	}

	return nil
}

// Close implements the Close method of the eventcore.Notifier interface.
func (m *Notifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}

// Published returns a copy of the published events.
func (m *Notifier) Published() []ec.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]ec.Event(nil), m.Events...)
}

// Closed returns true if the notifier has been closed.
func (m *Notifier) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

// WaitForEvents is a helper to wait until events have been published, it
// timeouts after 1 second.
func (m *Notifier) WaitForEvents(t *testing.T) []ec.Event {
	t.Helper()

	select {
	case events := <-m.Recv:
		return events
	case <-time.After(time.Second):
		t.Error("did not receive events in time")
	}

	return nil
}
