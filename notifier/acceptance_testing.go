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

package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/mocks"
)

// AcceptanceTest is the acceptance test that all implementations of Bus
// should pass. It should manually be called from a test case in each
// implementation:
//
//	func TestNotifier(t *testing.T) {
//	    bus1 := NewNotifier()
//	    bus2 := NewNotifier()
//	    notifier.AcceptanceTest(t, bus1, bus2, time.Second)
//	}
func AcceptanceTest(t *testing.T, bus1, bus2 Bus, timeout time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bus1.AddHandler(ctx, nil, mocks.NewEventHandler("no-matcher")); !errors.Is(err, ec.ErrMissingMatcher) {
		t.Error("there should be a missing matcher error:", err)
	}

	if err := bus1.AddHandler(ctx, ec.MatchAny(), nil); !errors.Is(err, ec.ErrMissingHandler) {
		t.Error("there should be a missing handler error:", err)
	}

	if err := bus1.AddHandler(ctx, ec.MatchAny(), mocks.NewEventHandler("multi")); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := bus1.AddHandler(ctx, ec.MatchAny(), mocks.NewEventHandler("multi")); !errors.Is(err, ec.ErrHandlerAlreadyAdded) {
		t.Error("there should be a handler already added error:", err)
	}

	// Without handler.
	id := uuid.MustParse("c1138e5f-f6fb-4dd0-8e79-255c6c8d3756")
	timestamp := time.Date(2009, time.November, 10, 23, 0, 0, 0, time.UTC)
	event1 := ec.NewEvent(mocks.EventType, &mocks.EventData{Content: "event1"}, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 1))

	if err := bus1.Publish(ctx, id, []ec.Event{event1}); err != nil {
		t.Error("there should be no error:", err)
	}

	// Handlers with the same type share the deliveries.
	handlerBus1 := mocks.NewEventHandler("handler")
	handlerBus2 := mocks.NewEventHandler("handler")
	anotherHandlerBus2 := mocks.NewEventHandler("another_handler")
	otherEventsBus1 := mocks.NewEventHandler("other_events")

	for _, add := range []struct {
		bus Bus
		m   ec.EventMatcher
		h   ec.EventHandler
	}{
		{bus1, ec.MatchAny(), handlerBus1},
		{bus2, ec.MatchAny(), handlerBus2},
		{bus2, ec.MatchAny(), anotherHandlerBus2},
		{bus1, ec.MatchEvents(mocks.EventOtherType), otherEventsBus1},
	} {
		if err := add.bus.AddHandler(ctx, add.m, add.h); err != nil {
			t.Fatal("there should be no error:", err)
		}
	}

	event2 := ec.NewEvent(mocks.EventType, &mocks.EventData{Content: "event2"}, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 2))
	if err := bus1.Publish(ctx, id, []ec.Event{event1, event2}); err != nil {
		t.Error("there should be no error:", err)
	}

	// Check for correct events in handler 1 or 2, in any order as the
	// deliveries may be split.
	var received []ec.Event

	for len(received) < 2 {
		select {
		case e := <-handlerBus1.Recv:
			received = append(received, e)
		case e := <-handlerBus2.Recv:
			received = append(received, e)
		case <-time.After(timeout):
			t.Fatal("did not receive events in time:", received)
		}
	}

	if received[0].Generation() > received[1].Generation() {
		received[0], received[1] = received[1], received[0]
	}

	for i, expected := range []ec.Event{event1, event2} {
		if err := ec.CompareEvents(received[i], expected); err != nil {
			t.Error("the event was incorrect:", err)
		}
	}

	if n := len(handlerBus1.Handled()) + len(handlerBus2.Handled()); n != 2 {
		t.Error("the events should be delivered once per handler type:", n)
	}

	// Check the other handler, which gets every event in order.
	for _, expected := range []ec.Event{event1, event2} {
		select {
		case e := <-anotherHandlerBus2.Recv:
			if err := ec.CompareEvents(e, expected); err != nil {
				t.Error("the event was incorrect:", err)
			}
		case <-time.After(timeout):
			t.Fatal("did not receive event in time")
		}
	}

	// Non matching.
	if events := otherEventsBus1.Handled(); len(events) != 0 {
		t.Error("there should be no handled events:", events)
	}

	// Async errors from handlers.
	handlerErr := errors.New("handler error")
	errorHandler := mocks.NewEventHandler("error_handler")
	errorHandler.Err = handlerErr

	if err := bus1.AddHandler(ctx, ec.MatchAny(), errorHandler); err != nil {
		t.Fatal("there should be no error:", err)
	}

	event3 := ec.NewEvent(mocks.EventType, &mocks.EventData{Content: "event3"}, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 3))
	if err := bus1.Publish(ctx, id, []ec.Event{event3}); err != nil {
		t.Error("there should be no error:", err)
	}

	for {
		select {
		case <-time.After(timeout):
			t.Fatal("there should be an async error")
		case err := <-bus1.Errors():
			var handlerError *ec.HandlerError
			if !errors.As(err, &handlerError) || handlerError.HandlerType != "error_handler" {
				// Errors from other handlers are not part of this check.
				continue
			}

			if !errors.Is(err, handlerErr) {
				t.Error("the handler error should be wrapped:", err)
			}

			if handlerError.Event == nil || handlerError.Event.Generation() != 3 {
				t.Error("the error should carry the event:", handlerError.Event)
			}

			return
		}
	}
}
