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

// Package eventlog contains the shared acceptance test of the
// eventcore.EventLog implementations in its subpackages.
package eventlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/mocks"
)

// AcceptanceTest is the acceptance test that all implementations of EventLog
// should pass. It should manually be called from a test case in each
// implementation:
//
//	func TestEventLog(t *testing.T) {
//	    log := NewEventLog()
//	    eventlog.AcceptanceTest(t, context.Background(), log)
//	}
func AcceptanceTest(t *testing.T, ctx context.Context, log ec.EventLog) []ec.Event {
	savedEvents := []ec.Event{}
	logErr := &ec.EventLogError{}

	id := uuid.New()
	timestamp := time.Date(2009, time.November, 10, 23, 0, 0, 0, time.UTC)

	// Append no events.
	err := log.Append(ctx, id, 0, []ec.Event{})
	if !errors.As(err, &logErr) || !errors.Is(err, ec.ErrMissingEvents) {
		t.Error("there should be a missing events error:", err)
	}

	// Append a nil event.
	err = log.Append(ctx, id, 0, []ec.Event{nil})
	if !errors.As(err, &logErr) || !errors.Is(err, ec.ErrNilEvent) {
		t.Error("there should be a nil event error:", err)
	}

	// Load events for non-existing aggregate.
	events, err := log.Load(ctx, id)
	assert.NoError(t, err)
	assert.Empty(t, events)

	// Append event, generation 1.
	event1 := ec.NewEvent(mocks.EventType, &mocks.EventData{Content: "event1"}, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 1),
		ec.FromSource("1.0", "events://test"))

	err = log.Append(ctx, id, 0, []ec.Event{event1})
	assert.NoError(t, err)

	savedEvents = append(savedEvents, event1)

	// Append the same event twice.
	err = log.Append(ctx, id, 0, []ec.Event{event1})
	if !errors.As(err, &logErr) || !errors.Is(err, ec.ErrConflict) {
		t.Error("there should be a conflict error:", err)
	}

	// Append at an old generation.
	staleEvent := ec.NewEvent(mocks.EventType, &mocks.EventData{Content: "stale"}, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 1))

	err = log.Append(ctx, id, 0, []ec.Event{staleEvent})
	assert.ErrorIs(t, err, ec.ErrConflict)

	// Append ahead of the log.
	aheadEvent := ec.NewEvent(mocks.EventType, &mocks.EventData{Content: "ahead"}, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 5))

	err = log.Append(ctx, id, 4, []ec.Event{aheadEvent})
	assert.ErrorIs(t, err, ec.ErrConflict)

	// Append event with metadata, generation 2.
	event2 := ec.NewEvent(mocks.EventType, &mocks.EventData{Content: "event2"}, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 2),
		ec.WithMetadata(map[string]interface{}{"meta": "data", "num": 42.0}),
	)

	err = log.Append(ctx, id, 1, []ec.Event{event2})
	assert.NoError(t, err)

	savedEvents = append(savedEvents, event2)

	// Append event without data, generation 3.
	event3 := ec.NewEvent(mocks.EventOtherType, nil, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 3))

	err = log.Append(ctx, id, 2, []ec.Event{event3})
	assert.NoError(t, err)

	savedEvents = append(savedEvents, event3)

	// Append multiple events, generation 4, 5 and 6.
	event4 := ec.NewEvent(mocks.EventOtherType, nil, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 4))
	event5 := ec.NewEvent(mocks.EventOtherType, nil, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 5))
	event6 := ec.NewEvent(mocks.EventOtherType, nil, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 6))

	err = log.Append(ctx, id, 3, []ec.Event{event4, event5, event6})
	assert.NoError(t, err)

	savedEvents = append(savedEvents, event4, event5, event6)

	// Append events with a gap.
	gapEvent := ec.NewEvent(mocks.EventOtherType, nil, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 8))

	err = log.Append(ctx, id, 6, []ec.Event{gapEvent})
	if !errors.As(err, &logErr) || !errors.Is(err, ec.ErrIncorrectEventGeneration) {
		t.Error("there should be an incorrect generation error:", err)
	}

	// Append events for different aggregate IDs.
	eventSameAggID := ec.NewEvent(mocks.EventOtherType, nil, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 7))
	eventOtherAggID := ec.NewEvent(mocks.EventOtherType, nil, timestamp,
		ec.ForAggregate(mocks.AggregateType, uuid.New(), 8))

	err = log.Append(ctx, id, 6, []ec.Event{eventSameAggID, eventOtherAggID})
	if !errors.As(err, &logErr) || !errors.Is(err, ec.ErrMismatchedEventAggregateIDs) {
		t.Error("there should be a mismatched aggregate IDs error:", err)
	}

	// Append events of different aggregate types.
	eventOtherAggType := ec.NewEvent(mocks.EventOtherType, nil, timestamp,
		ec.ForAggregate(ec.AggregateType("OtherAggregate"), id, 8))

	err = log.Append(ctx, id, 6, []ec.Event{eventSameAggID, eventOtherAggType})
	if !errors.As(err, &logErr) || !errors.Is(err, ec.ErrMismatchedEventAggregateTypes) {
		t.Error("there should be a mismatched aggregate types error:", err)
	}

	// Append event for another aggregate.
	id2 := uuid.New()
	event7 := ec.NewEvent(mocks.EventType, &mocks.EventData{Content: "event7"}, timestamp,
		ec.ForAggregate(mocks.AggregateType, id2, 1))

	err = log.Append(ctx, id2, 0, []ec.Event{event7})
	assert.NoError(t, err)

	savedEvents = append(savedEvents, event7)

	// Load events, nothing from the failed appends.
	events, err = log.Load(ctx, id)
	require.NoError(t, err)
	assertEvents(t, []ec.Event{
		event1,                 // Generation 1
		event2,                 // Generation 2
		event3,                 // Generation 3
		event4, event5, event6, // Generation 4, 5 and 6
	}, events)

	// Load events for another aggregate.
	events, err = log.Load(ctx, id2)
	require.NoError(t, err)
	assertEvents(t, []ec.Event{event7}, events)

	// Racing appends at the same generation, one wins.
	id3 := uuid.New()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			e := ec.NewEvent(mocks.EventType, &mocks.EventData{Content: "race"}, timestamp,
				ec.ForAggregate(mocks.AggregateType, id3, 1))
			err := log.Append(ctx, id3, 0, []ec.Event{e})

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				succeeded++
			} else if errors.Is(err, ec.ErrConflict) {
				conflicts++
			} else {
				t.Error("there should be no other error:", err)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, succeeded, "exactly one racing append should succeed")
	assert.Equal(t, 9, conflicts)

	events, err = log.Load(ctx, id3)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	return savedEvents
}

func assertEvents(t *testing.T, expected, events []ec.Event) {
	t.Helper()

	if !assert.Len(t, events, len(expected), "incorrect number of loaded events") {
		return
	}

	for i, event := range events {
		if err := ec.CompareEvents(event, expected[i]); err != nil {
			t.Error("the event was incorrect:", err)
		}

		if event.Generation() != uint64(i+1) {
			t.Error("the event generation should be correct:", event, event.Generation())
		}
	}
}
