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

// Package codec contains the shared acceptance test of the
// eventcore.EventCodec implementations in its subpackages.
package codec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/mocks"
)

func init() {
	ec.RegisterEventData(EventType, func() ec.EventData { return &EventData{} })
}

const (
	// EventType is a the type for Event.
	EventType ec.EventType = "CodecEvent"
)

// EventCodecAcceptanceTest is the acceptance test that all implementations of
// EventCodec should pass. It should manually be called from a test case in each
// implementation:
//
//	func TestEventCodec(t *testing.T) {
//	    c := EventCodec{}
//	    expectedBytes = []byte("")
//	    codec.EventCodecAcceptanceTest(t, c, expectedBytes)
//	}
//
// The encoded bytes are not checked when expectedBytes is nil.
func EventCodecAcceptanceTest(t *testing.T, c ec.EventCodec, expectedBytes []byte) {
	ctx := context.Background()

	// Marshaling.
	id := uuid.MustParse("10a7ec0f-7f2b-46f5-bca1-877b6e33c9fd")
	timestamp := time.Date(2009, time.November, 10, 23, 0, 0, 0, time.UTC)
	eventData := EventData{
		Bool:    true,
		String:  "string",
		Number:  42.0,
		Slice:   []string{"a", "b"},
		Map:     map[string]interface{}{"key": "value"}, // NOTE: Just one key to avoid compare issues.
		Time:    timestamp,
		TimeRef: &timestamp,
		Struct: Nested{
			Bool:   true,
			String: "string",
			Number: 42.0,
		},
		StructRef: &Nested{
			Bool:   true,
			String: "string",
			Number: 42.0,
		},
	}
	event := ec.NewEvent(EventType, &eventData, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 1),
		ec.FromSource("1.0", "events://test"),
		ec.WithMetadata(map[string]interface{}{"num": 42.0}), // NOTE: Just one key to avoid compare issues.
	)

	b, err := c.MarshalEvent(ctx, event)
	if err != nil {
		t.Error("there should be no error:", err)
	}

	if expectedBytes != nil && string(b) != string(expectedBytes) {
		t.Error("the encoded bytes should be correct:", string(b))
	}

	// Unmarshaling.
	decodedEvent, err := c.UnmarshalEvent(ctx, b)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if err := ec.CompareEvents(decodedEvent, event); err != nil {
		t.Error("the decoded event was incorrect:", err)
	}

	// Event without data.
	event = ec.NewEvent(mocks.EventOtherType, nil, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 2))

	if b, err = c.MarshalEvent(ctx, event); err != nil {
		t.Error("there should be no error:", err)
	}

	if decodedEvent, err = c.UnmarshalEvent(ctx, b); err != nil {
		t.Fatal("there should be no error:", err)
	}

	if err := ec.CompareEvents(decodedEvent, event); err != nil {
		t.Error("the decoded event was incorrect:", err)
	}

	// Event data that is not registered.
	event = ec.NewEvent("CodecUnregistered", &eventData, timestamp,
		ec.ForAggregate(mocks.AggregateType, id, 3))

	if b, err = c.MarshalEvent(ctx, event); err != nil {
		t.Error("there should be no error:", err)
	}

	if _, err = c.UnmarshalEvent(ctx, b); !errors.Is(err, ec.ErrEventDataNotRegistered) {
		t.Error("there should be a not registered error:", err)
	}

	// Garbage.
	if _, err := c.UnmarshalEvent(ctx, []byte("garbage")); err == nil {
		t.Error("there should be an error")
	}
}

// EventData is a mocked event data, useful in testing.
type EventData struct {
	Bool       bool
	String     string
	Number     float64
	Slice      []string
	Map        map[string]interface{}
	Time       time.Time
	TimeRef    *time.Time
	NullTime   *time.Time
	Struct     Nested
	StructRef  *Nested
	NullStruct *Nested
}

// Nested is nested event data.
type Nested struct {
	Bool   bool
	String string
	Number float64
}
