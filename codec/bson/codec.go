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

package bson

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	ec "github.com/kanello/eventcore"
)

// EventCodec is a codec for marshaling and unmarshaling events
// to and from bytes in BSON format.
type EventCodec struct{}

// MarshalEvent marshals an event into bytes in BSON format.
func (c *EventCodec) MarshalEvent(ctx context.Context, event ec.Event) ([]byte, error) {
	e := evt{
		EventType:     event.EventType(),
		DomainVersion: event.DomainVersion(),
		Source:        event.Source(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID().String(),
		Generation:    int64(event.Generation()),
		Timestamp:     event.Timestamp(),
		Metadata:      event.Metadata(),
	}

	// Marshal event data if there is any.
	if event.Data() != nil {
		var err error
		if e.RawData, err = bson.Marshal(event.Data()); err != nil {
			return nil, fmt.Errorf("could not marshal event data: %w", err)
		}
	}

	b, err := bson.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("could not marshal event: %w", err)
	}

	return b, nil
}

// UnmarshalEvent unmarshals an event from bytes in BSON format.
func (c *EventCodec) UnmarshalEvent(ctx context.Context, b []byte) (ec.Event, error) {
	// Decode the raw BSON event data.
	var e evt
	if err := bson.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("could not unmarshal event: %w", err)
	}

	// Create an event of the correct type and decode from raw BSON.
	var data ec.EventData
	if len(e.RawData) > 0 {
		var err error
		if data, err = ec.CreateEventData(e.EventType); err != nil {
			return nil, fmt.Errorf("could not create event data: %w", err)
		}

		if err := bson.Unmarshal(e.RawData, data); err != nil {
			return nil, fmt.Errorf("could not unmarshal event data: %w", err)
		}
	}

	aggregateID, err := uuid.Parse(e.AggregateID)
	if err != nil {
		return nil, fmt.Errorf("could not parse aggregate ID: %w", err)
	}

	return ec.NewEvent(
		e.EventType,
		data,
		e.Timestamp,
		ec.ForAggregate(e.AggregateType, aggregateID, uint64(e.Generation)),
		ec.FromSource(e.DomainVersion, e.Source),
		ec.WithMetadata(e.Metadata),
	), nil
}

// evt is the internal event used on the wire only.
type evt struct {
	EventType     ec.EventType           `bson:"event_type"`
	DomainVersion string                 `bson:"domain_version"`
	Source        string                 `bson:"source"`
	AggregateType ec.AggregateType       `bson:"aggregate_type"`
	AggregateID   string                 `bson:"aggregate_id"`
	Generation    int64                  `bson:"generation"`
	Timestamp     time.Time              `bson:"timestamp"`
	Metadata      map[string]interface{} `bson:"metadata"`
	RawData       bson.Raw               `bson:"data,omitempty"`
}
