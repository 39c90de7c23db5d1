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

// Package mongodb is an eventcore.EventLog for MongoDB. It needs a replica
// set, appends run in transactions.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/mongoutils"
)

// EventLog is an eventcore.EventLog for MongoDB, using one collection for all
// events and another to keep track of the generation of every aggregate.
type EventLog struct {
	client          *mongo.Client
	clientOwnership clientOwnership
	events          *mongo.Collection
	streams         *mongo.Collection
	logger          *slog.Logger
}

type clientOwnership int

const (
	internalClient clientOwnership = iota
	externalClient
)

// NewEventLog creates a new EventLog with a MongoDB URI: `mongodb://hostname`.
func NewEventLog(ctx context.Context, uri, dbName string, opts ...Option) (*EventLog, error) {
	client, err := mongo.Connect(clientOptions(uri))
	if err != nil {
		return nil, fmt.Errorf("could not connect to DB: %w", err)
	}

	return newEventLogWithClient(ctx, client, internalClient, dbName, opts...)
}

// NewEventLogWithClient creates a new EventLog with a client. The client is
// not disconnected on Close.
func NewEventLogWithClient(ctx context.Context, client *mongo.Client, dbName string, opts ...Option) (*EventLog, error) {
	return newEventLogWithClient(ctx, client, externalClient, dbName, opts...)
}

func clientOptions(uri string) *options.ClientOptions {
	return options.Client().
		ApplyURI(uri).
		SetWriteConcern(writeconcern.Majority()).
		SetReadConcern(readconcern.Majority()).
		SetReadPreference(readpref.Primary())
}

func newEventLogWithClient(ctx context.Context, client *mongo.Client, ownership clientOwnership, dbName string, opts ...Option) (*EventLog, error) {
	if client == nil {
		return nil, fmt.Errorf("missing DB client")
	}

	db := client.Database(dbName)
	l := &EventLog{
		client:          client,
		clientOwnership: ownership,
		events:          db.Collection("events"),
		streams:         db.Collection("streams"),
		logger:          slog.Default(),
	}

	for _, option := range opts {
		if err := option(l); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	if err := l.client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not connect to MongoDB: %w", err)
	}

	// The unique index backs the generation check of concurrent appends.
	if _, err := l.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "aggregate_id", Value: 1}, {Key: "generation", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("could not ensure events index: %w", err)
	}

	return l, nil
}

// Option is an option setter used to configure creation.
type Option func(*EventLog) error

// WithCollectionNames uses different collections from the default "events"
// and "streams" collections. Will return an error if provided parameters are
// equal.
func WithCollectionNames(eventsColl, streamsColl string) Option {
	return func(l *EventLog) error {
		if err := mongoutils.CheckCollectionName(eventsColl); err != nil {
			return fmt.Errorf("events collection: %w", err)
		} else if err := mongoutils.CheckCollectionName(streamsColl); err != nil {
			return fmt.Errorf("streams collection: %w", err)
		} else if eventsColl == streamsColl {
			return fmt.Errorf("custom collection names are equal")
		}

		db := l.events.Database()
		l.events = db.Collection(eventsColl)
		l.streams = db.Collection(streamsColl)

		return nil
	}
}

// WithLogger sets the logger, used for conflicts and failed transactions.
func WithLogger(logger *slog.Logger) Option {
	return func(l *EventLog) error {
		l.logger = logger

		return nil
	}
}

// evt is the internal event record for the MongoDB event log.
type evt struct {
	EventType     ec.EventType           `bson:"event_type"`
	RawData       bson.Raw               `bson:"data,omitempty"`
	data          ec.EventData           `bson:"-"`
	Timestamp     time.Time              `bson:"timestamp"`
	AggregateType ec.AggregateType       `bson:"aggregate_type"`
	AggregateID   string                 `bson:"aggregate_id"`
	Generation    int64                  `bson:"generation"`
	DomainVersion string                 `bson:"domain_version,omitempty"`
	Source        string                 `bson:"source,omitempty"`
	Metadata      map[string]interface{} `bson:"metadata,omitempty"`
}

// stream is the generation record of an aggregate.
type stream struct {
	ID            string           `bson:"_id"`
	AggregateType ec.AggregateType `bson:"aggregate_type"`
	Generation    int64            `bson:"generation"`
	UpdatedAt     time.Time        `bson:"updated_at"`
}

// newEvt returns a new evt for an event.
func newEvt(event ec.Event) (*evt, error) {
	e := &evt{
		EventType:     event.EventType(),
		Timestamp:     event.Timestamp(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID().String(),
		Generation:    int64(event.Generation()),
		DomainVersion: event.DomainVersion(),
		Source:        event.Source(),
		Metadata:      event.Metadata(),
	}

	// Marshal event data if there is any.
	if event.Data() != nil {
		var err error

		e.RawData, err = bson.Marshal(event.Data())
		if err != nil {
			return nil, fmt.Errorf("could not marshal event data: %w", err)
		}
	}

	return e, nil
}

// Append implements the Append method of the eventcore.EventLog interface.
func (l *EventLog) Append(ctx context.Context, id uuid.UUID, expectedGeneration uint64, events []ec.Event) error {
	if err := ec.CheckAppend(id, expectedGeneration, events); err != nil {
		return err
	}

	dbEvents := make([]interface{}, len(events))

	for i, event := range events {
		e, err := newEvt(event)
		if err != nil {
			return &ec.EventLogError{
				Err:         err,
				Op:          ec.EventLogOpAppend,
				AggregateID: id,
				Generation:  expectedGeneration,
				Events:      events,
			}
		}

		dbEvents[i] = e
	}

	last := events[len(events)-1]

	sess, err := l.client.StartSession()
	if err != nil {
		return &ec.EventLogError{
			Err:         fmt.Errorf("could not start transaction: %w", err),
			Op:          ec.EventLogOpAppend,
			AggregateID: id,
			Generation:  expectedGeneration,
			Events:      events,
		}
	}

	defer sess.EndSession(ctx)

	if _, err := sess.WithTransaction(ctx, func(txCtx context.Context) (interface{}, error) {
		// Move the stream to the new generation, if it is at the expected one.
		if expectedGeneration == 0 {
			if _, err := l.streams.InsertOne(txCtx, &stream{
				ID:            id.String(),
				AggregateType: last.AggregateType(),
				Generation:    int64(last.Generation()),
				UpdatedAt:     last.Timestamp(),
			}); mongo.IsDuplicateKeyError(err) {
				return nil, ec.ErrConflict
			} else if err != nil {
				return nil, fmt.Errorf("could not insert stream: %w", err)
			}
		} else {
			r, err := l.streams.UpdateOne(txCtx,
				bson.M{
					"_id":        id.String(),
					"generation": int64(expectedGeneration),
				},
				bson.M{
					"$set": bson.M{
						"generation": int64(last.Generation()),
						"updated_at": last.Timestamp(),
					},
				},
			)
			if err != nil {
				return nil, fmt.Errorf("could not update stream: %w", err)
			} else if r.MatchedCount == 0 {
				return nil, ec.ErrConflict
			}
		}

		if _, err := l.events.InsertMany(txCtx, dbEvents); mongo.IsDuplicateKeyError(err) {
			return nil, ec.ErrConflict
		} else if err != nil {
			return nil, fmt.Errorf("could not insert events: %w", err)
		}

		return nil, nil
	}); err != nil {
		if errors.Is(err, ec.ErrConflict) {
			l.logger.WarnContext(ctx, "generation conflict in event log",
				slog.String("aggregate_id", id.String()),
				slog.Uint64("expected_generation", expectedGeneration),
			)

			return &ec.EventLogError{
				Err:         ec.ErrConflict,
				Op:          ec.EventLogOpAppend,
				AggregateID: id,
				Generation:  expectedGeneration,
				Events:      events,
			}
		}

		l.logger.ErrorContext(ctx, "could not append events",
			slog.String("aggregate_id", id.String()),
			slog.Int("events_count", len(events)),
			slog.String("error", err.Error()),
		)

		return &ec.EventLogError{
			Err:         err,
			Op:          ec.EventLogOpAppend,
			AggregateID: id,
			Generation:  expectedGeneration,
			Events:      events,
		}
	}

	return nil
}

// Load implements the Load method of the eventcore.EventLog interface.
func (l *EventLog) Load(ctx context.Context, id uuid.UUID) ([]ec.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "generation", Value: 1}})

	cursor, err := l.events.Find(ctx, bson.M{"aggregate_id": id.String()}, opts)
	if err != nil {
		return nil, &ec.EventLogError{
			Err:         fmt.Errorf("could not find events: %w", err),
			Op:          ec.EventLogOpLoad,
			AggregateID: id,
		}
	}

	defer cursor.Close(ctx)

	events := []ec.Event{}

	for cursor.Next(ctx) {
		var e evt
		if err := cursor.Decode(&e); err != nil {
			return nil, &ec.EventLogError{
				Err:         fmt.Errorf("could not decode event: %w", err),
				Op:          ec.EventLogOpLoad,
				AggregateID: id,
				Events:      events,
			}
		}

		// Create an event of the correct type and decode from raw BSON.
		if len(e.RawData) > 0 {
			if e.data, err = ec.CreateEventData(e.EventType); err != nil {
				return nil, &ec.EventLogError{
					Err:         fmt.Errorf("could not create event data: %w", err),
					Op:          ec.EventLogOpLoad,
					AggregateID: id,
					Generation:  uint64(e.Generation),
					Events:      events,
				}
			}

			if err := bson.Unmarshal(e.RawData, e.data); err != nil {
				return nil, &ec.EventLogError{
					Err:         fmt.Errorf("could not unmarshal event data: %w", err),
					Op:          ec.EventLogOpLoad,
					AggregateID: id,
					Generation:  uint64(e.Generation),
					Events:      events,
				}
			}
		}

		events = append(events, ec.NewEvent(
			e.EventType,
			e.data,
			e.Timestamp,
			ec.ForAggregate(e.AggregateType, id, uint64(e.Generation)),
			ec.FromSource(e.DomainVersion, e.Source),
			ec.WithMetadata(e.Metadata),
		))
	}

	if err := cursor.Err(); err != nil {
		return nil, &ec.EventLogError{
			Err:         fmt.Errorf("could not read events: %w", err),
			Op:          ec.EventLogOpLoad,
			AggregateID: id,
			Events:      events,
		}
	}

	return events, nil
}

// Close implements the Close method of the eventcore.EventLog interface.
func (l *EventLog) Close() error {
	if l.clientOwnership == externalClient {
		return nil
	}

	return l.client.Disconnect(context.Background())
}

// Client returns the MongoDB client.
func (l *EventLog) Client() *mongo.Client {
	return l.client
}
