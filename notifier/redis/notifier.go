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

// Package redis is a notifier that appends committed events to a Redis stream
// and delivers them to handlers through consumer groups.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/codec/json"
)

const (
	aggregateTypeKey = "aggregate_type"
	aggregateIDKey   = "aggregate_id"
	eventTypeKey     = "event_type"
	dataKey          = "data"
)

// Notifier appends events to the stream "<appID>_events".
type Notifier struct {
	appID        string
	clientID     string
	streamName   string
	maxLen       int64
	client       *redis.Client
	clientOpts   *redis.Options
	registered   map[ec.EventHandlerType]struct{}
	registeredMu sync.RWMutex
	errCh        chan error
	cctx         context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	codec        ec.EventCodec
	logger       *slog.Logger
}

var _ = ec.Notifier(&Notifier{})

// NewNotifier creates a Notifier, with optional settings. The client ID names
// the consumers of this notifier within the consumer groups.
func NewNotifier(ctx context.Context, addr, appID, clientID string, options ...Option) (*Notifier, error) {
	if appID == "" {
		return nil, errors.New("missing app ID")
	}

	cctx, cancel := context.WithCancel(context.Background())

	n := &Notifier{
		appID:      appID,
		clientID:   clientID,
		streamName: appID + "_events",
		registered: map[ec.EventHandlerType]struct{}{},
		errCh:      make(chan error, 100),
		cctx:       cctx,
		cancel:     cancel,
		codec:      &json.EventCodec{},
		logger:     slog.Default(),
	}

	// Apply configuration options.
	for _, option := range options {
		if option == nil {
			continue
		}

		if err := option(n); err != nil {
			cancel()

			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	// Default client options.
	if n.clientOpts == nil {
		n.clientOpts = &redis.Options{
			Addr: addr,
		}
	}

	// Create client and check connection.
	n.client = redis.NewClient(n.clientOpts)
	if res, err := n.client.Ping(ctx).Result(); err != nil || res != "PONG" {
		cancel()
		_ = n.client.Close()

		return nil, fmt.Errorf("could not check Redis server: %w", err)
	}

	return n, nil
}

// Option is an option setter used to configure creation.
type Option func(*Notifier) error

// WithCodec uses the specified codec for encoding events.
func WithCodec(codec ec.EventCodec) Option {
	return func(n *Notifier) error {
		n.codec = codec

		return nil
	}
}

// WithRedisOptions uses the Redis options for the underlying client, instead of the defaults.
func WithRedisOptions(opts *redis.Options) Option {
	return func(n *Notifier) error {
		n.clientOpts = opts

		return nil
	}
}

// WithMaxLen caps the stream at about maxLen entries.
func WithMaxLen(maxLen int64) Option {
	return func(n *Notifier) error {
		if maxLen < 0 {
			return fmt.Errorf("invalid max length: %d", maxLen)
		}

		n.maxLen = maxLen

		return nil
	}
}

// WithLogger uses the logger for missed errors.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) error {
		n.logger = l

		return nil
	}
}

// StreamName returns the name of the stream.
func (n *Notifier) StreamName() string {
	return n.streamName
}

// Publish implements the Publish method of the eventcore.Notifier interface.
// The events are added in one pipeline, in order.
func (n *Notifier) Publish(ctx context.Context, id uuid.UUID, events []ec.Event) error {
	pipe := n.client.TxPipeline()

	for _, event := range events {
		data, err := n.codec.MarshalEvent(ctx, event)
		if err != nil {
			return n.publishErr(fmt.Errorf("could not marshal event: %w", err), id, events)
		}

		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: n.streamName,
			MaxLen: n.maxLen,
			Approx: n.maxLen > 0,
			Values: map[string]interface{}{
				aggregateTypeKey: event.AggregateType().String(),
				aggregateIDKey:   event.AggregateID().String(),
				eventTypeKey:     event.EventType().String(),
				dataKey:          data,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return n.publishErr(fmt.Errorf("could not publish events: %w", err), id, events)
	}

	return nil
}

func (n *Notifier) publishErr(err error, id uuid.UUID, events []ec.Event) error {
	return &ec.NotifierError{
		Err:         err,
		Transport:   "redis",
		AggregateID: id,
		Events:      events,
	}
}

// AddHandler adds a handler for the matching events added after the call,
// until the context is done or the notifier is closed. Handlers of the same
// type share a consumer group.
func (n *Notifier) AddHandler(ctx context.Context, m ec.EventMatcher, h ec.EventHandler) error {
	if m == nil {
		return ec.ErrMissingMatcher
	}

	if h == nil {
		return ec.ErrMissingHandler
	}

	// Check handler existence.
	n.registeredMu.Lock()
	defer n.registeredMu.Unlock()

	if _, ok := n.registered[h.HandlerType()]; ok {
		return ec.ErrHandlerAlreadyAdded
	}

	// Get or create the consumer group.
	groupName := fmt.Sprintf("%s_%s", n.appID, h.HandlerType())

	res, err := n.client.XGroupCreateMkStream(ctx, n.streamName, groupName, "$").Result()
	if err != nil {
		// Ignore group exists non-errors.
		if !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("could not create consumer group: %w", err)
		}
	} else if res != "OK" {
		return fmt.Errorf("could not create consumer group: %s", res)
	}

	n.registered[h.HandlerType()] = struct{}{}

	// Handle until context is cancelled.
	n.wg.Add(1)

	go n.handle(ctx, m, h, groupName)

	return nil
}

// Errors returns the errors from the handlers, as *eventcore.HandlerError.
func (n *Notifier) Errors() <-chan error {
	return n.errCh
}

// Close implements the Close method of the eventcore.Notifier interface.
func (n *Notifier) Close() error {
	n.cancel()
	n.wg.Wait()

	return n.client.Close()
}

// Handles all messages of the group, until either context is done.
func (n *Notifier) handle(ctx context.Context, m ec.EventMatcher, h ec.EventHandler, groupName string) {
	defer n.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-n.cctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		streams, err := n.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    groupName,
			Consumer: groupName + "_" + n.clientID,
			Streams:  []string{n.streamName, ">"},
			Block:    time.Second,
		}).Result()

		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			n.sendErr(&ec.HandlerError{
				Err:         fmt.Errorf("could not receive: %w", err),
				HandlerType: h.HandlerType(),
			})

			// Retry the receive loop if there was an error.
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}

			continue
		}

		// Handle all messages from group read.
		for _, stream := range streams {
			if stream.Stream != n.streamName {
				continue
			}

			for _, msg := range stream.Messages {
				n.handleMessage(ctx, m, h, groupName, msg)
			}
		}
	}
}

func (n *Notifier) handleMessage(ctx context.Context, m ec.EventMatcher, h ec.EventHandler, groupName string, msg redis.XMessage) {
	data, ok := msg.Values[dataKey].(string)
	if !ok {
		n.sendErr(&ec.HandlerError{
			Err:         fmt.Errorf("event data is of incorrect type %T", msg.Values[dataKey]),
			HandlerType: h.HandlerType(),
		})

		return
	}

	event, err := n.codec.UnmarshalEvent(ctx, []byte(data))
	if err != nil {
		n.sendErr(&ec.HandlerError{
			Err:         fmt.Errorf("could not unmarshal event: %w", err),
			HandlerType: h.HandlerType(),
		})

		return
	}

	// Handle the event if it did match, failed events stay pending.
	if m(event) {
		if err := h.HandleEvent(ctx, event); err != nil {
			n.sendErr(&ec.HandlerError{
				Err:         err,
				HandlerType: h.HandlerType(),
				Event:       event,
			})

			return
		}
	}

	if err := n.client.XAck(ctx, n.streamName, groupName, msg.ID).Err(); err != nil {
		n.sendErr(&ec.HandlerError{
			Err:         fmt.Errorf("could not ack event: %w", err),
			HandlerType: h.HandlerType(),
			Event:       event,
		})
	}
}

func (n *Notifier) sendErr(err error) {
	select {
	case n.errCh <- err:
	default:
		n.logger.Error("missed error in Redis notifier", slog.String("error", err.Error()))
	}
}
