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

// Package gcp is a notifier that publishes committed events to a Cloud Pub/Sub
// topic, ordered per aggregate, and delivers them to handlers through
// subscriptions.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/codec/json"
)

const (
	aggregateTypeAttribute = "aggregate_type"
	eventTypeAttribute     = "event_type"
)

// Notifier publishes events to the topic "<appID>_events", with the aggregate
// ID as ordering key.
type Notifier struct {
	appID        string
	client       *pubsub.Client
	clientOpts   []option.ClientOption
	topic        *pubsub.Topic
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

// NewNotifier creates a Notifier, getting or creating the topic.
func NewNotifier(ctx context.Context, projectID, appID string, options ...Option) (*Notifier, error) {
	if appID == "" {
		return nil, errors.New("missing app ID")
	}

	cctx, cancel := context.WithCancel(context.Background())

	n := &Notifier{
		appID:      appID,
		registered: map[ec.EventHandlerType]struct{}{},
		errCh:      make(chan error, 100),
		cctx:       cctx,
		cancel:     cancel,
		codec:      &json.EventCodec{},
		logger:     slog.Default(),
	}

	// Apply configuration options.
	for _, opt := range options {
		if opt == nil {
			continue
		}

		if err := opt(n); err != nil {
			cancel()

			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	var err error
	if n.client, err = pubsub.NewClient(ctx, projectID, n.clientOpts...); err != nil {
		cancel()

		return nil, fmt.Errorf("could not create Pub/Sub client: %w", err)
	}

	// Get or create the topic.
	name := appID + "_events"
	n.topic = n.client.Topic(name)

	if ok, err := n.topic.Exists(ctx); err != nil {
		cancel()
		_ = n.client.Close()

		return nil, fmt.Errorf("could not check Pub/Sub topic: %w", err)
	} else if !ok {
		if n.topic, err = n.client.CreateTopic(ctx, name); err != nil {
			cancel()
			_ = n.client.Close()

			return nil, fmt.Errorf("could not create Pub/Sub topic: %w", err)
		}
	}

	n.topic.EnableMessageOrdering = true

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

// WithClientOptions adds the options to the underlying client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(n *Notifier) error {
		n.clientOpts = append(n.clientOpts, opts...)

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

// Publish implements the Publish method of the eventcore.Notifier interface.
// It waits for the server to acknowledge every event.
func (n *Notifier) Publish(ctx context.Context, id uuid.UUID, events []ec.Event) error {
	results := make([]*pubsub.PublishResult, 0, len(events))

	for _, event := range events {
		data, err := n.codec.MarshalEvent(ctx, event)
		if err != nil {
			return n.publishErr(fmt.Errorf("could not marshal event: %w", err), id, events)
		}

		results = append(results, n.topic.Publish(ctx, &pubsub.Message{
			Data:        data,
			OrderingKey: id.String(),
			Attributes: map[string]string{
				aggregateTypeAttribute: event.AggregateType().String(),
				eventTypeAttribute:     event.EventType().String(),
			},
		}))
	}

	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			// Publishing for the key is paused after an error.
			n.topic.ResumePublish(id.String())

			return n.publishErr(fmt.Errorf("could not publish event: %w", err), id, events)
		}
	}

	return nil
}

func (n *Notifier) publishErr(err error, id uuid.UUID, events []ec.Event) error {
	return &ec.NotifierError{
		Err:         err,
		Transport:   "gcp",
		AggregateID: id,
		Events:      events,
	}
}

// AddHandler adds a handler for the matching events, until the context is done
// or the notifier is closed. Handlers of the same type share a subscription.
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

	// Get or create the subscription.
	subscriptionID := n.appID + "_" + h.HandlerType().String()
	sub := n.client.Subscription(subscriptionID)

	if ok, err := sub.Exists(ctx); err != nil {
		return fmt.Errorf("could not check existing subscription: %w", err)
	} else if !ok {
		if sub, err = n.client.CreateSubscription(ctx, subscriptionID,
			pubsub.SubscriptionConfig{
				Topic:                 n.topic,
				AckDeadline:           60 * time.Second,
				EnableMessageOrdering: true,
			},
		); err != nil {
			return fmt.Errorf("could not create subscription: %w", err)
		}
	}

	n.registered[h.HandlerType()] = struct{}{}

	// Handle until context is cancelled.
	n.wg.Add(1)

	go n.handle(ctx, m, h, sub)

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

	n.topic.Stop()

	return n.client.Close()
}

// Handles all messages of the subscription, until either context is done.
func (n *Notifier) handle(ctx context.Context, m ec.EventMatcher, h ec.EventHandler, sub *pubsub.Subscription) {
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
		err := sub.Receive(ctx, n.handler(m, h))
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			n.sendErr(&ec.HandlerError{
				Err:         fmt.Errorf("could not receive: %w", err),
				HandlerType: h.HandlerType(),
			})
		}

		// Retry the receive loop if it stopped.
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return
		}
	}
}

func (n *Notifier) handler(m ec.EventMatcher, h ec.EventHandler) func(ctx context.Context, msg *pubsub.Message) {
	return func(ctx context.Context, msg *pubsub.Message) {
		event, err := n.codec.UnmarshalEvent(ctx, msg.Data)
		if err != nil {
			n.sendErr(&ec.HandlerError{
				Err:         fmt.Errorf("could not unmarshal event: %w", err),
				HandlerType: h.HandlerType(),
			})
			msg.Nack()

			return
		}

		// Ignore non-matching events.
		if !m(event) {
			msg.Ack()

			return
		}

		if err := h.HandleEvent(ctx, event); err != nil {
			n.sendErr(&ec.HandlerError{
				Err:         err,
				HandlerType: h.HandlerType(),
				Event:       event,
			})
			msg.Nack()

			return
		}

		msg.Ack()
	}
}

func (n *Notifier) sendErr(err error) {
	select {
	case n.errCh <- err:
	default:
		n.logger.Error("missed error in GCP notifier", slog.String("error", err.Error()))
	}
}
