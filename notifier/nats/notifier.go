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

// Package nats is a notifier that publishes committed events on NATS subjects
// and delivers them to handlers through queue group subscriptions.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/nats-io/nats.go"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/codec/json"
)

// DefaultDialAttempts is the default number of connection attempts.
var DefaultDialAttempts = 5

const (
	aggregateTypeHeader = "aggregate_type"
	eventTypeHeader     = "event_type"
)

// Notifier publishes events to the subject "<appID>.events.<aggregate type>".
type Notifier struct {
	appID        string
	conn         *nats.Conn
	connOpts     []nats.Option
	dialAttempts int
	dialDelay    *backoff.Backoff
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

// NewNotifier creates a Notifier, dialling the server with exponential backoff
// until the attempts are used up or the context is done.
func NewNotifier(ctx context.Context, url, appID string, options ...Option) (*Notifier, error) {
	if appID == "" {
		return nil, errors.New("missing app ID")
	}

	cctx, cancel := context.WithCancel(context.Background())

	n := &Notifier{
		appID:        appID,
		dialAttempts: DefaultDialAttempts,
		dialDelay: &backoff.Backoff{
			Min:    100 * time.Millisecond,
			Max:    5 * time.Second,
			Factor: 2,
			Jitter: true,
		},
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

	conn, err := n.dial(ctx, url)
	if err != nil {
		cancel()

		return nil, err
	}

	n.conn = conn

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

// WithNATSOptions adds the NATS options to the underlying client.
func WithNATSOptions(opts ...nats.Option) Option {
	return func(n *Notifier) error {
		n.connOpts = opts

		return nil
	}
}

// WithDialAttempts sets the number of connection attempts.
func WithDialAttempts(attempts int) Option {
	return func(n *Notifier) error {
		if attempts < 1 {
			return fmt.Errorf("invalid dial attempts: %d", attempts)
		}

		n.dialAttempts = attempts

		return nil
	}
}

// WithLogger uses the logger for connection retries and missed errors.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) error {
		n.logger = l

		return nil
	}
}

func (n *Notifier) dial(ctx context.Context, url string) (*nats.Conn, error) {
	var err error

	for attempt := 1; ; attempt++ {
		var conn *nats.Conn
		if conn, err = nats.Connect(url, n.connOpts...); err == nil {
			n.dialDelay.Reset()

			return conn, nil
		}

		if attempt >= n.dialAttempts {
			break
		}

		d := n.dialDelay.Duration()
		n.logger.WarnContext(ctx, "could not connect to NATS, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", d),
			slog.String("error", err.Error()))

		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, fmt.Errorf("could not connect to NATS: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("could not connect to NATS: %w", err)
}

// Subject returns the subject of the events of an aggregate type.
func (n *Notifier) Subject(aggregateType ec.AggregateType) string {
	return n.appID + ".events." + aggregateType.String()
}

// Publish implements the Publish method of the eventcore.Notifier interface.
// The events are flushed to the server before returning.
func (n *Notifier) Publish(ctx context.Context, id uuid.UUID, events []ec.Event) error {
	for _, event := range events {
		data, err := n.codec.MarshalEvent(ctx, event)
		if err != nil {
			return n.publishErr(fmt.Errorf("could not marshal event: %w", err), id, events)
		}

		msg := &nats.Msg{
			Subject: n.Subject(event.AggregateType()),
			Data:    data,
			Header: nats.Header{
				aggregateTypeHeader: []string{event.AggregateType().String()},
				eventTypeHeader:     []string{event.EventType().String()},
			},
		}

		if err := n.conn.PublishMsg(msg); err != nil {
			return n.publishErr(fmt.Errorf("could not publish event: %w", err), id, events)
		}
	}

	if err := n.conn.FlushWithContext(ctx); err != nil {
		return n.publishErr(fmt.Errorf("could not flush events: %w", err), id, events)
	}

	return nil
}

func (n *Notifier) publishErr(err error, id uuid.UUID, events []ec.Event) error {
	return &ec.NotifierError{
		Err:         err,
		Transport:   "nats",
		AggregateID: id,
		Events:      events,
	}
}

// AddHandler adds a handler for the matching events, until the context is done
// or the notifier is closed. Handlers of the same type share a queue group.
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

	// Create a queue group.
	queueGroup := fmt.Sprintf("%s_%s", n.appID, h.HandlerType())

	sub, err := n.conn.QueueSubscribe(n.appID+".events.>", queueGroup, n.handler(m, h))
	if err != nil {
		return fmt.Errorf("could not subscribe to queue: %w", err)
	}

	// Make sure the subscription is known by the server before any publish.
	if err := n.conn.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()

		return fmt.Errorf("could not subscribe to queue: %w", err)
	}

	n.registered[h.HandlerType()] = struct{}{}

	// Handle until context is cancelled.
	n.wg.Add(1)

	go n.handle(ctx, sub)

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

	n.conn.Close()

	return nil
}

func (n *Notifier) handle(ctx context.Context, sub *nats.Subscription) {
	defer n.wg.Done()

	select {
	case <-ctx.Done():
	case <-n.cctx.Done():
	}

	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		n.logger.Warn("could not unsubscribe from NATS",
			slog.String("subject", sub.Subject),
			slog.String("error", err.Error()))
	}
}

func (n *Notifier) handler(m ec.EventMatcher, h ec.EventHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		event, err := n.codec.UnmarshalEvent(n.cctx, msg.Data)
		if err != nil {
			n.sendErr(&ec.HandlerError{
				Err:         fmt.Errorf("could not unmarshal event: %w", err),
				HandlerType: h.HandlerType(),
			})

			return
		}

		// Ignore non-matching events.
		if !m(event) {
			return
		}

		if err := h.HandleEvent(n.cctx, event); err != nil {
			n.sendErr(&ec.HandlerError{
				Err:         err,
				HandlerType: h.HandlerType(),
				Event:       event,
			})
		}
	}
}

func (n *Notifier) sendErr(err error) {
	select {
	case n.errCh <- err:
	default:
		n.logger.Error("missed error in NATS notifier", slog.String("error", err.Error()))
	}
}
