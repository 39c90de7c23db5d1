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

// Package kafka is a notifier that writes committed events to a Kafka topic,
// keyed by aggregate ID, and delivers them to handlers through consumer groups.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/segmentio/kafka-go"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/codec/json"
)

// DefaultTopicAttempts is the default number of attempts to create the topic
// while the broker is not available.
var DefaultTopicAttempts = 10

const (
	aggregateTypeHeader = "aggregate_type"
	eventTypeHeader     = "event_type"
)

// Notifier writes events to the topic "<appID>_events". The events of an
// aggregate share a partition and keep their order.
type Notifier struct {
	// TODO: Support multiple brokers.
	addr         string
	appID        string
	topic        string
	partitions   int
	writer       *kafka.Writer
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
func NewNotifier(ctx context.Context, addr, appID string, options ...Option) (*Notifier, error) {
	if appID == "" {
		return nil, errors.New("missing app ID")
	}

	cctx, cancel := context.WithCancel(context.Background())

	n := &Notifier{
		addr:       addr,
		appID:      appID,
		topic:      appID + "_events",
		partitions: 1,
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

	if err := n.createTopic(ctx); err != nil {
		cancel()

		return nil, err
	}

	n.writer = &kafka.Writer{
		Addr:         kafka.TCP(addr),
		Topic:        n.topic,
		Balancer:     &kafka.Hash{},    // Same aggregate, same partition.
		BatchSize:    1,                // Write every event to the bus without delay.
		RequiredAcks: kafka.RequireOne, // Stronger consistency.
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

// WithPartitions sets the number of partitions of a created topic.
func WithPartitions(partitions int) Option {
	return func(n *Notifier) error {
		if partitions < 1 {
			return fmt.Errorf("invalid number of partitions: %d", partitions)
		}

		n.partitions = partitions

		return nil
	}
}

// WithLogger uses the logger for retries and missed errors.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) error {
		n.logger = l

		return nil
	}
}

func (n *Notifier) createTopic(ctx context.Context) error {
	client := &kafka.Client{
		Addr: kafka.TCP(n.addr),
	}

	delay := &backoff.Backoff{
		Min: time.Second,
		Max: 10 * time.Second,
	}

	var (
		resp *kafka.CreateTopicsResponse
		err  error
	)

	for i := 0; i < DefaultTopicAttempts; i++ {
		resp, err = client.CreateTopics(ctx, &kafka.CreateTopicsRequest{
			Topics: []kafka.TopicConfig{{
				Topic:             n.topic,
				NumPartitions:     n.partitions,
				ReplicationFactor: 1,
			}},
		})
		if !errors.Is(err, kafka.BrokerNotAvailable) {
			break
		}

		d := delay.Duration()
		n.logger.WarnContext(ctx, "Kafka broker not available, retrying",
			slog.String("topic", n.topic),
			slog.Duration("delay", d))

		select {
		case <-time.After(d):
		case <-ctx.Done():
			return fmt.Errorf("could not create Kafka topic: %w", ctx.Err())
		}
	}

	if err != nil {
		return fmt.Errorf("could not create Kafka topic: %w", err)
	}

	if resp == nil {
		return errors.New("could not get/create Kafka topic in time")
	}

	if topicErr, ok := resp.Errors[n.topic]; ok && topicErr != nil {
		if !errors.Is(topicErr, kafka.TopicAlreadyExists) {
			return fmt.Errorf("invalid Kafka topic: %w", topicErr)
		}
	}

	return nil
}

// Topic returns the name of the topic.
func (n *Notifier) Topic() string {
	return n.topic
}

// Publish implements the Publish method of the eventcore.Notifier interface.
func (n *Notifier) Publish(ctx context.Context, id uuid.UUID, events []ec.Event) error {
	msgs := make([]kafka.Message, 0, len(events))

	for _, event := range events {
		data, err := n.codec.MarshalEvent(ctx, event)
		if err != nil {
			return n.publishErr(fmt.Errorf("could not marshal event: %w", err), id, events)
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(event.AggregateID().String()),
			Value: data,
			Headers: []kafka.Header{
				{
					Key:   aggregateTypeHeader,
					Value: []byte(event.AggregateType().String()),
				},
				{
					Key:   eventTypeHeader,
					Value: []byte(event.EventType().String()),
				},
			},
		})
	}

	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return n.publishErr(fmt.Errorf("could not publish events: %w", err), id, events)
	}

	return nil
}

func (n *Notifier) publishErr(err error, id uuid.UUID, events []ec.Event) error {
	return &ec.NotifierError{
		Err:         err,
		Transport:   "kafka",
		AggregateID: id,
		Events:      events,
	}
}

// AddHandler adds a handler for the matching events written after it has
// joined its group, until the context is done or the notifier is closed.
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
	joined := make(chan struct{})
	var joinedOnce sync.Once

	groupID := n.appID + "_" + h.HandlerType().String()
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:                []string{n.addr},
		Topic:                  n.topic,
		GroupID:                groupID,     // Send messages to only one subscriber per group.
		MaxBytes:               100e3,       // 100KB
		MaxWait:                time.Second, // Allow to exit readloop in max 1s.
		PartitionWatchInterval: time.Second,
		WatchPartitionChanges:  true,
		StartOffset:            kafka.LastOffset, // Don't read old messages.
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			// The reader only reports joining its group through the logger.
			if strings.HasPrefix(msg, "Joined group") {
				joinedOnce.Do(func() { close(joined) })
			}
		}),
	})

	select {
	case <-joined:
	case <-time.After(10 * time.Second):
		_ = r.Close()

		return errors.New("did not join group in time")
	case <-ctx.Done():
		_ = r.Close()

		return fmt.Errorf("did not join group: %w", ctx.Err())
	}

	n.registered[h.HandlerType()] = struct{}{}

	// Handle until context is cancelled.
	n.wg.Add(1)

	go n.handle(ctx, m, h, r)

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

	if err := n.writer.Close(); err != nil {
		return fmt.Errorf("could not close Kafka writer: %w", err)
	}

	return nil
}

// Handles all messages of the reader, until either context is done.
func (n *Notifier) handle(ctx context.Context, m ec.EventMatcher, h ec.EventHandler, r *kafka.Reader) {
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
		msg, err := r.FetchMessage(ctx)
		if ctx.Err() != nil {
			break
		}

		if err != nil {
			n.sendErr(&ec.HandlerError{
				Err:         fmt.Errorf("could not receive: %w", err),
				HandlerType: h.HandlerType(),
			})

			// Retry the receive loop if there was an error.
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}

			continue
		}

		n.handleMessage(ctx, m, h, r, msg)
	}

	if err := r.Close(); err != nil {
		n.logger.Warn("could not close Kafka reader", slog.String("error", err.Error()))
	}
}

func (n *Notifier) handleMessage(ctx context.Context, m ec.EventMatcher, h ec.EventHandler, r *kafka.Reader, msg kafka.Message) {
	event, err := n.codec.UnmarshalEvent(ctx, msg.Value)
	if err != nil {
		n.sendErr(&ec.HandlerError{
			Err:         fmt.Errorf("could not unmarshal event: %w", err),
			HandlerType: h.HandlerType(),
		})

		return
	}

	// Handle the event if it did match.
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

	if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		n.sendErr(&ec.HandlerError{
			Err:         fmt.Errorf("could not commit event: %w", err),
			HandlerType: h.HandlerType(),
			Event:       event,
		})
	}
}

func (n *Notifier) sendErr(err error) {
	select {
	case n.errCh <- err:
	default:
		n.logger.Error("missed error in Kafka notifier", slog.String("error", err.Error()))
	}
}
