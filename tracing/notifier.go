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

package tracing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	ec "github.com/kanello/eventcore"
)

// ErrHandlersNotSupported is returned when adding a handler to a wrapped
// notifier that has no subscriptions.
var ErrHandlersNotSupported = errors.New("notifier does not support handlers")

type subscriber interface {
	AddHandler(context.Context, ec.EventMatcher, ec.EventHandler) error
	Errors() <-chan error
}

// Notifier is an eventcore.Notifier that adds tracing. Handlers added through
// it are traced as well.
type Notifier struct {
	ec.Notifier
}

var _ = ec.Notifier(&Notifier{})

// NewNotifier creates a Notifier.
func NewNotifier(n ec.Notifier) *Notifier {
	return &Notifier{
		Notifier: n,
	}
}

// Publish implements the Publish method of the eventcore.Notifier interface.
func (n *Notifier) Publish(ctx context.Context, id uuid.UUID, events []ec.Event) error {
	sp, ctx := opentracing.StartSpanFromContext(ctx, "Notifier.Publish")
	ext.SpanKindProducer.Set(sp)

	err := n.Notifier.Publish(ctx, id, events)

	sp.SetTag("ec.aggregate_id", id.String())
	sp.SetTag("ec.events_count", len(events))

	if err != nil {
		ext.LogError(sp, err)
	}

	sp.Finish()

	return err
}

// AddHandler adds the handler wrapped in tracing to the inner notifier.
func (n *Notifier) AddHandler(ctx context.Context, m ec.EventMatcher, h ec.EventHandler) error {
	s, ok := n.Notifier.(subscriber)
	if !ok {
		return ErrHandlersNotSupported
	}

	if h == nil {
		return ec.ErrMissingHandler
	}

	return s.AddHandler(ctx, m, NewEventHandler(h))
}

// Errors returns the handler errors of the inner notifier, or nil if it has no
// subscriptions.
func (n *Notifier) Errors() <-chan error {
	if s, ok := n.Notifier.(subscriber); ok {
		return s.Errors()
	}

	return nil
}

// NewEventHandler wraps an event handler with tracing spans, keeping its type.
func NewEventHandler(h ec.EventHandler) ec.EventHandler {
	return &eventHandler{h}
}

type eventHandler struct {
	ec.EventHandler
}

// HandleEvent implements the HandleEvent method of the eventcore.EventHandler interface.
func (h *eventHandler) HandleEvent(ctx context.Context, event ec.Event) error {
	opName := fmt.Sprintf("%s.Event(%s)", h.HandlerType(), event.EventType())
	sp, ctx := opentracing.StartSpanFromContext(ctx, opName)
	ext.SpanKindConsumer.Set(sp)

	err := h.EventHandler.HandleEvent(ctx, event)
	if err != nil {
		ext.LogError(sp, err)
	}

	sp.SetTag("ec.event_type", event.EventType().String())
	sp.SetTag("ec.aggregate_type", event.AggregateType().String())
	sp.SetTag("ec.aggregate_id", event.AggregateID().String())
	sp.SetTag("ec.generation", event.Generation())

	sp.Finish()

	return err
}
