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

package eventcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Notifier broadcasts committed events to subscribers outside of the
// aggregate. Publishing is best effort and is attempted once; a failed publish
// never invalidates the already committed events.
type Notifier interface {
	// Publish publishes the committed events of an aggregate, in order.
	Publish(ctx context.Context, id uuid.UUID, events []Event) error

	// Close closes the notifier and its underlying transport.
	Close() error
}

// NotifierError is an error from a notifier transport.
type NotifierError struct {
	// Err is the error.
	Err error
	// Transport is the name of the failing notifier.
	Transport string
	// AggregateID of the events being published.
	AggregateID uuid.UUID
	// Events that could not be published.
	Events []Event
}

// Error implements the Error method of the errors.Error interface.
func (e *NotifierError) Error() string {
	str := "notifier"

	if e.Transport != "" {
		str += " (" + e.Transport + ")"
	}

	str += ": "

	if e.Err != nil {
		str += e.Err.Error()
	} else {
		str += "unknown error"
	}

	if e.AggregateID != uuid.Nil {
		str += fmt.Sprintf(", %s (%d events)", e.AggregateID, len(e.Events))
	}

	return str
}

// Unwrap implements the errors.Unwrap method.
func (e *NotifierError) Unwrap() error {
	return e.Err
}

// EventHandler is a handler of events, for example a subscriber of a notifier.
type EventHandler interface {
	// HandlerType is the type of the handler.
	HandlerType() EventHandlerType

	// HandleEvent handles an event.
	HandleEvent(context.Context, Event) error
}

// EventHandlerType is the type of an event handler, used as its unique identifier.
type EventHandlerType string

// String returns the string representation of an event handler type.
func (ht EventHandlerType) String() string {
	return string(ht)
}

// EventHandlerFunc is a function that can be used as a event handler.
type EventHandlerFunc func(context.Context, Event) error

// HandleEvent implements the HandleEvent method of the EventHandler.
func (h EventHandlerFunc) HandleEvent(ctx context.Context, e Event) error {
	return h(ctx, e)
}

// HandlerType implements the HandlerType method of the EventHandler, unique
// per function value.
func (h EventHandlerFunc) HandlerType() EventHandlerType {
	return EventHandlerType(fmt.Sprintf("handler-func-%p", h))
}

// HandlerError is an asynchronous error from a subscribed event handler,
// delivered on the Errors channel of a subscribing notifier.
type HandlerError struct {
	// Err is the error.
	Err error
	// HandlerType of the failing handler, if known.
	HandlerType EventHandlerType
	// Event that was being handled, if any.
	Event Event
}

// Error implements the Error method of the errors.Error interface.
func (e *HandlerError) Error() string {
	str := "could not handle event"

	if e.HandlerType != "" {
		str += " (" + e.HandlerType.String() + ")"
	}

	str += ": "

	if e.Err != nil {
		str += e.Err.Error()
	} else {
		str += "unknown error"
	}

	if e.Event != nil {
		str += ": " + e.Event.String()
	}

	return str
}

// Unwrap implements the errors.Unwrap method.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

var (
	// ErrMissingMatcher is returned when adding a handler without a matcher.
	ErrMissingMatcher = errors.New("missing matcher")
	// ErrMissingHandler is returned when adding a handler with a nil handler.
	ErrMissingHandler = errors.New("missing handler")
	// ErrHandlerAlreadyAdded is returned when adding a handler twice.
	ErrHandlerAlreadyAdded = errors.New("handler already added")
)

// MultiNotifier publishes to several notifiers concurrently. Every notifier
// gets its attempt even if another one fails; the errors are joined.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier, nil notifiers are skipped.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{}

	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}

	return m
}

// Publish implements the Publish method of the Notifier interface.
func (m *MultiNotifier) Publish(ctx context.Context, id uuid.UUID, events []Event) error {
	errs := make([]error, len(m.notifiers))

	var g errgroup.Group

	for i, n := range m.notifiers {
		g.Go(func() error {
			errs[i] = n.Publish(ctx, id, events)

			return nil
		})
	}

	_ = g.Wait()

	return errors.Join(errs...)
}

// Close implements the Close method of the Notifier interface.
func (m *MultiNotifier) Close() error {
	var errs []error

	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
