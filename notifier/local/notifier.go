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

// Package local is an in-process notifier that fans committed events out to
// subscribed handlers through per handler type queues.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	ec "github.com/kanello/eventcore"
)

// DefaultQueueSize is the default queue size per handler type.
var DefaultQueueSize = 100

// ErrClosed is returned when publishing to or subscribing on a closed group.
var ErrClosed = errors.New("notifier closed")

// ErrQueueFull is returned when events were dropped for a handler type that
// does not keep up.
var ErrQueueFull = errors.New("handler queue full")

// Notifier is a local notifier that delegates handling of published events
// to all matching registered handlers. Every handler gets the events of an
// aggregate in commit order.
type Notifier struct {
	group        *Group
	registered   map[ec.EventHandlerType]struct{}
	registeredMu sync.RWMutex
	errCh        chan error
	logger       *slog.Logger
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

var _ = ec.Notifier(&Notifier{})

// NewNotifier creates a Notifier, with optional settings.
func NewNotifier(options ...Option) (*Notifier, error) {
	n := &Notifier{
		registered: map[ec.EventHandlerType]struct{}{},
		errCh:      make(chan error, 100),
		logger:     slog.Default(),
	}

	// Apply configuration options.
	for _, option := range options {
		if option == nil {
			continue
		}

		if err := option(n); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	if n.group == nil {
		n.group = NewGroup()
	}

	return n, nil
}

// Option is an option setter used to configure creation.
type Option func(*Notifier) error

// WithGroup shares the handler queues with other notifiers of the group, a
// handler type added to several of them gets each event once.
func WithGroup(g *Group) Option {
	return func(n *Notifier) error {
		if g == nil {
			return errors.New("missing group")
		}

		n.group = g

		return nil
	}
}

// WithLogger uses the logger for errors that can not be delivered.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) error {
		n.logger = l

		return nil
	}
}

// Publish implements the Publish method of the eventcore.Notifier interface.
// It never waits for handlers: events for a handler type whose queue is full
// are dropped and reported with ErrQueueFull.
func (n *Notifier) Publish(ctx context.Context, id uuid.UUID, events []ec.Event) error {
	if err := n.group.publish(ctx, events); err != nil {
		return &ec.NotifierError{
			Err:         err,
			Transport:   "local",
			AggregateID: id,
			Events:      events,
		}
	}

	return nil
}

// AddHandler adds a handler for the matching events, until the context is done
// or the notifier is closed.
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

	// Get or create the queue.
	ch, err := n.group.channel(h.HandlerType())
	if err != nil {
		return err
	}

	n.registered[h.HandlerType()] = struct{}{}

	n.wg.Add(1)

	go n.handle(ctx, m, h, ch)

	return nil
}

// remove unregisters a handler whose context is done.
func (n *Notifier) remove(handlerType ec.EventHandlerType) {
	n.registeredMu.Lock()
	delete(n.registered, handlerType)
	n.registeredMu.Unlock()

	n.group.release(handlerType)
}

// Errors returns the errors from the handlers, as *eventcore.HandlerError.
func (n *Notifier) Errors() <-chan error {
	return n.errCh
}

// Close implements the Close method of the eventcore.Notifier interface. It
// closes the group and waits for the handlers to finish the queued events.
func (n *Notifier) Close() error {
	n.closeOnce.Do(func() {
		n.group.Close()
		n.wg.Wait()
	})

	return nil
}

// Handles all events coming in on the channel.
func (n *Notifier) handle(ctx context.Context, m ec.EventMatcher, h ec.EventHandler, ch <-chan evt) {
	defer n.wg.Done()

	for {
		select {
		case <-ctx.Done():
			n.remove(h.HandlerType())

			return
		case e, ok := <-ch:
			if !ok {
				return
			}

			if !m(e.event) {
				continue
			}

			if err := h.HandleEvent(e.ctx, e.event); err != nil {
				n.sendErr(e.ctx, &ec.HandlerError{
					Err:         err,
					HandlerType: h.HandlerType(),
					Event:       e.event,
				})
			}
		}
	}
}

func (n *Notifier) sendErr(ctx context.Context, err error) {
	select {
	case n.errCh <- err:
	default:
		n.logger.ErrorContext(ctx, "missed error in local notifier",
			slog.String("error", err.Error()))
	}
}

// Group is a set of handler queues shared by multiple local notifiers. A queue
// lives as long as a handler of its type is subscribed.
type Group struct {
	bus    map[ec.EventHandlerType]*queue
	busMu  sync.RWMutex
	closed bool
}

type queue struct {
	ch          chan evt
	subscribers int
}

// NewGroup creates a Group.
func NewGroup() *Group {
	return &Group{
		bus: map[ec.EventHandlerType]*queue{},
	}
}

type evt struct {
	ctx   context.Context
	event ec.Event
}

func (g *Group) channel(handlerType ec.EventHandlerType) (<-chan evt, error) {
	g.busMu.Lock()
	defer g.busMu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}

	q, ok := g.bus[handlerType]
	if !ok {
		q = &queue{ch: make(chan evt, DefaultQueueSize)}
		g.bus[handlerType] = q
	}

	q.subscribers++

	return q.ch, nil
}

// release drops the queue of a handler type after its last subscriber left,
// together with the events still in it.
func (g *Group) release(handlerType ec.EventHandlerType) {
	g.busMu.Lock()
	defer g.busMu.Unlock()

	q, ok := g.bus[handlerType]
	if !ok {
		return
	}

	if q.subscribers--; q.subscribers <= 0 {
		delete(g.bus, handlerType)
	}
}

func (g *Group) publish(ctx context.Context, events []ec.Event) error {
	g.busMu.RLock()
	defer g.busMu.RUnlock()

	if g.closed {
		return ErrClosed
	}

	// Handlers run after the publisher has moved on.
	handlerCtx := context.WithoutCancel(ctx)

	var full []string

	for handlerType, q := range g.bus {
		dropped, err := q.push(handlerCtx, events)
		if err != nil {
			return err
		}

		if dropped > 0 {
			full = append(full, fmt.Sprintf("%s (%d events)", handlerType, dropped))
		}
	}

	if len(full) > 0 {
		return fmt.Errorf("%w: %s", ErrQueueFull, strings.Join(full, ", "))
	}

	return nil
}

// push queues copies of the events without waiting and returns how many did
// not fit. Once one event does not fit the rest of the batch is dropped too,
// no event of a batch is queued after a dropped one.
func (q *queue) push(ctx context.Context, events []ec.Event) (int, error) {
	for i, event := range events {
		// Every queue gets its own copy.
		e, err := ec.CopyEvent(event)
		if err != nil {
			return 0, fmt.Errorf("could not copy event: %w", err)
		}

		select {
		case q.ch <- evt{ctx, e}:
		default:
			return len(events) - i, nil
		}
	}

	return 0, nil
}

// Close closes all the queues, handlers stop after the queued events.
func (g *Group) Close() {
	g.busMu.Lock()
	defer g.busMu.Unlock()

	if g.closed {
		return
	}

	for _, q := range g.bus {
		close(q.ch)
	}

	g.bus = nil
	g.closed = true
}
