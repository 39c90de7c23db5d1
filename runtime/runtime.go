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

// Package runtime runs aggregates: it owns the current state of each
// aggregate instance and is its single writer.
//
// The submit process is as follows:
//  1. The command is decided on the current state.
//  2. The resulting events are appended to the event log, expecting the
//     generation of the state.
//  3. The events are folded into a new state.
//  4. The events are queued for publishing with the notifier.
//
// Steps 1 to 4 are serialized per instance. The queue is drained by one
// publisher per instance, in commit order, so Submit returns once the events
// are committed and a slow notifier never holds up later commits.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	ec "github.com/kanello/eventcore"
)

// Runtime is the single writer of one aggregate instance.
type Runtime[S any] struct {
	id       uuid.UUID
	behavior ec.Behavior[S]
	log      ec.EventLog
	notifier ec.Notifier
	opts     options

	// write is held while deciding, appending, evolving and queueing.
	write *semaphore.Weighted

	publishMu sync.Mutex
	pending   []pendingPublish
	// idle is closed when the publisher has drained the queue, nil when no
	// publisher is running.
	idle chan struct{}

	stateMu sync.RWMutex
	state   S
	// stale is set when the log is known to be ahead of the state.
	stale bool
}

// New creates a runtime for an aggregate without events, starting from the
// initial state of the behavior. The notifier is optional.
func New[S any](id uuid.UUID, behavior ec.Behavior[S], log ec.EventLog, notifier ec.Notifier, opts ...Option) (*Runtime[S], error) {
	if behavior == nil {
		return nil, ErrMissingBehavior
	}

	if log == nil {
		return nil, ErrMissingEventLog
	}

	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	r := &Runtime[S]{
		id:       id,
		behavior: behavior,
		log:      log,
		notifier: notifier,
		opts:     o,
		write:    semaphore.NewWeighted(1),
		state:    behavior.InitialState(),
	}

	return r, nil
}

// Load creates a runtime for an aggregate and replays its events from the log.
func Load[S any](ctx context.Context, id uuid.UUID, behavior ec.Behavior[S], log ec.EventLog, notifier ec.Notifier, opts ...Option) (*Runtime[S], error) {
	r, err := New(id, behavior, log, notifier, opts...)
	if err != nil {
		return nil, err
	}

	if err := r.reload(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

// AggregateID returns the ID of the aggregate of the runtime.
func (r *Runtime[S]) AggregateID() uuid.UUID {
	return r.id
}

// State returns the current state. States with a Clone() S method are cloned.
func (r *Runtime[S]) State() S {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	if c, ok := any(r.state).(interface{ Clone() S }); ok {
		return c.Clone()
	}

	return r.state
}

// Generation returns the generation of the current state.
func (r *Runtime[S]) Generation() uint64 {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	return r.behavior.Generation(r.state)
}

// Snapshot returns the current state together with its generation.
func (r *Runtime[S]) Snapshot() (S, uint64) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	generation := r.behavior.Generation(r.state)

	if c, ok := any(r.state).(interface{ Clone() S }); ok {
		return c.Clone(), generation
	}

	return r.state, generation
}

// Reload replaces the state by replaying all events from the log.
func (r *Runtime[S]) Reload(ctx context.Context) error {
	if err := r.write.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.write.Release(1)

	return r.reload(ctx)
}

// Submit handles a command and returns the committed events. Errors from
// deciding and appending are returned as *CommandError. A command that is
// cancelled before its events are appended leaves the state untouched and can
// be retried. Once appended, the events are returned even if publishing them
// fails; publish errors are only logged. Publishing happens after Submit
// returns, see WaitPublished.
func (r *Runtime[S]) Submit(ctx context.Context, cmd ec.Command) ([]ec.Event, error) {
	if cmd == nil {
		return nil, &CommandError{Kind: Failed, AggregateID: r.id, Err: ec.ErrUnknownCommand}
	}

	if cmd.AggregateID() != r.id || cmd.AggregateType() != r.behavior.AggregateType() {
		return nil, &CommandError{
			Kind:        Failed,
			AggregateID: r.id,
			Err: fmt.Errorf("%w: %s(%s)",
				ErrMismatchedAggregate, cmd.AggregateType(), cmd.AggregateID()),
		}
	}

	if err := r.write.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	events, err := r.commit(ctx, cmd)
	if err != nil {
		r.write.Release(1)

		return nil, err
	}

	if len(events) == 0 {
		r.write.Release(1)

		return nil, nil
	}

	// Queued under the write lock to keep the commit order.
	r.enqueue(ctx, events)
	r.write.Release(1)

	return events, nil
}

// WaitPublished waits until all events committed so far have been handed to
// the notifier, or the context is done.
func (r *Runtime[S]) WaitPublished(ctx context.Context) error {
	r.publishMu.Lock()
	idle := r.idle
	r.publishMu.Unlock()

	if idle == nil {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type pendingPublish struct {
	ctx    context.Context
	events []ec.Event
}

// enqueue queues committed events and starts the publisher if needed.
func (r *Runtime[S]) enqueue(ctx context.Context, events []ec.Event) {
	if r.notifier == nil {
		return
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	r.pending = append(r.pending, pendingPublish{
		ctx:    context.WithoutCancel(ctx),
		events: events,
	})

	if r.idle == nil {
		r.idle = make(chan struct{})

		go r.drain()
	}
}

// drain publishes the queued events in order until the queue is empty.
func (r *Runtime[S]) drain() {
	for {
		r.publishMu.Lock()

		if len(r.pending) == 0 {
			close(r.idle)
			r.idle = nil
			r.publishMu.Unlock()

			return
		}

		p := r.pending[0]
		r.pending[0] = pendingPublish{}
		r.pending = r.pending[1:]
		r.publishMu.Unlock()

		r.publishEvents(p.ctx, p.events)
	}
}

// commit decides, appends and evolves. Must be called holding the write lock.
func (r *Runtime[S]) commit(ctx context.Context, cmd ec.Command) ([]ec.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.stale {
		if err := r.reload(ctx); err != nil {
			return nil, &CommandError{
				Kind:        Failed,
				AggregateID: r.id,
				Err:         fmt.Errorf("could not reload state: %w", err),
			}
		}
	}

	// The state is only replaced by this goroutine while holding the write
	// lock, no read lock is needed.
	state := r.state

	events, err := r.behavior.Decide(state, cmd, r.opts.clock())
	if err != nil {
		kind := Failed
		if _, ok := ec.AsRejection(err); ok {
			kind = Rejected
		}

		return nil, &CommandError{Kind: kind, AggregateID: r.id, Err: err}
	}

	if len(events) == 0 {
		return nil, nil
	}

	generation := r.behavior.Generation(state)
	if err := r.log.Append(ctx, r.id, generation, events); err != nil {
		// Whether a failed append was written is unknown, reload next time.
		r.stale = true

		kind := Failed
		if errors.Is(err, ec.ErrConflict) {
			kind = Conflict

			r.opts.logger.InfoContext(ctx, "generation conflict, state will be reloaded",
				slog.String("aggregate_id", r.id.String()),
				slog.Uint64("generation", generation),
			)
		}

		return nil, &CommandError{Kind: kind, AggregateID: r.id, Err: err}
	}

	next := ec.Fold(r.behavior, state, events)

	r.stateMu.Lock()
	r.state = next
	r.stateMu.Unlock()

	r.opts.logger.DebugContext(ctx, "committed events",
		slog.String("aggregate_id", r.id.String()),
		slog.String("command_type", cmd.CommandType().String()),
		slog.Int("events_count", len(events)),
		slog.Uint64("generation", r.behavior.Generation(next)),
	)

	return events, nil
}

// publishEvents publishes committed events on a context detached from the
// caller's cancellation.
func (r *Runtime[S]) publishEvents(ctx context.Context, events []ec.Event) {
	if r.opts.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.publishTimeout)
		defer cancel()
	}

	if err := r.notifier.Publish(ctx, r.id, events); err != nil {
		r.opts.logger.WarnContext(ctx, "could not publish committed events",
			slog.String("aggregate_id", r.id.String()),
			slog.Uint64("generation", events[len(events)-1].Generation()),
			slog.Int("events_count", len(events)),
			slog.String("error", err.Error()),
		)

		if r.opts.onPublishError != nil {
			r.opts.onPublishError(err)
		}
	}
}

// reload replays the log. Must be called holding the write lock.
func (r *Runtime[S]) reload(ctx context.Context) error {
	events, err := r.log.Load(ctx, r.id)
	if err != nil {
		return fmt.Errorf("could not load events: %w", err)
	}

	state := r.behavior.InitialState()

	for _, e := range events {
		if e.AggregateType() != r.behavior.AggregateType() {
			return fmt.Errorf("%w: %s", ErrMismatchedEventType, e)
		}

		if e.Generation() != r.behavior.Generation(state)+1 {
			return fmt.Errorf("%w: %s", ErrIncorrectEventGeneration, e)
		}

		state = r.behavior.Evolve(state, e)
	}

	r.stateMu.Lock()
	r.state = state
	r.stale = false
	r.stateMu.Unlock()

	return nil
}
