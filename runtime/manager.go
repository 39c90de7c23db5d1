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

package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	ec "github.com/kanello/eventcore"
)

// Manager routes commands to the runtime of their aggregate, loading runtimes
// from the event log on first use. Instances are independent of each other.
type Manager[S any] struct {
	behavior ec.Behavior[S]
	log      ec.EventLog
	notifier ec.Notifier
	opts     []Option

	runtimes   map[uuid.UUID]*Runtime[S]
	runtimesMu sync.RWMutex
	loads      singleflight.Group
}

var _ = ec.CommandHandler(&Manager[struct{}]{})

// NewManager creates a manager for the aggregates of a behavior. The options
// are used for every runtime.
func NewManager[S any](behavior ec.Behavior[S], log ec.EventLog, notifier ec.Notifier, opts ...Option) (*Manager[S], error) {
	if behavior == nil {
		return nil, ErrMissingBehavior
	}

	if log == nil {
		return nil, ErrMissingEventLog
	}

	if _, err := newOptions(opts); err != nil {
		return nil, err
	}

	m := &Manager[S]{
		behavior: behavior,
		log:      log,
		notifier: notifier,
		opts:     opts,
		runtimes: map[uuid.UUID]*Runtime[S]{},
	}

	return m, nil
}

// HandleCommand implements the HandleCommand method of the
// eventcore.CommandHandler interface.
func (m *Manager[S]) HandleCommand(ctx context.Context, cmd ec.Command) ([]ec.Event, error) {
	if cmd == nil {
		return nil, &CommandError{Kind: Failed, Err: ec.ErrUnknownCommand}
	}

	if cmd.AggregateType() != m.behavior.AggregateType() {
		return nil, &CommandError{
			Kind:        Failed,
			AggregateID: cmd.AggregateID(),
			Err:         fmt.Errorf("%w: %s", ErrMismatchedAggregate, cmd.AggregateType()),
		}
	}

	r, err := m.Runtime(ctx, cmd.AggregateID())
	if err != nil {
		return nil, &CommandError{
			Kind:        Failed,
			AggregateID: cmd.AggregateID(),
			Err:         err,
		}
	}

	return r.Submit(ctx, cmd)
}

// Runtime returns the runtime of an aggregate, loading it if needed.
// Concurrent first uses of the same aggregate load it once. The load is not
// cancelled by the caller that started it, other callers may be waiting on it;
// a caller that gives up returns its context's error.
func (m *Manager[S]) Runtime(ctx context.Context, id uuid.UUID) (*Runtime[S], error) {
	m.runtimesMu.RLock()
	r, ok := m.runtimes[id]
	m.runtimesMu.RUnlock()

	if ok {
		return r, nil
	}

	loadCtx := context.WithoutCancel(ctx)

	ch := m.loads.DoChan(id.String(), func() (interface{}, error) {
		m.runtimesMu.RLock()
		r, ok := m.runtimes[id]
		m.runtimesMu.RUnlock()

		if ok {
			return r, nil
		}

		r, err := Load(loadCtx, id, m.behavior, m.log, m.notifier, m.opts...)
		if err != nil {
			return nil, fmt.Errorf("could not load aggregate: %w", err)
		}

		m.runtimesMu.Lock()
		m.runtimes[id] = r
		m.runtimesMu.Unlock()

		return r, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.(*Runtime[S]), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitPublished waits until the committed events of all loaded aggregates
// have been handed to the notifier.
func (m *Manager[S]) WaitPublished(ctx context.Context) error {
	m.runtimesMu.RLock()
	runtimes := make([]*Runtime[S], 0, len(m.runtimes))
	for _, r := range m.runtimes {
		runtimes = append(runtimes, r)
	}
	m.runtimesMu.RUnlock()

	for _, r := range runtimes {
		if err := r.WaitPublished(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Loaded returns the IDs of the loaded aggregates.
func (m *Manager[S]) Loaded() []uuid.UUID {
	m.runtimesMu.RLock()
	defer m.runtimesMu.RUnlock()

	ids := make([]uuid.UUID, 0, len(m.runtimes))
	for id := range m.runtimes {
		ids = append(ids, id)
	}

	return ids
}
