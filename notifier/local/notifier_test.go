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

package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/mocks"
	"github.com/kanello/eventcore/notifier"
)

func TestNotifier(t *testing.T) {
	group := NewGroup()

	bus1, err := NewNotifier(WithGroup(group))
	require.NoError(t, err)

	bus2, err := NewNotifier(WithGroup(group))
	require.NoError(t, err)

	notifier.AcceptanceTest(t, bus1, bus2, time.Second)

	assert.NoError(t, bus1.Close())
	assert.NoError(t, bus2.Close())
}

func TestNotifierCopiesEvents(t *testing.T) {
	n, err := NewNotifier()
	require.NoError(t, err)

	defer n.Close()

	h := mocks.NewEventHandler("copy")
	require.NoError(t, n.AddHandler(context.Background(), ec.MatchAny(), h))

	id := uuid.New()
	data := &mocks.EventData{Content: "original"}
	event := ec.NewEvent(mocks.EventType, data, time.Now(), ec.ForAggregate(mocks.AggregateType, id, 1))

	require.NoError(t, n.Publish(context.Background(), id, []ec.Event{event}))

	received := h.WaitForEvent(t)
	require.NotNil(t, received)

	data.Content = "changed"

	assert.Equal(t, "original", received.Data().(*mocks.EventData).Content)
}

func TestNotifierOrder(t *testing.T) {
	n, err := NewNotifier()
	require.NoError(t, err)

	defer n.Close()

	h := mocks.NewEventHandler("order")
	require.NoError(t, n.AddHandler(context.Background(), ec.MatchAny(), h))

	id := uuid.New()

	var events []ec.Event
	for i := 1; i <= 50; i++ {
		events = append(events, ec.NewEvent(mocks.EventType, nil, time.Now(),
			ec.ForAggregate(mocks.AggregateType, id, uint64(i))))
	}

	require.NoError(t, n.Publish(context.Background(), id, events[:20]))
	require.NoError(t, n.Publish(context.Background(), id, events[20:]))

	for i := 1; i <= 50; i++ {
		e := h.WaitForEvent(t)
		require.NotNil(t, e)
		assert.Equal(t, uint64(i), e.Generation())
	}
}

// blockingHandler blocks in HandleEvent until released.
type blockingHandler struct {
	handling chan struct{}
	release  chan struct{}
}

func (h *blockingHandler) HandlerType() ec.EventHandlerType { return "blocking" }

func (h *blockingHandler) HandleEvent(ctx context.Context, event ec.Event) error {
	select {
	case h.handling <- struct{}{}:
	default:
	}

	<-h.release

	return nil
}

func queued(g *Group) int {
	g.busMu.RLock()
	defer g.busMu.RUnlock()

	return len(g.bus)
}

func TestNotifierFullQueue(t *testing.T) {
	defer func(size int) { DefaultQueueSize = size }(DefaultQueueSize)
	DefaultQueueSize = 1

	n, err := NewNotifier()
	require.NoError(t, err)

	h := &blockingHandler{
		handling: make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	require.NoError(t, n.AddHandler(context.Background(), ec.MatchAny(), h))

	defer func() {
		close(h.release)
		n.Close()
	}()

	id := uuid.New()
	event := func(generation uint64) ec.Event {
		return ec.NewEvent(mocks.EventType, nil, time.Now(), ec.ForAggregate(mocks.AggregateType, id, generation))
	}

	// The handler holds the first event, the second fills the queue.
	require.NoError(t, n.Publish(context.Background(), id, []ec.Event{event(1)}))
	<-h.handling
	require.NoError(t, n.Publish(context.Background(), id, []ec.Event{event(2)}))

	done := make(chan error, 1)
	go func() {
		done <- n.Publish(context.Background(), id, []ec.Event{event(3), event(4)})
	}()

	select {
	case err = <-done:
	case <-time.After(time.Second):
		t.Fatal("publishing should not wait for a full queue")
	}

	var notifierErr *ec.NotifierError
	require.ErrorAs(t, err, &notifierErr)
	assert.Equal(t, "local", notifierErr.Transport)
	assert.Equal(t, id, notifierErr.AggregateID)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Contains(t, err.Error(), "blocking (2 events)")
}

func TestNotifierRemovesCancelledHandlers(t *testing.T) {
	defer func(size int) { DefaultQueueSize = size }(DefaultQueueSize)
	DefaultQueueSize = 1

	group := NewGroup()

	n, err := NewNotifier(WithGroup(group))
	require.NoError(t, err)

	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, n.AddHandler(ctx, ec.MatchAny(), mocks.NewEventHandler("gone")))
	require.Equal(t, 1, queued(group))

	cancel()
	require.Eventually(t, func() bool { return queued(group) == 0 }, time.Second, time.Millisecond,
		"the queue should be removed with its last handler")

	id := uuid.New()
	for i := 1; i <= 10; i++ {
		err := n.Publish(context.Background(), id, []ec.Event{
			ec.NewEvent(mocks.EventType, nil, time.Now(), ec.ForAggregate(mocks.AggregateType, id, uint64(i))),
		})
		require.NoError(t, err)
	}

	// The handler type can be added again.
	h := mocks.NewEventHandler("gone")
	require.NoError(t, n.AddHandler(context.Background(), ec.MatchAny(), h))
	require.NoError(t, n.Publish(context.Background(), id, []ec.Event{
		ec.NewEvent(mocks.EventType, nil, time.Now(), ec.ForAggregate(mocks.AggregateType, id, 11)),
	}))

	e := h.WaitForEvent(t)
	require.NotNil(t, e)
	assert.Equal(t, uint64(11), e.Generation())
}

func TestNotifierSharedQueueOutlivesOneHandler(t *testing.T) {
	group := NewGroup()

	bus1, err := NewNotifier(WithGroup(group))
	require.NoError(t, err)

	defer bus1.Close()

	bus2, err := NewNotifier(WithGroup(group))
	require.NoError(t, err)

	defer bus2.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus1.AddHandler(ctx, ec.MatchAny(), mocks.NewEventHandler("shared")))

	h := mocks.NewEventHandler("shared")
	require.NoError(t, bus2.AddHandler(context.Background(), ec.MatchAny(), h))

	cancel()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, queued(group))

	id := uuid.New()
	require.NoError(t, bus1.Publish(context.Background(), id, []ec.Event{
		ec.NewEvent(mocks.EventType, nil, time.Now(), ec.ForAggregate(mocks.AggregateType, id, 1)),
	}))

	e := h.WaitForEvent(t)
	require.NotNil(t, e)
}

func TestNotifierClosed(t *testing.T) {
	n, err := NewNotifier()
	require.NoError(t, err)

	h := mocks.NewEventHandler("closed")
	require.NoError(t, n.AddHandler(context.Background(), ec.MatchAny(), h))

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())

	id := uuid.New()
	err = n.Publish(context.Background(), id, []ec.Event{
		ec.NewEvent(mocks.EventType, nil, time.Now(), ec.ForAggregate(mocks.AggregateType, id, 1)),
	})
	assert.True(t, errors.Is(err, ErrClosed), "there should be a closed error: %v", err)

	err = n.AddHandler(context.Background(), ec.MatchAny(), mocks.NewEventHandler("late"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNotifierMissingGroup(t *testing.T) {
	_, err := NewNotifier(WithGroup(nil))
	assert.Error(t, err)
}
