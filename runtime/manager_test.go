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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/domain/organization"
	"github.com/kanello/eventcore/mocks"
)

func TestManager(t *testing.T) {
	ctx := context.Background()
	l := &mocks.EventLog{}
	n := mocks.NewNotifier()

	_, err := NewManager[mocks.State](nil, l, n)
	assert.ErrorIs(t, err, ErrMissingBehavior)

	m, err := NewManager[mocks.State](&mocks.Behavior{}, l, n, discard)
	require.NoError(t, err)

	id1, id2 := uuid.New(), uuid.New()

	_, err = m.HandleCommand(ctx, mocks.Command{ID: id1, Content: "a"})
	require.NoError(t, err)
	_, err = m.HandleCommand(ctx, mocks.Command{ID: id2, Content: "b"})
	require.NoError(t, err)
	_, err = m.HandleCommand(ctx, mocks.Command{ID: id1, Content: "c"})
	require.NoError(t, err)

	r1, err := m.Runtime(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, r1.State().Contents)

	r2, err := m.Runtime(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, r2.State().Contents)

	again, err := m.Runtime(ctx, id1)
	require.NoError(t, err)
	assert.Same(t, r1, again)
	assert.ElementsMatch(t, []uuid.UUID{id1, id2}, m.Loaded())
}

func TestManagerReplaysOnFirstUse(t *testing.T) {
	ctx := context.Background()
	b := &mocks.Behavior{}
	l := &mocks.EventLog{}
	id := uuid.New()

	m1, err := NewManager[mocks.State](b, l, nil, discard)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := m1.HandleCommand(ctx, mocks.Command{ID: id, Content: fmt.Sprint(i)})
		require.NoError(t, err)
	}

	// A new process over the same log.
	m2, err := NewManager[mocks.State](b, l, nil, discard)
	require.NoError(t, err)

	events, err := m2.HandleCommand(ctx, mocks.Command{ID: id, Content: "3"})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), events[0].Generation())
}

func TestManagerLoadsOnce(t *testing.T) {
	l := &mocks.EventLog{}
	m, err := NewManager[mocks.State](&mocks.Behavior{}, l, nil, discard)
	require.NoError(t, err)

	id := uuid.New()

	var (
		g        errgroup.Group
		mu       sync.Mutex
		runtimes = map[*Runtime[mocks.State]]struct{}{}
	)

	for i := 0; i < 20; i++ {
		g.Go(func() error {
			r, err := m.Runtime(context.Background(), id)
			if err != nil {
				return err
			}

			mu.Lock()
			runtimes[r] = struct{}{}
			mu.Unlock()

			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Len(t, runtimes, 1)
}

func TestManagerErrors(t *testing.T) {
	ctx := context.Background()
	l := &mocks.EventLog{}
	m, err := NewManager[mocks.State](&mocks.Behavior{}, l, nil, discard)
	require.NoError(t, err)

	_, err = m.HandleCommand(ctx, nil)
	assert.ErrorIs(t, err, ec.ErrUnknownCommand)

	_, err = m.HandleCommand(ctx, &organization.RegisterUser{ID: uuid.New(), Username: "a"})
	assert.ErrorIs(t, err, ErrMismatchedAggregate)

	loadErr := errors.New("load error")
	l.SetErrors(nil, loadErr)

	_, err = m.HandleCommand(ctx, mocks.Command{ID: uuid.New(), Content: "a"})
	assert.ErrorIs(t, err, loadErr)
	assert.Equal(t, Failed, KindOf(err))
	assert.Empty(t, m.Loaded(), "a failed load should not be kept")
}

// gatedEventLog holds loads until released.
type gatedEventLog struct {
	mocks.EventLog

	loading chan struct{}
	release chan struct{}
}

func (l *gatedEventLog) Load(ctx context.Context, id uuid.UUID) ([]ec.Event, error) {
	l.loading <- struct{}{}

	select {
	case <-l.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return l.EventLog.Load(ctx, id)
}

func TestManagerLoadOutlivesFirstCaller(t *testing.T) {
	l := &gatedEventLog{
		loading: make(chan struct{}, 1),
		release: make(chan struct{}),
	}

	m, err := NewManager[mocks.State](&mocks.Behavior{}, l, nil, discard)
	require.NoError(t, err)

	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())

	first := make(chan error, 1)
	go func() {
		_, err := m.Runtime(ctx, id)
		first <- err
	}()

	<-l.loading

	second := make(chan error, 1)
	go func() {
		_, err := m.Runtime(context.Background(), id)
		second <- err
	}()

	// Let the second caller join the load.
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-first, context.Canceled)

	close(l.release)
	assert.NoError(t, <-second, "the load should not be cancelled by the first caller")
	assert.Equal(t, []uuid.UUID{id}, m.Loaded())
}

func TestManagerWaitPublished(t *testing.T) {
	ctx := context.Background()
	n := mocks.NewNotifier()
	n.Delay = 20 * time.Millisecond

	m, err := NewManager[mocks.State](&mocks.Behavior{}, &mocks.EventLog{}, n, discard)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := m.HandleCommand(ctx, mocks.Command{ID: uuid.New(), Content: fmt.Sprint(i)})
		require.NoError(t, err)
	}

	require.NoError(t, m.WaitPublished(ctx))
	assert.Len(t, n.Published(), 3)
}
