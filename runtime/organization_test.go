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
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/domain/organization"
	"github.com/kanello/eventcore/mocks"
	"github.com/kanello/eventcore/notifier/local"
)

func newOrganization(t *testing.T) (*Runtime[organization.State], uuid.UUID, *mocks.Notifier) {
	t.Helper()

	id := uuid.New()
	n := mocks.NewNotifier()

	r, err := New[organization.State](id, organization.NewBehavior(organization.Config{}), &mocks.EventLog{}, n, discard)
	require.NoError(t, err)

	return r, id, n
}

func TestOrganizationScenario(t *testing.T) {
	ctx := context.Background()
	r, id, n := newOrganization(t)

	assert.Equal(t, uint64(0), r.Generation())
	assert.Empty(t, r.State().Usernames())

	events, err := r.Submit(ctx, &organization.RegisterUser{ID: id, Username: "Peter", Email: "peter@foo.bar"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, organization.UserRegisteredEvent, events[0].EventType())
	assert.Equal(t, organization.DefaultDomainVersion, events[0].DomainVersion())
	assert.Equal(t, organization.DefaultSource, events[0].Source())
	assert.Equal(t, []string{"Peter"}, r.State().Usernames())
	assert.Equal(t, uint64(1), r.Generation())

	_, err = r.Submit(ctx, &organization.DeleteUser{ID: id, Username: "Peter"})
	require.NoError(t, err)
	assert.Empty(t, r.State().Usernames())
	assert.Equal(t, uint64(2), r.Generation())

	require.NoError(t, r.WaitPublished(ctx))
	published := n.Published()
	require.Len(t, published, 2)
	assert.Equal(t, organization.UserDeletedEvent, published[1].EventType())
}

func TestOrganizationDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	r, id, _ := newOrganization(t)

	_, err := r.Submit(ctx, &organization.RegisterUser{ID: id, Username: "peter"})
	require.NoError(t, err)

	_, err = r.Submit(ctx, &organization.RegisterUser{ID: id, Username: "peter"})
	assert.Equal(t, Rejected, KindOf(err))

	rejection, ok := ec.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, organization.RejectionUsernameTaken, rejection.Code)

	assert.Equal(t, []string{"peter"}, r.State().Usernames())
	assert.Equal(t, uint64(1), r.Generation())
}

func TestOrganizationConcurrentRegistrations(t *testing.T) {
	const count = 100

	r, id, _ := newOrganization(t)

	var g errgroup.Group

	for i := 0; i < count; i++ {
		g.Go(func() error {
			_, err := r.Submit(context.Background(), &organization.RegisterUser{
				ID:       id,
				Username: fmt.Sprintf("user-%d", i),
			})

			return err
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, uint64(count), r.Generation())
	assert.Len(t, r.State().Usernames(), count)
}

// stuckHandler never finishes handling until released.
type stuckHandler struct {
	release chan struct{}
}

func (h *stuckHandler) HandlerType() ec.EventHandlerType { return "stuck" }

func (h *stuckHandler) HandleEvent(ctx context.Context, event ec.Event) error {
	<-h.release

	return nil
}

func TestOrganizationStuckLocalHandlers(t *testing.T) {
	ctx := context.Background()

	n, err := local.NewNotifier()
	require.NoError(t, err)

	h := &stuckHandler{release: make(chan struct{})}
	require.NoError(t, n.AddHandler(ctx, ec.MatchAny(), h))

	defer func() {
		close(h.release)
		n.Close()
	}()

	// A handler that went away without being drained.
	handlerCtx, cancel := context.WithCancel(ctx)
	require.NoError(t, n.AddHandler(handlerCtx, ec.MatchAny(), mocks.NewEventHandler("gone")))
	cancel()

	var queueFull atomic.Int32

	id := uuid.New()
	r, err := New[organization.State](id, organization.NewBehavior(organization.Config{}), &mocks.EventLog{}, n,
		discard,
		WithPublishTimeout(200*time.Millisecond),
		WithPublishErrorHandler(func(err error) {
			if errors.Is(err, local.ErrQueueFull) {
				queueFull.Add(1)
			}
		}))
	require.NoError(t, err)

	// Enough events to fill the queue of the stuck handler.
	for i := 0; i < local.DefaultQueueSize+10; i++ {
		_, err := r.Submit(ctx, &organization.RegisterUser{ID: id, Username: fmt.Sprintf("user%d", i)})
		require.NoError(t, err)
	}

	start := time.Now()

	var g errgroup.Group
	for i := 0; i < 5; i++ {
		username := fmt.Sprintf("late%d", i)
		g.Go(func() error {
			_, err := r.Submit(ctx, &organization.RegisterUser{ID: id, Username: username})
			return err
		})
	}

	require.NoError(t, g.Wait())
	assert.Less(t, time.Since(start), 200*time.Millisecond, "submits should not wait for the notifier")

	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	defer waitCancel()

	require.NoError(t, r.WaitPublished(waitCtx), "publishing should not stall on full queues")
	assert.Positive(t, queueFull.Load())
	assert.Equal(t, uint64(local.DefaultQueueSize+15), r.Generation())
}
