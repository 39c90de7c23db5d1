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

package mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	ec "github.com/kanello/eventcore"
)

func TestMocks(t *testing.T) {
	var cmd interface{}
	cmd = Command{}
	if _, ok := cmd.(ec.Command); !ok {
		t.Error("the mocked command is incorrect")
	}

	cmd = CommandOther{}
	if _, ok := cmd.(ec.Command); !ok {
		t.Error("the mocked command other is incorrect")
	}

	var commandHandler interface{}
	commandHandler = &CommandHandler{}
	if _, ok := commandHandler.(ec.CommandHandler); !ok {
		t.Error("the mocked command handler is incorrect")
	}

	var eventHandler interface{}
	eventHandler = &EventHandler{}
	if _, ok := eventHandler.(ec.EventHandler); !ok {
		t.Error("the mocked event handler is incorrect")
	}

	var eventLog interface{}
	eventLog = &EventLog{}
	if _, ok := eventLog.(ec.EventLog); !ok {
		t.Error("the mocked event log is incorrect")
	}

	var notifier interface{}
	notifier = &Notifier{}
	if _, ok := notifier.(ec.Notifier); !ok {
		t.Error("the mocked notifier is incorrect")
	}
}

func TestBehavior(t *testing.T) {
	b := &Behavior{}
	id := uuid.New()
	now := time.Now()

	events, err := b.Decide(State{Generation: 2}, Command{ID: id, Content: "a", Extra: []string{"b"}}, now)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if len(events) != 2 || events[0].Generation() != 3 || events[1].Generation() != 4 {
		t.Error("the events should be for the following generations:", events)
	}

	s := ec.Fold[State](b, State{Generation: 2}, events)
	if s.Generation != 4 || len(s.Contents) != 2 {
		t.Error("the state should be correct:", s)
	}

	if _, err := b.Decide(s, CommandOther{ID: id}, now); err == nil {
		t.Error("the other command should be rejected")
	} else if r, ok := ec.AsRejection(err); !ok || r.Code != RejectionCode {
		t.Error("the error should be a rejection:", err)
	}

	if b.Decisions() != 2 {
		t.Error("the decisions should be counted:", b.Decisions())
	}
}

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	l := &EventLog{}
	id := uuid.New()
	e := ec.NewEvent(EventType, &EventData{"a"}, time.Now(), ec.ForAggregate(AggregateType, id, 1))

	if err := l.Append(ctx, id, 0, []ec.Event{e}); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := l.Append(ctx, id, 0, []ec.Event{e}); !errors.Is(err, ec.ErrConflict) {
		t.Error("there should be a conflict:", err)
	}

	loadErr := errors.New("load")
	l.SetErrors(nil, loadErr)

	if _, err := l.Load(ctx, id); !errors.Is(err, loadErr) {
		t.Error("there should be the simulated error:", err)
	}
}
