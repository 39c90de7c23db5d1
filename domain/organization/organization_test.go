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

package organization

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kr/pretty"

	ec "github.com/kanello/eventcore"
)

var now = time.Date(2017, time.July, 10, 23, 0, 0, 0, time.UTC)

func stateWith(generation uint64, usernames ...string) State {
	s := NewState()
	for _, u := range usernames {
		s.TakenUsernames[u] = struct{}{}
	}

	s.Generation = generation

	return s
}

type otherCommand struct{ id uuid.UUID }

func (c *otherCommand) AggregateType() ec.AggregateType { return AggregateType }
func (c *otherCommand) AggregateID() uuid.UUID          { return c.id }
func (c *otherCommand) CommandType() ec.CommandType     { return "organization:other" }

func TestBehaviorDecide(t *testing.T) {
	id := uuid.New()
	b := NewBehavior(Config{})

	cases := map[string]struct {
		state             State
		cmd               ec.Command
		expectedEvents    []ec.Event
		expectedRejection string
		expectedErr       error
	}{
		"register": {
			NewState(),
			&RegisterUser{ID: id, Username: "Peter", Email: "peter@foo.bar"},
			[]ec.Event{
				ec.NewEvent(UserRegisteredEvent, &UserRegisteredData{
					Username: "Peter",
					Email:    "peter@foo.bar",
				}, now,
					ec.ForAggregate(AggregateType, id, 1),
					ec.FromSource(DefaultDomainVersion, DefaultSource)),
			},
			"",
			nil,
		},
		"register at later generation": {
			stateWith(7, "alice"),
			&RegisterUser{ID: id, Username: "bob"},
			[]ec.Event{
				ec.NewEvent(UserRegisteredEvent, &UserRegisteredData{
					Username: "bob",
				}, now,
					ec.ForAggregate(AggregateType, id, 8),
					ec.FromSource(DefaultDomainVersion, DefaultSource)),
			},
			"",
			nil,
		},
		"register (taken)": {
			stateWith(1, "Peter"),
			&RegisterUser{ID: id, Username: "Peter", Email: "other@foo.bar"},
			nil,
			RejectionUsernameTaken,
			nil,
		},
		"register (case sensitive)": {
			stateWith(1, "Peter"),
			&RegisterUser{ID: id, Username: "peter"},
			[]ec.Event{
				ec.NewEvent(UserRegisteredEvent, &UserRegisteredData{
					Username: "peter",
				}, now,
					ec.ForAggregate(AggregateType, id, 2),
					ec.FromSource(DefaultDomainVersion, DefaultSource)),
			},
			"",
			nil,
		},
		"register (empty username)": {
			NewState(),
			&RegisterUser{ID: id, Username: "  "},
			nil,
			RejectionUsernameEmpty,
			nil,
		},
		"delete": {
			stateWith(1, "Peter"),
			&DeleteUser{ID: id, Username: "Peter"},
			[]ec.Event{
				ec.NewEvent(UserDeletedEvent, &UserDeletedData{
					Username: "Peter",
				}, now,
					ec.ForAggregate(AggregateType, id, 2),
					ec.FromSource(DefaultDomainVersion, DefaultSource)),
			},
			"",
			nil,
		},
		"delete (not registered)": {
			stateWith(1, "Peter"),
			&DeleteUser{ID: id, Username: "Paul"},
			nil,
			RejectionUsernameNotFound,
			nil,
		},
		"unknown command": {
			NewState(),
			&otherCommand{id},
			nil,
			"",
			ec.ErrUnknownCommand,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			events, err := b.Decide(tc.state, tc.cmd, now)

			switch {
			case tc.expectedRejection != "":
				r, ok := ec.AsRejection(err)
				if !ok || r.Code != tc.expectedRejection {
					t.Errorf("test case '%s': incorrect rejection", name)
					t.Log("exp:", tc.expectedRejection)
					t.Log("got:", err)
				}
			case tc.expectedErr != nil:
				if !errors.Is(err, tc.expectedErr) {
					t.Errorf("test case '%s': incorrect error", name)
					t.Log("exp:", tc.expectedErr)
					t.Log("got:", err)
				}
			case err != nil:
				t.Errorf("test case '%s': there should be no error: %s", name, err)
			}

			if !reflect.DeepEqual(events, tc.expectedEvents) {
				t.Errorf("test case '%s': incorrect events", name)
				t.Log("exp:\n", pretty.Sprint(tc.expectedEvents))
				t.Log("got:\n", pretty.Sprint(events))
			}
		})
	}
}

func TestBehaviorDecideDoesNotModifyState(t *testing.T) {
	b := NewBehavior(Config{})
	s := stateWith(3, "alice")

	if _, err := b.Decide(s, &RegisterUser{ID: uuid.New(), Username: "bob"}, now); err != nil {
		t.Fatal("there should be no error:", err)
	}

	if !reflect.DeepEqual(s, stateWith(3, "alice")) {
		t.Error("the state should not be modified:", pretty.Sprint(s))
	}
}

func TestBehaviorConfig(t *testing.T) {
	b := NewBehavior(Config{DomainVersion: "2.1", Source: "events://example.com/org"})

	events, err := b.Decide(NewState(), &RegisterUser{ID: uuid.New(), Username: "a"}, now)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if events[0].DomainVersion() != "2.1" {
		t.Error("the domain version should be correct:", events[0].DomainVersion())
	}

	if events[0].Source() != "events://example.com/org" {
		t.Error("the source should be correct:", events[0].Source())
	}
}

func registered(id uuid.UUID, generation uint64, username, email string) ec.Event {
	return ec.NewEvent(UserRegisteredEvent, &UserRegisteredData{Username: username, Email: email}, now,
		ec.ForAggregate(AggregateType, id, generation))
}

func deleted(id uuid.UUID, generation uint64, username string) ec.Event {
	return ec.NewEvent(UserDeletedEvent, &UserDeletedData{Username: username}, now,
		ec.ForAggregate(AggregateType, id, generation))
}

func TestBehaviorEvolve(t *testing.T) {
	id := uuid.New()
	b := NewBehavior(Config{})

	cases := map[string]struct {
		state    State
		event    ec.Event
		expected State
	}{
		"registered": {
			NewState(),
			registered(id, 1, "a", "a@x"),
			stateWith(1, "a"),
		},
		"registered (already present)": {
			stateWith(4, "a"),
			registered(id, 5, "a", "a@x"),
			stateWith(5, "a"),
		},
		"deleted": {
			stateWith(2, "a", "b"),
			deleted(id, 3, "a"),
			stateWith(3, "b"),
		},
		"deleted (absent)": {
			stateWith(2, "b"),
			deleted(id, 3, "a"),
			stateWith(3, "b"),
		},
		"unknown event": {
			stateWith(2, "b"),
			ec.NewEvent("organization:other", nil, now, ec.ForAggregate(AggregateType, id, 3)),
			stateWith(3, "b"),
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			before := tc.state.Clone()
			s := b.Evolve(tc.state, tc.event)

			if !reflect.DeepEqual(s, tc.expected) {
				t.Errorf("test case '%s': incorrect state", name)
				t.Log("exp:\n", pretty.Sprint(tc.expected))
				t.Log("got:\n", pretty.Sprint(s))
			}

			if !reflect.DeepEqual(tc.state, before) {
				t.Errorf("test case '%s': the input state should not be modified", name)
			}
		})
	}
}

func TestFoldRoundTrip(t *testing.T) {
	id := uuid.New()
	b := NewBehavior(Config{})
	s0 := stateWith(5, "x", "y")

	s := ec.Fold[State](b, s0, []ec.Event{
		registered(id, 6, "a", "a@x"),
		deleted(id, 7, "a"),
	})

	if !reflect.DeepEqual(s.TakenUsernames, s0.TakenUsernames) {
		t.Error("the usernames should be restored:", s.Usernames())
	}

	if s.Generation != s0.Generation+2 {
		t.Error("the generation should be advanced by 2:", s.Generation)
	}
}

func TestFoldIsOrderSensitive(t *testing.T) {
	id := uuid.New()
	b := NewBehavior(Config{})

	registerThenDelete := ec.Fold[State](b, NewState(), []ec.Event{
		registered(id, 1, "a", ""),
		deleted(id, 2, "a"),
	})
	deleteThenRegister := ec.Fold[State](b, NewState(), []ec.Event{
		deleted(id, 1, "a"),
		registered(id, 2, "a", ""),
	})

	if registerThenDelete.Has("a") {
		t.Error("register then delete should not have the username")
	}

	if !deleteThenRegister.Has("a") {
		t.Error("delete then register should have the username")
	}

	if registerThenDelete.Generation != 2 || deleteThenRegister.Generation != 2 {
		t.Error("both folds should be at generation 2")
	}

	// Same sequence, same result.
	again := ec.Fold[State](b, NewState(), []ec.Event{
		registered(id, 1, "a", ""),
		deleted(id, 2, "a"),
	})
	if !reflect.DeepEqual(again, registerThenDelete) {
		t.Error("folding should be deterministic")
	}
}

func TestFoldAdvancesGenerationPerEvent(t *testing.T) {
	id := uuid.New()
	b := NewBehavior(Config{})

	var events []ec.Event
	for i := 1; i <= 25; i++ {
		events = append(events, registered(id, uint64(i), uuid.NewString(), ""))
	}

	s := ec.Fold[State](b, stateWith(10), events)
	if s.Generation != 35 {
		t.Error("the generation should be 35:", s.Generation)
	}

	if len(s.TakenUsernames) != 25 {
		t.Error("there should be 25 usernames:", len(s.TakenUsernames))
	}
}

func TestStateUsernames(t *testing.T) {
	s := stateWith(3, "carol", "alice", "bob")

	if !reflect.DeepEqual(s.Usernames(), []string{"alice", "bob", "carol"}) {
		t.Error("the usernames should be sorted:", s.Usernames())
	}

	c := s.Clone()
	c.TakenUsernames["dave"] = struct{}{}

	if s.Has("dave") {
		t.Error("the clone should not share memory")
	}
}

func TestCommandCheck(t *testing.T) {
	id := uuid.New()

	if err := ec.CheckCommand(&RegisterUser{ID: id, Username: "a"}); err != nil {
		t.Error("the email should be optional:", err)
	}

	var fieldErr *ec.CommandFieldError
	if err := ec.CheckCommand(&DeleteUser{ID: id}); !errors.As(err, &fieldErr) || fieldErr.Field != "Username" {
		t.Error("there should be a field error:", err)
	}

	if err := ec.CheckCommand(&DeleteUser{Username: "a"}); !errors.As(err, &fieldErr) || fieldErr.Field != "ID" {
		t.Error("there should be a field error:", err)
	}
}
