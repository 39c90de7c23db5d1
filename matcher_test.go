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
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMatchAny(t *testing.T) {
	m := MatchAny()

	if !m(nil) {
		t.Error("match any should always match")
	}

	e := NewEvent("test", nil, time.Now())
	if !m(e) {
		t.Error("match any should always match")
	}
}

func TestMatchEvents(t *testing.T) {
	et1 := EventType("et1")
	et2 := EventType("et2")
	m := MatchEvents(et1, et2)

	if m(nil) {
		t.Error("match events should not match nil event")
	}

	if !m(NewEvent(et1, nil, time.Now())) {
		t.Error("match events should match the first event")
	}

	if !m(NewEvent(et2, nil, time.Now())) {
		t.Error("match events should match the second event")
	}

	if m(NewEvent("other", nil, time.Now())) {
		t.Error("match events should not match the event")
	}
}

func TestMatchAggregates(t *testing.T) {
	at := AggregateType("test")
	m := MatchAggregates(at)

	if m(nil) {
		t.Error("match aggregates should not match nil event")
	}

	e := NewEvent("test", nil, time.Now(), ForAggregate(at, uuid.Nil, 0))
	if !m(e) {
		t.Error("match aggregates should match the event")
	}

	e = NewEvent("test", nil, time.Now(), ForAggregate("other", uuid.Nil, 0))
	if m(e) {
		t.Error("match aggregates should not match the event")
	}
}

func TestMatchAnyOf(t *testing.T) {
	m := MatchAnyOf(
		MatchEvents("et1"),
		MatchAggregates("at1"),
	)

	if !m(NewEvent("et1", nil, time.Now())) {
		t.Error("match any of should match the event type")
	}

	if !m(NewEvent("et2", nil, time.Now(), ForAggregate("at1", uuid.Nil, 0))) {
		t.Error("match any of should match the aggregate type")
	}

	if m(NewEvent("et2", nil, time.Now())) {
		t.Error("match any of should not match the event")
	}
}

func TestMatchAllOf(t *testing.T) {
	m := MatchAllOf(
		MatchEvents("et1"),
		MatchAggregates("at1"),
	)

	if !m(NewEvent("et1", nil, time.Now(), ForAggregate("at1", uuid.Nil, 0))) {
		t.Error("match all of should match the event")
	}

	if m(NewEvent("et1", nil, time.Now())) {
		t.Error("match all of should not match the event")
	}
}
