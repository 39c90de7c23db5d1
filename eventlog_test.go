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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCheckAppend(t *testing.T) {
	id := uuid.New()
	now := time.Now()
	e := func(id uuid.UUID, at AggregateType, g uint64) Event {
		return NewEvent(TestEventType, nil, now, ForAggregate(at, id, g))
	}

	cases := map[string]struct {
		expected uint64
		events   []Event
		err      error
	}{
		"single": {
			0,
			[]Event{e(id, TestAggregateType, 1)},
			nil,
		},
		"batch": {
			4,
			[]Event{e(id, TestAggregateType, 5), e(id, TestAggregateType, 6)},
			nil,
		},
		"no events": {
			0,
			nil,
			ErrMissingEvents,
		},
		"nil event": {
			0,
			[]Event{e(id, TestAggregateType, 1), nil},
			ErrNilEvent,
		},
		"only nil": {
			0,
			[]Event{nil},
			ErrNilEvent,
		},
		"other aggregate": {
			0,
			[]Event{e(uuid.New(), TestAggregateType, 1)},
			ErrMismatchedEventAggregateIDs,
		},
		"other aggregate type": {
			0,
			[]Event{e(id, TestAggregateType, 1), e(id, "other", 2)},
			ErrMismatchedEventAggregateTypes,
		},
		"gap": {
			0,
			[]Event{e(id, TestAggregateType, 1), e(id, TestAggregateType, 3)},
			ErrIncorrectEventGeneration,
		},
		"stale": {
			2,
			[]Event{e(id, TestAggregateType, 2)},
			ErrIncorrectEventGeneration,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := CheckAppend(id, tc.expected, tc.events)
			if !errors.Is(err, tc.err) {
				t.Error("the error should be correct:", err)
			}

			if tc.err == nil {
				return
			}

			var logErr *EventLogError
			if !errors.As(err, &logErr) {
				t.Fatal("the error should be an event log error:", err)
			}

			if logErr.Op != EventLogOpAppend || logErr.AggregateID != id || logErr.Generation != tc.expected {
				t.Error("the error should describe the append:", logErr)
			}
		})
	}
}

func TestEventLogError(t *testing.T) {
	id := uuid.New()
	baseErr := errors.New("connection reset")
	err := &EventLogError{
		Err:         ErrConflict,
		BaseErr:     baseErr,
		Op:          EventLogOpAppend,
		AggregateID: id,
		Generation:  3,
		Events: []Event{
			NewEvent(TestEventType, nil, time.Now(), ForAggregate(TestAggregateType, id, 4)),
			nil,
		},
	}

	if !errors.Is(err, ErrConflict) {
		t.Error("the error should unwrap to the conflict")
	}

	str := err.Error()
	for _, part := range []string{
		"event log: append: generation conflict: connection reset",
		id.String() + " (g3)",
		"TestEvent(" + id.String() + ", g4)",
		"nil event",
	} {
		if !strings.Contains(str, part) {
			t.Errorf("the error string should contain %q: %s", part, str)
		}
	}

	if (&EventLogError{}).Error() != "event log: unknown error" {
		t.Error("the empty error string should be correct:", (&EventLogError{}).Error())
	}
}
