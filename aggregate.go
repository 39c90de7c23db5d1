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

import "time"

// AggregateType is the type of an aggregate.
type AggregateType string

// String returns the string representation of an aggregate type.
func (at AggregateType) String() string {
	return string(at)
}

// Behavior is the pure part of an aggregate: deciding which events a command
// results in, and evolving the state with those events. It never performs I/O
// and never keeps state of its own; the state is owned by a runtime.
//
// A typical use:
//
//	events, err := b.Decide(state, cmd, time.Now())
//	if err != nil {
//		return err
//	}
//	// Persist the events, then:
//	state = Fold(b, state, events)
//
// See the domain/organization package for a complete behavior.
type Behavior[S any] interface {
	// AggregateType is the type of the aggregates handled by the behavior.
	AggregateType() AggregateType

	// InitialState is the state of an aggregate before any event was applied,
	// at generation 0.
	InitialState() S
	// Generation returns the generation of a state, the number of events that
	// has been folded into it.
	Generation(S) uint64

	// Decide validates a command against a state and returns the ordered
	// events that it results in. Business rule failures must be returned as
	// an error wrapping a *Rejection. The events must be created for
	// consecutive generations following the state's generation.
	Decide(state S, cmd Command, now time.Time) ([]Event, error)
	// Evolve returns the state that results from applying an event. It must
	// never fail and must not modify the passed state in place.
	Evolve(state S, event Event) S
}

// Fold applies events in order to a state, each event on the result of the
// previous one, and returns the final state.
func Fold[S any](b Behavior[S], state S, events []Event) S {
	for _, e := range events {
		state = b.Evolve(state, e)
	}

	return state
}
