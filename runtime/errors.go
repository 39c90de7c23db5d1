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
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrMissingBehavior is when a runtime is created without a behavior.
	ErrMissingBehavior = errors.New("missing behavior")
	// ErrMissingEventLog is when a runtime is created without an event log.
	ErrMissingEventLog = errors.New("missing event log")
	// ErrMismatchedAggregate is when a command is submitted to the runtime of
	// another aggregate.
	ErrMismatchedAggregate = errors.New("mismatched aggregate")
	// ErrMismatchedEventType is when loaded events are for another aggregate type.
	ErrMismatchedEventType = errors.New("mismatched event type and aggregate type")
	// ErrIncorrectEventGeneration is when loaded events are not in generation order.
	ErrIncorrectEventGeneration = errors.New("incorrect event generation")
)

// ErrorKind classifies a CommandError.
type ErrorKind int

const (
	// Failed is an infrastructure failure, for example a failing event log.
	// The command may be retried.
	Failed ErrorKind = iota
	// Rejected is a business rule violation returned by Decide.
	Rejected
	// Conflict is when another writer appended to the log in between, the
	// state is reloaded before the next command.
	Conflict
)

// String returns the string representation of an error kind.
func (k ErrorKind) String() string {
	switch k {
	case Rejected:
		return "rejected"
	case Conflict:
		return "conflict"
	default:
		return "failed"
	}
}

// CommandError is the error of a submitted command.
type CommandError struct {
	// Kind of the error.
	Kind ErrorKind
	// AggregateID the command was for.
	AggregateID uuid.UUID
	// Err is the cause.
	Err error
}

// Error implements the Error method of the errors.Error interface.
func (e *CommandError) Error() string {
	str := "command " + e.Kind.String()

	if e.AggregateID != uuid.Nil {
		str += fmt.Sprintf(" (%s)", e.AggregateID)
	}

	if e.Err != nil {
		str += ": " + e.Err.Error()
	}

	return str
}

// Unwrap implements the errors.Unwrap method.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a CommandError in the chain of err. Errors that
// are not command errors are Failed.
func KindOf(err error) ErrorKind {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Kind
	}

	return Failed
}
