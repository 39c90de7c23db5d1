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
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Command is a domain command that is sent to a CommandHandler.
//
// A command name should 1) be in present tense and 2) contain the intent
// (RegisterUser vs AddUserToList).
//
// The command should contain all the data needed when handling it as fields.
// These fields can take an optional "ec" tag, which adds properties. For now
// only "optional" is a valid tag: `ec:"optional"`.
type Command interface {
	// AggregateID returns the ID of the aggregate that the command should be
	// handled by.
	AggregateID() uuid.UUID

	// AggregateType returns the type of the aggregate that the command can be
	// handled by.
	AggregateType() AggregateType

	// CommandType returns the type of the command.
	CommandType() CommandType
}

// CommandType is the type of a command, used as its unique identifier.
type CommandType string

// String returns the string representation of a command type.
func (ct CommandType) String() string {
	return string(ct)
}

// ErrUnknownCommand is when a behavior is asked to decide a command it does
// not know about.
var ErrUnknownCommand = errors.New("unknown command")

// Rejection is returned when a command breaks a business rule of an
// aggregate. A rejected command has not changed anything and should not be
// retried as is.
type Rejection struct {
	// Code is a stable, machine readable reason.
	Code string
	// Message is a human readable reason.
	Message string
}

// Error implements the Error method of the error interface.
func (r *Rejection) Error() string {
	return "command rejected: " + r.Message + " (" + r.Code + ")"
}

// Reject creates a rejection error.
func Reject(code, message string) error {
	return &Rejection{
		Code:    code,
		Message: message,
	}
}

// AsRejection returns the rejection in the error chain, if any.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}

	return nil, false
}

// CommandHandler is an interface that all handlers of commands should implement.
type CommandHandler interface {
	// HandleCommand handles a command and returns the events it resulted in
	// once they have been committed.
	HandleCommand(context.Context, Command) ([]Event, error)
}

// CommandHandlerFunc is a function that can be used as a command handler.
type CommandHandlerFunc func(context.Context, Command) ([]Event, error)

// HandleCommand implements the HandleCommand method of the CommandHandler.
func (h CommandHandlerFunc) HandleCommand(ctx context.Context, cmd Command) ([]Event, error) {
	return h(ctx, cmd)
}

// CommandHandlerMiddleware is a function that middlewares can implement to be
// able to chain.
type CommandHandlerMiddleware func(CommandHandler) CommandHandler

// UseCommandHandlerMiddleware wraps a CommandHandler in one or more middleware.
// The first middleware in the list is the outermost one.
func UseCommandHandlerMiddleware(h CommandHandler, middleware ...CommandHandlerMiddleware) CommandHandler {
	// Apply in reversed order.
	for i := len(middleware) - 1; i >= 0; i-- {
		m := middleware[i]
		h = m(h)
	}

	return h
}

var commands = make(map[CommandType]func() Command)
var commandsMu sync.RWMutex

// ErrCommandNotRegistered is when no command factory was registered.
var ErrCommandNotRegistered = errors.New("command not registered")

// RegisterCommand registers a command factory for a type. The factory is
// used to create concrete command types when decoding commands, for example
// from HTTP requests.
//
// An example would be:
//
//	RegisterCommand(func() Command { return &RegisterUser{} })
func RegisterCommand(factory func() Command) {
	// Check that the created command matches the registered type.
	cmd := factory()
	if cmd == nil {
		panic("eventcore: created command is nil")
	}

	commandType := cmd.CommandType()
	if commandType == CommandType("") {
		panic("eventcore: attempt to register empty command type")
	}

	commandsMu.Lock()
	defer commandsMu.Unlock()

	if _, ok := commands[commandType]; ok {
		panic(fmt.Sprintf("eventcore: registering duplicate types for %q", commandType))
	}

	commands[commandType] = factory
}

// UnregisterCommand removes the registration of the command factory for
// a type. This is mainly useful in mainenance situations where the command type
// needs to be switched at runtime.
func UnregisterCommand(commandType CommandType) {
	if commandType == CommandType("") {
		panic("eventcore: attempt to unregister empty command type")
	}

	commandsMu.Lock()
	defer commandsMu.Unlock()

	if _, ok := commands[commandType]; !ok {
		panic(fmt.Sprintf("eventcore: unregister of non-registered type %q", commandType))
	}

	delete(commands, commandType)
}

// CreateCommand creates an command of a type with an ID using the factory
// registered with RegisterCommand.
func CreateCommand(commandType CommandType) (Command, error) {
	commandsMu.RLock()
	defer commandsMu.RUnlock()

	if factory, ok := commands[commandType]; ok {
		return factory(), nil
	}

	return nil, ErrCommandNotRegistered
}
