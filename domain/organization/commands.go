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
	"github.com/google/uuid"

	ec "github.com/kanello/eventcore"
)

func init() {
	ec.RegisterCommand(func() ec.Command { return &RegisterUser{} })
	ec.RegisterCommand(func() ec.Command { return &DeleteUser{} })
}

const (
	// RegisterUserCommand is the type for the RegisterUser command.
	RegisterUserCommand = ec.CommandType("organization:register_user")
	// DeleteUserCommand is the type for the DeleteUser command.
	DeleteUserCommand = ec.CommandType("organization:delete_user")
)

// Static type check that the eventcore.Command interface is implemented.
var _ = ec.Command(&RegisterUser{})
var _ = ec.Command(&DeleteUser{})

// RegisterUser registers a username in an organization.
type RegisterUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email" ec:"optional"`
}

func (c *RegisterUser) AggregateType() ec.AggregateType { return AggregateType }
func (c *RegisterUser) AggregateID() uuid.UUID          { return c.ID }
func (c *RegisterUser) CommandType() ec.CommandType     { return RegisterUserCommand }

// DeleteUser frees a registered username in an organization.
type DeleteUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

func (c *DeleteUser) AggregateType() ec.AggregateType { return AggregateType }
func (c *DeleteUser) AggregateID() uuid.UUID          { return c.ID }
func (c *DeleteUser) CommandType() ec.CommandType     { return DeleteUserCommand }
