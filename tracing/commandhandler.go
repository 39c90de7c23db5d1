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

// Package tracing adds OpenTracing spans around command handling, the event
// log and the notifiers. Spans are started from the global tracer.
package tracing

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	ec "github.com/kanello/eventcore"
)

// NewCommandHandlerMiddleware returns a new command handler middleware that adds tracing spans.
func NewCommandHandlerMiddleware() ec.CommandHandlerMiddleware {
	return ec.CommandHandlerMiddleware(func(h ec.CommandHandler) ec.CommandHandler {
		return ec.CommandHandlerFunc(func(ctx context.Context, cmd ec.Command) ([]ec.Event, error) {
			opName := fmt.Sprintf("Command(%s)", cmd.CommandType())
			sp, ctx := opentracing.StartSpanFromContext(ctx, opName)

			events, err := h.HandleCommand(ctx, cmd)

			sp.SetTag("ec.command_type", cmd.CommandType().String())
			sp.SetTag("ec.aggregate_type", cmd.AggregateType().String())
			sp.SetTag("ec.aggregate_id", cmd.AggregateID().String())
			sp.SetTag("ec.events_count", len(events))

			// Rejections are answers, not failures.
			if _, ok := ec.AsRejection(err); ok {
				sp.SetTag("ec.rejected", true)
			} else if errors.Is(err, ec.ErrConflict) {
				sp.SetTag("ec.conflict", true)
			} else if err != nil {
				ext.LogError(sp, err)
			}

			sp.Finish()

			return events, err
		})
	})
}
