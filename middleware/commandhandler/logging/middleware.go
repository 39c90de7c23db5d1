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

// Package logging is a command handler middleware that logs every handled
// command with its outcome and duration.
package logging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	ec "github.com/kanello/eventcore"
)

// NewMiddleware returns a new middleware that logs commands to the logger, or
// to slog.Default() when nil. Successes are logged at info level, rejections
// and conflicts at warn level and other failures at error level.
func NewMiddleware(logger *slog.Logger) ec.CommandHandlerMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return ec.CommandHandlerMiddleware(func(h ec.CommandHandler) ec.CommandHandler {
		return ec.CommandHandlerFunc(func(ctx context.Context, cmd ec.Command) ([]ec.Event, error) {
			start := time.Now()

			events, err := h.HandleCommand(ctx, cmd)

			attrs := []slog.Attr{
				slog.String("command_type", cmd.CommandType().String()),
				slog.String("aggregate_type", cmd.AggregateType().String()),
				slog.String("aggregate_id", cmd.AggregateID().String()),
				slog.Duration("duration", time.Since(start)),
			}

			if len(events) > 0 {
				attrs = append(attrs,
					slog.Int("events_count", len(events)),
					slog.Uint64("generation", events[len(events)-1].Generation()))
			}

			if r, ok := ec.AsRejection(err); ok {
				logger.LogAttrs(ctx, slog.LevelWarn, "command rejected",
					append(attrs, slog.String("code", r.Code), slog.String("reason", r.Message))...)
			} else if errors.Is(err, ec.ErrConflict) {
				logger.LogAttrs(ctx, slog.LevelWarn, "command conflicted",
					append(attrs, slog.String("error", err.Error()))...)
			} else if err != nil {
				logger.LogAttrs(ctx, slog.LevelError, "command failed",
					append(attrs, slog.String("error", err.Error()))...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "command handled", attrs...)
			}

			return events, err
		})
	})
}
