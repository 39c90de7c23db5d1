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

package tracing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	ec "github.com/kanello/eventcore"
)

// EventLog is an eventcore.EventLog that adds tracing.
type EventLog struct {
	ec.EventLog
}

var _ = ec.EventLog(&EventLog{})

// NewEventLog creates a new EventLog.
func NewEventLog(log ec.EventLog) *EventLog {
	return &EventLog{
		EventLog: log,
	}
}

// Append implements the Append method of the eventcore.EventLog interface.
func (l *EventLog) Append(ctx context.Context, id uuid.UUID, expectedGeneration uint64, events []ec.Event) error {
	sp, ctx := opentracing.StartSpanFromContext(ctx, "EventLog.Append")

	err := l.EventLog.Append(ctx, id, expectedGeneration, events)

	sp.SetTag("ec.aggregate_id", id.String())
	sp.SetTag("ec.generation", expectedGeneration)
	sp.SetTag("ec.events_count", len(events))

	if errors.Is(err, ec.ErrConflict) {
		sp.SetTag("ec.conflict", true)
	} else if err != nil {
		ext.LogError(sp, err)
	}

	sp.Finish()

	return err
}

// Load implements the Load method of the eventcore.EventLog interface.
func (l *EventLog) Load(ctx context.Context, id uuid.UUID) ([]ec.Event, error) {
	sp, ctx := opentracing.StartSpanFromContext(ctx, "EventLog.Load")

	events, err := l.EventLog.Load(ctx, id)

	sp.SetTag("ec.aggregate_id", id.String())
	sp.SetTag("ec.events_count", len(events))

	if err != nil {
		ext.LogError(sp, err)
	}

	sp.Finish()

	return events, err
}
