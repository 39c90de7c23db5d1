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

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/mocks"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var out []map[string]interface{}

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))

		out = append(out, m)
	}

	return out
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()
	id := uuid.New()

	inner := &mocks.CommandHandler{
		Events: []ec.Event{
			ec.NewEvent(mocks.EventType, nil, time.Now(), ec.ForAggregate(mocks.AggregateType, id, 3)),
		},
	}
	h := ec.UseCommandHandlerMiddleware(inner, NewMiddleware(logger))
	cmd := mocks.Command{ID: id, Content: "content"}

	events, err := h.HandleCommand(ctx, cmd)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	inner.Err = ec.Reject(mocks.RejectionCode, "not allowed")
	_, err = h.HandleCommand(ctx, cmd)
	require.Error(t, err)

	inner.Err = &ec.EventLogError{Err: ec.ErrConflict}
	_, err = h.HandleCommand(ctx, cmd)
	require.Error(t, err)

	inner.Err = errors.New("failure")
	_, err = h.HandleCommand(ctx, cmd)
	require.Error(t, err)

	logged := lines(t, &buf)
	require.Len(t, logged, 4)

	assert.Equal(t, "INFO", logged[0]["level"])
	assert.Equal(t, "command handled", logged[0]["msg"])
	assert.Equal(t, id.String(), logged[0]["aggregate_id"])
	assert.Equal(t, mocks.CommandType.String(), logged[0]["command_type"])
	assert.Equal(t, float64(3), logged[0]["generation"])

	assert.Equal(t, "WARN", logged[1]["level"])
	assert.Equal(t, "command rejected", logged[1]["msg"])
	assert.Equal(t, mocks.RejectionCode, logged[1]["code"])

	assert.Equal(t, "WARN", logged[2]["level"])
	assert.Equal(t, "command conflicted", logged[2]["msg"])

	assert.Equal(t, "ERROR", logged[3]["level"])
	assert.Equal(t, "failure", logged[3]["error"])
}

func TestMiddlewareDefaultLogger(t *testing.T) {
	var buf bytes.Buffer

	defer slog.SetDefault(slog.Default())
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))

	h := ec.UseCommandHandlerMiddleware(&mocks.CommandHandler{}, NewMiddleware(nil))

	_, err := h.HandleCommand(context.Background(), mocks.Command{ID: uuid.New(), Content: "c"})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), fmt.Sprintf("command_type=%s", mocks.CommandType))
}
