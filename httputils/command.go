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

// Package httputils exposes command handlers, aggregate state and the stream
// of committed events over HTTP.
package httputils

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	ec "github.com/kanello/eventcore"
	jsoncodec "github.com/kanello/eventcore/codec/json"
	"github.com/kanello/eventcore/middleware/commandhandler/validate"
	"github.com/kanello/eventcore/runtime"
)

// MaxCommandSize is the maximum size of a command body.
var MaxCommandSize int64 = 1 << 20

var codec = &jsoncodec.EventCodec{}

// CommandHandler is a HTTP handler for eventcore.Commands. Commands must be
// registered with eventcore.RegisterCommand(). It expects a POST with a JSON
// body that will be unmarshaled into the command and responds with the
// committed events as a JSON array.
//
// Invalid commands are answered with 400, rejected and conflicting commands
// with 409 and other failures with 500.
func CommandHandler(commandHandler ec.CommandHandler, commandType ec.CommandType) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "unsupported method: "+r.Method, "")

			return
		}

		cmd, err := ec.CreateCommand(commandType)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not create command: "+err.Error(), "")

			return
		}

		b, err := io.ReadAll(io.LimitReader(r.Body, MaxCommandSize))
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read command: "+err.Error(), "")

			return
		}

		if err := json.Unmarshal(b, cmd); err != nil {
			writeError(w, http.StatusBadRequest, "could not decode command: "+err.Error(), "")

			return
		}

		// A committed command is not undone by a client going away.
		events, err := commandHandler.HandleCommand(context.WithoutCancel(r.Context()), cmd)
		if err != nil {
			status, code := errorStatus(err)
			writeError(w, status, "could not handle command: "+err.Error(), code)

			return
		}

		out := make([]json.RawMessage, 0, len(events))

		for _, event := range events {
			b, err := codec.MarshalEvent(r.Context(), event)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "could not encode event: "+err.Error(), "")

				return
			}

			out = append(out, b)
		}

		writeJSON(w, http.StatusOK, out)
	})
}

func errorStatus(err error) (int, string) {
	var (
		validateErr *validate.Error
		fieldErr    *ec.CommandFieldError
	)

	if errors.As(err, &validateErr) || errors.As(err, &fieldErr) {
		return http.StatusBadRequest, ""
	}

	if r, ok := ec.AsRejection(err); ok {
		return http.StatusConflict, r.Code
	}

	if errors.Is(err, ec.ErrConflict) || runtime.KindOf(err) == runtime.Conflict {
		return http.StatusConflict, "CONFLICT"
	}

	return http.StatusInternalServerError, ""
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "could not encode result: "+err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
