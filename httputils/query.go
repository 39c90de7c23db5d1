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

package httputils

import (
	"net/http"
	"path"

	"github.com/google/uuid"

	"github.com/kanello/eventcore/runtime"
)

// StateResponse is the JSON body returned by StateHandler.
type StateResponse struct {
	AggregateID uuid.UUID   `json:"aggregate_id"`
	Generation  uint64      `json:"generation"`
	State       interface{} `json:"state"`
}

// StateHandler returns the current state of an aggregate of the manager, using
// the last part of the path as its ID. The view selects what of the state is
// returned, the whole state is returned if it is nil.
func StateHandler[S any](m *runtime.Manager[S], view func(S) interface{}) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "unsupported method: "+r.Method, "")

			return
		}

		_, idStr := path.Split(r.URL.Path)

		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not parse ID: "+err.Error(), "")

			return
		}

		rt, err := m.Runtime(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not load aggregate: "+err.Error(), "")

			return
		}

		state, generation := rt.Snapshot()
		resp := StateResponse{
			AggregateID: id,
			Generation:  generation,
		}

		if view != nil {
			resp.State = view(state)
		} else {
			resp.State = state
		}

		writeJSON(w, http.StatusOK, resp)
	})
}
