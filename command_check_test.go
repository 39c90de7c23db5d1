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
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// checkCmd is embedded in the commands below to implement Command, it is
// skipped by CheckCommand as an unexported field.
type checkCmd struct{}

func (checkCmd) AggregateID() uuid.UUID       { return uuid.Nil }
func (checkCmd) AggregateType() AggregateType { return TestAggregateType }
func (checkCmd) CommandType() CommandType     { return "TestCheckCommand" }

type zeroer bool

func (z zeroer) IsZero() bool { return bool(z) }

func TestCheckCommand(t *testing.T) {
	cases := map[string]struct {
		cmd   Command
		field string
	}{
		"all fields": {
			&struct {
				checkCmd
				ID      uuid.UUID
				Content string
			}{ID: uuid.New(), Content: "command1"},
			"",
		},
		"missing uuid": {
			&struct {
				checkCmd
				ID uuid.UUID
			}{},
			"ID",
		},
		"missing string": {
			&struct {
				checkCmd
				Content string
			}{},
			"Content",
		},
		"value types": {
			&struct {
				checkCmd
				Int   int
				Float float64
				Bool  bool
				Ptr   uintptr
			}{},
			"",
		},
		"missing slice": {
			&struct {
				checkCmd
				Slice []string
			}{},
			"Slice",
		},
		"missing map": {
			&struct {
				checkCmd
				Map map[string]string
			}{},
			"Map",
		},
		"missing struct": {
			&struct {
				checkCmd
				Struct struct{ Test string }
			}{},
			"Struct",
		},
		"missing time": {
			&struct {
				checkCmd
				Time time.Time
			}{},
			"Time",
		},
		"set time": {
			&struct {
				checkCmd
				Time time.Time
			}{Time: time.Now()},
			"",
		},
		"pointer": {
			&struct {
				checkCmd
				Ptr *string
			}{},
			"Ptr",
		},
		"zeroer": {
			&struct {
				checkCmd
				Z zeroer
			}{Z: true},
			"Z",
		},
		"optional": {
			&struct {
				checkCmd
				Content string `ec:"optional"`
			}{},
			"",
		},
		"private": {
			&struct {
				checkCmd
				content string
			}{},
			"",
		},
		"array": {
			&struct {
				checkCmd
				StringArray [1]string
				IntArray    [1]int
			}{StringArray: [1]string{"string"}},
			"",
		},
		"empty array": {
			&struct {
				checkCmd
				StringArray [1]string
			}{},
			"StringArray",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := CheckCommand(tc.cmd)

			if tc.field == "" {
				if err != nil {
					t.Error("there should be no error:", err)
				}

				return
			}

			var fieldErr *CommandFieldError
			if !errors.As(err, &fieldErr) || fieldErr.Field != tc.field {
				t.Error("there should be a missing field error:", err)
			}

			if err != nil && err.Error() != "missing field: "+tc.field {
				t.Error("the error message should be correct:", err)
			}
		})
	}
}
