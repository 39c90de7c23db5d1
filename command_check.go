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
	"reflect"

	"github.com/google/uuid"
)

// IsZeroer is used to check if a type is zero-valued, and in that case
// is not allowed to be used in a command. See CheckCommand
type IsZeroer interface {
	IsZero() bool
}

// CommandFieldError is returned by CheckCommand when a field is incorrect.
type CommandFieldError struct {
	Field string
}

// Error implements the Error method of the error interface.
func (c *CommandFieldError) Error() string {
	return "missing field: " + c.Field
}

// CheckCommand checks a command for zero-valued required fields and returns
// a CommandFieldError for the first one. Unexported fields and fields tagged
// with `ec:"optional"` are skipped.
//
// Numbers and bools are always accepted, their zero value is a valid value.
func CheckCommand(cmd Command) error {
	rv := reflect.Indirect(reflect.ValueOf(cmd))

	for _, field := range reflect.VisibleFields(rv.Type()) {
		if !field.IsExported() || field.Anonymous || len(field.Index) > 1 {
			continue
		}

		if field.Tag.Get("ec") == "optional" {
			continue
		}

		if missing(rv.FieldByIndex(field.Index)) {
			return &CommandFieldError{field.Name}
		}
	}

	return nil
}

var uuidType = reflect.TypeFor[uuid.UUID]()

// missing reports if a field value counts as not set.
func missing(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return true
		}
	}

	if z, ok := v.Interface().(IsZeroer); ok {
		return z.IsZero()
	}

	// Time is covered by IsZeroer.
	if v.Type() == uuidType {
		return v.Interface().(uuid.UUID) == uuid.Nil
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Chan, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	case reflect.UnsafePointer, reflect.String:
		return v.IsZero()
	case reflect.Array:
		for i := range v.Len() {
			if !missing(v.Index(i)) {
				return false
			}
		}

		return true
	case reflect.Struct:
		for _, field := range reflect.VisibleFields(v.Type()) {
			if field.IsExported() && len(field.Index) == 1 && !missing(v.FieldByIndex(field.Index)) {
				return false
			}
		}

		return true
	}

	return false
}
