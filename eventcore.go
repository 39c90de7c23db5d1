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

// Package eventcore is a single-writer event sourcing engine.
//
// Commands are decided against the current state of one aggregate instance,
// the resulting events are appended to an EventLog guarded by the aggregate's
// generation, folded into the next state and finally published through a
// Notifier. The pure part of an aggregate is a Behavior; the stateful part
// lives in the runtime package.
package eventcore
