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

package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Option is an option setter used to configure creation of runtimes and managers.
type Option func(*options) error

type options struct {
	logger         *slog.Logger
	clock          func() time.Time
	publishTimeout time.Duration
	onPublishError func(error)
}

func newOptions(opts []Option) (options, error) {
	o := options{
		logger: slog.Default(),
		clock:  time.Now,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if err := opt(&o); err != nil {
			return o, fmt.Errorf("error while applying option: %w", err)
		}
	}

	return o, nil
}

// WithLogger sets the logger used for publish failures and commits.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("missing logger")
		}

		o.logger = logger

		return nil
	}
}

// WithClock sets the source of the timestamps passed to Decide.
func WithClock(clock func() time.Time) Option {
	return func(o *options) error {
		if clock == nil {
			return errors.New("missing clock")
		}

		o.clock = clock

		return nil
	}
}

// WithPublishTimeout limits the time spent publishing committed events. Zero
// means no limit.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout < 0 {
			return errors.New("negative publish timeout")
		}

		o.publishTimeout = timeout

		return nil
	}
}

// WithPublishErrorHandler sets a func that is called with every publish
// error, in addition to it being logged.
func WithPublishErrorHandler(f func(error)) Option {
	return func(o *options) error {
		o.onPublishError = f

		return nil
	}
}
