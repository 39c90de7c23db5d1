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

// Package config is the environment configuration of the organization
// service.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

// Prefix of all environment variables.
const Prefix = "ORGD_"

// Event log backends.
const (
	EventLogMemory  = "memory"
	EventLogMongoDB = "mongodb"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// ErrInvalid is returned when a parsed configuration is not usable.
var ErrInvalid = errors.New("invalid config")

// Config is the configuration of the organization service.
type Config struct {
	AppID          string    `env:"APP_ID"          envDefault:"orgd"`
	OrganizationID uuid.UUID `env:"ORGANIZATION_ID"`
	HTTPAddr       string    `env:"HTTP_ADDR"       envDefault:":8080"`

	LogLevel  slog.Level `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"json"`

	EventLog      string `env:"EVENT_LOG"      envDefault:"memory"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"orgd"`

	// Optional notifiers, enabled when set.
	NATSURL    string `env:"NATS_URL"`
	RedisAddr  string `env:"REDIS_ADDR"`
	KafkaAddr  string `env:"KAFKA_ADDR"`
	GCPProject string `env:"GCP_PROJECT"`

	// JaegerHost is the agent host:port, tracing is disabled when empty.
	JaegerHost string `env:"JAEGER_HOST"`

	DomainVersion  string        `env:"DOMAIN_VERSION"  envDefault:"1.0"`
	Source         string        `env:"SOURCE"          envDefault:"events://kanello.de/organization"`
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"10s"`

	Demo bool `env:"DEMO"`
}

// Load parses the configuration from the environment. A nil environ reads the
// process environment.
func Load(environ map[string]string) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{
		Prefix:      Prefix,
		Environment: environ,
	})
	if err != nil {
		return nil, fmt.Errorf("could not parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.OrganizationID == uuid.Nil {
		cfg.OrganizationID = uuid.New()
	}

	return &cfg, nil
}

// Validate checks the combination of the settings.
func (c *Config) Validate() error {
	switch c.EventLog {
	case EventLogMemory:
	case EventLogMongoDB:
		if c.MongoURI == "" {
			return fmt.Errorf("%w: %sMONGO_URI is required for the mongodb event log", ErrInvalid, Prefix)
		}
	default:
		return fmt.Errorf("%w: unknown event log %q", ErrInvalid, c.EventLog)
	}

	if c.LogFormat != LogFormatJSON && c.LogFormat != LogFormatText {
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.LogFormat)
	}

	if c.AppID == "" {
		return fmt.Errorf("%w: %sAPP_ID must not be empty", ErrInvalid, Prefix)
	}

	if c.PublishTimeout <= 0 {
		return fmt.Errorf("%w: publish timeout must be positive", ErrInvalid)
	}

	return nil
}
