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

package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "orgd", cfg.AppID)
	assert.NotEqual(t, uuid.Nil, cfg.OrganizationID)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, EventLogMemory, cfg.EventLog)
	assert.Equal(t, "1.0", cfg.DomainVersion)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
	assert.False(t, cfg.Demo)
	assert.Empty(t, cfg.NATSURL)
}

func TestLoad(t *testing.T) {
	id := uuid.New()

	cfg, err := Load(map[string]string{
		"ORGD_APP_ID":          "app",
		"ORGD_ORGANIZATION_ID": id.String(),
		"ORGD_LOG_LEVEL":       "debug",
		"ORGD_LOG_FORMAT":      "text",
		"ORGD_EVENT_LOG":       "mongodb",
		"ORGD_MONGO_URI":       "mongodb://localhost:27017",
		"ORGD_NATS_URL":        "nats://localhost:4222",
		"ORGD_PUBLISH_TIMEOUT": "2s",
		"ORGD_DEMO":            "true",
		"APP_ID":               "unprefixed",
	})
	require.NoError(t, err)

	assert.Equal(t, "app", cfg.AppID)
	assert.Equal(t, id, cfg.OrganizationID)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, EventLogMongoDB, cfg.EventLog)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, 2*time.Second, cfg.PublishTimeout)
	assert.True(t, cfg.Demo)
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"mongodb without uri": {"ORGD_EVENT_LOG": "mongodb"},
		"unknown event log":   {"ORGD_EVENT_LOG": "postgres"},
		"unknown log format":  {"ORGD_LOG_FORMAT": "xml"},
		"zero timeout":        {"ORGD_PUBLISH_TIMEOUT": "0s"},
	}

	for name, environ := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(environ)
			if !errors.Is(err, ErrInvalid) {
				t.Error("there should be an invalid config error:", err)
			}
		})
	}

	_, err := Load(map[string]string{"ORGD_ORGANIZATION_ID": "not-a-uuid"})
	assert.Error(t, err)

	_, err = Load(map[string]string{"ORGD_LOG_LEVEL": "loud"})
	assert.Error(t, err)
}
