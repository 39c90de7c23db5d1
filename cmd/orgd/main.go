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

// Command orgd runs the organization service: commands over HTTP, committed
// events to the configured notifiers and a WebSocket event stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ec "github.com/kanello/eventcore"
	"github.com/kanello/eventcore/config"
	"github.com/kanello/eventcore/domain/organization"
	"github.com/kanello/eventcore/eventlog/memory"
	"github.com/kanello/eventcore/eventlog/mongodb"
	"github.com/kanello/eventcore/httputils"
	"github.com/kanello/eventcore/middleware/commandhandler/logging"
	"github.com/kanello/eventcore/middleware/commandhandler/validate"
	"github.com/kanello/eventcore/notifier"
	"github.com/kanello/eventcore/notifier/gcp"
	"github.com/kanello/eventcore/notifier/kafka"
	"github.com/kanello/eventcore/notifier/local"
	"github.com/kanello/eventcore/notifier/nats"
	"github.com/kanello/eventcore/notifier/redis"
	"github.com/kanello/eventcore/runtime"
	"github.com/kanello/eventcore/tracing"
)

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		slog.Error("could not load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if cfg.JaegerHost != "" {
		closer, err := newTracer(cfg.AppID, cfg.JaegerHost)
		if err != nil {
			logger.Error("could not create tracer", slog.Any("error", err))
			os.Exit(1)
		}

		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("orgd stopped", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	if cfg.LogFormat == config.LogFormatText {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	eventLog, err := newEventLog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eventLog.Close()

	localNotifier, err := local.NewNotifier(local.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("could not create local notifier: %w", err)
	}

	notifiers, err := newNotifiers(ctx, cfg, logger)
	if err != nil {
		return err
	}

	buses := append([]notifier.Bus{localNotifier}, notifiers...)
	for _, b := range buses {
		go logErrors(ctx, logger, b.Errors())
	}

	all := make([]ec.Notifier, 0, len(buses))
	for _, b := range buses {
		all = append(all, b)
	}

	multi := ec.NewMultiNotifier(all...)
	defer multi.Close()

	stream := httputils.NewEventStreamHandler(logger)
	if err := tracing.NewNotifier(localNotifier).AddHandler(ctx, ec.MatchAny(), stream); err != nil {
		return fmt.Errorf("could not add event stream: %w", err)
	}

	behavior := organization.NewBehavior(organization.Config{
		DomainVersion: cfg.DomainVersion,
		Source:        cfg.Source,
	})

	manager, err := runtime.NewManager[organization.State](behavior,
		tracing.NewEventLog(eventLog), tracing.NewNotifier(multi),
		runtime.WithLogger(logger),
		runtime.WithPublishTimeout(cfg.PublishTimeout),
	)
	if err != nil {
		return fmt.Errorf("could not create manager: %w", err)
	}

	handler := ec.UseCommandHandlerMiddleware(manager,
		tracing.NewCommandHandlerMiddleware(),
		logging.NewMiddleware(logger),
		validate.NewMiddleware(),
	)

	if cfg.Demo {
		demo(ctx, cfg, handler, logger)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/organization/register", httputils.CommandHandler(handler, organization.RegisterUserCommand))
	mux.Handle("/api/organization/delete", httputils.CommandHandler(handler, organization.DeleteUserCommand))
	mux.Handle("/api/organization/", httputils.StateHandler(manager, func(s organization.State) interface{} {
		return s.Usernames()
	}))
	mux.Handle("/api/events", stream)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("starting HTTP server",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("organization_id", cfg.OrganizationID.String()))

		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not serve HTTP: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not shut down HTTP server: %w", err)
	}

	// Committed events still queued go out before the notifiers close.
	if err := manager.WaitPublished(shutdownCtx); err != nil {
		logger.WarnContext(shutdownCtx, "events left unpublished",
			slog.String("error", err.Error()))
	}

	return nil
}

func newEventLog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ec.EventLog, error) {
	if cfg.EventLog == config.EventLogMongoDB {
		l, err := mongodb.NewEventLog(ctx, cfg.MongoURI, cfg.MongoDatabase, mongodb.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("could not create MongoDB event log: %w", err)
		}

		return l, nil
	}

	return memory.NewEventLog(), nil
}

func newNotifiers(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]notifier.Bus, error) {
	var buses []notifier.Bus

	if cfg.NATSURL != "" {
		n, err := nats.NewNotifier(ctx, cfg.NATSURL, cfg.AppID, nats.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("could not create NATS notifier: %w", err)
		}

		buses = append(buses, n)
	}

	if cfg.RedisAddr != "" {
		clientID, err := os.Hostname()
		if err != nil {
			clientID = cfg.OrganizationID.String()
		}

		n, err := redis.NewNotifier(ctx, cfg.RedisAddr, cfg.AppID, clientID, redis.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("could not create Redis notifier: %w", err)
		}

		buses = append(buses, n)
	}

	if cfg.KafkaAddr != "" {
		n, err := kafka.NewNotifier(ctx, cfg.KafkaAddr, cfg.AppID, kafka.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("could not create Kafka notifier: %w", err)
		}

		buses = append(buses, n)
	}

	if cfg.GCPProject != "" {
		n, err := gcp.NewNotifier(ctx, cfg.GCPProject, cfg.AppID, gcp.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("could not create GCP notifier: %w", err)
		}

		buses = append(buses, n)
	}

	return buses, nil
}

func logErrors(ctx context.Context, logger *slog.Logger, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}

			logger.WarnContext(ctx, "event handler failed", slog.Any("error", err))
		}
	}
}

// demo registers the first user of the organization.
func demo(ctx context.Context, cfg *config.Config, h ec.CommandHandler, logger *slog.Logger) {
	events, err := h.HandleCommand(ctx, &organization.RegisterUser{
		ID:       cfg.OrganizationID,
		Username: "Peter",
		Email:    "peter@foo.bar",
	})
	if err != nil {
		logger.Error("demo registration failed", slog.Any("error", err))

		return
	}

	for _, e := range events {
		logger.Info("demo registration", slog.String("event", e.String()))
	}
}
