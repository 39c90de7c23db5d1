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
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	ec "github.com/kanello/eventcore"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
)

// EventStreamHandler is a Websocket handler for eventcore.Events. Events will
// be forwarded as JSON to all requests that have been upgraded to websockets.
// It must be added as a handler to a notifier to receive events.
type EventStreamHandler struct {
	upgrader  websocket.Upgrader
	clients   map[*streamClient]struct{}
	clientsMu sync.RWMutex
	logger    *slog.Logger
}

var _ = ec.EventHandler(&EventStreamHandler{})

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewEventStreamHandler creates a EventStreamHandler, logging to the logger or
// slog.Default() when nil.
func NewEventStreamHandler(logger *slog.Logger) *EventStreamHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventStreamHandler{
		clients: map[*streamClient]struct{}{},
		logger:  logger,
	}
}

// HandlerType implements the HandlerType method of the eventcore.EventHandler interface.
func (h *EventStreamHandler) HandlerType() ec.EventHandlerType {
	return "websocket"
}

// HandleEvent implements the HandleEvent method of the eventcore.EventHandler
// interface. Clients that can not keep up miss the event.
func (h *EventStreamHandler) HandleEvent(ctx context.Context, event ec.Event) error {
	b, err := codec.MarshalEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.WarnContext(ctx, "missed event for slow websocket client",
				slog.String("event", event.String()),
				slog.String("remote_addr", c.conn.RemoteAddr().String()))
		}
	}

	return nil
}

// Clients returns the number of connected clients.
func (h *EventStreamHandler) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	return len(h.clients)
}

// ServeHTTP implements the http.Handler interface.
func (h *EventStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "could not upgrade to websocket",
			slog.String("error", err.Error()))

		return
	}

	c := &streamClient{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	h.clientsMu.Unlock()

	done := make(chan struct{})

	go h.readPump(c, done)
	h.writePump(c, done)

	h.clientsMu.Lock()
	delete(h.clients, c)
	h.clientsMu.Unlock()

	_ = conn.Close()
}

// readPump discards client messages, it closes done when the client is gone.
func (h *EventStreamHandler) readPump(c *streamClient, done chan<- struct{}) {
	defer close(done)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", slog.String("error", err.Error()))
			}

			return
		}
	}
}

func (h *EventStreamHandler) writePump(c *streamClient, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.logger.Warn("websocket write error", slog.String("error", err.Error()))

				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
