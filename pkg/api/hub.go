/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10

	messageHello  = "hello"
	messageEvents = "events"
)

var errHubClosed = errors.New("stream hub closed")

// client is one WebSocket subscriber. send is closed by the hub when the
// client is dropped.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans event batches out to WebSocket subscribers. It is registered as a
// tracker sink, so Broadcast runs on the dispatcher goroutine and never
// blocks on a slow client: a client whose buffer is full is disconnected.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	logger  logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  log,
	}
}

// Name implements tracker.EventSink.
func (*Hub) Name() string {
	return "stream"
}

// HandleEvents implements tracker.EventSink.
func (h *Hub) HandleEvents(_ context.Context, batch *tracker.EventBatch) error {
	h.Broadcast(messageEvents, batch)

	return nil
}

// Clients reports the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Broadcast sends one message to every subscriber.
func (h *Hub) Broadcast(kind string, data interface{}) {
	msg, err := encodeMessage(kind, data)
	if err != nil {
		h.logger.Error().Err(err).Str("type", kind).Msg("Failed to encode stream message")

		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn().Str("remote_addr", c.conn.RemoteAddr().String()).Msg("Dropping slow stream client")
			h.dropLocked(c)
		}
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) register(conn *websocket.Conn, hello []byte) (*client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errHubClosed
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}
	if hello != nil {
		c.send <- hello
	}

	h.clients[c] = struct{}{}

	return c, nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	close(c.send)
}

func encodeMessage(kind string, data interface{}) ([]byte, error) {
	return json.Marshal(StreamMessage{
		Type:      kind,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writePump owns all writes to the connection. It returns when the hub drops
// the client or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// readPump discards client frames and detects disconnects.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxBodyBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
