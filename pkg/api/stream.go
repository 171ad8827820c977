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
	"net/http"

	"github.com/gorilla/websocket"
)

// handleStream upgrades to a WebSocket and relays every event batch. The
// first frame is a hello carrying the current status.
func (s *APIServer) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkWebSocketOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("origin", r.Header.Get("Origin")).
			Msg("Failed to upgrade to WebSocket")

		return
	}

	var hello []byte

	if s.engine != nil {
		if hello, err = encodeMessage(messageHello, s.engine.Status()); err != nil {
			s.logger.Error().Err(err).Msg("Failed to encode stream hello")
		}
	}

	c, err := s.hub.register(conn, hello)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()))
		_ = conn.Close()

		return
	}

	s.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Stream client connected")

	go c.writePump()

	c.readPump()
	s.hub.unregister(c)

	s.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("Stream client disconnected")
}

func (s *APIServer) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range s.cors.AllowedOrigins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}

	s.logger.Warn().
		Str("origin", origin).
		Strs("allowed_origins", s.cors.AllowedOrigins).
		Msg("WebSocket origin not allowed")

	return false
}
