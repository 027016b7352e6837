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
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubscope/hubscope/pkg/models"
)

const writeTimeout = 10 * time.Second

// clientMessage is what a WebSocket client may send us. Only "refresh"
// is recognized; anything else is ignored.
type clientMessage struct {
	Type string `json:"type"`
}

// handleWebSocket upgrades the connection and streams topology events.
// The first frame is always a full tree snapshot so a client can render
// immediately without a separate REST call.
func (s *APIServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(_ *http.Request) bool {
			// The server binds to trusted networks only.
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("Failed to upgrade to WebSocket")

		return
	}

	s.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("WebSocket client connected")

	defer func() {
		s.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("Closing WebSocket connection")
		conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	refresh := make(chan struct{}, 1)

	go s.readClientMessages(conn, refresh, cancel)

	if err := s.sendFullTree(conn); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-refresh:
			if _, err := s.store.Rescan(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Refresh rescan failed")
			}

			if err := s.sendFullTree(conn); err != nil {
				return
			}

		case event, ok := <-events:
			if !ok {
				return
			}

			if err := s.sendEvent(conn, event); err != nil {
				return
			}
		}
	}
}

// readClientMessages drains the connection so pings are answered, and
// signals refresh requests. Cancel fires when the client goes away.
func (s *APIServer) readClientMessages(conn *websocket.Conn, refresh chan<- struct{}, cancel context.CancelFunc) {
	defer cancel()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("WebSocket read error")
			}

			return
		}

		if msg.Type == "refresh" {
			select {
			case refresh <- struct{}{}:
			default:
			}
		}
	}
}

func (s *APIServer) sendFullTree(conn *websocket.Conn) error {
	event := models.Event{
		Type:      models.EventFullTree,
		Devices:   s.store.SnapshotTree(),
		Timestamp: time.Now(),
	}

	return s.sendEvent(conn, event)
}

func (s *APIServer) sendEvent(conn *websocket.Conn, event models.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	if err := conn.WriteJSON(event); err != nil {
		s.logger.Debug().Err(err).Msg("WebSocket write failed")
		return err
	}

	return nil
}
