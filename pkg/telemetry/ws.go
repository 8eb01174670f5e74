/*
 * Copyright 2025 Herdworks, Inc.
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

package telemetry

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/herdworks/herd/pkg/codec"
	"github.com/herdworks/herd/pkg/logger"
)

// WSBridge adapts broadcaster observers to websocket text streams. The
// HTTP mux that mounts the handlers stays outside this package; the bridge
// only upgrades and pumps.
type WSBridge struct {
	broadcaster *Broadcaster
	logger      logger.Logger
	upgrader    websocket.Upgrader
}

// NewWSBridge creates a bridge over a broadcaster.
func NewWSBridge(b *Broadcaster, log logger.Logger) *WSBridge {
	return &WSBridge{
		broadcaster: b,
		logger:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeDevice upgrades the request and streams one device's telemetry
// until the client disconnects.
func (br *WSBridge) ServeDevice(w http.ResponseWriter, r *http.Request, deviceID string) {
	conn, err := br.upgrader.Upgrade(w, r, nil)
	if err != nil {
		br.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	obs := br.broadcaster.SubscribeDevice(deviceID)
	br.pump(conn, obs)
}

// ServeAll upgrades the request and streams every device's telemetry.
func (br *WSBridge) ServeAll(w http.ResponseWriter, r *http.Request) {
	conn, err := br.upgrader.Upgrade(w, r, nil)
	if err != nil {
		br.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	obs := br.broadcaster.SubscribeAll()
	br.pump(conn, obs)
}

// pump forwards observer events to the socket and answers client control
// messages. A literal "ping" gets a literal "pong"; keepalive events go
// out as {"type":"keepalive"}.
func (br *WSBridge) pump(conn *websocket.Conn, obs *Observer) {
	defer func() {
		br.broadcaster.Unsubscribe(obs)
		conn.Close()
	}()

	var writeMu sync.Mutex

	write := func(payload []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()

		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	// Reader side: client control messages reset the idle window.
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			br.broadcaster.MarkActivity(obs)

			if string(data) == "ping" {
				if err := write([]byte("pong")); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-readerDone:
			return
		case event, ok := <-obs.Events():
			if !ok {
				return
			}

			payload, err := br.encode(event)
			if err != nil {
				br.logger.Error().Err(err).Msg("Encoding stream event")
				continue
			}

			if err := write(payload); err != nil {
				br.logger.Debug().Err(err).Str("device_id", obs.DeviceID()).Msg("WebSocket write failed")
				return
			}
		}
	}
}

func (br *WSBridge) encode(event Event) ([]byte, error) {
	if event.Type == EventReading && event.Reading != nil {
		return codec.MarshalJSON(event.Reading)
	}

	return codec.MarshalJSON(struct {
		Type string `json:"type"`
	}{Type: event.Type})
}
