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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

type rawMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialStream(t *testing.T, ts *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg rawMessage
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

func TestStreamRelaysBatches(t *testing.T) {
	hub := NewHub(logger.NewTestLogger())
	e := newTestEngine(t, nil, tracker.WithSinks(hub))
	s := newTestServer(t, e, WithHub(hub))

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	conn := dialStream(t, ts, nil)

	hello := readMessage(t, conn)
	assert.Equal(t, messageHello, hello.Type)

	var status tracker.Status
	require.NoError(t, json.Unmarshal(hello.Data, &status))
	assert.False(t, status.Running)

	_, err := e.RegisterDevice(models.DeviceRegistration{Address: macA})
	require.NoError(t, err)

	_, err = e.RunCycle(context.Background(), []models.Observation{{Address: macA, RSSI: models.RSSIPtr(-50)}})
	require.NoError(t, err)

	msg := readMessage(t, conn)
	require.Equal(t, messageEvents, msg.Type)

	var batch tracker.EventBatch
	require.NoError(t, json.Unmarshal(msg.Data, &batch))
	assert.Equal(t, uint64(1), batch.Cycle)
	require.Len(t, batch.Attendance, 1)
	assert.Equal(t, models.AttendanceArrival, batch.Attendance[0].Kind)
}

func TestStreamRejectsForeignOrigin(t *testing.T) {
	hub := NewHub(logger.NewTestLogger())
	s := NewAPIServer(models.CORSConfig{AllowedOrigins: []string{"http://dashboard.local"}}, WithHub(hub))

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"

	header := http.Header{}
	header.Set("Origin", "http://evil.example")

	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, hub.Clients())
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(logger.NewTestLogger())
	s := NewAPIServer(models.CORSConfig{}, WithHub(hub))

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	conn := dialStream(t, ts, nil)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())

	hub.Broadcast(messageEvents, nil)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(logger.NewTestLogger())

	server, client := websocketPair(t)

	c, err := hub.register(server, nil)
	require.NoError(t, err)

	for i := 0; i < clientSendBuffer; i++ {
		hub.Broadcast(messageEvents, i)
	}

	assert.Equal(t, 1, hub.Clients())

	hub.Broadcast(messageEvents, "overflow")
	assert.Zero(t, hub.Clients())

	drained := 0
	for range c.send {
		drained++
	}

	assert.Equal(t, clientSendBuffer, drained)

	_ = client.Close()
}

// websocketPair returns the server and client ends of a live connection.
func websocketPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	accepted := make(chan *websocket.Conn, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}

		accepted <- conn
	}))
	t.Cleanup(ts.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	server := <-accepted
	t.Cleanup(func() { _ = server.Close() })

	return server, client
}
