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

package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

var errTestFixture = errors.New("fixture")

type published struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	mu      sync.Mutex
	msgs    []published
	failOn  string
	nextSeq uint64
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failOn != "" && strings.HasSuffix(subject, f.failOn) {
		return nil, errTestFixture
	}

	f.nextSeq++
	f.msgs = append(f.msgs, published{subject: subject, data: data})

	return &jetstream.PubAck{Stream: "presence", Sequence: f.nextSeq}, nil
}

func testBatch() *tracker.EventBatch {
	ts := time.Date(2024, 5, 6, 8, 30, 0, 0, time.UTC)

	return &tracker.EventBatch{
		Cycle:     4,
		Timestamp: ts,
		Attendance: []models.AttendanceEvent{
			{Address: "aa:bb:cc:dd:ee:01", Kind: models.AttendanceArrival, Timestamp: ts, Zone: models.ZoneNear},
		},
		Alerts: []models.AlertEvent{
			{Address: "aa:bb:cc:dd:ee:01", Kind: models.AlertArrival, Message: "arrived", Severity: models.SeverityInfo, Timestamp: ts},
			{Address: "aa:bb:cc:dd:ee:02", Kind: models.AlertLeaving, Message: "leaving", Severity: models.SeverityWarning, Timestamp: ts},
		},
	}
}

func TestEventPublisherHandleEvents(t *testing.T) {
	js := &fakeJetStream{}
	pub := NewEventPublisher(js, "presence", "", logger.NewTestLogger())

	require.Equal(t, "nats", pub.Name())
	require.NoError(t, pub.HandleEvents(context.Background(), testBatch()))
	require.Len(t, js.msgs, 3)

	assert.Equal(t, "presence.events.attendance.arrival", js.msgs[0].subject)
	assert.Equal(t, "presence.events.alert.arrival", js.msgs[1].subject)
	assert.Equal(t, "presence.events.alert.leaving", js.msgs[2].subject)

	var event struct {
		SpecVersion string                 `json:"specversion"`
		ID          string                 `json:"id"`
		Type        string                 `json:"type"`
		Subject     string                 `json:"subject"`
		Time        time.Time              `json:"time"`
		Data        models.AttendanceEvent `json:"data"`
	}

	require.NoError(t, json.Unmarshal(js.msgs[0].data, &event))
	assert.Equal(t, "1.0", event.SpecVersion)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, attendanceType, event.Type)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", event.Data.Address)
	assert.Equal(t, models.AttendanceArrival, event.Data.Kind)
	assert.True(t, event.Time.Equal(testBatch().Timestamp))
}

func TestEventPublisherContinuesAfterFailure(t *testing.T) {
	js := &fakeJetStream{failOn: "alert.arrival"}
	pub := NewEventPublisher(js, "presence", "site1", logger.NewTestLogger())

	err := pub.HandleEvents(context.Background(), testBatch())
	require.ErrorIs(t, err, errTestFixture)
	require.Len(t, js.msgs, 2)
	assert.Equal(t, "site1.alert.leaving", js.msgs[1].subject)
}

func TestEnsureSubjectList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		subjects []string
		subject  string
		want     []string
	}{
		{
			name:    "adds subject when list empty",
			subject: "presence.events.>",
			want:    []string{"presence.events.>"},
		},
		{
			name:     "keeps list when wildcard matches",
			subjects: []string{"presence.*.>"},
			subject:  "presence.events.>",
			want:     []string{"presence.*.>"},
		},
		{
			name:     "keeps list when greater wildcard matches",
			subjects: []string{"presence.>"},
			subject:  "presence.events.alert",
			want:     []string{"presence.>"},
		},
		{
			name:     "appends when unmatched",
			subjects: []string{"logs.syslog.*"},
			subject:  "presence.events.>",
			want:     []string{"logs.syslog.*", "presence.events.>"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ensureSubjectList(append([]string(nil), tc.subjects...), tc.subject)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMatchesSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pattern  string
		subject  string
		expected bool
	}{
		{"exact match", "presence.events.alert", "presence.events.alert", true},
		{"single wildcard", "presence.*.alert", "presence.events.alert", true},
		{"greater wildcard", "presence.>", "presence.events.alert", true},
		{"greater needs a token", "presence.events.>", "presence.events", false},
		{"no match length", "presence.*", "presence.events.alert", false},
		{"no match tokens", "logs.syslog.*", "presence.events.alert", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, matchesSubject(tc.pattern, tc.subject))
		})
	}
}

func TestIsStreamMissingErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"jetstream no stream response", jetstream.ErrNoStreamResponse, true},
		{"jetstream stream not found", jetstream.ErrStreamNotFound, true},
		{"nats no stream response", nats.ErrNoStreamResponse, true},
		{"nats stream not found", nats.ErrStreamNotFound, true},
		{"nats no responders", nats.ErrNoResponders, true},
		{"other error", errTestFixture, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, isStreamMissingErr(tc.err))
		})
	}
}

func TestTLSConfigRequiresMTLS(t *testing.T) {
	_, err := TLSConfig(nil)
	require.ErrorIs(t, err, ErrMTLSRequired)

	_, err = TLSConfig(&models.SecurityConfig{Mode: "none"})
	require.ErrorIs(t, err, ErrMTLSRequired)

	_, err = TLSConfig(&models.SecurityConfig{
		Mode:    "mtls",
		CertDir: t.TempDir(),
		TLS:     models.TLSConfig{CertFile: "client.pem", KeyFile: "client-key.pem", CAFile: "root.pem"},
	})
	require.Error(t, err)
}

func TestNewJetStreamNilConn(t *testing.T) {
	_, err := NewJetStream(nil, "")
	require.ErrorIs(t, err, errNilConn)
}
