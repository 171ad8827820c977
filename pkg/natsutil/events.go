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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

const (
	eventSource      = "presenceradar/tracker"
	attendanceType   = "com.carverauto.presenceradar.attendance"
	alertType        = "com.carverauto.presenceradar.alert"
	defaultStream    = "presence"
	defaultSubject   = "presence.events"
	publisherSinkTag = "nats"
)

var errNilConn = errors.New("nats connection is nil")

// JetStreamPublisher is the part of jetstream.JetStream the publisher needs.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// EventPublisher publishes attendance events and alerts as CloudEvents.
// It satisfies tracker.EventSink.
type EventPublisher struct {
	js      JetStreamPublisher
	stream  string
	subject string
	logger  logger.Logger
}

// NewEventPublisher creates a publisher that writes under subject.
func NewEventPublisher(js JetStreamPublisher, streamName, subject string, log logger.Logger) *EventPublisher {
	if subject == "" {
		subject = defaultSubject
	}

	return &EventPublisher{
		js:      js,
		stream:  streamName,
		subject: subject,
		logger:  log,
	}
}

// Name implements tracker.EventSink.
func (*EventPublisher) Name() string { return publisherSinkTag }

// HandleEvents implements tracker.EventSink. Every event is attempted; the
// returned error joins the individual failures.
func (p *EventPublisher) HandleEvents(ctx context.Context, batch *tracker.EventBatch) error {
	var errs []error

	for i := range batch.Attendance {
		ev := &batch.Attendance[i]

		if err := p.PublishAttendance(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}

	for i := range batch.Alerts {
		alert := &batch.Alerts[i]

		if err := p.PublishAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// AttendanceSubject is the subject an attendance event is published on.
func (p *EventPublisher) AttendanceSubject(kind models.AttendanceKind) string {
	return p.subject + ".attendance." + string(kind)
}

// AlertSubject is the subject an alert is published on.
func (p *EventPublisher) AlertSubject(kind models.AlertKind) string {
	return p.subject + ".alert." + string(kind)
}

// PublishAttendance publishes a single attendance event.
func (p *EventPublisher) PublishAttendance(ctx context.Context, ev *models.AttendanceEvent) error {
	ts := ev.Timestamp

	return p.publish(ctx, &models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            attendanceType,
		DataContentType: "application/json",
		Subject:         p.AttendanceSubject(ev.Kind),
		Time:            &ts,
		Data:            ev,
	})
}

// PublishAlert publishes a single alert.
func (p *EventPublisher) PublishAlert(ctx context.Context, alert *models.AlertEvent) error {
	ts := alert.Timestamp

	return p.publish(ctx, &models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            alertType,
		DataContentType: "application/json",
		Subject:         p.AlertSubject(alert.Kind),
		Time:            &ts,
		Data:            alert,
	})
}

func (p *EventPublisher) publish(ctx context.Context, event *models.CloudEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	ack, err := p.js.Publish(ctx, event.Subject, payload)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Str("subject", event.Subject).
		Uint64("seq", ack.Sequence).
		Msg("Published event")

	return nil
}

// ConnectWithSecurity creates a NATS connection, adding mTLS when security
// is configured.
func ConnectWithSecurity(natsURL string, security *models.SecurityConfig, log logger.Logger, extraOpts ...nats.Option) (*nats.Conn, error) {
	var opts []nats.Option

	if security != nil && security.Mode != "" && security.Mode != "none" {
		tlsConf, err := TLSConfig(security)
		if err != nil {
			return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts, nats.Secure(tlsConf))
	}

	opts = append(opts,
		nats.Name("presenceradar"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.ConnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return nc, nil
}

// NewJetStream returns a JetStream context, bound to domain when one is set.
func NewJetStream(nc *nats.Conn, domain string) (jetstream.JetStream, error) {
	if nc == nil {
		return nil, errNilConn
	}

	if domain != "" {
		js, err := jetstream.NewWithDomain(nc, domain)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context with domain %s: %w", domain, err)
		}

		return js, nil
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return js, nil
}

// CreateEventPublisher ensures the stream exists and covers subject, then
// returns a publisher bound to it.
func CreateEventPublisher(
	ctx context.Context, nc *nats.Conn, cfg *models.EventsConfig, domain string, log logger.Logger,
) (*EventPublisher, error) {
	js, err := NewJetStream(nc, domain)
	if err != nil {
		return nil, err
	}

	streamName := cfg.StreamName
	if streamName == "" {
		streamName = defaultStream
	}

	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}

	wildcard := subject + ".>"

	var subjects []string

	stream, err := js.Stream(ctx, streamName)
	if err == nil {
		info, infoErr := stream.Info(ctx)
		if infoErr != nil {
			return nil, fmt.Errorf("failed to read stream %s: %w", streamName, infoErr)
		}

		subjects = info.Config.Subjects
	} else if !isStreamMissingErr(err) {
		return nil, fmt.Errorf("failed to look up stream %s: %w", streamName, err)
	}

	updated := ensureSubjectList(append([]string(nil), subjects...), wildcard)
	if err != nil || len(updated) != len(subjects) {
		streamConfig := jetstream.StreamConfig{
			Name:     streamName,
			Subjects: updated,
		}

		if _, err := js.CreateOrUpdateStream(ctx, streamConfig); err != nil {
			return nil, fmt.Errorf("failed to create or update stream %s: %w", streamName, err)
		}

		log.Info().
			Str("stream", streamName).
			Strs("subjects", updated).
			Msg("Configured NATS JetStream stream")
	}

	return NewEventPublisher(js, streamName, subject, log), nil
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}

// ensureSubjectList appends subject unless an existing pattern already covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, existing := range subjects {
		if matchesSubject(existing, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether pattern covers subject using NATS wildcard
// rules. A pattern token "*" matches one token; a trailing ">" matches the rest.
func matchesSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, tok := range pTokens {
		if tok == ">" {
			return i < len(sTokens)
		}

		if i >= len(sTokens) {
			return false
		}

		if tok != "*" && tok != sTokens[i] {
			return false
		}
	}

	return len(pTokens) == len(sTokens)
}
