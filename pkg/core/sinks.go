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

package core

import (
	"context"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

// LogSink writes every attendance event and alert to the service log.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (*LogSink) Name() string {
	return "log"
}

func (s *LogSink) HandleEvents(_ context.Context, batch *tracker.EventBatch) error {
	for i := range batch.Attendance {
		ev := &batch.Attendance[i]

		s.logger.Info().
			Uint64("cycle", batch.Cycle).
			Str("address", ev.Address).
			Str("kind", string(ev.Kind)).
			Str("zone", string(ev.Zone)).
			Time("at", ev.Timestamp).
			Msg("Attendance")
	}

	for i := range batch.Alerts {
		a := &batch.Alerts[i]

		evt := s.logger.Info()
		if a.Severity == models.SeverityWarning {
			evt = s.logger.Warn()
		}

		evt.Uint64("cycle", batch.Cycle).
			Str("address", a.Address).
			Str("kind", string(a.Kind)).
			Msg(a.Message)
	}

	return nil
}
