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

package lifecycle

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/presenceradar/pkg/logger"
)

func TestCreateComponentLogger(t *testing.T) {
	l, err := CreateComponentLogger(context.Background(), "tracker", &logger.Config{Level: "warn"})
	require.NoError(t, err)

	assert.Nil(t, l.Info(), "info is below the configured level")
	assert.NotNil(t, l.Warn())

	l.SetDebug(true)
	assert.NotNil(t, l.Debug())
}

func TestNewLoggerImplRejectsBadLevel(t *testing.T) {
	_, err := NewLoggerImpl(context.Background(), &logger.Config{Level: "loud"})
	assert.Error(t, err)
}

func TestLoggerImplSetLevel(t *testing.T) {
	l, err := NewLoggerImpl(context.Background(), &logger.Config{Level: "info"})
	require.NoError(t, err)

	l.SetLevel(zerolog.ErrorLevel)
	assert.Nil(t, l.Warn())
	assert.NotNil(t, l.Error())
}

func TestSignalContextCancels(t *testing.T) {
	ctx, cancel := SignalContext(context.Background())
	cancel()

	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
