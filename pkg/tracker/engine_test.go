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

package tracker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/presenceradar/pkg/eventlog"
	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
)

const (
	macA = "aa:bb:cc:00:00:01"
	macB = "aa:bb:cc:00:00:02"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T, scanner Scanner, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)

	e, err := NewEngine(Config{ScanInterval: models.Duration(time.Hour)}, scanner, logger.NewTestLogger(), opts...)
	require.NoError(t, err)

	t.Cleanup(e.Close)

	return e, clock
}

func seen(addr string, rssi int) models.Observation {
	return models.Observation{Address: addr, RSSI: models.RSSIPtr(rssi)}
}

func monitor(t *testing.T, e *Engine, addr string) {
	t.Helper()

	_, err := e.RegisterDevice(models.DeviceRegistration{Address: addr, Label: "desk " + addr[len(addr)-2:]})
	require.NoError(t, err)
}

func TestRunCycleArrival(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	monitor(t, e, macA)

	res, err := e.RunCycle(context.Background(), []models.Observation{seen(macA, -50)})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), res.Cycle)
	assert.Equal(t, 1, res.Observed)
	assert.Zero(t, res.Created)
	require.Len(t, res.Attendance, 1)
	assert.Equal(t, models.AttendanceArrival, res.Attendance[0].Kind)
	require.Len(t, res.Alerts, 1)

	rec, err := e.Device(macA)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, rec.Status)
	assert.Equal(t, models.ZoneOnSite, rec.Zone)

	logged := e.Events().Attendance(eventlog.Filter{Address: macA})
	assert.Len(t, logged, 1)
}

func TestRunCycleDiscoversUnknownDevices(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	res, err := e.RunCycle(context.Background(), []models.Observation{seen("AA-BB-CC-00-00-02", -60)})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Created)
	assert.Empty(t, res.Attendance, "discovered devices are not monitored")

	rec, err := e.Device(macB)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryEmployee, rec.Category)
	assert.False(t, rec.Monitored)
	assert.Equal(t, models.StatusPresent, rec.Status)
}

func TestRunCycleDepartureAfterMissThreshold(t *testing.T) {
	e, clock := newTestEngine(t, nil)
	monitor(t, e, macA)

	ctx := context.Background()

	_, err := e.RunCycle(ctx, []models.Observation{seen(macA, -50)})
	require.NoError(t, err)

	threshold := e.Calibration().MissThreshold

	for i := 1; i <= threshold; i++ {
		clock.Advance(30 * time.Second)

		res, err := e.RunCycle(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Missed)

		if i < threshold {
			assert.Empty(t, res.Attendance, "cycle %d", i)
			continue
		}

		require.Len(t, res.Attendance, 1)
		assert.Equal(t, models.AttendanceDeparture, res.Attendance[0].Kind)
		assert.Equal(t, clock.Now(), res.Attendance[0].Timestamp)
	}

	rec, err := e.Device(macA)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAbsent, rec.Status)
	assert.Equal(t, models.ZoneAway, rec.Zone)
}

func TestRunCycleAfterDepartureIsStable(t *testing.T) {
	e, clock := newTestEngine(t, nil)
	monitor(t, e, macA)

	ctx := context.Background()

	_, err := e.RunCycle(ctx, []models.Observation{seen(macA, -50)})
	require.NoError(t, err)

	threshold := e.Calibration().MissThreshold

	for i := 1; i <= threshold; i++ {
		clock.Advance(30 * time.Second)

		_, err = e.RunCycle(ctx, nil)
		require.NoError(t, err)
	}

	departed, err := e.Device(macA)
	require.NoError(t, err)
	require.Equal(t, models.StatusAbsent, departed.Status)

	for i := 0; i < 20; i++ {
		clock.Advance(30 * time.Second)

		res, err := e.RunCycle(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, res.Attendance, "cycle %d", i)
		assert.Empty(t, res.Alerts, "cycle %d", i)

		rec, err := e.Device(macA)
		require.NoError(t, err)
		assert.Equal(t, models.ZoneAway, rec.Zone)
		assert.Equal(t, models.StatusAbsent, rec.Status)
		assert.Equal(t, departed.HasDistance, rec.HasDistance)
		assert.InDelta(t, departed.Distance, rec.Distance, 1e-9)
		assert.Equal(t, departed.LastStatusChange, rec.LastStatusChange)
	}

	var departures int

	for _, ev := range e.Events().Attendance(eventlog.Filter{Address: macA}) {
		if ev.Kind == models.AttendanceDeparture {
			departures++
		}
	}

	assert.Equal(t, 1, departures)
}

func TestRunCycleDiagnostics(t *testing.T) {
	e, clock := newTestEngine(t, nil)

	early := clock.Now().Add(-time.Minute)
	late := clock.Now().Add(-time.Second)

	res, err := e.RunCycle(context.Background(), []models.Observation{
		{Address: "not-a-mac", RSSI: models.RSSIPtr(-50)},
		{Address: macA, RSSI: models.RSSIPtr(7)},
		{Address: macB, RSSI: models.RSSIPtr(-80), Timestamp: late},
		{Address: macB, RSSI: models.RSSIPtr(-45), Timestamp: early},
	})
	require.NoError(t, err)

	require.Len(t, res.Diagnostics, 3)
	assert.Equal(t, "not-a-mac", res.Diagnostics[0].Address)
	assert.Equal(t, macA, res.Diagnostics[1].Address)
	assert.Contains(t, res.Diagnostics[1].Reason, "out of range")
	assert.Contains(t, res.Diagnostics[2].Reason, "duplicate")
	assert.Equal(t, 2, res.Observed)

	a, err := e.Device(macA)
	require.NoError(t, err)
	assert.False(t, a.HasDistance)
	assert.Equal(t, models.ZoneNear, a.Zone)

	b, err := e.Device(macB)
	require.NoError(t, err)
	assert.Equal(t, late, b.LastSeen, "the newest observation wins")
	assert.InDelta(t, 100, b.Distance, 0.001)

	assert.Len(t, e.Diagnostics(), 3)
}

func TestRunCycleClampsBackwardsClock(t *testing.T) {
	e, clock := newTestEngine(t, nil)
	monitor(t, e, macA)

	ctx := context.Background()

	_, err := e.RunCycle(ctx, []models.Observation{seen(macA, -50)})
	require.NoError(t, err)

	clock.Advance(-time.Hour)

	for i := 0; i < e.Calibration().MissThreshold; i++ {
		_, err = e.RunCycle(ctx, nil)
		require.NoError(t, err)
	}

	events := e.Events().Attendance(eventlog.Filter{})
	require.Len(t, events, 2)
	assert.False(t, events[1].Timestamp.Before(events[0].Timestamp))
}

func TestRunCycleHonoursCanceledContext(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.RunCycle(ctx, []models.Observation{seen(macA, -50)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, e.Devices())
}

func TestCalibrationAdoptedAtNextCycle(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	updated := models.DefaultCalibration()
	updated.ReferenceRSSI = -60

	require.NoError(t, e.UpdateCalibration(updated))

	pending, ok := e.PendingCalibration()
	require.True(t, ok)
	assert.Equal(t, -60, pending.ReferenceRSSI)
	assert.Equal(t, models.DefaultReferenceRSSI, e.Calibration().ReferenceRSSI)

	_, err := e.RunCycle(context.Background(), []models.Observation{seen(macA, -60)})
	require.NoError(t, err)

	assert.Equal(t, -60, e.Calibration().ReferenceRSSI)
	_, ok = e.PendingCalibration()
	assert.False(t, ok)

	rec, err := e.Device(macA)
	require.NoError(t, err)
	assert.InDelta(t, 1, rec.Distance, 1e-9)
}

func TestUpdateCalibrationRejectsInvalid(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	bad := models.DefaultCalibration()
	bad.ZoneThresholds = []float64{30, 10, 50}

	err := e.UpdateCalibration(bad)
	require.ErrorIs(t, err, models.ErrValidation)

	_, ok := e.PendingCalibration()
	assert.False(t, ok)
}

func TestNewEngineDerivesMissThresholdFromWindow(t *testing.T) {
	profile := models.DefaultCalibration()
	profile.MissThreshold = 0

	e, err := NewEngine(Config{
		ScanInterval:    models.Duration(30 * time.Second),
		DepartureWindow: models.Duration(100 * time.Second),
	}, nil, logger.NewTestLogger(), WithCalibration(profile))
	require.NoError(t, err)

	defer e.Close()

	assert.Equal(t, 4, e.Calibration().MissThreshold)
}

func TestRegistry(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	_, err := e.UpdateDevice(models.DeviceRegistration{Address: macA, Label: "x"})
	require.ErrorIs(t, err, models.ErrUnknownDevice)

	var unknown *models.UnknownDeviceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, macA, unknown.Address)

	off := false
	rec, err := e.RegisterDevice(models.DeviceRegistration{Address: "AA:BB:CC:00:00:02", Category: models.CategoryVisitor, Monitored: &off})
	require.NoError(t, err)
	assert.Equal(t, macB, rec.Address)
	assert.Equal(t, models.CategoryVisitor, rec.Category)
	assert.False(t, rec.Monitored)

	rec, err = e.RegisterDevice(models.DeviceRegistration{Address: macA})
	require.NoError(t, err)
	assert.Equal(t, models.CategoryEmployee, rec.Category)
	assert.True(t, rec.Monitored)

	rec, err = e.UpdateDevice(models.DeviceRegistration{Address: macA, Label: "Reception"})
	require.NoError(t, err)
	assert.Equal(t, "Reception", rec.Label)
	assert.True(t, rec.Monitored, "unset fields are left alone")

	devices := e.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, macA, devices[0].Address)
	assert.Equal(t, macB, devices[1].Address)
	assert.Equal(t, map[string]string{macA: "Reception"}, e.Labels())

	_, err = e.RegisterDevice(models.DeviceRegistration{Address: macA, Category: "robot"})
	require.ErrorIs(t, err, models.ErrValidation)

	require.NoError(t, e.RemoveDevice(macB))
	require.ErrorIs(t, e.RemoveDevice(macB), models.ErrUnknownDevice)
	require.ErrorIs(t, e.RemoveDevice("bogus"), models.ErrValidation)

	_, err = e.Device(macB)
	require.ErrorIs(t, err, models.ErrUnknownDevice)
}

func TestDevicesReturnsCopies(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	_, err := e.RunCycle(context.Background(), []models.Observation{seen(macA, -50)})
	require.NoError(t, err)

	devices := e.Devices()
	*devices[0].RSSI = -1
	devices[0].Label = "mutated"

	rec, err := e.Device(macA)
	require.NoError(t, err)
	assert.Equal(t, -50, *rec.RSSI)
	assert.Empty(t, rec.Label)
}

func TestStateRoundTrip(t *testing.T) {
	e, clock := newTestEngine(t, nil)
	monitor(t, e, macA)

	_, err := e.RunCycle(context.Background(), []models.Observation{seen(macA, -50), seen(macB, -65)})
	require.NoError(t, err)

	clock.Advance(30 * time.Second)

	_, err = e.RunCycle(context.Background(), []models.Observation{seen(macB, -65)})
	require.NoError(t, err)

	staged := models.DefaultCalibration()
	staged.PathLossExponent = 3
	require.NoError(t, e.UpdateCalibration(staged))

	state := e.State()
	assert.InDelta(t, 3.0, state.Calibration.PathLossExponent, 1e-9)

	restored, _ := newTestEngine(t, nil)
	require.NoError(t, restored.Restore(state))

	assert.Equal(t, e.Devices(), restored.Devices())
	assert.InDelta(t, 3.0, restored.Calibration().PathLossExponent, 1e-9)

	a, err := restored.Device(macA)
	require.NoError(t, err)
	assert.Equal(t, 1, a.MissCount)
}

func TestRestoreRejectsInvalidState(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	require.Error(t, e.Restore(nil))

	state := &models.EngineState{
		Calibration: models.DefaultCalibration(),
		Devices: []models.DeviceRecord{
			models.NewDeviceRecord(macA),
			models.NewDeviceRecord("AA:BB:CC:00:00:01"),
		},
	}

	require.ErrorIs(t, e.Restore(state), models.ErrValidation)
	assert.Equal(t, "AA:BB:CC:00:00:01", state.Devices[1].Address, "caller's state is not modified")
}

// Every cycle observes every device with the cycle timestamp, so a consistent
// snapshot always shows one LastSeen value across all records.
func TestSnapshotsAreConsistentDuringCycles(t *testing.T) {
	e, clock := newTestEngine(t, nil)

	const devices = 16

	batchAt := func(ts time.Time) []models.Observation {
		out := make([]models.Observation, 0, devices)
		for i := 0; i < devices; i++ {
			out = append(out, models.Observation{
				Address:   fmt.Sprintf("02:00:00:00:00:%02x", i),
				RSSI:      models.RSSIPtr(-50 - i),
				Timestamp: ts,
			})
		}

		return out
	}

	_, err := e.RunCycle(context.Background(), batchAt(clock.Now()))
	require.NoError(t, err)

	var (
		stop      atomic.Bool
		wg        sync.WaitGroup
		snapshots atomic.Int64
	)

	for r := 0; r < 4; r++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for !stop.Load() {
				snap := e.Devices()
				if !assert.Len(t, snap, devices) {
					return
				}

				for _, rec := range snap[1:] {
					if !assert.Equal(t, snap[0].LastSeen, rec.LastSeen) {
						return
					}
				}

				snapshots.Add(1)
			}
		}()
	}

	for i := 0; i < 200; i++ {
		clock.Advance(time.Second)

		_, err := e.RunCycle(context.Background(), batchAt(clock.Now()))
		require.NoError(t, err)
	}

	stop.Store(true)
	wg.Wait()

	assert.Positive(t, snapshots.Load())
}

func TestSinksReceiveBatches(t *testing.T) {
	ctrl := gomock.NewController(t)

	sink := NewMockEventSink(ctrl)
	received := make(chan *EventBatch, 1)

	sink.EXPECT().Name().Return("test").AnyTimes()
	sink.EXPECT().HandleEvents(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, batch *EventBatch) error {
			received <- batch
			return nil
		}).Times(1)

	e, _ := newTestEngine(t, nil, WithSinks(sink))
	monitor(t, e, macA)

	_, err := e.RunCycle(context.Background(), []models.Observation{seen(macA, -50)})
	require.NoError(t, err)

	select {
	case batch := <-received:
		assert.Equal(t, uint64(1), batch.Cycle)
		require.Len(t, batch.Attendance, 1)
		require.Len(t, batch.Changed, 1)
		assert.Equal(t, macA, batch.Changed[0].Address)
	case <-time.After(5 * time.Second):
		t.Fatal("sink was not called")
	}
}
