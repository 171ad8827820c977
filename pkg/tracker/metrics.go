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
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/carverauto/presenceradar/pkg/models"
)

const (
	trackerMeterName = "github.com/carverauto/presenceradar/pkg/tracker"

	metricCyclesName        = "presence_cycles_total"
	metricCycleDurationName = "presence_cycle_duration_ms"
	metricEventsName        = "presence_events_total"
	metricScanErrorsName    = "presence_scan_errors_total"
	metricDroppedName       = "presence_dropped_batches_total"
	metricDevicesName       = "presence_devices"
	metricPresentName       = "presence_devices_present"
)

var (
	//nolint:gochecknoglobals // instruments are shared singletons
	trackerMetricsOnce sync.Once
	//nolint:gochecknoglobals // instruments are shared singletons
	trackerInstruments = struct {
		cycles        metric.Int64Counter
		cycleDuration metric.Float64Histogram
		events        metric.Int64Counter
		scanErrors    metric.Int64Counter
		dropped       metric.Int64Counter
	}{
		cycles:        noop.Int64Counter{},
		cycleDuration: noop.Float64Histogram{},
		events:        noop.Int64Counter{},
		scanErrors:    noop.Int64Counter{},
		dropped:       noop.Int64Counter{},
	}
	//nolint:gochecknoglobals // gauge values read by the observer callback
	trackerGaugeData struct {
		devices atomic.Int64
		present atomic.Int64
	}
	trackerMetricsRegistration metric.Registration //nolint:unused,gochecknoglobals // keeps the callback registered
)

func initTrackerMetrics() {
	trackerMetricsOnce.Do(func() {
		meter := otel.Meter(trackerMeterName)

		cycles, err := meter.Int64Counter(metricCyclesName,
			metric.WithDescription("Completed tracking cycles"))
		if err != nil {
			otel.Handle(err)
			return
		}

		duration, err := meter.Float64Histogram(metricCycleDurationName,
			metric.WithDescription("Time spent applying one scan batch"),
			metric.WithUnit("ms"))
		if err != nil {
			otel.Handle(err)
			return
		}

		events, err := meter.Int64Counter(metricEventsName,
			metric.WithDescription("Attendance events and alerts emitted, by kind"))
		if err != nil {
			otel.Handle(err)
			return
		}

		scanErrors, err := meter.Int64Counter(metricScanErrorsName,
			metric.WithDescription("Scans that failed and skipped their cycle"))
		if err != nil {
			otel.Handle(err)
			return
		}

		dropped, err := meter.Int64Counter(metricDroppedName,
			metric.WithDescription("Event batches dropped because the dispatch queue was full"))
		if err != nil {
			otel.Handle(err)
			return
		}

		devices, err := meter.Int64ObservableGauge(metricDevicesName,
			metric.WithDescription("Tracked devices after the latest cycle"))
		if err != nil {
			otel.Handle(err)
			return
		}

		present, err := meter.Int64ObservableGauge(metricPresentName,
			metric.WithDescription("Devices with present attendance status after the latest cycle"))
		if err != nil {
			otel.Handle(err)
			return
		}

		registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
			observer.ObserveInt64(devices, trackerGaugeData.devices.Load())
			observer.ObserveInt64(present, trackerGaugeData.present.Load())

			return nil
		}, devices, present)
		if err != nil {
			otel.Handle(err)
			return
		}

		trackerInstruments.cycles = cycles
		trackerInstruments.cycleDuration = duration
		trackerInstruments.events = events
		trackerInstruments.scanErrors = scanErrors
		trackerInstruments.dropped = dropped
		trackerMetricsRegistration = registration
	})
}

func recordCycle(ctx context.Context, result *CycleResult, t *table) {
	trackerInstruments.cycles.Add(ctx, 1)
	trackerInstruments.cycleDuration.Record(ctx, float64(result.Duration.Microseconds())/1000)

	for _, ev := range result.Attendance {
		trackerInstruments.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(ev.Kind))))
	}

	for _, ev := range result.Alerts {
		trackerInstruments.events.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", "alert_"+string(ev.Kind)),
			attribute.String("severity", string(ev.Severity)),
		))
	}

	var present int64

	for _, rec := range t.records {
		if rec.Status == models.StatusPresent {
			present++
		}
	}

	trackerGaugeData.devices.Store(int64(len(t.records)))
	trackerGaugeData.present.Store(present)
}

func recordScanError(ctx context.Context) {
	trackerInstruments.scanErrors.Add(ctx, 1)
}

func recordDroppedBatch(ctx context.Context) {
	trackerInstruments.dropped.Add(ctx, 1)
}
