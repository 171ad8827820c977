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

package scan

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
)

const (
	defaultProbeWorkers = 16
	defaultProbeRate    = 200 // echo requests per second
)

// NeighborConfig configures the composite scanner.
type NeighborConfig struct {
	ARPTablePath string          `json:"arp_table_path,omitempty"`
	Networks     []string        `json:"networks,omitempty"`
	Probe        bool            `json:"probe"`
	PingCount    int             `json:"ping_count,omitempty"`
	PingTimeout  models.Duration `json:"ping_timeout,omitempty"`
	Workers      int             `json:"workers,omitempty"`
	RateLimit    int             `json:"rate_limit,omitempty"`
}

// NeighborScanner lists neighbours from the ARP table and, when probing is
// enabled, estimates a signal strength for each from ICMP round-trip times.
type NeighborScanner struct {
	table   *ARPTableScanner
	prober  *RTTProber
	workers int
	limiter *rate.Limiter
	logger  logger.Logger
}

// NewNeighborScanner builds the scanner from config using a real ICMP pinger.
func NewNeighborScanner(cfg *NeighborConfig, log logger.Logger) (*NeighborScanner, error) {
	var pinger Pinger
	if cfg.Probe {
		pinger = NewICMPPinger(time.Duration(cfg.PingTimeout))
	}

	return NewNeighborScannerWithPinger(cfg, pinger, log)
}

// NewNeighborScannerWithPinger is NewNeighborScanner with an explicit pinger;
// a nil pinger disables probing.
func NewNeighborScannerWithPinger(cfg *NeighborConfig, pinger Pinger, log logger.Logger) (*NeighborScanner, error) {
	table, err := NewARPTableScanner(cfg.ARPTablePath, cfg.Networks, log)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultProbeWorkers
	}

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultProbeRate
	}

	s := &NeighborScanner{
		table:   table,
		workers: workers,
		limiter: rate.NewLimiter(rate.Limit(limit), workers),
		logger:  log,
	}

	if pinger != nil {
		s.prober = NewRTTProber(pinger, cfg.PingCount)
	}

	return s, nil
}

// Scan implements tracker.Scanner. Probing stops when ctx ends; hosts not
// probed by then are reported without a signal estimate.
func (s *NeighborScanner) Scan(ctx context.Context) ([]models.Observation, error) {
	neighbors, err := s.table.Neighbors(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Observation, len(neighbors))
	for i := range neighbors {
		out[i] = neighbors[i].Observation()
	}

	if s.prober == nil || len(neighbors) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := range neighbors {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return nil
			}

			out[i].RSSI = s.prober.Probe(gctx, neighbors[i].IP)

			return nil
		})
	}

	_ = g.Wait()

	var ranged int

	for i := range out {
		if out[i].RSSI != nil {
			ranged++
		}
	}

	s.logger.Debug().
		Int("neighbors", len(out)).
		Int("ranged", ranged).
		Msg("Neighbour scan complete")

	return out, nil
}
