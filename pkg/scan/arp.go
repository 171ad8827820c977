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

// Package scan discovers LAN neighbours and estimates their signal strength.
package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
)

// DefaultARPTablePath is the Linux kernel neighbour table.
const DefaultARPTablePath = "/proc/net/arp"

const (
	arpFlagsIncomplete = "0x0"
	arpMinFields       = 6
)

var (
	ErrBadARPHeader = errors.New("unexpected arp table header")
	ErrBadCIDR      = errors.New("invalid network filter")
)

// Neighbor is one complete entry of the kernel neighbour table.
type Neighbor struct {
	IP      net.IP
	MAC     string
	Device  string
	HWType  string
	Flags   string
	Scanned time.Time
}

// ARPTableScanner reads the kernel neighbour table.
type ARPTableScanner struct {
	path     string
	networks []*net.IPNet
	logger   logger.Logger
	now      func() time.Time
}

// NewARPTableScanner builds a scanner over path (DefaultARPTablePath when
// empty). When cidrs is non-empty only neighbours inside one of them are kept.
func NewARPTableScanner(path string, cidrs []string, log logger.Logger) (*ARPTableScanner, error) {
	if path == "" {
		path = DefaultARPTablePath
	}

	networks := make([]*net.IPNet, 0, len(cidrs))

	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrBadCIDR, cidr, err)
		}

		networks = append(networks, network)
	}

	return &ARPTableScanner{
		path:     path,
		networks: networks,
		logger:   log,
		now:      time.Now,
	}, nil
}

// Neighbors returns the filtered, deduplicated neighbour list.
func (s *ARPTableScanner) Neighbors(ctx context.Context) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open neighbour table: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries, err := ParseARPTable(f)
	if err != nil {
		return nil, err
	}

	now := s.now()
	seen := make(map[string]struct{}, len(entries))
	out := make([]Neighbor, 0, len(entries))

	for _, n := range entries {
		if !s.inScope(n.IP) {
			continue
		}

		if _, dup := seen[n.MAC]; dup {
			continue
		}

		seen[n.MAC] = struct{}{}
		n.Scanned = now
		out = append(out, n)
	}

	s.logger.Debug().
		Int("entries", len(entries)).
		Int("neighbors", len(out)).
		Str("path", s.path).
		Msg("Read neighbour table")

	return out, nil
}

// Scan implements tracker.Scanner without signal estimates.
func (s *ARPTableScanner) Scan(ctx context.Context) ([]models.Observation, error) {
	neighbors, err := s.Neighbors(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Observation, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, n.Observation())
	}

	return out, nil
}

// Observation converts the neighbour into an unranged observation.
func (n *Neighbor) Observation() models.Observation {
	return models.Observation{
		Address:   n.MAC,
		IP:        n.IP.String(),
		Timestamp: n.Scanned,
	}
}

func (s *ARPTableScanner) inScope(ip net.IP) bool {
	if len(s.networks) == 0 {
		return true
	}

	for _, network := range s.networks {
		if network.Contains(ip) {
			return true
		}
	}

	return false
}

// ParseARPTable parses the /proc/net/arp format. Incomplete entries and
// all-zero or broadcast hardware addresses are dropped.
func ParseARPTable(r io.Reader) ([]Neighbor, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read neighbour table: %w", err)
		}

		return nil, ErrBadARPHeader
	}

	if !strings.HasPrefix(strings.TrimSpace(scanner.Text()), "IP address") {
		return nil, ErrBadARPHeader
	}

	var out []Neighbor

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < arpMinFields {
			continue
		}

		if fields[2] == arpFlagsIncomplete {
			continue
		}

		ip := net.ParseIP(fields[0])
		if ip == nil {
			continue
		}

		mac, err := models.NormalizeAddress(fields[3])
		if err != nil || isPlaceholderMAC(mac) {
			continue
		}

		out = append(out, Neighbor{
			IP:     ip,
			MAC:    mac,
			HWType: fields[1],
			Flags:  fields[2],
			Device: fields[5],
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read neighbour table: %w", err)
	}

	return out, nil
}

func isPlaceholderMAC(mac string) bool {
	return mac == "00:00:00:00:00:00" || mac == "ff:ff:ff:ff:ff:ff"
}
