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
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	protocolICMP       = 1
	defaultPingTimeout = time.Second
	defaultPingCount   = 3
	maxPacketSize      = 1500
)

var (
	ErrNoReply    = errors.New("no echo reply")
	ErrNotIPv4    = errors.New("not an IPv4 address")
	errNoListener = errors.New("no ICMP socket available")
)

// rttBands maps round-trip time to an approximate signal strength. Faster
// replies are taken as closer devices.
var rttBands = []struct {
	below time.Duration
	rssi  int
}{
	{2 * time.Millisecond, -40},
	{5 * time.Millisecond, -50},
	{10 * time.Millisecond, -60},
	{20 * time.Millisecond, -70},
	{50 * time.Millisecond, -80},
}

const slowRSSI = -90

// RTTToRSSI converts a round-trip time into an RSSI estimate.
func RTTToRSSI(rtt time.Duration) int {
	for _, band := range rttBands {
		if rtt < band.below {
			return band.rssi
		}
	}

	return slowRSSI
}

// Pinger sends one echo request and reports the round-trip time.
type Pinger interface {
	Ping(ctx context.Context, ip net.IP) (time.Duration, error)
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context, ip net.IP) (time.Duration, error)

func (f PingerFunc) Ping(ctx context.Context, ip net.IP) (time.Duration, error) {
	return f(ctx, ip)
}

// ICMPPinger pings with an unprivileged datagram socket when the kernel
// allows it and falls back to a raw socket otherwise.
type ICMPPinger struct {
	timeout time.Duration
	id      int
	seq     atomic.Uint32
}

// NewICMPPinger returns a pinger whose single requests give up after timeout.
func NewICMPPinger(timeout time.Duration) *ICMPPinger {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}

	return &ICMPPinger{
		timeout: timeout,
		id:      os.Getpid() & 0xffff,
	}
}

func listenICMP() (*icmp.PacketConn, bool, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err == nil {
		return conn, true, nil
	}

	conn, rawErr := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if rawErr == nil {
		return conn, false, nil
	}

	return nil, false, fmt.Errorf("%w: %w", errNoListener, errors.Join(err, rawErr))
}

// Ping implements Pinger.
func (p *ICMPPinger) Ping(ctx context.Context, ip net.IP) (time.Duration, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotIPv4, ip)
	}

	conn, datagram, err := listenICMP()
	if err != nil {
		return 0, err
	}
	defer func() { _ = conn.Close() }()

	seq := int(p.seq.Add(1) & 0xffff)

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: []byte("presenceradar")},
	}

	payload, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("marshal echo request: %w", err)
	}

	var dst net.Addr = &net.IPAddr{IP: ip4}
	if datagram {
		dst = &net.UDPAddr{IP: ip4}
	}

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := conn.SetDeadline(deadline); err != nil {
		return 0, err
	}

	start := time.Now()

	if _, err := conn.WriteTo(payload, dst); err != nil {
		return 0, fmt.Errorf("send echo to %s: %w", ip4, err)
	}

	buf := make([]byte, maxPacketSize)

	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return 0, ErrNoReply
			}

			return 0, err
		}

		if !samePeer(peer, ip4) {
			continue
		}

		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}

		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}

		// datagram sockets rewrite the identifier, so it is only checked on raw sockets
		if !datagram && echo.ID != p.id {
			continue
		}

		return time.Since(start), nil
	}
}

func samePeer(addr net.Addr, ip net.IP) bool {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP.Equal(ip)
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	default:
		return false
	}
}

// RTTProber turns repeated pings into an RSSI estimate.
type RTTProber struct {
	pinger Pinger
	count  int
}

// NewRTTProber pings count times per host (3 when count is not positive).
func NewRTTProber(pinger Pinger, count int) *RTTProber {
	if count <= 0 {
		count = defaultPingCount
	}

	return &RTTProber{pinger: pinger, count: count}
}

// Probe returns the RSSI estimated from the mean RTT of the successful pings,
// or nil when the host never answered.
func (p *RTTProber) Probe(ctx context.Context, ip net.IP) *int {
	var (
		total   time.Duration
		replies int
	)

	for i := 0; i < p.count; i++ {
		if ctx.Err() != nil {
			break
		}

		rtt, err := p.pinger.Ping(ctx, ip)
		if err != nil {
			continue
		}

		total += rtt
		replies++
	}

	if replies == 0 {
		return nil
	}

	rssi := RTTToRSSI(total / time.Duration(replies))

	return &rssi
}
