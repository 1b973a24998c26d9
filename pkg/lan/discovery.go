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

// Package lan implements the UDP multicast discovery protocol: scan
// requests to the multicast group, a live device-to-address registry built
// from replies, and unicast control and status messages.
package lan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/carverauto/goveelink/pkg/logger"
	"github.com/carverauto/goveelink/pkg/models"
)

const (
	// MulticastGroup is the discovery multicast address devices listen on.
	MulticastGroup = "239.255.255.250"

	// ScanPort receives multicast scan requests, ReplyPort receives scan
	// and status replies, ControlPort receives unicast control writes.
	ScanPort    = 4001
	ReplyPort   = 4002
	ControlPort = 4003

	// quiescenceWindow is how long the reply stream must stay silent before
	// a scan is considered complete. There is no overall upper bound: a
	// network where replies keep trickling in extends the wait
	// indefinitely, favoring completeness.
	quiescenceWindow = 2 * time.Second
	quiescencePoll   = 100 * time.Millisecond

	readBufferSize = 2048

	defaultScanInterval   = 5 * time.Minute
	defaultStatusInterval = 30 * time.Second
)

// ManualDevice is a statically configured device address.
type ManualDevice struct {
	Device string `json:"device"`
	IP     string `json:"ip"`
}

// Config holds the discovery service configuration.
type Config struct {
	AccountTopic  string         `json:"account_topic,omitempty"`
	ManualDevices []ManualDevice `json:"manual_devices,omitempty"`

	// ScanInterval and StatusInterval are in seconds; zero means default.
	ScanInterval   int `json:"scan_interval,omitempty"`
	StatusInterval int `json:"status_interval,omitempty"`
}

func (c *Config) scanInterval() time.Duration {
	if c.ScanInterval > 0 {
		return time.Duration(c.ScanInterval) * time.Second
	}

	return defaultScanInterval
}

func (c *Config) statusInterval() time.Duration {
	if c.StatusInterval > 0 {
		return time.Duration(c.StatusInterval) * time.Second
	}

	return defaultStatusInterval
}

// Service is the LAN discovery scanner and registry owner. Registry
// mutation happens only inside the service's own read loop.
type Service struct {
	cfg      Config
	logger   logger.Logger
	registry *Registry
	sink     func(models.Update)

	conn net.PacketConn

	mu        sync.Mutex
	lastReply time.Time

	// test-overridable timing
	quiescence time.Duration
	pollTick   time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewService creates the discovery service and seeds manual registry
// entries from configuration.
func NewService(cfg Config, sink func(models.Update), log logger.Logger) *Service {
	s := &Service{
		cfg:        cfg,
		logger:     log.WithComponent("lan"),
		registry:   NewRegistry(),
		sink:       sink,
		quiescence: quiescenceWindow,
		pollTick:   quiescencePoll,
		done:       make(chan struct{}),
	}

	for _, m := range cfg.ManualDevices {
		s.registry.AddManual(m.Device, m.IP)
	}

	return s
}

// Registry exposes the live registry.
func (s *Service) Registry() *Registry { return s.registry }

// SetConn injects the packet connection; for tests. Production connections
// are opened by Start.
func (s *Service) SetConn(conn net.PacketConn) { s.conn = conn }

// Start binds the reply port and runs the read loop plus the two re-scan
// and status-poll tickers until ctx is canceled.
func (s *Service) Start(ctx context.Context) error {
	if s.conn == nil {
		conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", ReplyPort))
		if err != nil {
			return fmt.Errorf("failed to bind reply port: %w", err)
		}

		s.conn = conn
	}

	go s.readLoop()
	go s.scanLoop(ctx)
	go s.statusLoop(ctx)

	// Seed the registry right away; the ticker only covers re-scans.
	if err := s.sendScan(); err != nil {
		s.logger.Warn().Err(err).Msg("Initial scan request failed")
	}

	<-ctx.Done()

	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})

	return ctx.Err()
}

// GetDevices issues one scan request and resolves once the reply stream has
// been quiet for the quiescence window: silence implies completeness. Total
// wait is bounded only by ctx.
func (s *Service) GetDevices(ctx context.Context) ([]models.LANEntry, error) {
	if err := s.sendScan(); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(s.pollTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, errServiceStopped
		case <-ticker.C:
			s.mu.Lock()
			quiet := time.Since(s.lastReply) >= s.quiescence
			s.mu.Unlock()

			if quiet {
				return s.registry.Snapshot(), nil
			}
		}
	}
}

// Has reports whether the device currently has a registered local address.
func (s *Service) Has(deviceID string) bool {
	_, ok := s.registry.Get(deviceID)
	return ok
}

// UpdateDevice unicasts a control payload to the device's registered
// address. A failed send to a non-manual entry prunes it from the registry:
// the device is presumed offline.
func (s *Service) UpdateDevice(_ context.Context, deviceID string, payload []byte) error {
	entry, ok := s.registry.Get(deviceID)
	if !ok {
		return ErrUnknownDevice
	}

	addr := &net.UDPAddr{IP: net.ParseIP(entry.IP), Port: ControlPort}

	if _, err := s.conn.WriteTo(payload, addr); err != nil {
		if !entry.IsManual {
			s.registry.Remove(deviceID)
			s.logger.Info().
				Str("device", deviceID).
				Str("ip", entry.IP).
				Msg("Control send failed, pruning device from registry")
		}

		return fmt.Errorf("control send to %s failed: %w", entry.IP, err)
	}

	return nil
}

// sendScan broadcasts one scan request to the multicast group and resets
// the quiescence clock.
func (s *Service) sendScan() error {
	req, err := newScanRequest(s.cfg.AccountTopic)
	if err != nil {
		return err
	}

	addr := &net.UDPAddr{IP: net.ParseIP(MulticastGroup), Port: ScanPort}

	if _, err := s.conn.WriteTo(req, addr); err != nil {
		return fmt.Errorf("scan request failed: %w", err)
	}

	s.mu.Lock()
	s.lastReply = time.Now()
	s.mu.Unlock()

	return nil
}

func (s *Service) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.scanInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sendScan(); err != nil {
				s.logger.Warn().Err(err).Msg("Periodic scan request failed")
			}
		}
	}
}

// statusLoop re-polls every registered device's status. Failures here are
// logged only; pruning is reserved for control writes.
func (s *Service) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.statusInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollStatuses()
		}
	}
}

func (s *Service) pollStatuses() {
	req, err := newStatusRequest()
	if err != nil {
		return
	}

	for _, entry := range s.registry.Snapshot() {
		addr := &net.UDPAddr{IP: net.ParseIP(entry.IP), Port: ControlPort}

		if _, err := s.conn.WriteTo(req, addr); err != nil {
			s.logger.Debug().
				Err(err).
				Str("device", entry.DeviceID).
				Msg("Status request failed")
		}
	}
}

func (s *Service) readLoop() {
	buf := make([]byte, readBufferSize)

	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}

			// A transient read failure must not kill LAN reception for the
			// rest of the process lifetime.
			s.logger.Warn().Err(err).Msg("Read error on reply port, continuing")

			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		s.handlePacket(payload, addr)
	}
}

// handlePacket processes one inbound datagram. Malformed packets are
// logged and dropped.
func (s *Service) handlePacket(payload []byte, addr net.Addr) {
	var dg Datagram

	if err := json.Unmarshal(payload, &dg); err != nil {
		s.logger.Debug().Err(err).Str("from", addr.String()).Msg("Dropping malformed datagram")
		return
	}

	switch dg.Msg.Cmd {
	case cmdScan:
		s.handleScanReply(dg.Msg.Data, addr)
	case cmdDevStatus:
		s.handleStatusReply(dg.Msg.Data, addr)
	default:
		s.logger.Trace().Str("cmd", dg.Msg.Cmd).Msg("Ignoring unknown datagram command")
	}
}

func (s *Service) handleScanReply(data json.RawMessage, addr net.Addr) {
	var reply scanReply

	if err := json.Unmarshal(data, &reply); err != nil || reply.Device == "" {
		s.logger.Debug().Str("from", addr.String()).Msg("Dropping malformed scan reply")
		return
	}

	ip := reply.IP
	if ip == "" {
		if udp, ok := addr.(*net.UDPAddr); ok {
			ip = udp.IP.String()
		}
	}

	now := time.Now()
	s.registry.Upsert(reply.Device, ip, now)

	s.mu.Lock()
	s.lastReply = now
	s.mu.Unlock()

	s.logger.Debug().
		Str("device", reply.Device).
		Str("ip", ip).
		Msg("Scan reply")
}

func (s *Service) handleStatusReply(data json.RawMessage, addr net.Addr) {
	udp, ok := addr.(*net.UDPAddr)
	if !ok {
		return
	}

	entry, ok := s.registry.FindByIP(udp.IP.String())
	if !ok {
		s.logger.Debug().Str("ip", udp.IP.String()).Msg("Status reply from unknown device")
		return
	}

	if s.sink != nil {
		s.sink(models.Update{
			DeviceID: entry.DeviceID,
			Source:   models.TransportLAN,
			Payload:  data,
		})
	}
}
