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

// Package ble manages the short-range wireless link: one connected device
// at a time across the whole process, framed checksummed writes, and
// timing-bounded connect attempts.
package ble

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/goveelink/pkg/logger"
	"github.com/carverauto/goveelink/pkg/models"
)

// State is the manager's connection state machine position.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateDiscoveringCharacteristics
	StateReady
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateDiscoveringCharacteristics:
		return "discovering"
	case StateReady:
		return "ready"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "idle"
	}
}

const (
	// readyPollInterval is how often UpdateDevice checks whether the
	// control characteristic has been discovered.
	readyPollInterval = 200 * time.Millisecond

	// Settle delays after the write and after the disconnect; the radio
	// misbehaves without them.
	writeSettleDelay      = 250 * time.Millisecond
	disconnectSettleDelay = 500 * time.Millisecond

	defaultUpdateTimeout = 10 * time.Second
)

// Manager owns the single shared radio. At most one link is connected at
// any time across the process; connecting to a new device disconnects the
// previous one first.
type Manager struct {
	radio  Radio
	logger logger.Logger

	// mu serializes UpdateDevice calls over the shared radio.
	mu sync.Mutex

	state atomic.Int32

	currentID   string
	currentLink Link

	pollInterval     time.Duration
	writeSettle      time.Duration
	disconnectSettle time.Duration
}

// NewManager creates the wireless connection manager.
func NewManager(radio Radio, log logger.Logger) *Manager {
	return &Manager{
		radio:            radio,
		logger:           log.WithComponent("ble"),
		pollInterval:     readyPollInterval,
		writeSettle:      writeSettleDelay,
		disconnectSettle: disconnectSettleDelay,
	}
}

// State returns the current state machine position.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// ConnectedDevice returns the id of the currently connected device, or
// empty when idle.
func (m *Manager) ConnectedDevice() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.currentID
}

// UpdateDevice writes one framed command to the device. timeout bounds the
// scan-connect-discover sequence; zero uses the default. Any error during
// scan, connect, or discovery is fatal for this call — the caller owns
// retry and fallback decisions.
func (m *Manager) UpdateDevice(ctx context.Context, device *models.Device, cmd byte, payload []byte, timeout time.Duration) error {
	if !m.radio.Ready() {
		return ErrRadioUnavailable
	}

	if timeout <= 0 {
		timeout = defaultUpdateTimeout
	}

	frame, err := EncodeFrame(cmd, payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Single shared radio: any existing link is torn down before a new
	// attempt, so two devices are never connected at once.
	if m.currentLink != nil {
		m.disconnectLocked()
	}

	writer, err := m.establishLocked(ctx, device, timeout)
	if err != nil {
		m.resetLocked()
		return err
	}

	if err := writer.Write(frame); err != nil {
		// Treat a failed write as an unexpected disconnect.
		m.disconnectLocked()
		return err
	}

	m.sleep(ctx, m.writeSettle)

	m.state.Store(int32(StateDisconnecting))
	m.disconnectLocked()

	m.sleep(ctx, m.disconnectSettle)

	m.logger.Debug().
		Str("device", device.ID).
		Hex("frame", frame).
		Msg("Wireless write complete")

	return nil
}

type establishResult struct {
	link   Link
	writer CharacteristicWriter
	err    error
}

// establishLocked runs the scan-connect-discover sequence in the
// background and polls for completion until the deadline. On timeout the
// call fails with ErrDeviceNotFound and any late link is torn down.
func (m *Manager) establishLocked(ctx context.Context, device *models.Device, timeout time.Duration) (CharacteristicWriter, error) {
	attemptCtx, cancel := context.WithCancel(ctx)

	results := make(chan establishResult, 1)

	go func() {
		m.state.Store(int32(StateScanning))

		peripheral, err := m.radio.Scan(attemptCtx, device.BLEAddress)
		if err != nil {
			results <- establishResult{err: err}
			return
		}

		m.state.Store(int32(StateConnecting))

		link, err := peripheral.Connect(attemptCtx)
		if err != nil {
			results <- establishResult{err: err}
			return
		}

		m.state.Store(int32(StateDiscoveringCharacteristics))

		writer, err := link.DiscoverControl(attemptCtx)
		if err != nil {
			_ = link.Disconnect()
			results <- establishResult{err: err}

			return
		}

		results <- establishResult{link: link, writer: writer}
	}()

	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case res := <-results:
			cancel()

			if res.err != nil {
				return nil, res.err
			}

			m.currentID = device.ID
			m.currentLink = res.link
			m.state.Store(int32(StateReady))

			return res.writer, nil

		case <-ctx.Done():
			cancel()
			go drainLate(results)

			return nil, ctx.Err()

		case <-ticker.C:
			if time.Now().After(deadline) {
				cancel()
				go drainLate(results)

				m.logger.Debug().
					Str("device", device.ID).
					Dur("timeout", timeout).
					Msg("Wireless target not found before timeout")

				return nil, ErrDeviceNotFound
			}
		}
	}
}

// drainLate disconnects a link that completed after the caller gave up.
func drainLate(results <-chan establishResult) {
	if res, ok := <-results; ok && res.link != nil {
		_ = res.link.Disconnect()
	}
}

// disconnectLocked tears down the current link and returns the state
// machine to idle. Safe to call with no link.
func (m *Manager) disconnectLocked() {
	if m.currentLink != nil {
		if err := m.currentLink.Disconnect(); err != nil {
			m.logger.Debug().Err(err).Str("device", m.currentID).Msg("Disconnect error")
		}
	}

	m.resetLocked()
}

func (m *Manager) resetLocked() {
	m.currentLink = nil
	m.currentID = ""
	m.state.Store(int32(StateIdle))
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
