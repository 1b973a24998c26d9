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

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/carverauto/goveelink/pkg/logger"
	"github.com/carverauto/goveelink/pkg/models"
)

// StateFetcher is the subset of the client the poller needs.
type StateFetcher interface {
	GetDeviceState(ctx context.Context, device, model string) (map[string]json.RawMessage, error)
}

// Gate reports whether the poll loop should skip a cycle. The dispatcher
// raises it after a direct REST write so the poller does not read back
// stale cloud-side state.
type Gate interface {
	Paused() bool
}

// Poller periodically refreshes device state over REST and forwards the raw
// property payloads to the update sink.
type Poller struct {
	client  StateFetcher
	devices func() []*models.Device
	sink    func(models.Update)
	gate    Gate
	clock   Clock
	logger  logger.Logger
	period  time.Duration
}

// NewPoller creates a poll loop over the given device source. devices is
// called each cycle so registration changes are picked up.
func NewPoller(client StateFetcher, devices func() []*models.Device, sink func(models.Update),
	gate Gate, period time.Duration, log logger.Logger) *Poller {
	return &Poller{
		client:  client,
		devices: devices,
		sink:    sink,
		gate:    gate,
		clock:   realClock{},
		logger:  log.WithComponent("cloud-poller"),
		period:  period,
	}
}

// SetClock replaces the clock; for tests.
func (p *Poller) SetClock(c Clock) { p.clock = c }

// Run polls until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.Ticker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	if p.gate != nil && p.gate.Paused() {
		p.logger.Debug().Msg("Skipping poll cycle while dispatcher is busy")
		return
	}

	for _, dev := range p.devices() {
		if !dev.HasREST {
			continue
		}

		props, err := p.client.GetDeviceState(ctx, dev.ID, dev.Model)
		if err != nil {
			var rle *RateLimitError

			if errors.As(err, &rle) {
				// Quota exhausted; stop this cycle rather than burn the
				// remaining devices against a closed window.
				p.logger.Debug().Str("quota", string(rle.Scope)).Msg("Poll cycle rate limited")
				return
			}

			p.logger.Warn().Err(err).Str("device", dev.ID).Msg("Failed to fetch device state")

			continue
		}

		payload, err := json.Marshal(props)
		if err != nil {
			continue
		}

		p.sink(models.Update{DeviceID: dev.ID, Source: models.TransportREST, Payload: payload})
	}
}
