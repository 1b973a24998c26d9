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

// Package dispatch turns one canonical command into transport-specific
// payloads and tries the transports in priority order with fallback:
// pub/sub, then the local network, then REST, then wireless.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/carverauto/goveelink/pkg/logger"
	"github.com/carverauto/goveelink/pkg/models"
)

var (
	// ErrNoTransport means no available transport could express the
	// command for this device.
	ErrNoTransport = errors.New("command not expressible on any available transport")

	// ErrUnsupportedCommand means the device's capability set does not
	// include the command.
	ErrUnsupportedCommand = errors.New("device does not support command")
)

const (
	// pubsubSettleDelay lets a fire-and-continue publish settle before the
	// confirmed transports run; pub/sub delivery is never confirmed.
	pubsubSettleDelay = 500 * time.Millisecond

	// restPauseWindow is how long a direct REST write pauses the poll loop
	// and suppresses echoed REST updates for the written device.
	restPauseWindow = 5 * time.Second
)

// PubSubSender is the outbound pub/sub surface the dispatcher uses.
type PubSubSender interface {
	Publish(ctx context.Context, device *models.Device, cmd string, data interface{}) error
	Connected() bool
}

// RestSender is the outbound REST surface.
type RestSender interface {
	SubmitCommand(ctx context.Context, device, model, name string, value interface{}) error
}

// LANSender is the outbound local-network surface. Has consults the live
// discovery registry, so devices found after startup still take the local
// path.
type LANSender interface {
	Has(deviceID string) bool
	UpdateDevice(ctx context.Context, deviceID string, payload []byte) error
}

// WirelessSender is the outbound wireless surface.
type WirelessSender interface {
	UpdateDevice(ctx context.Context, device *models.Device, cmd byte, payload []byte, timeout time.Duration) error
}

// Dispatcher fans one canonical command out to the device's available
// transports in priority order.
type Dispatcher struct {
	pubsub   PubSubSender
	rest     RestSender
	lan      LANSender
	wireless WirelessSender
	gate     *SyncGate
	logger   logger.Logger

	settleDelay time.Duration
}

// NewDispatcher creates a dispatcher. Any sender may be nil when the
// corresponding transport is not configured.
func NewDispatcher(ps PubSubSender, rest RestSender, lan LANSender, wireless WirelessSender, gate *SyncGate, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		pubsub:      ps,
		rest:        rest,
		lan:         lan,
		wireless:    wireless,
		gate:        gate,
		logger:      log.WithComponent("dispatch"),
		settleDelay: pubsubSettleDelay,
	}
}

// Gate exposes the sync gate so the poll loop and update pipeline can
// consult it.
func (d *Dispatcher) Gate() *SyncGate { return d.gate }

// SendDeviceUpdate dispatches one canonical command. A command that is
// inexpressible on a transport never causes an attempt on that transport.
func (d *Dispatcher) SendDeviceUpdate(ctx context.Context, device *models.Device, cmd models.Command) error {
	// Scene codes are opaque and never appear in the advertised capability
	// set; everything else must be declared before we attempt it.
	if len(device.Capabilities) > 0 && cmd.Name != models.CmdScene && !device.Supports(cmd.Name) {
		return ErrUnsupportedCommand
	}

	payloads := buildPayloads(device, cmd)

	published := false

	if device.HasPubSub && d.pubsub != nil && payloads.pubsubCmd != "" {
		err := d.pubsub.Publish(ctx, device, payloads.pubsubCmd, payloads.pubsubData)

		// Pub/sub-only devices and scene commands end here: no
		// confirmation is possible or needed beyond the local delivery
		// result.
		if device.PubSubOnly() || cmd.Name == models.CmdScene {
			return err
		}

		if err != nil {
			d.logger.Debug().
				Err(err).
				Str("device", device.ID).
				Msg("Pubsub publish failed, falling back")
		} else {
			published = true
			d.sleep(ctx, d.settleDelay)
		}
	}

	// A device reachable on the local network takes the local path before
	// any cloud round trip; failure falls through to the cloud transports.
	var lanErr error

	if d.lan != nil && payloads.lan != nil && (device.HasLAN || d.lan.Has(device.ID)) {
		lanErr = d.lan.UpdateDevice(ctx, device.ID, payloads.lan)
		if lanErr == nil {
			return nil
		}

		d.logger.Debug().
			Err(lanErr).
			Str("device", device.ID).
			Msg("LAN send failed, falling back")
	}

	preferWireless := device.HasBLE && d.wireless != nil && payloads.ble != nil &&
		(device.PreferBLE || !device.HasREST || payloads.rest == nil)

	if device.HasREST && d.rest != nil && payloads.rest != nil && !preferWireless {
		return d.sendREST(ctx, device, payloads.rest)
	}

	if device.HasBLE && d.wireless != nil && payloads.ble != nil {
		err := d.wireless.UpdateDevice(ctx, device, payloads.ble.Cmd, payloads.ble.Payload, device.BLETimeout)
		if err == nil {
			return nil
		}

		if device.HasREST && d.rest != nil && payloads.rest != nil {
			d.logger.Debug().
				Err(err).
				Str("device", device.ID).
				Msg("Wireless attempt failed, falling back to REST")

			return d.sendREST(ctx, device, payloads.rest)
		}

		return err
	}

	if published {
		return nil
	}

	if lanErr != nil {
		return lanErr
	}

	return ErrNoTransport
}

func (d *Dispatcher) sendREST(ctx context.Context, device *models.Device, p *restPayload) error {
	err := d.rest.SubmitCommand(ctx, device.ID, device.Model, p.Name, p.Value)
	if err != nil {
		return err
	}

	// A successful REST write races the cloud's own state propagation;
	// pause the poll loop and ignore echoed REST updates for this device.
	if d.gate != nil {
		d.gate.PauseFor(restPauseWindow)
		d.gate.IgnoreSource(device.ID, models.TransportREST, restPauseWindow)
	}

	return nil
}

func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) {
	if dur <= 0 {
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(dur):
	}
}
