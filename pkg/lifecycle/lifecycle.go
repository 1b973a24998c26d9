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

// Package lifecycle wires the transport services, the update pipeline, and
// process signal handling into one run loop.
package lifecycle

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/goveelink/pkg/logger"
	"github.com/carverauto/goveelink/pkg/models"
)

// Service is a long-running component driven by the run loop.
type Service interface {
	Start(ctx context.Context) error
}

// UpdateFilter decides whether an inbound update should be suppressed
// (read-your-own-write protection after a direct transport write).
type UpdateFilter interface {
	ShouldIgnore(deviceID string, source models.Transport) bool
}

// Normalizer converts raw updates to canonical deltas.
type Normalizer interface {
	Receive(device *models.Device, update models.Update) (*models.StateDelta, bool)
}

// Options configures one run.
type Options struct {
	Logger logger.Logger

	// Devices indexes the registered devices by id.
	Devices map[string]*models.Device

	// Services are started concurrently and run until ctx ends.
	Services []Service

	// Updates is the single-reader inbound event stream fed by all
	// transports. Per-transport arrival order is preserved.
	Updates <-chan models.Update

	Filter     UpdateFilter
	Normalizer Normalizer

	// Sink receives canonical deltas; the external state-holder applies
	// last-write-wins per field.
	Sink func(models.StateDelta)
}

// Run starts the services and the update pipeline, returning once a signal
// arrives or a service fails.
func Run(ctx context.Context, opts *Options) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	for _, svc := range opts.Services {
		g.Go(func() error {
			err := svc.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		})
	}

	g.Go(func() error {
		runPipeline(ctx, opts)
		return nil
	})

	opts.Logger.Info().Int("devices", len(opts.Devices)).Msg("GoveeLink running")

	return g.Wait()
}

// runPipeline drains the update stream into the normalizer and forwards
// deltas to the sink.
func runPipeline(ctx context.Context, opts *Options) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-opts.Updates:
			if !ok {
				return
			}

			device, known := opts.Devices[update.DeviceID]
			if !known {
				opts.Logger.Debug().Str("device", update.DeviceID).Msg("Update for unregistered device")
				continue
			}

			if opts.Filter != nil && opts.Filter.ShouldIgnore(update.DeviceID, update.Source) {
				continue
			}

			delta, ok := opts.Normalizer.Receive(device, update)
			if !ok {
				continue
			}

			if opts.Sink != nil {
				opts.Sink(*delta)
			}
		}
	}
}
