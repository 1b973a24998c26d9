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

package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/carverauto/goveelink/pkg/ble"
	"github.com/carverauto/goveelink/pkg/cloud"
	"github.com/carverauto/goveelink/pkg/config"
	"github.com/carverauto/goveelink/pkg/dispatch"
	"github.com/carverauto/goveelink/pkg/lan"
	"github.com/carverauto/goveelink/pkg/lifecycle"
	"github.com/carverauto/goveelink/pkg/logger"
	"github.com/carverauto/goveelink/pkg/models"
	"github.com/carverauto/goveelink/pkg/normalize"
	"github.com/carverauto/goveelink/pkg/pubsub"
)

const updateBuffer = 64

// appConfig is the top-level configuration file shape.
type appConfig struct {
	Logger *logger.Config `json:"logger,omitempty"`
	Cloud  cloud.Config   `json:"cloud"`
	LAN    lan.Config     `json:"lan,omitempty"`

	// Devices carries per-device overrides keyed by device id: BLE
	// addresses, preferred transports, brightness scale quirks.
	Devices []deviceOverride `json:"devices,omitempty"`
}

type deviceOverride struct {
	Device          string `json:"device"`
	BLEAddress      string `json:"ble_address,omitempty"`
	PreferBLE       bool   `json:"prefer_ble,omitempty"`
	BrightnessScale int    `json:"brightness_scale,omitempty"`
	BLETimeoutSecs  int    `json:"ble_timeout,omitempty"`
}

func (c *appConfig) Validate() error {
	return c.Cloud.Validate()
}

func main() {
	configPath := flag.String("config", "/etc/goveelink/config.json", "Path to config file")
	flag.Parse()

	ctx := context.Background()

	var cfg appConfig

	if err := config.NewConfig().LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := lifecycle.InitializeLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := run(ctx, &cfg, zlog); err != nil {
		zlog.Fatal().Err(err).Msg("GoveeLink failed")
	}
}

func run(ctx context.Context, cfg *appConfig, zlog logger.Logger) error {
	restClient := cloud.NewClient(cfg.Cloud, zlog)

	session, err := restClient.Login(ctx)
	if err != nil {
		return err
	}

	summaries, err := restClient.ListDevices(ctx)
	if err != nil {
		return err
	}

	devices := buildDevices(summaries, cfg.Devices, cfg.LAN.ManualDevices, session.Topic)

	updates := make(chan models.Update, updateBuffer)
	sink := func(u models.Update) {
		select {
		case updates <- u:
		default:
			zlog.Warn().Str("device", u.DeviceID).Msg("Update channel full, dropping event")
		}
	}

	lanCfg := cfg.LAN
	lanCfg.AccountTopic = session.Topic
	lanService := lan.NewService(lanCfg, sink, zlog)

	pubsubClient, err := pubsub.NewClient(pubsub.Config{
		Endpoint:     session.Endpoint,
		AccountTopic: session.Topic,
		Certificate:  session.IoTCert,
		PrivateKey:   session.IoTKey,
	}, zlog)
	if err != nil {
		return err
	}

	if err := pubsubClient.Connect(ctx); err != nil {
		zlog.Warn().Err(err).Msg("Pubsub connect failed, continuing with remaining transports")
	}

	for _, dev := range devices {
		if !dev.HasPubSub {
			continue
		}

		if err := pubsubClient.RegisterAccessory(dev, sink); err != nil {
			zlog.Warn().Err(err).Str("device", dev.ID).Msg("Failed to register pubsub accessory")
		}
	}

	gate := dispatch.NewSyncGate()
	bleManager := ble.NewManager(ble.NewSystemRadio(), zlog)
	dispatcher := dispatch.NewDispatcher(pubsubClient, restClient, lanService, bleManager, gate, zlog)

	index := make(map[string]*models.Device, len(devices))
	for _, dev := range devices {
		index[dev.ID] = dev
	}

	poller := cloud.NewPoller(restClient, func() []*models.Device { return devices },
		sink, gate, pollInterval(cfg), zlog)

	return lifecycle.Run(ctx, &lifecycle.Options{
		Logger:  zlog,
		Devices: index,
		Services: []lifecycle.Service{
			lanService,
			serviceFunc(poller.Run),
			&commandReader{dispatcher: dispatcher, devices: index, logger: zlog, input: os.Stdin},
		},
		Updates:    updates,
		Filter:     gate,
		Normalizer: normalize.NewNormalizer(zlog),
		Sink:       printDelta,
	})
}

// serviceFunc adapts a plain run function to lifecycle.Service.
type serviceFunc func(ctx context.Context) error

func (f serviceFunc) Start(ctx context.Context) error { return f(ctx) }

// commandReader accepts canonical commands from the host platform as JSON
// lines on input and feeds them to the dispatcher.
type commandReader struct {
	dispatcher *dispatch.Dispatcher
	devices    map[string]*models.Device
	logger     logger.Logger
	input      io.Reader
}

type commandRequest struct {
	Device  string         `json:"device"`
	Command models.Command `json:"command"`
}

// Start decodes in a separate goroutine so cancellation is observed even
// while a read is blocked on an open pipe.
func (r *commandReader) Start(ctx context.Context) error {
	requests := make(chan commandRequest)

	go func() {
		defer close(requests)

		dec := json.NewDecoder(r.input)

		for {
			var req commandRequest

			if err := dec.Decode(&req); err != nil {
				// EOF or garbage; the host closed the pipe.
				return
			}

			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-requests:
			if !ok {
				return nil
			}

			r.dispatch(ctx, req)
		}
	}
}

func (r *commandReader) dispatch(ctx context.Context, req commandRequest) {
	device, ok := r.devices[req.Device]
	if !ok {
		r.logger.Warn().Str("device", req.Device).Msg("Command for unknown device")
		return
	}

	if err := r.dispatcher.SendDeviceUpdate(ctx, device, req.Command); err != nil {
		r.logger.Error().
			Err(err).
			Str("device", req.Device).
			Str("cmd", string(req.Command.Name)).
			Msg("Command dispatch failed")
	}
}

func pollInterval(cfg *appConfig) time.Duration {
	if cfg.Cloud.PollInterval > 0 {
		return time.Duration(cfg.Cloud.PollInterval) * time.Second
	}

	return time.Minute
}

// buildDevices merges the cloud listing with static per-device overrides
// into the immutable identity records the engine consumes.
func buildDevices(summaries []models.DeviceSummary, overrides []deviceOverride, manual []lan.ManualDevice, accountTopic string) []*models.Device {
	byID := make(map[string]deviceOverride, len(overrides))
	for _, o := range overrides {
		byID[o.Device] = o
	}

	lanIDs := make(map[string]bool, len(manual))
	for _, m := range manual {
		lanIDs[m.Device] = true
	}

	devices := make([]*models.Device, 0, len(summaries))

	for _, s := range summaries {
		o := byID[s.Device]

		dev := &models.Device{
			ID:              s.Device,
			Model:           s.Model,
			Name:            s.DeviceName,
			Capabilities:    s.SupportCmds,
			Topic:           accountTopic,
			BLEAddress:      o.BLEAddress,
			HasREST:         s.Controllable,
			HasPubSub:       accountTopic != "",
			HasLAN:          lanIDs[s.Device],
			HasBLE:          o.BLEAddress != "",
			PreferBLE:       o.PreferBLE,
			BrightnessScale: o.BrightnessScale,
			BLETimeout:      time.Duration(o.BLETimeoutSecs) * time.Second,
		}

		devices = append(devices, dev)
	}

	return devices
}

// printDelta is the default delta sink: one JSON line per canonical event
// for the host platform to consume.
func printDelta(delta models.StateDelta) {
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(delta)
}
