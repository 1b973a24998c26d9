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

package ble

import (
	"context"
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// Control service and characteristic advertised by the devices.
const (
	controlServiceUUID = "00010203-0405-0607-0809-0a0b0c0d1910"
	controlCharUUID    = "00010203-0405-0607-0809-0a0b0c0d2b11"
)

// SystemRadio implements Radio over the host Bluetooth adapter.
type SystemRadio struct {
	adapter *bluetooth.Adapter
	enabled bool
}

// NewSystemRadio enables the default adapter. A radio that fails to enable
// is still returned; Ready reports false and every update attempt fails
// with ErrRadioUnavailable.
func NewSystemRadio() *SystemRadio {
	r := &SystemRadio{adapter: bluetooth.DefaultAdapter}
	r.enabled = r.adapter.Enable() == nil

	return r
}

func (r *SystemRadio) Ready() bool { return r.enabled }

// Scan blocks until the target address advertises or ctx ends.
func (r *SystemRadio) Scan(ctx context.Context, address string) (Peripheral, error) {
	found := make(chan bluetooth.ScanResult, 1)

	go func() {
		<-ctx.Done()
		_ = r.adapter.StopScan()
	}()

	err := r.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if strings.EqualFold(result.Address.String(), address) {
			select {
			case found <- result:
			default:
			}

			_ = adapter.StopScan()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	select {
	case result := <-found:
		return &systemPeripheral{adapter: r.adapter, result: result}, nil
	default:
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return nil, ErrDeviceNotFound
}

type systemPeripheral struct {
	adapter *bluetooth.Adapter
	result  bluetooth.ScanResult
}

func (p *systemPeripheral) Connect(_ context.Context) (Link, error) {
	dev, err := p.adapter.Connect(p.result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect failed: %w", err)
	}

	return &systemLink{device: dev}, nil
}

type systemLink struct {
	device bluetooth.Device
}

func (l *systemLink) DiscoverControl(_ context.Context) (CharacteristicWriter, error) {
	svcUUID, err := bluetooth.ParseUUID(controlServiceUUID)
	if err != nil {
		return nil, err
	}

	charUUID, err := bluetooth.ParseUUID(controlCharUUID)
	if err != nil {
		return nil, err
	}

	services, err := l.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(services) == 0 {
		return nil, errNoControlChar
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil || len(chars) == 0 {
		return nil, errNoControlChar
	}

	return &systemCharacteristic{char: chars[0]}, nil
}

func (l *systemLink) Disconnect() error {
	return l.device.Disconnect()
}

type systemCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *systemCharacteristic) Write(frame []byte) error {
	_, err := c.char.WriteWithoutResponse(frame)
	return err
}
