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

// Package models contains the shared types exchanged between the transport
// clients, the dispatcher, and the normalizer.
package models

import (
	"time"
)

// Transport identifies one of the four communication channels a device may
// be reachable over.
type Transport string

const (
	TransportREST   Transport = "rest"
	TransportPubSub Transport = "pubsub"
	TransportLAN    Transport = "lan"
	TransportBLE    Transport = "ble"
)

// Device is the immutable identity and capability record for one device.
// It is computed once from cloud metadata plus static configuration and
// treated as read-only by every component in this module.
type Device struct {
	// ID is the colon-delimited hex identifier, e.g. "14:2A:C5:D3:75:2F:11:40".
	ID    string `json:"device"`
	Model string `json:"sku"`
	Name  string `json:"deviceName,omitempty"`

	// Capabilities holds the command names this model supports.
	Capabilities []string `json:"capabilities,omitempty"`

	// Topic is the per-device pub/sub topic from cloud metadata.
	Topic string `json:"topic,omitempty"`

	// BLEAddress is the short-range radio address, when advertised.
	BLEAddress string `json:"bleAddress,omitempty"`

	// Per-transport availability, computed once from cloud metadata.
	HasPubSub bool `json:"hasPubSub"`
	HasREST   bool `json:"hasRest"`
	HasLAN    bool `json:"hasLan"`
	HasBLE    bool `json:"hasBle"`

	// PreferBLE marks dual-transport devices that should be driven over the
	// short-range link before the cloud REST API.
	PreferBLE bool `json:"preferBle,omitempty"`

	// BrightnessScale is the raw brightness range the model reports: 100 or
	// 254. Canonical brightness is always 0-100.
	BrightnessScale int `json:"brightnessScale,omitempty"`

	// BLETimeout bounds one wireless connect attempt. Dual-transport devices
	// tolerate a shorter timeout than BLE-only devices.
	BLETimeout time.Duration `json:"-"`
}

// Supports reports whether the device's capability set includes the named
// command.
func (d *Device) Supports(name CommandName) bool {
	for _, c := range d.Capabilities {
		if c == string(name) {
			return true
		}
	}

	return false
}

// PubSubOnly reports whether pub/sub is the device's only outbound-capable
// transport.
func (d *Device) PubSubOnly() bool {
	return d.HasPubSub && !d.HasREST && !d.HasBLE
}

// DeviceSummary is one entry from the cloud device listing.
type DeviceSummary struct {
	Device       string   `json:"device"`
	Model        string   `json:"model"`
	DeviceName   string   `json:"deviceName"`
	Controllable bool     `json:"controllable"`
	Retrievable  bool     `json:"retrievable"`
	SupportCmds  []string `json:"supportCmds"`
}

// LANEntry is one row of the LAN device registry: a device id mapped to the
// address it last announced from.
type LANEntry struct {
	DeviceID string    `json:"device"`
	IP       string    `json:"ip"`
	LastSeen time.Time `json:"last_seen"`

	// IsManual marks entries seeded from static configuration. Manual
	// entries are never pruned, only left stale.
	IsManual bool `json:"is_manual"`
}
