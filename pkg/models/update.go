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

package models

// Update is one raw inbound payload tagged with the transport it arrived
// on. Payload keeps the transport's native shape until the normalization
// boundary.
type Update struct {
	DeviceID string    `json:"device"`
	Source   Transport `json:"source"`
	Payload  []byte    `json:"payload"`
}

// StateDelta is a partial canonical state record carrying only the fields
// present in one inbound payload. Nil pointer fields were absent.
type StateDelta struct {
	DeviceID string    `json:"device"`
	Source   Transport `json:"source"`

	Online     *bool `json:"online,omitempty"`
	Power      *bool `json:"power,omitempty"`
	Brightness *int  `json:"brightness,omitempty"`
	Color      *RGB  `json:"color,omitempty"`

	// ColorTemp is in Kelvin, clamped to the canonical range.
	ColorTemp *int `json:"color_temp,omitempty"`

	Battery *int `json:"battery,omitempty"`

	// Sensors carries normalized sensor readings keyed by name
	// (temperature, humidity, ...).
	Sensors map[string]float64 `json:"sensors,omitempty"`

	// SceneCodes are opaque sub-codes the normalizer does not interpret;
	// the device-type interpreter decodes them downstream.
	SceneCodes [][]byte `json:"scene_codes,omitempty"`
}

// Empty reports whether the delta carries no canonical fields at all.
func (d *StateDelta) Empty() bool {
	return d.Online == nil && d.Power == nil && d.Brightness == nil &&
		d.Color == nil && d.ColorTemp == nil && d.Battery == nil &&
		len(d.Sensors) == 0 && len(d.SceneCodes) == 0
}
