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

// Package normalize turns arbitrary inbound transport payloads into
// canonical state-delta events. Normalization is a pure function of the
// payload plus the device's own scaling metadata, so delivering the same
// payload twice produces the same delta both times.
package normalize

import (
	"encoding/json"
	"math"

	"github.com/carverauto/goveelink/pkg/logger"
	"github.com/carverauto/goveelink/pkg/models"
)

// Canonical color-temperature range in Kelvin.
const (
	minKelvin = 2000
	maxKelvin = 9000
)

// Normalizer extracts canonical fields from raw transport payloads.
type Normalizer struct {
	logger logger.Logger
}

// NewNormalizer creates a normalizer.
func NewNormalizer(log logger.Logger) *Normalizer {
	return &Normalizer{logger: log.WithComponent("normalize")}
}

// Receive converts one raw inbound payload into a canonical delta. The
// second return is false when the payload was malformed or carried nothing
// recognizable; such payloads are logged and dropped, never propagated.
func (n *Normalizer) Receive(device *models.Device, update models.Update) (*models.StateDelta, bool) {
	delta := &models.StateDelta{DeviceID: update.DeviceID, Source: update.Source}

	var err error

	switch update.Source {
	case models.TransportREST:
		err = n.extractREST(device, update.Payload, delta)
	case models.TransportPubSub:
		err = n.extractPubSub(device, update.Payload, delta)
	case models.TransportLAN:
		err = n.extractLAN(update.Payload, delta)
	case models.TransportBLE:
		n.extractBLE(update.Payload, delta)
	default:
		return nil, false
	}

	if err != nil {
		n.logger.Debug().
			Err(err).
			Str("device", update.DeviceID).
			Str("source", string(update.Source)).
			Msg("Dropping malformed payload")

		return nil, false
	}

	if delta.Empty() {
		return nil, false
	}

	return delta, true
}

func (n *Normalizer) extractREST(device *models.Device, payload []byte, delta *models.StateDelta) error {
	var shape restShape

	if err := json.Unmarshal(payload, &shape); err != nil {
		return err
	}

	if len(shape.Online) > 0 {
		if v, ok := parseOnline(shape.Online); ok {
			delta.Online = &v
		}
	}

	if shape.PowerState != "" {
		on := shape.PowerState == "on"
		delta.Power = &on
	}

	if shape.Brightness != nil {
		b := scaleTo100(*shape.Brightness, device.BrightnessScale)
		delta.Brightness = &b
	}

	if shape.Color != nil {
		delta.Color = &models.RGB{
			R: uint8(shape.Color.R),
			G: uint8(shape.Color.G),
			B: uint8(shape.Color.B),
		}
	}

	if k := pick(shape.ColorTemK, shape.ColorTem); k != nil {
		ct := clampKelvin(*k)
		delta.ColorTemp = &ct
	}

	if shape.Battery != nil {
		delta.Battery = shape.Battery
	}

	if shape.Temperature != nil || shape.Humidity != nil {
		delta.Sensors = make(map[string]float64)

		if shape.Temperature != nil {
			delta.Sensors["temperature"] = *shape.Temperature
		}

		if shape.Humidity != nil {
			delta.Sensors["humidity"] = *shape.Humidity
		}
	}

	return nil
}

func (n *Normalizer) extractPubSub(device *models.Device, payload []byte, delta *models.StateDelta) error {
	var shape pubsubShape

	if err := json.Unmarshal(payload, &shape); err != nil {
		return err
	}

	var data pubsubData

	if len(shape.Msg.Data) > 0 {
		if err := json.Unmarshal(shape.Msg.Data, &data); err != nil {
			return err
		}
	}

	switch shape.Msg.Cmd {
	case "turn":
		if data.Val != nil {
			on := *data.Val == 1
			delta.Power = &on
		}

	case "brightness":
		if data.Val != nil {
			b := scaleTo100(*data.Val, device.BrightnessScale)
			delta.Brightness = &b
		}

	case "color":
		if data.Red != nil && data.Green != nil && data.Blue != nil {
			delta.Color = &models.RGB{
				R: uint8(*data.Red),
				G: uint8(*data.Green),
				B: uint8(*data.Blue),
			}
		}

	case "colorTem":
		if data.ColorTemK != nil {
			ct := clampKelvin(*data.ColorTemK)
			delta.ColorTemp = &ct
		}

	case "colorwc":
		// Combined color/white command: a nested rgb record plus a Kelvin
		// value, where zero Kelvin means color mode.
		if data.Color != nil {
			delta.Color = &models.RGB{
				R: uint8(data.Color.R),
				G: uint8(data.Color.G),
				B: uint8(data.Color.B),
			}
		}

		if data.ColorTemK != nil && *data.ColorTemK > 0 {
			ct := clampKelvin(*data.ColorTemK)
			delta.ColorTemp = &ct
		}

	default:
		// Status-style messages carry an embedded state record and
		// sometimes opaque op codes.
		if data.State != nil {
			applyLANShape(data.State, device, delta)
		}

		if data.OnOff != nil {
			on := *data.OnOff == 1
			delta.Power = &on
		}

		if data.Battery != nil {
			delta.Battery = data.Battery
		}

		if data.Op != nil {
			delta.SceneCodes = data.Op.decode()
		}
	}

	return nil
}

func (n *Normalizer) extractLAN(payload []byte, delta *models.StateDelta) error {
	var shape lanShape

	if err := json.Unmarshal(payload, &shape); err != nil {
		return err
	}

	// LAN reports brightness on the canonical 0-100 range already.
	applyLANShape(&shape, nil, delta)

	return nil
}

// extractBLE passes raw frames through as opaque sub-codes for the
// device-type interpreter.
func (*Normalizer) extractBLE(payload []byte, delta *models.StateDelta) {
	if len(payload) == 0 {
		return
	}

	code := make([]byte, len(payload))
	copy(code, payload)

	delta.SceneCodes = [][]byte{code}
}

// applyLANShape folds a LAN-style state record into the delta. A nil
// device means no model scaling applies.
func applyLANShape(shape *lanShape, device *models.Device, delta *models.StateDelta) {
	if shape.OnOff != nil {
		on := *shape.OnOff == 1
		delta.Power = &on
	}

	if shape.Brightness != nil {
		b := *shape.Brightness
		if device != nil {
			b = scaleTo100(b, device.BrightnessScale)
		}

		delta.Brightness = &b
	}

	if shape.Color != nil {
		delta.Color = &models.RGB{
			R: uint8(shape.Color.R),
			G: uint8(shape.Color.G),
			B: uint8(shape.Color.B),
		}
	}

	if shape.ColorTemK != nil {
		ct := clampKelvin(*shape.ColorTemK)
		delta.ColorTemp = &ct
	}
}

// scaleTo100 rescales a raw brightness onto the canonical 0-100 range for
// models that report 0-254.
func scaleTo100(value, scale int) int {
	if scale != 254 {
		return value
	}

	return int(math.Round(float64(value) * 100.0 / 254.0))
}

func clampKelvin(k int) int {
	if k < minKelvin {
		return minKelvin
	}

	if k > maxKelvin {
		return maxKelvin
	}

	return k
}

func pick(a, b *int) *int {
	if a != nil {
		return a
	}

	return b
}
