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

package dispatch

import (
	"encoding/base64"
	"encoding/json"
	"math"

	"github.com/carverauto/goveelink/pkg/lan"
	"github.com/carverauto/goveelink/pkg/models"
)

// Wireless command-type bytes.
const (
	bleCmdPower      = 0x01
	bleCmdBrightness = 0x04
	bleCmdColor      = 0x05

	bleColorModeManual = 0x02
)

type restPayload struct {
	Name  string
	Value interface{}
}

type blePayload struct {
	Cmd     byte
	Payload []byte
}

// transportPayloads holds the per-transport renderings of one canonical
// command. A nil/empty member means the command is inexpressible on that
// transport and it must not be attempted.
type transportPayloads struct {
	pubsubCmd  string
	pubsubData map[string]interface{}
	rest       *restPayload
	lan        []byte
	ble        *blePayload
}

// buildPayloads renders a canonical command for each transport the command
// is expressible on. Scene codes exist only for pub/sub.
func buildPayloads(device *models.Device, cmd models.Command) transportPayloads {
	var p transportPayloads

	switch cmd.Name {
	case models.CmdTurn:
		val := 0
		bleVal := byte(0x00)

		if cmd.On {
			val = 1
			bleVal = 0x01
		}

		p.pubsubCmd = "turn"
		p.pubsubData = map[string]interface{}{"val": val}
		p.rest = &restPayload{Name: "turn", Value: onOff(cmd.On)}
		p.lan = lanDatagram("turn", map[string]int{"value": val})
		p.ble = &blePayload{Cmd: bleCmdPower, Payload: []byte{bleVal}}

	case models.CmdBrightness:
		scaled := scaleBrightness(cmd.Value, device.BrightnessScale)

		p.pubsubCmd = "brightness"
		p.pubsubData = map[string]interface{}{"val": scaled}
		p.rest = &restPayload{Name: "brightness", Value: cmd.Value}
		p.lan = lanDatagram("brightness", map[string]int{"value": cmd.Value})
		p.ble = &blePayload{Cmd: bleCmdBrightness, Payload: []byte{brightnessByte(cmd.Value, device.BrightnessScale)}}

	case models.CmdColor:
		p.pubsubCmd = "color"
		p.pubsubData = map[string]interface{}{
			"red":   int(cmd.Color.R),
			"green": int(cmd.Color.G),
			"blue":  int(cmd.Color.B),
		}
		p.rest = &restPayload{Name: "color", Value: map[string]int{
			"r": int(cmd.Color.R),
			"g": int(cmd.Color.G),
			"b": int(cmd.Color.B),
		}}
		// The local protocol folds color and white into one command; zero
		// Kelvin selects color mode.
		p.lan = lanColorwc(int(cmd.Color.R), int(cmd.Color.G), int(cmd.Color.B), 0)
		p.ble = &blePayload{
			Cmd:     bleCmdColor,
			Payload: []byte{bleColorModeManual, cmd.Color.R, cmd.Color.G, cmd.Color.B},
		}

	case models.CmdColorTem:
		p.pubsubCmd = "colorTem"
		p.pubsubData = map[string]interface{}{"colorTemInKelvin": cmd.Value}
		p.rest = &restPayload{Name: "colorTem", Value: cmd.Value}
		p.lan = lanColorwc(0, 0, 0, cmd.Value)
		// Color temperature has no wireless rendering.

	case models.CmdScene:
		// Scene byte codes only exist for pub/sub.
		codes := make([]string, 0, len(cmd.Scene))

		for _, c := range cmd.Scene {
			codes = append(codes, base64.StdEncoding.EncodeToString(c))
		}

		p.pubsubCmd = "ptReal"
		p.pubsubData = map[string]interface{}{"command": codes}
	}

	return p
}

// lanDatagram wraps a command in the local-network {msg:{cmd,data}} frame.
// Marshaling a map of primitives cannot fail, so errors drop the rendering
// and the transport is simply skipped.
func lanDatagram(cmd string, data interface{}) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	pkt, err := json.Marshal(lan.Datagram{Msg: lan.DatagramMsg{Cmd: cmd, Data: raw}})
	if err != nil {
		return nil
	}

	return pkt
}

func lanColorwc(r, g, b, kelvin int) []byte {
	return lanDatagram("colorwc", map[string]interface{}{
		"color":            map[string]int{"r": r, "g": g, "b": b},
		"colorTemInKelvin": kelvin,
	})
}

func onOff(on bool) string {
	if on {
		return "on"
	}

	return "off"
}

// scaleBrightness maps a canonical 0-100 value onto the model's raw range.
func scaleBrightness(value, scale int) int {
	if scale != 254 {
		return value
	}

	return int(math.Round(float64(value) * 254.0 / 100.0))
}

func brightnessByte(value, scale int) byte {
	v := scaleBrightness(value, scale)
	if v > 255 {
		v = 255
	}

	return byte(v)
}
