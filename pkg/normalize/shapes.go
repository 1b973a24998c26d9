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

package normalize

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Each transport keeps its native payload shape until this boundary; one
// explicit extraction type per transport feeds the shared delta builder.

// restShape is the flattened property map from the cloud REST API.
type restShape struct {
	Online      json.RawMessage `json:"online"`
	PowerState  string          `json:"powerState"`
	Brightness  *int            `json:"brightness"`
	Color       *rgbShape       `json:"color"`
	ColorTem    *int            `json:"colorTem"`
	ColorTemK   *int            `json:"colorTemInKelvin"`
	Battery     *int            `json:"battery"`
	Temperature *float64        `json:"temperature"`
	Humidity    *float64        `json:"humidity"`
}

// pubsubShape is the inbound broker envelope.
type pubsubShape struct {
	Msg struct {
		Cmd  string          `json:"cmd"`
		Data json.RawMessage `json:"data"`
	} `json:"msg"`
}

// pubsubData covers the command/value pairs and the embedded state record
// the broker uses.
type pubsubData struct {
	Val        *int      `json:"val"`
	Red        *int      `json:"red"`
	Green      *int      `json:"green"`
	Blue       *int      `json:"blue"`
	Color      *rgbShape `json:"color"`
	ColorTemK  *int      `json:"colorTemInKelvin"`
	Brightness *int      `json:"brightness"`
	Battery    *int      `json:"battery"`
	OnOff      *int      `json:"onOff"`
	State      *lanShape `json:"state"`
	Op         *opShape  `json:"op"`
}

// opShape carries opaque scene/mode byte sequences, base64-encoded on the
// wire. The normalizer does not interpret them.
type opShape struct {
	Command []string `json:"command"`
}

func (o *opShape) decode() [][]byte {
	out := make([][]byte, 0, len(o.Command))

	for _, c := range o.Command {
		raw, err := base64.StdEncoding.DecodeString(c)
		if err != nil {
			continue
		}

		out = append(out, raw)
	}

	return out
}

// lanShape is the JSON status record used by the LAN protocol, and reused
// by the broker's embedded state field.
type lanShape struct {
	OnOff      *int      `json:"onOff"`
	Brightness *int      `json:"brightness"`
	Color      *rgbShape `json:"color"`
	ColorTemK  *int      `json:"colorTemInKelvin"`
}

type rgbShape struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// parseOnline normalizes the string/boolean variants the cloud uses for
// the online flag.
func parseOnline(raw json.RawMessage) (value, ok bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(s) {
		case "true", "yes", "on", "1":
			return true, true
		case "false", "no", "off", "0":
			return false, true
		}
	}

	return false, false
}
