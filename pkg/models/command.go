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

// CommandName is the canonical vocabulary for outbound device commands.
type CommandName string

const (
	CmdTurn       CommandName = "turn"
	CmdBrightness CommandName = "brightness"
	CmdColor      CommandName = "color"
	CmdColorTem   CommandName = "colorTem"
	CmdScene      CommandName = "ptReal"
)

// RGB is a color triple in the canonical 0-255 per-channel range.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Command is one canonical outbound command. The value field that applies
// is determined by Name; the others are zero.
type Command struct {
	Name CommandName `json:"name"`

	// On applies to CmdTurn.
	On bool `json:"on,omitempty"`

	// Value applies to CmdBrightness (0-100 canonical) and CmdColorTem
	// (Kelvin).
	Value int `json:"value,omitempty"`

	// Color applies to CmdColor.
	Color RGB `json:"color,omitempty"`

	// Scene applies to CmdScene: opaque byte codes interpreted by the
	// device-type layer, passed through untouched here.
	Scene [][]byte `json:"-"`
}
