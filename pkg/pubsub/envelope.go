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

package pubsub

import (
	"encoding/json"
)

// Envelope is the JSON wire wrapper on every pub/sub message, inbound and
// outbound.
type Envelope struct {
	Msg Message `json:"msg"`
}

// Message is the command payload inside the envelope.
type Message struct {
	Cmd          string          `json:"cmd"`
	CmdVersion   int             `json:"cmdVersion"`
	Data         json.RawMessage `json:"data"`
	Transaction  string          `json:"transaction"`
	Type         int             `json:"type"`
	AccountTopic string          `json:"accountTopic,omitempty"`
}

// allowedCommands is the allow-list of inbound command names. Messages
// carrying anything else are dropped.
var allowedCommands = map[string]struct{}{
	"turn":       {},
	"brightness": {},
	"color":      {},
	"colorTem":   {},
	"colorwc":    {},
	"ptReal":     {},
	"status":     {},
	"bulb":       {},
}

// Allowed reports whether the inbound command name is recognized.
func Allowed(cmd string) bool {
	_, ok := allowedCommands[cmd]
	return ok
}

// decodeEnvelope parses an inbound payload. It returns false for payloads
// that do not decode or whose command is not in the allow-list.
func decodeEnvelope(payload []byte) (*Envelope, bool) {
	var env Envelope

	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, false
	}

	if env.Msg.Cmd == "" || !Allowed(env.Msg.Cmd) {
		return nil, false
	}

	return &env, true
}
