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

package lan

import "encoding/json"

// Datagram is the {msg:{cmd,data}} wrapper on every LAN packet, both
// directions.
type Datagram struct {
	Msg DatagramMsg `json:"msg"`
}

type DatagramMsg struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data"`
}

// Inbound command names.
const (
	cmdScan      = "scan"
	cmdDevStatus = "devStatus"
)

// scanReply is the data carried by a scan reply.
type scanReply struct {
	IP     string `json:"ip"`
	Device string `json:"device"`
	Model  string `json:"sku"`
}

// newScanRequest builds the multicast scan request datagram.
func newScanRequest(accountTopic string) ([]byte, error) {
	data, err := json.Marshal(map[string]string{"account_topic": accountTopic})
	if err != nil {
		return nil, err
	}

	return json.Marshal(Datagram{Msg: DatagramMsg{Cmd: cmdScan, Data: data}})
}

// newStatusRequest builds the unicast device-status request datagram.
func newStatusRequest() ([]byte, error) {
	return json.Marshal(Datagram{Msg: DatagramMsg{Cmd: cmdDevStatus, Data: json.RawMessage(`{}`)}})
}
