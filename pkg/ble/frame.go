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

// Control frames are a fixed 20 bytes: a header byte, the command-type
// byte, the payload, zero padding to 19 bytes, then a checksum byte that is
// the bytewise XOR of the 19 preceding bytes.
const (
	FrameSize = 20

	frameHeader    = 0x33
	framePadTo     = FrameSize - 1
	maxPayloadSize = framePadTo - 2
)

// EncodeFrame builds the 20-byte control frame for one command.
func EncodeFrame(cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > maxPayloadSize {
		return nil, errPayloadTooLarge
	}

	frame := make([]byte, FrameSize)
	frame[0] = frameHeader
	frame[1] = cmd
	copy(frame[2:], payload)

	frame[framePadTo] = Checksum(frame[:framePadTo])

	return frame, nil
}

// Checksum computes the bytewise XOR of b.
func Checksum(b []byte) byte {
	var sum byte

	for _, v := range b {
		sum ^= v
	}

	return sum
}

// ValidFrame reports whether a 20-byte frame carries a correct checksum.
func ValidFrame(frame []byte) bool {
	if len(frame) != FrameSize {
		return false
	}

	return Checksum(frame[:framePadTo]) == frame[framePadTo]
}
