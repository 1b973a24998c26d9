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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	t.Run("builds a 20 byte frame with header and checksum", func(t *testing.T) {
		frame, err := EncodeFrame(0x01, []byte{0x01})
		require.NoError(t, err)

		require.Len(t, frame, FrameSize)
		assert.Equal(t, byte(0x33), frame[0])
		assert.Equal(t, byte(0x01), frame[1])
		assert.Equal(t, byte(0x01), frame[2])

		// Zero padding through byte 18.
		for i := 3; i < framePadTo; i++ {
			assert.Equal(t, byte(0x00), frame[i], "byte %d should be padding", i)
		}

		assert.Equal(t, Checksum(frame[:framePadTo]), frame[framePadTo])
	})

	t.Run("checksum is xor of the 19 preceding bytes", func(t *testing.T) {
		frame, err := EncodeFrame(0x05, []byte{0x02, 0xFF, 0x10, 0x80})
		require.NoError(t, err)

		var sum byte
		for _, b := range frame[:framePadTo] {
			sum ^= b
		}

		assert.Equal(t, sum, frame[framePadTo])
	})

	t.Run("round trip validates", func(t *testing.T) {
		frame, err := EncodeFrame(0x04, []byte{0xFE})
		require.NoError(t, err)
		assert.True(t, ValidFrame(frame))

		// Corrupting any byte breaks validation.
		frame[5] ^= 0x01
		assert.False(t, ValidFrame(frame))
	})

	t.Run("rejects oversize payload", func(t *testing.T) {
		_, err := EncodeFrame(0x01, make([]byte, maxPayloadSize+1))
		require.ErrorIs(t, err, errPayloadTooLarge)
	})

	t.Run("rejects short frames", func(t *testing.T) {
		assert.False(t, ValidFrame([]byte{0x33, 0x01}))
	})
}
