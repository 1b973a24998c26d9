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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowed(t *testing.T) {
	for _, cmd := range []string{"turn", "brightness", "color", "colorTem", "colorwc", "ptReal", "status", "bulb"} {
		assert.True(t, Allowed(cmd), cmd)
	}

	assert.False(t, Allowed("reboot"))
	assert.False(t, Allowed(""))
}

func TestDecodeEnvelope(t *testing.T) {
	t.Run("valid command decodes", func(t *testing.T) {
		env, ok := decodeEnvelope([]byte(`{"msg":{"cmd":"brightness","data":{"val":42}}}`))
		require.True(t, ok)
		assert.Equal(t, "brightness", env.Msg.Cmd)
		assert.JSONEq(t, `{"val":42}`, string(env.Msg.Data))
	})

	t.Run("unrecognized command is rejected", func(t *testing.T) {
		_, ok := decodeEnvelope([]byte(`{"msg":{"cmd":"factoryReset","data":{}}}`))
		assert.False(t, ok)
	})

	t.Run("missing command is rejected", func(t *testing.T) {
		_, ok := decodeEnvelope([]byte(`{"msg":{"data":{}}}`))
		assert.False(t, ok)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, ok := decodeEnvelope([]byte("not json"))
		assert.False(t, ok)
	})
}
