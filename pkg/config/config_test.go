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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string `json:"name"`
	Retries int    `json:"retries"`

	validateErr error
}

func (c *testConfig) Validate() error { return c.validateErr }

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestFileConfigLoader_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("reads and parses a json file", func(t *testing.T) {
		path := writeConfig(t, `{"name":"engine","retries":3}`)

		var cfg testConfig

		require.NoError(t, (&FileConfigLoader{}).Load(ctx, path, &cfg))
		assert.Equal(t, "engine", cfg.Name)
		assert.Equal(t, 3, cfg.Retries)
	})

	t.Run("missing file", func(t *testing.T) {
		var cfg testConfig

		err := (&FileConfigLoader{}).Load(ctx, filepath.Join(t.TempDir(), "absent.json"), &cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := writeConfig(t, `{"name":`)

		var cfg testConfig

		err := (&FileConfigLoader{}).Load(ctx, path, &cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
	})

	t.Run("canceled context short-circuits the read", func(t *testing.T) {
		canceled, cancel := context.WithCancel(context.Background())
		cancel()

		var cfg testConfig

		err := (&FileConfigLoader{}).Load(canceled, writeConfig(t, `{}`), &cfg)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestConfig_LoadAndValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("runs the validator after loading", func(t *testing.T) {
		path := writeConfig(t, `{"name":"engine"}`)

		cfg := testConfig{validateErr: errors.New("name too short")}

		err := NewConfig().LoadAndValidate(ctx, path, &cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})

	t.Run("valid config passes", func(t *testing.T) {
		path := writeConfig(t, `{"name":"engine"}`)

		var cfg testConfig

		require.NoError(t, NewConfig().LoadAndValidate(ctx, path, &cfg))
	})
}
