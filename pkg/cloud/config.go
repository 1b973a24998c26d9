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

package cloud

import (
	"time"
)

const (
	defaultBaseURL    = "https://developer-api.govee.com/v1"
	defaultAccountURL = "https://app2.govee.com/account/rest/account/v1"

	// defaultTransientBackoff is how long to wait before retrying a call
	// that failed with a transient network error.
	defaultTransientBackoff = 30 * time.Second

	// defaultBulkRetryWait is how long listing calls sleep when the daily
	// quota is exhausted before retrying.
	defaultBulkRetryWait = 10 * time.Minute

	defaultRequestTimeout = 30 * time.Second
	defaultPollInterval   = 60 * time.Second
)

// Config holds the cloud REST client configuration.
type Config struct {
	APIKey   string `json:"api_key"`
	Email    string `json:"email"`
	Password string `json:"password"`
	ClientID string `json:"client_id"`

	// BaseURL is the API-key endpoint root; AccountURL is the account
	// login endpoint root. Defaults apply when empty.
	BaseURL    string `json:"base_url,omitempty"`
	AccountURL string `json:"account_url,omitempty"`

	// PollInterval controls the state refresh loop, in seconds.
	PollInterval int `json:"poll_interval,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errMissingAPIKey
	}

	if c.Email == "" || c.Password == "" {
		return errMissingCredentials
	}

	return nil
}

func (c *Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}

	return defaultBaseURL
}

func (c *Config) accountURL() string {
	if c.AccountURL != "" {
		return c.AccountURL
	}

	return defaultAccountURL
}

func (c *Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return time.Duration(c.PollInterval) * time.Second
	}

	return defaultPollInterval
}
