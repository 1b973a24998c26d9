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

// Package cloud implements the authenticated HTTP polling client for the
// vendor cloud: login, device listing, per-device state fetch, and command
// submission.
package cloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/carverauto/goveelink/pkg/logger"
	"github.com/carverauto/goveelink/pkg/models"
)

// HTTPClient abstracts the underlying HTTP transport for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Session holds the credentials returned by Login.
type Session struct {
	Token     string `json:"token"`
	AccountID string `json:"accountId"`
	Topic     string `json:"topic"`
	IoTCert   string `json:"iotCert,omitempty"`
	IoTKey    string `json:"iotKey,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
}

// Client is the cloud REST client. Rate-limit counters are process-wide
// state on the client, shared across all devices.
type Client struct {
	cfg    Config
	http   HTTPClient
	logger logger.Logger
	limits *rateLimitState

	// transientBackoff and bulkRetryWait are overridable for tests.
	transientBackoff time.Duration
	bulkRetryWait    time.Duration
}

// NewClient creates a cloud REST client.
func NewClient(cfg Config, log logger.Logger) *Client {
	return &Client{
		cfg:              cfg,
		http:             &http.Client{Timeout: defaultRequestTimeout},
		logger:           log.WithComponent("cloud"),
		limits:           &rateLimitState{},
		transientBackoff: defaultTransientBackoff,
		bulkRetryWait:    defaultBulkRetryWait,
	}
}

// SetHTTPClient replaces the HTTP transport; for tests.
func (c *Client) SetHTTPClient(h HTTPClient) { c.http = h }

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	ClientID string `json:"client"`
}

type loginResponse struct {
	Client  *Session `json:"client"`
	Message string   `json:"message"`
}

// Login authenticates against the account API and returns the session used
// to establish the pub/sub connection. When the cloud rejects the password
// outright, the password is reinterpreted as base64 and the login retried
// once — some host platforms store it encoded.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	sess, err := c.login(ctx, c.cfg.Password)
	if err == nil {
		return sess, nil
	}

	if !errors.Is(err, errIncorrectPassword) {
		return nil, err
	}

	decoded, decErr := base64.StdEncoding.DecodeString(c.cfg.Password)
	if decErr != nil {
		return nil, err
	}

	c.logger.Debug().Msg("Retrying login with base64-decoded password")

	return c.login(ctx, string(decoded))
}

func (c *Client) login(ctx context.Context, password string) (*Session, error) {
	body, err := json.Marshal(loginRequest{
		Email:    c.cfg.Email,
		Password: password,
		ClientID: c.cfg.ClientID,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.doWithRetry(ctx, http.MethodPost, c.cfg.accountURL()+"/login", nil, body)
	if err != nil {
		return nil, err
	}

	var lr loginResponse

	if err := json.Unmarshal(resp, &lr); err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}

	if strings.Contains(strings.ToLower(lr.Message), "incorrect password") {
		return nil, errIncorrectPassword
	}

	if lr.Client == nil || lr.Client.Token == "" {
		return nil, fmt.Errorf("%w: %s", errLoginFailed, lr.Message)
	}

	return lr.Client, nil
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type deviceListData struct {
	Devices []models.DeviceSummary `json:"devices"`
}

// ListDevices fetches the account's device list. When the daily quota is
// exhausted it warns once, sleeps a long interval, and retries — bulk reads
// prefer slow correctness over giving up.
func (c *Client) ListDevices(ctx context.Context) ([]models.DeviceSummary, error) {
	for {
		data, err := c.apiGet(ctx, "/devices", nil)

		var rle *RateLimitError

		if errors.As(err, &rle) {
			c.logger.Info().
				Str("quota", string(rle.Scope)).
				Dur("wait", c.bulkRetryWait).
				Msg("Device listing rate limited, waiting before retry")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.bulkRetryWait):
			}

			continue
		}

		if err != nil {
			return nil, err
		}

		var list deviceListData

		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse device list: %w", err)
		}

		return list.Devices, nil
	}
}

// GetDeviceState fetches the current property map for one device. A
// rate-limit error is surfaced without retry; the caller decides whether to
// degrade to another transport.
func (c *Client) GetDeviceState(ctx context.Context, device, model string) (map[string]json.RawMessage, error) {
	q := url.Values{}
	q.Set("device", device)
	q.Set("model", model)

	data, err := c.apiGet(ctx, "/devices/state?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var state struct {
		Properties []map[string]json.RawMessage `json:"properties"`
	}

	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse device state: %w", err)
	}

	props := make(map[string]json.RawMessage)

	for _, entry := range state.Properties {
		for k, v := range entry {
			props[k] = v
		}
	}

	return props, nil
}

type controlRequest struct {
	Device string     `json:"device"`
	Model  string     `json:"model"`
	Cmd    controlCmd `json:"cmd"`
}

type controlCmd struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// SubmitCommand submits one control command for a device. Rate-limit
// errors are surfaced without retry.
func (c *Client) SubmitCommand(ctx context.Context, device, model, name string, value interface{}) error {
	body, err := json.Marshal(controlRequest{
		Device: device,
		Model:  model,
		Cmd:    controlCmd{Name: name, Value: value},
	})
	if err != nil {
		return err
	}

	resp, err := c.doWithRetry(ctx, http.MethodPut, c.cfg.baseURL()+"/devices/control", c.apiHeaders(), body)
	if err != nil {
		return err
	}

	return c.checkCode(resp)
}

// apiGet performs one authenticated GET and unwraps the data envelope.
func (c *Client) apiGet(ctx context.Context, path string, extra http.Header) (json.RawMessage, error) {
	headers := c.apiHeaders()

	for k, vs := range extra {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}

	resp, err := c.doWithRetry(ctx, http.MethodGet, c.cfg.baseURL()+path, headers, nil)
	if err != nil {
		return nil, err
	}

	var api apiResponse

	if err := json.Unmarshal(resp, &api); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if api.Code != http.StatusOK {
		return nil, fmt.Errorf("%w: code %d: %s", errUnexpectedStatusCode, api.Code, api.Message)
	}

	if len(api.Data) == 0 || string(api.Data) == "null" {
		return nil, errMissingData
	}

	return api.Data, nil
}

func (c *Client) checkCode(resp []byte) error {
	var api apiResponse

	if err := json.Unmarshal(resp, &api); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if api.Code != http.StatusOK {
		return fmt.Errorf("%w: code %d: %s", errUnexpectedStatusCode, api.Code, api.Message)
	}

	return nil
}

func (c *Client) apiHeaders() http.Header {
	h := http.Header{}
	h.Set("Govee-API-Key", c.cfg.APIKey)
	h.Set("Content-Type", "application/json")

	return h
}

// doWithRetry performs one HTTP call, retrying transient network errors
// with a constant backoff. The retry loop is unbounded on persistent
// transient failure and ends only when ctx is canceled; the system prefers
// slow correctness over giving up silently.
func (c *Client) doWithRetry(ctx context.Context, method, rawURL string, headers http.Header, body []byte) ([]byte, error) {
	operation := func() ([]byte, error) {
		data, err := c.doOnce(ctx, method, rawURL, headers, body)
		if err == nil {
			c.limits.reset()
			return data, nil
		}

		if isTransient(err) {
			c.logger.Warn().
				Err(err).
				Str("url", rawURL).
				Dur("backoff", c.transientBackoff).
				Msg("Transient network error, will retry")

			return nil, err
		}

		return nil, backoff.Permanent(err)
	}

	bo := backoff.NewConstantBackOff(c.transientBackoff)

	return backoff.Retry(ctx, operation, backoff.WithBackOff(bo))
}

func (c *Client) doOnce(ctx context.Context, method, rawURL string, headers http.Header, body []byte) ([]byte, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}

	if headers != nil {
		req.Header = headers.Clone()
	}

	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		rle, warn := c.limits.observe(resp.Header)
		if warn {
			c.logger.Warn().
				Str("quota", string(rle.Scope)).
				Int("limit", rle.Limit).
				Time("reset", rle.Reset).
				Msg("Cloud API quota exhausted")
		}

		return nil, rle
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d, response: %s", errUnexpectedStatusCode,
			resp.StatusCode, string(data))
	}

	return data, nil
}

// isTransient classifies connection-refused, DNS failure, timeout, and
// connection-aborted errors as retryable.
func isTransient(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNRESET)
}
