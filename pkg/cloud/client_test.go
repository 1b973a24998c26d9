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
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/goveelink/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		APIKey:     "test-key",
		Email:      "user@example.com",
		Password:   "hunter2",
		ClientID:   "client-1",
		BaseURL:    srv.URL,
		AccountURL: srv.URL,
	}, logger.NewTestLogger())

	c.transientBackoff = 5 * time.Millisecond
	c.bulkRetryWait = 5 * time.Millisecond

	return c, srv
}

func TestClient_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("returns session credentials", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/login", r.URL.Path)

			var req loginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "user@example.com", req.Email)

			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"client": map[string]string{
					"token":     "tok-123",
					"accountId": "acct-9",
					"topic":     "GA/abc",
				},
			})
		}))

		sess, err := c.Login(ctx)
		require.NoError(t, err)
		assert.Equal(t, "tok-123", sess.Token)
		assert.Equal(t, "GA/abc", sess.Topic)
	})

	t.Run("retries once with base64 decoded password", func(t *testing.T) {
		var calls atomic.Int32

		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req loginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			if calls.Add(1) == 1 {
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "Incorrect password"})
				return
			}

			assert.Equal(t, "plain-secret", req.Password)

			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"client": map[string]string{"token": "tok-456"},
			})
		}))
		c.cfg.Password = base64.StdEncoding.EncodeToString([]byte("plain-secret"))

		sess, err := c.Login(ctx)
		require.NoError(t, err)
		assert.Equal(t, "tok-456", sess.Token)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestClient_GetDeviceState(t *testing.T) {
	ctx := context.Background()

	t.Run("flattens property entries and sends api key header", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-key", r.Header.Get("Govee-API-Key"))
			assert.Equal(t, "AA:BB", r.URL.Query().Get("device"))
			assert.Equal(t, "H6159", r.URL.Query().Get("model"))

			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 200,
				"data": map[string]interface{}{
					"properties": []map[string]interface{}{
						{"powerState": "on"},
						{"brightness": 254},
					},
				},
			})
		}))

		props, err := c.GetDeviceState(ctx, "AA:BB", "H6159")
		require.NoError(t, err)
		assert.JSONEq(t, `"on"`, string(props["powerState"]))
		assert.JSONEq(t, `254`, string(props["brightness"]))
	})

	t.Run("non-200 envelope code is an error", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 400, "message": "bad request"})
		}))

		_, err := c.GetDeviceState(ctx, "AA:BB", "H6159")
		require.ErrorIs(t, err, errUnexpectedStatusCode)
	})

	t.Run("missing data field is an error", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 200})
		}))

		_, err := c.GetDeviceState(ctx, "AA:BB", "H6159")
		require.ErrorIs(t, err, errMissingData)
	})
}

func TestClient_RateLimits(t *testing.T) {
	ctx := context.Background()

	rateLimited := func(headers map[string]string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			for k, v := range headers {
				w.Header().Set(k, v)
			}

			w.WriteHeader(http.StatusTooManyRequests)
		})
	}

	t.Run("daily quota exhaustion is typed", func(t *testing.T) {
		c, _ := newTestClient(t, rateLimited(map[string]string{
			"x-ratelimit-remaining": "0",
			"x-ratelimit-limit":     "10000",
		}))

		_, err := c.GetDeviceState(ctx, "AA:BB", "H6159")

		var rle *RateLimitError

		require.ErrorAs(t, err, &rle)
		assert.Equal(t, QuotaDaily, rle.Scope)
		assert.Equal(t, 10000, rle.Limit)
	})

	t.Run("per-minute quota exhaustion is distinguishable", func(t *testing.T) {
		c, _ := newTestClient(t, rateLimited(map[string]string{
			"api-ratelimit-remaining": "0",
			"api-ratelimit-limit":     "60",
		}))

		_, err := c.GetDeviceState(ctx, "AA:BB", "H6159")

		var rle *RateLimitError

		require.ErrorAs(t, err, &rle)
		assert.Equal(t, QuotaMinute, rle.Scope)
		assert.Equal(t, 60, rle.Limit)
	})

	t.Run("single-device calls are not retried on rate limit", func(t *testing.T) {
		var calls atomic.Int32

		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.Header().Set("x-ratelimit-remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		}))

		_, err := c.GetDeviceState(ctx, "AA:BB", "H6159")
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("listing retries after quota exhaustion", func(t *testing.T) {
		var calls atomic.Int32

		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("x-ratelimit-remaining", "0")
				w.WriteHeader(http.StatusTooManyRequests)

				return
			}

			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 200,
				"data": map[string]interface{}{
					"devices": []map[string]interface{}{
						{"device": "AA:BB", "model": "H6159"},
					},
				},
			})
		}))

		devices, err := c.ListDevices(ctx)
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, "AA:BB", devices[0].Device)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestClient_SubmitCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("puts control body", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPut, r.Method)
			require.Equal(t, "/devices/control", r.URL.Path)

			var req controlRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "AA:BB", req.Device)
			assert.Equal(t, "turn", req.Cmd.Name)

			_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 200, "data": map[string]string{}})
		}))

		require.NoError(t, c.SubmitCommand(ctx, "AA:BB", "H6159", "turn", "on"))
	})
}

func TestClient_TransientRetry(t *testing.T) {
	t.Run("retries transient errors until success", func(t *testing.T) {
		var calls atomic.Int32

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 200, "data": map[string]string{}})
		}))
		t.Cleanup(srv.Close)

		c := NewClient(Config{
			APIKey: "k", Email: "e", Password: "p",
			BaseURL: srv.URL, AccountURL: srv.URL,
		}, logger.NewTestLogger())
		c.transientBackoff = time.Millisecond

		failing := &flakyTransport{inner: srv.Client(), failures: 2, calls: &calls}
		c.SetHTTPClient(failing)

		err := c.SubmitCommand(context.Background(), "AA:BB", "H6159", "turn", "on")
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("ctx cancellation bounds the retry loop", func(t *testing.T) {
		c := NewClient(Config{
			APIKey: "k", Email: "e", Password: "p",
			BaseURL: "http://127.0.0.1:1", AccountURL: "http://127.0.0.1:1",
		}, logger.NewTestLogger())
		c.transientBackoff = 10 * time.Millisecond

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		err := c.SubmitCommand(ctx, "AA:BB", "H6159", "turn", "on")
		require.Error(t, err)
	})
}

// flakyTransport fails the first n calls with a connection-refused class
// error, then delegates.
type flakyTransport struct {
	inner    *http.Client
	failures int32
	calls    *atomic.Int32
}

func (f *flakyTransport) Do(req *http.Request) (*http.Response, error) {
	n := f.calls.Add(1)

	if n <= f.failures {
		return nil, &timeoutError{}
	}

	return f.inner.Do(req)
}

// timeoutError satisfies net.Error with Timeout() == true.
type timeoutError struct{}

func (*timeoutError) Error() string   { return "dial timeout" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }

var _ error = (*timeoutError)(nil)
var _ interface{ Timeout() bool } = (*timeoutError)(nil)

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&timeoutError{}))
	assert.False(t, isTransient(errors.New("decode failure")))
}
