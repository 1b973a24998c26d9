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
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/goveelink/pkg/logger"
	"github.com/carverauto/goveelink/pkg/models"
)

// fakeClock drives the poll loop manually through an injected tick channel.
type fakeClock struct {
	ticks chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{ticks: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time { return time.Now() }

func (c *fakeClock) Ticker(time.Duration) Ticker { return &fakeTicker{c: c.ticks} }

type fakeTicker struct {
	c chan time.Time
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()                  {}

type fetchCall struct {
	device string
	model  string
}

type fakeFetcher struct {
	mu     sync.Mutex
	calls  []fetchCall
	states map[string]map[string]json.RawMessage
	errs   map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		states: make(map[string]map[string]json.RawMessage),
		errs:   make(map[string]error),
	}
}

func (f *fakeFetcher) GetDeviceState(_ context.Context, device, model string) (map[string]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fetchCall{device: device, model: model})

	if err := f.errs[device]; err != nil {
		return nil, err
	}

	return f.states[device], nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

type stubGate struct {
	paused bool
}

func (g *stubGate) Paused() bool { return g.paused }

func collectSink() (func(models.Update), func() []models.Update) {
	var (
		mu      sync.Mutex
		updates []models.Update
	)

	sink := func(u models.Update) {
		mu.Lock()
		defer mu.Unlock()

		updates = append(updates, u)
	}

	drain := func() []models.Update {
		mu.Lock()
		defer mu.Unlock()

		out := make([]models.Update, len(updates))
		copy(out, updates)

		return out
	}

	return sink, drain
}

func TestPoller(t *testing.T) {
	devices := []*models.Device{
		{ID: "rest-1", Model: "H6159", HasREST: true},
		{ID: "pubsub-only", Model: "H6199", HasPubSub: true},
		{ID: "rest-2", Model: "H5074", HasREST: true},
	}
	deviceSource := func() []*models.Device { return devices }

	t.Run("polls rest devices only and forwards raw payloads", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.states["rest-1"] = map[string]json.RawMessage{"powerState": json.RawMessage(`"on"`)}
		fetcher.states["rest-2"] = map[string]json.RawMessage{"battery": json.RawMessage(`77`)}

		sink, drain := collectSink()
		p := NewPoller(fetcher, deviceSource, sink, nil, time.Minute, logger.NewTestLogger())

		p.pollOnce(context.Background())

		assert.Equal(t, 2, fetcher.callCount(), "the pub/sub-only device must never be polled")

		updates := drain()
		require.Len(t, updates, 2)
		assert.Equal(t, "rest-1", updates[0].DeviceID)
		assert.Equal(t, models.TransportREST, updates[0].Source)
		assert.JSONEq(t, `{"powerState":"on"}`, string(updates[0].Payload))
	})

	t.Run("gate pause skips the whole cycle", func(t *testing.T) {
		fetcher := newFakeFetcher()
		sink, drain := collectSink()
		gate := &stubGate{paused: true}

		p := NewPoller(fetcher, deviceSource, sink, gate, time.Minute, logger.NewTestLogger())

		p.pollOnce(context.Background())
		assert.Zero(t, fetcher.callCount())
		assert.Empty(t, drain())

		gate.paused = false
		p.pollOnce(context.Background())
		assert.Equal(t, 2, fetcher.callCount())
	})

	t.Run("rate limit stops the cycle", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.errs["rest-1"] = &RateLimitError{Scope: QuotaMinute}

		sink, drain := collectSink()
		p := NewPoller(fetcher, deviceSource, sink, nil, time.Minute, logger.NewTestLogger())

		p.pollOnce(context.Background())

		assert.Equal(t, 1, fetcher.callCount(), "remaining devices must not burn quota")
		assert.Empty(t, drain())
	})

	t.Run("other fetch errors skip only the failing device", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.errs["rest-1"] = errMissingData
		fetcher.states["rest-2"] = map[string]json.RawMessage{"battery": json.RawMessage(`50`)}

		sink, drain := collectSink()
		p := NewPoller(fetcher, deviceSource, sink, nil, time.Minute, logger.NewTestLogger())

		p.pollOnce(context.Background())

		assert.Equal(t, 2, fetcher.callCount())

		updates := drain()
		require.Len(t, updates, 1)
		assert.Equal(t, "rest-2", updates[0].DeviceID)
	})

	t.Run("run loop ticks until canceled", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.states["rest-1"] = map[string]json.RawMessage{"powerState": json.RawMessage(`"on"`)}

		sink, drain := collectSink()
		p := NewPoller(fetcher, deviceSource, sink, nil, time.Minute, logger.NewTestLogger())

		clock := newFakeClock()
		p.SetClock(clock)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() { done <- p.Run(ctx) }()

		clock.ticks <- time.Now()
		clock.ticks <- time.Now()

		cancel()
		require.ErrorIs(t, <-done, context.Canceled)

		assert.GreaterOrEqual(t, len(drain()), 2)
	})
}
