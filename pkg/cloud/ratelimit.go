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
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Rate-limit headers returned on 429 responses. The x-ratelimit pair covers
// the daily quota, the api-ratelimit pair the per-minute quota.
const (
	headerDailyRemaining  = "x-ratelimit-remaining"
	headerDailyLimit      = "x-ratelimit-limit"
	headerDailyReset      = "x-ratelimit-reset"
	headerMinuteRemaining = "api-ratelimit-remaining"
	headerMinuteLimit     = "api-ratelimit-limit"
	headerMinuteReset     = "api-ratelimit-reset"
)

// rateLimitState tracks remaining cloud quota. One instance is shared
// across all devices serviced by a client, never per-device.
type rateLimitState struct {
	mu sync.Mutex

	dailyRemaining  int
	dailyLimit      int
	dailyReset      time.Time
	minuteRemaining int
	minuteLimit     int
	minuteReset     time.Time

	// warnedDaily/warnedMinute gate the one-time exhaustion warnings so a
	// stream of 429s does not flood the log.
	warnedDaily  bool
	warnedMinute bool
}

// observe parses the rate-limit headers from a 429 response and returns the
// typed exhaustion error for whichever quota ran out, plus whether the
// warning for that quota should be logged (first occurrence only).
func (s *rateLimitState) observe(h http.Header) (rle *RateLimitError, warn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dailyRemaining = headerInt(h, headerDailyRemaining, s.dailyRemaining)
	s.dailyLimit = headerInt(h, headerDailyLimit, s.dailyLimit)
	s.dailyReset = headerUnix(h, headerDailyReset, s.dailyReset)
	s.minuteRemaining = headerInt(h, headerMinuteRemaining, s.minuteRemaining)
	s.minuteLimit = headerInt(h, headerMinuteLimit, s.minuteLimit)
	s.minuteReset = headerUnix(h, headerMinuteReset, s.minuteReset)

	if h.Get(headerDailyRemaining) == "0" {
		warn = !s.warnedDaily
		s.warnedDaily = true

		return &RateLimitError{Scope: QuotaDaily, Limit: s.dailyLimit, Reset: s.dailyReset}, warn
	}

	if h.Get(headerMinuteRemaining) == "0" {
		warn = !s.warnedMinute
		s.warnedMinute = true

		return &RateLimitError{Scope: QuotaMinute, Limit: s.minuteLimit, Reset: s.minuteReset}, warn
	}

	// 429 without a zeroed quota header; treat as per-minute throttling.
	return &RateLimitError{Scope: QuotaMinute, Limit: s.minuteLimit, Reset: s.minuteReset}, false
}

// reset clears the warning gates once a request succeeds again.
func (s *rateLimitState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.warnedDaily = false
	s.warnedMinute = false
}

func headerInt(h http.Header, key string, fallback int) int {
	v := h.Get(key)
	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}

	return n
}

func headerUnix(h http.Header, key string, fallback time.Time) time.Time {
	v := h.Get(key)
	if v == "" {
		return fallback
	}

	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}

	return time.Unix(sec, 0)
}
