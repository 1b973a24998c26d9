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
	"errors"
	"fmt"
	"time"
)

var (
	errUnexpectedStatusCode = errors.New("unexpected status code")
	errMissingData          = errors.New("response missing data field")
	errLoginFailed          = errors.New("login failed")
	errIncorrectPassword    = errors.New("incorrect password")
	errMissingAPIKey        = errors.New("api key is required")
	errMissingCredentials   = errors.New("email and password are required")
)

// QuotaScope identifies which rate-limit quota a 429 response exhausted.
type QuotaScope string

const (
	QuotaDaily  QuotaScope = "daily"
	QuotaMinute QuotaScope = "minute"
)

// RateLimitError is returned for single-device calls when a cloud quota is
// exhausted. Callers decide whether to degrade to another transport.
type RateLimitError struct {
	Scope QuotaScope
	Limit int
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("cloud %s quota exhausted (limit %d, resets %s)",
		e.Scope, e.Limit, e.Reset.Format(time.RFC3339))
}

// IsRateLimit reports whether err is a quota exhaustion error.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}
