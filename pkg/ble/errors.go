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

import "errors"

var (
	// ErrRadioUnavailable means the radio is not in a powered-on mode.
	ErrRadioUnavailable = errors.New("radio unavailable")

	// ErrDeviceNotFound means the target's control characteristic was not
	// discovered within the caller's timeout.
	ErrDeviceNotFound = errors.New("device not found")

	errPayloadTooLarge = errors.New("payload exceeds frame capacity")
	errNoControlChar   = errors.New("control characteristic not found")
)
