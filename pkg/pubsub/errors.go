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

import "errors"

var (
	// ErrNotConnected is returned by Publish while the session is down.
	// Callers check connection state or accept the immediate failure and
	// fall back to another transport.
	ErrNotConnected = errors.New("pubsub session not connected")

	errPublishTimeout   = errors.New("publish not acknowledged before timeout")
	errMissingTopic     = errors.New("device has no pubsub topic")
	errMissingEndpoint  = errors.New("broker endpoint is required")
	errInvalidKeyPair   = errors.New("invalid TLS certificate or key")
	errAlreadyConnected = errors.New("session already connected")
)
