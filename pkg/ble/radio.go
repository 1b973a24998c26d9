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

import (
	"context"
)

// Radio abstracts the short-range wireless hardware so tests can run
// against a fake. The production implementation wraps the system Bluetooth
// adapter.
type Radio interface {
	// Ready reports whether the radio is powered on and usable.
	Ready() bool

	// Scan blocks until the target address advertises or ctx ends.
	Scan(ctx context.Context, address string) (Peripheral, error)
}

// Peripheral is a discovered advertisement that can be connected to.
type Peripheral interface {
	Connect(ctx context.Context) (Link, error)
}

// Link is one established connection.
type Link interface {
	// DiscoverControl resolves the control characteristic.
	DiscoverControl(ctx context.Context) (CharacteristicWriter, error)
	Disconnect() error
}

// CharacteristicWriter writes framed commands to the control
// characteristic.
type CharacteristicWriter interface {
	Write(frame []byte) error
}
