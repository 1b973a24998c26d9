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

// Package pubsub implements the persistent encrypted publish/subscribe
// session against the vendor's cloud broker.
package pubsub

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/carverauto/goveelink/pkg/logger"
	"github.com/carverauto/goveelink/pkg/models"
)

// ConnectionState is the observed session state. Transitions come from the
// underlying transport's own keep-alive logic; there is no manual
// reconnect.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	defaultPublishTimeout = 5 * time.Second
	brokerPort            = 8883
	publishQoS            = 1
)

// Config holds the broker session configuration; certificate material comes
// from the cloud login response.
type Config struct {
	Endpoint     string `json:"endpoint"`
	AccountTopic string `json:"account_topic"`
	Certificate  string `json:"certificate"`
	PrivateKey   string `json:"private_key"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errMissingEndpoint
	}

	return nil
}

// Accessory is the per-device pub/sub handle: a topic filter plus the
// inbound update handler.
type Accessory struct {
	device  *models.Device
	handler func(models.Update)
}

// Client owns one broker session shared by all accessories.
type Client struct {
	cfg    Config
	logger logger.Logger

	mqtt  mqtt.Client
	state atomic.Int32

	mu          sync.RWMutex
	accessories map[string]*Accessory

	publishTimeout time.Duration
}

// NewClient builds the session from the login-derived credentials. The
// connection is not established until Connect.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	c := &Client{
		cfg:            cfg,
		logger:         log.WithComponent("pubsub"),
		accessories:    make(map[string]*Accessory),
		publishTimeout: defaultPublishTimeout,
	}

	tlsCfg, err := c.tlsConfig()
	if err != nil {
		return nil, err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tls://%s:%d", cfg.Endpoint, brokerPort)).
		SetClientID("goveelink-" + uuid.NewString()[:8]).
		SetTLSConfig(tlsCfg).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(c.onReconnecting)

	c.mqtt = mqtt.NewClient(opts)

	return c, nil
}

func (c *Client) tlsConfig() (*tls.Config, error) {
	if c.cfg.Certificate == "" {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}

	cert, err := tls.X509KeyPair([]byte(c.cfg.Certificate), []byte(c.cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidKeyPair, err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// SetMQTTClient replaces the underlying transport; for tests.
func (c *Client) SetMQTTClient(m mqtt.Client) { c.mqtt = m }

// State returns the observed connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Connected reports whether the session is currently up.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Connect establishes the session. Reconnection afterwards is automatic,
// so a second call on a live session is a caller bug.
func (c *Client) Connect(ctx context.Context) error {
	if c.Connected() {
		return errAlreadyConnected
	}

	c.state.Store(int32(StateConnecting))

	token := c.mqtt.Connect()

	if err := waitToken(ctx, token, 0); err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	return nil
}

// Close tears the session down.
func (c *Client) Close() {
	c.mqtt.Disconnect(250)
	c.state.Store(int32(StateDisconnected))
}

// RegisterAccessory subscribes the device's topic and routes its inbound
// updates to handler.
func (c *Client) RegisterAccessory(device *models.Device, handler func(models.Update)) error {
	if device.Topic == "" {
		return errMissingTopic
	}

	c.mu.Lock()
	c.accessories[device.Topic] = &Accessory{device: device, handler: handler}
	c.mu.Unlock()

	if c.Connected() {
		return c.subscribe(device.Topic)
	}

	// Subscription happens on (re)connect otherwise.
	return nil
}

func (c *Client) subscribe(topic string) error {
	token := c.mqtt.Subscribe(topic, publishQoS, c.onMessage)

	if !token.WaitTimeout(c.publishTimeout) {
		return errPublishTimeout
	}

	return token.Error()
}

// Publish sends one command envelope on the device's topic. It fails
// immediately with ErrNotConnected while the session is down.
func (c *Client) Publish(ctx context.Context, device *models.Device, cmd string, data interface{}) error {
	if !c.Connected() {
		return ErrNotConnected
	}

	if device.Topic == "" {
		return errMissingTopic
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	body, err := json.Marshal(Envelope{Msg: Message{
		Cmd:          cmd,
		CmdVersion:   0,
		Data:         raw,
		Transaction:  uuid.NewString(),
		Type:         1,
		AccountTopic: c.cfg.AccountTopic,
	}})
	if err != nil {
		return err
	}

	token := c.mqtt.Publish(device.Topic, publishQoS, false, body)

	if err := waitToken(ctx, token, c.publishTimeout); err != nil {
		return fmt.Errorf("publish to %s failed: %w", device.Topic, err)
	}

	c.logger.Debug().
		Str("device", device.ID).
		Str("cmd", cmd).
		Msg("Published command")

	return nil
}

// onMessage routes an inbound broker message to the accessory whose topic
// matches exactly. Undecodable payloads and unrecognized commands are
// logged and dropped, never propagated.
func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.mu.RLock()
	acc, ok := c.accessories[msg.Topic()]
	c.mu.RUnlock()

	if !ok {
		return
	}

	env, ok := decodeEnvelope(msg.Payload())
	if !ok {
		c.logger.Debug().
			Str("topic", msg.Topic()).
			Msg("Dropping undecodable or unrecognized pubsub message")

		return
	}

	acc.handler(models.Update{
		DeviceID: acc.device.ID,
		Source:   models.TransportPubSub,
		Payload:  msg.Payload(),
	})

	c.logger.Trace().
		Str("device", acc.device.ID).
		Str("cmd", env.Msg.Cmd).
		Msg("Inbound pubsub update")
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.state.Store(int32(StateConnected))
	c.logger.Info().Msg("Pubsub session connected")

	c.mu.RLock()
	topics := make([]string, 0, len(c.accessories))

	for topic := range c.accessories {
		topics = append(topics, topic)
	}
	c.mu.RUnlock()

	for _, topic := range topics {
		if err := c.subscribe(topic); err != nil {
			c.logger.Error().Err(err).Str("topic", topic).Msg("Failed to resubscribe")
		}
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.state.Store(int32(StateDisconnected))
	c.logger.Warn().Err(err).Msg("Pubsub session lost")
}

func (c *Client) onReconnecting(_ mqtt.Client, _ *mqtt.ClientOptions) {
	c.state.Store(int32(StateConnecting))
	c.logger.Info().Msg("Pubsub session reconnecting")
}

// waitToken waits for a delivery token honoring ctx. A zero timeout waits
// indefinitely (bounded by ctx only).
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	done := token.Done()

	var timer <-chan time.Time

	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()

		timer = t.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer:
		return errPublishTimeout
	case <-done:
		return token.Error()
	}
}
