/*
 * Copyright 2025 Herdworks, Inc.
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

// Package hub routes fleet messages between the transport and the presence
// registry: it decodes and dispatches inbound registrations, heartbeats,
// sensor readings, and command responses, publishes outbound commands, and
// correlates commands to responses by request id.
package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herdworks/herd/pkg/codec"
	"github.com/herdworks/herd/pkg/logger"
	"github.com/herdworks/herd/pkg/models"
	"github.com/herdworks/herd/pkg/registry"
	"github.com/herdworks/herd/pkg/transport"
)

// Handler processes one raw inbound message. Returned errors are logged;
// they never affect other handlers or the transport.
type Handler func(topic string, payload []byte) error

// SensorFunc receives each decoded sensor reading.
type SensorFunc func(topic string, reading *models.SensorReading)

// Config holds the hub's routing policy.
type Config struct {
	// TopicPrefix namespaces all fleet topics; empty uses "herd".
	TopicPrefix string `json:"topic_prefix"`

	// CommandTimeout bounds response correlation for commands that do not
	// carry their own timeout.
	CommandTimeout time.Duration `json:"command_timeout"`
}

// DefaultConfig returns the stock routing policy.
func DefaultConfig() *Config {
	return &Config{
		TopicPrefix:    DefaultTopicPrefix,
		CommandTimeout: 5 * time.Second,
	}
}

// Hub is the message router. It owns the transport-facing subscriptions and
// is safe for concurrent use.
type Hub struct {
	session  transport.Session
	registry *registry.Registry
	topics   Topics
	logger   logger.Logger
	pending  *pendingResponses
	config   Config

	mu             sync.RWMutex
	running        bool
	subs           []transport.Subscription
	sensorHandlers []SensorFunc
}

// New creates a hub over an established transport session.
func New(session transport.Session, reg *registry.Registry, config *Config, log logger.Logger) *Hub {
	if config == nil {
		config = DefaultConfig()
	}

	if config.CommandTimeout <= 0 {
		config.CommandTimeout = DefaultConfig().CommandTimeout
	}

	return &Hub{
		session:  session,
		registry: reg,
		topics:   NewTopics(config.TopicPrefix),
		logger:   log,
		pending:  newPendingResponses(),
		config:   *config,
	}
}

// Topics returns the hub's topic builder.
func (h *Hub) Topics() Topics { return h.topics }

// Start sets up the built-in subscriptions: device info and heartbeats feed
// the presence registry, sensor readings feed registered sensor handlers,
// and command responses feed the correlation table.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return nil
	}

	bindings := []struct {
		pattern string
		handler Handler
	}{
		{h.topics.DeviceInfoPattern(), h.handleDeviceInfo},
		{h.topics.HeartbeatPattern(), h.handleHeartbeat},
		{h.topics.SensorPattern(), h.handleSensorReading},
		{h.topics.CommandResponsePattern(), h.handleCommandResponse},
	}

	for _, binding := range bindings {
		sub, err := h.subscribeLocked(ctx, binding.pattern, binding.handler)
		if err != nil {
			h.unsubscribeAllLocked()
			return fmt.Errorf("binding %s: %w", binding.pattern, err)
		}

		h.subs = append(h.subs, sub)
	}

	h.running = true

	h.logger.Info().
		Str("prefix", h.topics.Prefix()).
		Msg("Message hub started")

	return nil
}

// Stop tears down all subscriptions and abandons outstanding command
// correlations. Idempotent.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}

	h.unsubscribeAllLocked()
	h.pending.stopAll()
	h.running = false

	h.logger.Info().Msg("Message hub stopped")
}

// Subscribe attaches a handler to a topic pattern. Handler failures are
// isolated per message: logged, never propagated to the transport.
func (h *Hub) Subscribe(ctx context.Context, pattern string, handler Handler) (transport.Subscription, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sub, err := h.subscribeLocked(ctx, pattern, handler)
	if err != nil {
		return nil, err
	}

	h.subs = append(h.subs, sub)

	return sub, nil
}

func (h *Hub) unsubscribeAllLocked() {
	for _, sub := range h.subs {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warn().Err(err).Msg("Unsubscribe failed")
		}
	}

	h.subs = nil
}

func (h *Hub) subscribeLocked(ctx context.Context, pattern string, handler Handler) (transport.Subscription, error) {
	sub, err := h.session.Subscribe(ctx, pattern, func(topic string, payload []byte) {
		h.dispatch(pattern, topic, payload, handler)
	})
	if err != nil {
		return nil, err
	}

	h.logger.Debug().Str("pattern", pattern).Msg("Subscribed")

	return sub, nil
}

// dispatch runs one handler for one message with panic isolation. The
// pattern is re-checked here because native transport wildcards are looser
// than ours (an MQTT "#" also matches zero segments).
func (h *Hub) dispatch(pattern, topic string, payload []byte, handler Handler) {
	if !MatchTopic(pattern, topic) {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error().
				Str("pattern", pattern).
				Str("topic", topic).
				Interface("panic", rec).
				Msg("Message handler panicked")
		}
	}()

	if err := handler(topic, payload); err != nil {
		h.logger.Error().
			Err(err).
			Str("pattern", pattern).
			Str("topic", topic).
			Msg("Message handler failed")
	}
}

// OnSensorReading registers a handler for decoded sensor readings.
func (h *Hub) OnSensorReading(fn SensorFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sensorHandlers = append(h.sensorHandlers, fn)
}

// Publish encodes a typed message and forwards it to the transport.
func (h *Hub) Publish(ctx context.Context, topic string, msg interface{}) error {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()

	if !running {
		return ErrNotStarted
	}

	payload, err := codec.Marshal(msg)
	if err != nil {
		return err
	}

	if err := h.session.Publish(ctx, topic, payload); err != nil {
		return err
	}

	h.logger.Debug().
		Str("topic", topic).
		Int("size", len(payload)).
		Msg("Message published")

	return nil
}

// SendCommand publishes a command to the target device's command topic and
// returns the request id immediately; it never blocks on the response. A
// command for an unregistered device fails with ErrDeviceNotFound and
// nothing is published. Callers wanting the round trip follow up with
// AwaitResponse.
func (h *Hub) SendCommand(ctx context.Context, deviceID string, cmd *models.Command) (uuid.UUID, error) {
	if _, ok := h.registry.GetDevice(deviceID); !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", registry.ErrDeviceNotFound, deviceID)
	}

	cmd.DeviceID = deviceID

	if cmd.RequestID == uuid.Nil {
		cmd.RequestID = uuid.New()
	}

	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = codec.Now()
	}

	h.pending.add(cmd.RequestID, cmd.Timeout(h.config.CommandTimeout))

	if err := h.Publish(ctx, h.topics.Command(deviceID), cmd); err != nil {
		h.pending.drop(cmd.RequestID)
		return uuid.Nil, err
	}

	h.logger.Info().
		Str("device_id", deviceID).
		Str("action", cmd.Action).
		Str("request_id", cmd.RequestID.String()).
		Msg("Command sent")

	return cmd.RequestID, nil
}

// AwaitResponse blocks until the correlated response arrives, the command's
// timeout reaps the entry, or the context is canceled.
func (h *Hub) AwaitResponse(ctx context.Context, requestID uuid.UUID) (*models.CommandResponse, error) {
	ch, ok := h.pending.channel(requestID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
		}

		h.pending.remove(requestID)

		return resp, nil
	}
}

// Query performs a bounded best-effort request against the transport's
// retained data. No replies before the timeout is an empty result, never an
// error.
func (h *Hub) Query(ctx context.Context, selector string, timeout time.Duration) ([]transport.Entry, error) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()

	if !running {
		return nil, ErrNotStarted
	}

	entries, err := h.session.Query(ctx, selector, timeout)
	if err != nil {
		return nil, err
	}

	if entries == nil {
		entries = []transport.Entry{}
	}

	return entries, nil
}

func (h *Hub) handleDeviceInfo(topic string, payload []byte) error {
	var info models.DeviceInfo

	if err := codec.Unmarshal(payload, &info); err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("Dropping malformed device info")
		return nil
	}

	h.registry.Register(&info)

	return nil
}

func (h *Hub) handleHeartbeat(topic string, payload []byte) error {
	var hb models.Heartbeat

	if err := codec.Unmarshal(payload, &hb); err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("Dropping malformed heartbeat")
		return nil
	}

	h.registry.Heartbeat(hb.DeviceID, hb.UptimeMS, hb.Load, hb.MemoryFree)

	return nil
}

func (h *Hub) handleSensorReading(topic string, payload []byte) error {
	var reading models.SensorReading

	if err := codec.Unmarshal(payload, &reading); err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("Dropping malformed sensor reading")
		return nil
	}

	h.mu.RLock()
	handlers := make([]SensorFunc, len(h.sensorHandlers))
	copy(handlers, h.sensorHandlers)
	h.mu.RUnlock()

	for _, fn := range handlers {
		h.dispatchSensor(topic, &reading, fn)
	}

	h.logger.Debug().
		Str("device_id", reading.DeviceID).
		Str("sensor_type", string(reading.SensorType)).
		Msg("Sensor reading received")

	return nil
}

func (h *Hub) dispatchSensor(topic string, reading *models.SensorReading, fn SensorFunc) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error().
				Str("topic", topic).
				Interface("panic", rec).
				Msg("Sensor handler panicked")
		}
	}()

	fn(topic, reading)
}

func (h *Hub) handleCommandResponse(topic string, payload []byte) error {
	var resp models.CommandResponse

	if err := codec.Unmarshal(payload, &resp); err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("Dropping malformed command response")
		return nil
	}

	if !h.pending.resolve(&resp) {
		h.logger.Debug().
			Str("request_id", resp.RequestID.String()).
			Bool("success", resp.Success).
			Msg("Command response with no outstanding command")

		return nil
	}

	h.logger.Debug().
		Str("request_id", resp.RequestID.String()).
		Bool("success", resp.Success).
		Msg("Command response correlated")

	return nil
}
