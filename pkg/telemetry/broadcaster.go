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

// Package telemetry fans the inbound sensor stream out to concurrent
// per-device and global observers. Delivery is bounded send-or-drop: a slow
// or dead observer loses telemetry and is eventually removed rather than
// back-pressuring the publisher.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/herdworks/herd/pkg/logger"
	"github.com/herdworks/herd/pkg/models"
)

const (
	// EventReading carries a sensor reading.
	EventReading = "reading"

	// EventKeepalive marks a live but idle stream.
	EventKeepalive = "keepalive"
)

// Event is one item delivered to an observer: a reading, or a keepalive
// marker distinguishable from real telemetry.
type Event struct {
	Type    string                `json:"type"`
	Reading *models.SensorReading `json:"reading,omitempty"`
}

// Observer is a handle to one telemetry stream. Consume Events() until it
// closes; the channel closes when the observer is unsubscribed or evicted.
type Observer struct {
	id       uint64
	deviceID string
	ch       chan Event
}

// Events returns the observer's delivery channel.
func (o *Observer) Events() <-chan Event { return o.ch }

// DeviceID returns the device filter, or "" for a global observer.
func (o *Observer) DeviceID() string { return o.deviceID }

// Config holds the broadcaster's delivery policy.
type Config struct {
	// BufferSize bounds each observer's delivery channel.
	BufferSize int `json:"buffer_size"`

	// KeepaliveInterval is the idle window after which an observer that
	// has seen no traffic receives a keepalive event.
	KeepaliveInterval time.Duration `json:"keepalive_interval"`
}

// DefaultConfig returns the stock delivery policy.
func DefaultConfig() *Config {
	return &Config{
		BufferSize:        16,
		KeepaliveInterval: 30 * time.Second,
	}
}

// Stats is a snapshot of broadcast activity.
type Stats struct {
	TotalMessages     uint64   `json:"total_messages"`
	MessagesPerSecond float64  `json:"messages_per_second"`
	ActiveStreams     int      `json:"active_streams"`
	DevicesStreaming  []string `json:"devices_streaming"`
}

// Broadcaster fans sensor readings out to observers.
type Broadcaster struct {
	config Config
	logger logger.Logger
	clock  func() time.Time

	mu        sync.Mutex
	nextID    uint64
	byDevice  map[string]map[uint64]*Observer
	global    map[uint64]*Observer
	lastEvent map[uint64]time.Time

	total      uint64
	statsSince time.Time

	keepaliveCancel context.CancelFunc
	keepaliveDone   chan struct{}
}

// New creates a broadcaster. A nil config uses defaults.
func New(config *Config, log logger.Logger) *Broadcaster {
	if config == nil {
		config = DefaultConfig()
	}

	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}

	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = DefaultConfig().KeepaliveInterval
	}

	return &Broadcaster{
		config:    *config,
		logger:    log,
		clock:     time.Now,
		byDevice:  make(map[string]map[uint64]*Observer),
		global:    make(map[uint64]*Observer),
		lastEvent: make(map[uint64]time.Time),
	}
}

// Start launches the keepalive loop. Optional; a broadcaster without it
// still delivers readings.
func (b *Broadcaster) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.keepaliveDone != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.keepaliveCancel = cancel
	b.keepaliveDone = make(chan struct{})
	b.statsSince = b.clock()

	go b.keepaliveLoop(loopCtx, b.keepaliveDone)
}

// Stop cancels the keepalive loop. Idempotent.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	cancel := b.keepaliveCancel
	done := b.keepaliveDone
	b.keepaliveCancel = nil
	b.keepaliveDone = nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// SubscribeDevice registers an observer for one device's readings.
func (b *Broadcaster) SubscribeDevice(deviceID string) *Observer {
	b.mu.Lock()
	defer b.mu.Unlock()

	obs := b.newObserverLocked(deviceID)

	bucket, ok := b.byDevice[deviceID]
	if !ok {
		bucket = make(map[uint64]*Observer)
		b.byDevice[deviceID] = bucket
	}

	bucket[obs.id] = obs

	b.logger.Info().Str("device_id", deviceID).Msg("Telemetry observer attached")

	return obs
}

// SubscribeAll registers an observer for every device's readings.
func (b *Broadcaster) SubscribeAll() *Observer {
	b.mu.Lock()
	defer b.mu.Unlock()

	obs := b.newObserverLocked("")
	b.global[obs.id] = obs

	b.logger.Info().Msg("Global telemetry observer attached")

	return obs
}

func (b *Broadcaster) newObserverLocked(deviceID string) *Observer {
	b.nextID++

	obs := &Observer{
		id:       b.nextID,
		deviceID: deviceID,
		ch:       make(chan Event, b.config.BufferSize),
	}

	b.lastEvent[obs.id] = b.clock()

	return obs
}

// Unsubscribe detaches an observer and closes its channel. Idempotent; an
// unknown handle is a no-op.
func (b *Broadcaster) Unsubscribe(obs *Observer) {
	if obs == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.removeLocked(obs)
}

func (b *Broadcaster) removeLocked(obs *Observer) {
	if obs.deviceID != "" {
		bucket, ok := b.byDevice[obs.deviceID]
		if !ok {
			return
		}

		if _, ok := bucket[obs.id]; !ok {
			return
		}

		delete(bucket, obs.id)

		if len(bucket) == 0 {
			delete(b.byDevice, obs.deviceID)
		}
	} else {
		if _, ok := b.global[obs.id]; !ok {
			return
		}

		delete(b.global, obs.id)
	}

	delete(b.lastEvent, obs.id)
	close(obs.ch)
}

// PublishReading delivers a reading to every observer for its device and
// every global observer. Delivery to one observer never blocks or fails
// delivery to another; an observer whose buffer is full is evicted.
func (b *Broadcaster) PublishReading(reading *models.SensorReading) {
	if reading == nil {
		return
	}

	event := Event{Type: EventReading, Reading: reading}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++

	for _, obs := range b.byDevice[reading.DeviceID] {
		b.sendLocked(obs, event)
	}

	for _, obs := range b.global {
		b.sendLocked(obs, event)
	}
}

// sendLocked performs a non-blocking delivery and evicts the observer when
// its buffer is full.
func (b *Broadcaster) sendLocked(obs *Observer, event Event) {
	select {
	case obs.ch <- event:
		b.lastEvent[obs.id] = b.clock()
	default:
		b.logger.Warn().
			Str("device_id", obs.deviceID).
			Uint64("observer", obs.id).
			Msg("Observer buffer full, dropping stream")

		b.removeLocked(obs)
	}
}

// MarkActivity resets an observer's idle window, e.g. when the consumer
// sent an inbound control message.
func (b *Broadcaster) MarkActivity(obs *Observer) {
	if obs == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.lastEvent[obs.id]; ok {
		b.lastEvent[obs.id] = b.clock()
	}
}

// Stats returns a snapshot of broadcast activity.
func (b *Broadcaster) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	active := len(b.global)
	devices := make([]string, 0, len(b.byDevice))

	for deviceID, bucket := range b.byDevice {
		active += len(bucket)
		devices = append(devices, deviceID)
	}

	var rate float64

	if !b.statsSince.IsZero() {
		if elapsed := b.clock().Sub(b.statsSince).Seconds(); elapsed > 0 {
			rate = float64(b.total) / elapsed
		}
	}

	return Stats{
		TotalMessages:     b.total,
		MessagesPerSecond: rate,
		ActiveStreams:     active,
		DevicesStreaming:  devices,
	}
}

func (b *Broadcaster) keepaliveLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.config.KeepaliveInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sendKeepalives()
		}
	}
}

// sendKeepalives delivers a keepalive marker to every observer that has
// seen no traffic within the idle window, so consumers can tell a quiet
// stream from a dead one.
func (b *Broadcaster) sendKeepalives() {
	now := b.clock()
	event := Event{Type: EventKeepalive}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, bucket := range b.byDevice {
		for _, obs := range bucket {
			if now.Sub(b.lastEvent[obs.id]) >= b.config.KeepaliveInterval {
				b.sendLocked(obs, event)
			}
		}
	}

	for _, obs := range b.global {
		if now.Sub(b.lastEvent[obs.id]) >= b.config.KeepaliveInterval {
			b.sendLocked(obs, event)
		}
	}
}
