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

// Package registry tracks device presence for the fleet: registration
// records, per-device status, heartbeat liveness, and online/offline
// transitions driven by a periodic expiry sweep.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/herdworks/herd/pkg/logger"
	"github.com/herdworks/herd/pkg/models"
)

// OnlineFunc is invoked when a device transitions to ONLINE. Listeners run
// outside the registry lock and may query the registry freely.
type OnlineFunc func(deviceID string, info *models.DeviceInfo)

// OfflineFunc is invoked when the sweep flips a device to OFFLINE.
type OfflineFunc func(deviceID string)

// Registry is the authoritative in-memory view of fleet presence. All map
// mutations happen under a single lock private to the registry; reads hand
// out clones so callers never alias internal state.
type Registry struct {
	mu       sync.RWMutex
	devices  map[string]*models.DeviceInfo
	statuses map[string]*models.DeviceStatus

	onOnline  []OnlineFunc
	onOffline []OfflineFunc

	config Config
	logger logger.Logger
	clock  func() time.Time

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// New creates a presence registry. A nil config uses defaults; an invalid
// config is rejected so a timeout at or below the sweep interval can never
// produce false offline flips from sweep jitter.
func New(config *Config, log logger.Logger) (*Registry, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Registry{
		devices:  make(map[string]*models.DeviceInfo),
		statuses: make(map[string]*models.DeviceStatus),
		config:   *config,
		logger:   log,
		clock:    time.Now,
	}, nil
}

// Start launches the expiry sweep. Safe to call once; Stop cancels it.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sweepDone != nil {
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	r.sweepCancel = cancel
	r.sweepDone = make(chan struct{})

	go r.sweepLoop(sweepCtx, r.sweepDone)

	r.logger.Info().
		Dur("heartbeat_timeout", r.config.HeartbeatTimeout).
		Dur("sweep_interval", r.config.SweepInterval).
		Msg("Presence registry started")
}

// Stop cancels the expiry sweep and waits for in-flight sweep work to
// finish. Idempotent.
func (r *Registry) Stop() {
	r.mu.Lock()
	cancel := r.sweepCancel
	done := r.sweepDone
	r.sweepCancel = nil
	r.sweepDone = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done

	r.logger.Info().Msg("Presence registry stopped")
}

// OnOnline registers a listener for online transitions.
func (r *Registry) OnOnline(fn OnlineFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onOnline = append(r.onOnline, fn)
}

// OnOffline registers a listener for offline transitions.
func (r *Registry) OnOffline(fn OfflineFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onOffline = append(r.onOffline, fn)
}

// Register upserts a device's registration record and marks it ONLINE.
// Re-registration replaces the record wholesale. The online notification
// fires exactly once per transition, after the lock is released.
func (r *Registry) Register(info *models.DeviceInfo) {
	if info == nil || info.DeviceID == "" {
		return
	}

	deviceID := info.DeviceID
	now := r.clock()

	r.mu.Lock()

	_, known := r.devices[deviceID]
	status, hasStatus := r.statuses[deviceID]
	wasOnline := hasStatus && status.IsOnline()

	r.devices[deviceID] = cloneInfo(info)

	if !hasStatus {
		status = &models.DeviceStatus{DeviceID: deviceID}
		r.statuses[deviceID] = status
	}

	status.State = models.ConnectionOnline
	status.LastSeen = now
	status.LastMessage = now

	listeners := r.onlineListenersLocked()
	r.mu.Unlock()

	if !known || !wasOnline {
		r.logger.Info().
			Str("device_id", deviceID).
			Str("device_type", string(info.DeviceType)).
			Bool("is_new", !known).
			Msg("Device online")

		r.notifyOnline(listeners, deviceID, cloneInfo(info))
	}
}

// Heartbeat records a liveness message. A heartbeat for an unknown device
// creates its status lazily; a heartbeat for an OFFLINE device is a
// reconnect and fires the online notification when a registration record
// exists for it. Arrival time, not the message timestamp, refreshes
// last_seen.
func (r *Registry) Heartbeat(deviceID string, uptimeMS int64, load float64, memoryFree *int64) {
	if deviceID == "" {
		return
	}

	now := r.clock()

	r.mu.Lock()

	status, ok := r.statuses[deviceID]
	if !ok {
		status = &models.DeviceStatus{DeviceID: deviceID}
		r.statuses[deviceID] = status
	}

	wasOnline := status.IsOnline()

	status.State = models.ConnectionOnline
	status.LastSeen = now
	status.LastMessage = now
	status.UptimeMS = uptimeMS

	if memoryFree != nil || load > 0 {
		if status.Extra == nil {
			status.Extra = make(map[string]interface{}, 2)
		}

		if memoryFree != nil {
			status.Extra["memory_free"] = *memoryFree
		}

		if load > 0 {
			status.Extra["load"] = load
		}
	}

	info := r.devices[deviceID]
	if info != nil {
		info = cloneInfo(info)
	}

	listeners := r.onlineListenersLocked()
	r.mu.Unlock()

	if !wasOnline && info != nil {
		r.logger.Info().Str("device_id", deviceID).Msg("Device reconnected")
		r.notifyOnline(listeners, deviceID, info)
	}
}

// Unregister removes a device's registration and status entirely. Explicit
// unregistration is distinct from an offline timeout and fires no
// notification.
func (r *Registry) Unregister(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, known := r.devices[deviceID]
	if !known {
		return false
	}

	delete(r.devices, deviceID)
	delete(r.statuses, deviceID)

	r.logger.Info().Str("device_id", deviceID).Msg("Device unregistered")

	return true
}

// GetDevice returns a copy of the registration record for a device.
func (r *Registry) GetDevice(deviceID string) (*models.DeviceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.devices[deviceID]
	if !ok {
		return nil, false
	}

	return cloneInfo(info), true
}

// GetStatus returns a copy of the presence status for a device.
func (r *Registry) GetStatus(deviceID string) (*models.DeviceStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.statuses[deviceID]
	if !ok {
		return nil, false
	}

	return cloneStatus(status), true
}

// ListDevices returns copies of all registration records.
func (r *Registry) ListDevices() []*models.DeviceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.DeviceInfo, 0, len(r.devices))
	for _, info := range r.devices {
		out = append(out, cloneInfo(info))
	}

	return out
}

// ListStatuses returns copies of all presence statuses, including statuses
// for devices that have heartbeated but never registered.
func (r *Registry) ListStatuses() []*models.DeviceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.DeviceStatus, 0, len(r.statuses))
	for _, status := range r.statuses {
		out = append(out, cloneStatus(status))
	}

	return out
}

// ListOnlineDevices returns registration records for devices that are both
// ONLINE and registered. A status without a registration record is not a
// fleet member.
func (r *Registry) ListOnlineDevices() []*models.DeviceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.DeviceInfo, 0, len(r.devices))

	for deviceID, status := range r.statuses {
		if !status.IsOnline() {
			continue
		}

		info, ok := r.devices[deviceID]
		if !ok {
			continue
		}

		out = append(out, cloneInfo(info))
	}

	return out
}

func (r *Registry) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep flips every ONLINE device whose last_seen is older than the
// heartbeat timeout to OFFLINE. Each flip is atomic under the lock;
// notifications dispatch after the lock is released.
func (r *Registry) sweep() {
	now := r.clock()

	r.mu.Lock()

	var expired []string

	for deviceID, status := range r.statuses {
		if !status.IsOnline() {
			continue
		}

		if now.Sub(status.LastSeen) > r.config.HeartbeatTimeout {
			status.State = models.ConnectionOffline
			expired = append(expired, deviceID)
		}
	}

	listeners := r.offlineListenersLocked()
	r.mu.Unlock()

	for _, deviceID := range expired {
		r.logger.Warn().Str("device_id", deviceID).Msg("Device offline")
		r.notifyOffline(listeners, deviceID)
	}
}

func (r *Registry) onlineListenersLocked() []OnlineFunc {
	out := make([]OnlineFunc, len(r.onOnline))
	copy(out, r.onOnline)

	return out
}

func (r *Registry) offlineListenersLocked() []OfflineFunc {
	out := make([]OfflineFunc, len(r.onOffline))
	copy(out, r.onOffline)

	return out
}

// notifyOnline runs each listener with panic isolation so one listener's
// failure never hides the event from the rest.
func (r *Registry) notifyOnline(listeners []OnlineFunc, deviceID string, info *models.DeviceInfo) {
	for _, fn := range listeners {
		r.safeCall(deviceID, "online", func() { fn(deviceID, info) })
	}
}

func (r *Registry) notifyOffline(listeners []OfflineFunc, deviceID string) {
	for _, fn := range listeners {
		r.safeCall(deviceID, "offline", func() { fn(deviceID) })
	}
}

func (r *Registry) safeCall(deviceID, event string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("device_id", deviceID).
				Str("event", event).
				Interface("panic", rec).
				Msg("Presence listener failed")
		}
	}()

	fn()
}
