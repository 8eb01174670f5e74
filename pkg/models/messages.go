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

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SensorType identifies the kind of sensor behind a reading.
type SensorType string

const (
	SensorTemperature SensorType = "temperature"
	SensorHumidity    SensorType = "humidity"
	SensorPressure    SensorType = "pressure"
	SensorDistance    SensorType = "distance"
	SensorLight       SensorType = "light"
	SensorIMU6DOF     SensorType = "imu_6dof"
	SensorIMU9DOF     SensorType = "imu_9dof"
	SensorGPS         SensorType = "gps"
	SensorCamera      SensorType = "camera"
	SensorLidar       SensorType = "lidar"
	SensorEncoder     SensorType = "encoder"
	SensorBattery     SensorType = "battery"
	SensorCustom      SensorType = "custom"
)

// Heartbeat is the periodic liveness message from a device. Sequence numbers
// increase monotonically per device; the registry uses arrival time, not the
// embedded timestamp, to drive expiry.
type Heartbeat struct {
	DeviceID   string    `json:"device_id"`
	Sequence   uint64    `json:"sequence"`
	UptimeMS   int64     `json:"uptime_ms"`
	Load       float64   `json:"load"`
	MemoryFree *int64    `json:"memory_free,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks heartbeat fields for decode-time sanity.
func (h *Heartbeat) Validate() error {
	if h.DeviceID == "" {
		return fmt.Errorf("%w: device_id is empty", ErrInvalidMessage)
	}

	if h.UptimeMS < 0 {
		return fmt.Errorf("%w: uptime_ms %d is negative", ErrInvalidMessage, h.UptimeMS)
	}

	if h.Load < 0 || h.Load > 1 {
		return fmt.Errorf("%w: load %v out of range [0,1]", ErrInvalidMessage, h.Load)
	}

	return nil
}

// SensorReading is a single telemetry sample from a device. Quality is a
// pointer so an explicit zero survives decoding; an omitted quality gets
// the default of 1.0 during Validate.
type SensorReading struct {
	DeviceID   string      `json:"device_id"`
	SensorType SensorType  `json:"sensor_type"`
	SensorID   string      `json:"sensor_id,omitempty"`
	Value      SensorValue `json:"value"`
	Unit       string      `json:"unit"`
	Quality    *float64    `json:"quality,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Validate checks reading fields for decode-time sanity.
func (r *SensorReading) Validate() error {
	if r.DeviceID == "" {
		return fmt.Errorf("%w: device_id is empty", ErrInvalidMessage)
	}

	if r.SensorType == "" {
		return fmt.Errorf("%w: sensor_type is empty", ErrInvalidMessage)
	}

	if r.Quality == nil {
		q := 1.0
		r.Quality = &q
	}

	if *r.Quality < 0 || *r.Quality > 1 {
		return fmt.Errorf("%w: quality %v out of range [0,1]", ErrInvalidMessage, *r.Quality)
	}

	if r.Value.Kind() == ValueInvalid {
		return fmt.Errorf("%w: reading has no value", ErrInvalidValue)
	}

	return nil
}

// Command asks a device to execute an action. RequestID correlates the
// eventual CommandResponse and is unique for the lifetime of an outstanding
// command.
type Command struct {
	DeviceID  string                 `json:"device_id"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	RequestID uuid.UUID              `json:"request_id"`
	Priority  int                    `json:"priority"`
	TimeoutMS int64                  `json:"timeout_ms"`
	Timestamp time.Time              `json:"timestamp"`
}

// Validate checks command fields for decode-time sanity.
func (c *Command) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("%w: device_id is empty", ErrInvalidMessage)
	}

	if c.Action == "" {
		return fmt.Errorf("%w: action is empty", ErrInvalidMessage)
	}

	if c.Priority < 0 || c.Priority > 10 {
		return fmt.Errorf("%w: priority %d out of range [0,10]", ErrInvalidMessage, c.Priority)
	}

	if c.TimeoutMS < 0 {
		return fmt.Errorf("%w: timeout_ms %d is negative", ErrInvalidMessage, c.TimeoutMS)
	}

	return nil
}

// Timeout returns the command timeout as a duration, or the given default
// when the command does not carry one.
func (c *Command) Timeout(def time.Duration) time.Duration {
	if c.TimeoutMS <= 0 {
		return def
	}

	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// CommandResponse reports the outcome of a Command.
type CommandResponse struct {
	RequestID       uuid.UUID              `json:"request_id"`
	Success         bool                   `json:"success"`
	Result          map[string]interface{} `json:"result,omitempty"`
	Error           string                 `json:"error,omitempty"`
	ExecutionTimeMS *int64                 `json:"execution_time_ms,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}

// Validate checks response fields for decode-time sanity.
func (r *CommandResponse) Validate() error {
	if r.RequestID == uuid.Nil {
		return fmt.Errorf("%w: request_id is empty", ErrInvalidMessage)
	}

	return nil
}

// Pose2D is a 2D pose sample for ground robots.
type Pose2D struct {
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Theta      float64   `json:"theta"`
	FrameID    string    `json:"frame_id"`
	Covariance []float64 `json:"covariance,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks the pose for decode-time sanity.
func (p *Pose2D) Validate() error {
	if p.Theta < -3.14159 || p.Theta > 3.14159 {
		return fmt.Errorf("%w: theta %v out of range [-pi,pi]", ErrInvalidMessage, p.Theta)
	}

	if p.FrameID == "" {
		p.FrameID = "world"
	}

	return nil
}

// Twist2D is a velocity command for differential drive robots.
type Twist2D struct {
	LinearVel  float64   `json:"linear_vel"`
	AngularVel float64   `json:"angular_vel"`
	DeviceID   string    `json:"device_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
