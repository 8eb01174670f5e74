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

// Package models defines the device and message schemas shared across the
// herd fleet: registration records, presence status, heartbeats, sensor
// readings, and commands.
package models

import (
	"fmt"
	"time"
)

// DeviceType identifies the kind of device behind a device_id.
type DeviceType string

const (
	DeviceTypeRobotArm    DeviceType = "robot_arm"
	DeviceTypeMobileRobot DeviceType = "mobile_robot"
	DeviceTypeDrone       DeviceType = "drone"
	DeviceTypeSensorNode  DeviceType = "sensor_node"
	DeviceTypeActuator    DeviceType = "actuator"
	DeviceTypeGateway     DeviceType = "gateway"
	DeviceTypeCamera      DeviceType = "camera"
	DeviceTypeCustom      DeviceType = "custom"
)

// CapabilityType classifies a single device capability.
type CapabilityType string

const (
	CapabilitySensor        CapabilityType = "sensor"
	CapabilityActuator      CapabilityType = "actuator"
	CapabilityMotor         CapabilityType = "motor"
	CapabilityServo         CapabilityType = "servo"
	CapabilityCamera        CapabilityType = "camera"
	CapabilitySpeaker       CapabilityType = "speaker"
	CapabilityDisplay       CapabilityType = "display"
	CapabilityGPIO          CapabilityType = "gpio"
	CapabilityCommunication CapabilityType = "communication"
	CapabilityCustom        CapabilityType = "custom"
)

// ConnectionState is a device's presence state as tracked by the registry.
type ConnectionState string

const (
	ConnectionOnline     ConnectionState = "online"
	ConnectionOffline    ConnectionState = "offline"
	ConnectionConnecting ConnectionState = "connecting"
	ConnectionError      ConnectionState = "error"
	ConnectionUnknown    ConnectionState = "unknown"
)

// DeviceCapability describes a single capability of a device.
type DeviceCapability struct {
	Name           string                 `json:"name"`
	CapabilityType CapabilityType         `json:"capability_type"`
	Config         map[string]interface{} `json:"config,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// DeviceInfo is the registration record for a device. Re-registration
// replaces the record wholesale; fields are never merged.
type DeviceInfo struct {
	DeviceID        string                 `json:"device_id"`
	DeviceType      DeviceType             `json:"device_type"`
	Name            string                 `json:"name,omitempty"`
	Capabilities    []DeviceCapability     `json:"capabilities,omitempty"`
	FirmwareVersion string                 `json:"firmware_version"`
	HardwareVersion string                 `json:"hardware_version,omitempty"`
	Manufacturer    string                 `json:"manufacturer,omitempty"`
	Model           string                 `json:"model,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the registration record for decode-time sanity.
func (d *DeviceInfo) Validate() error {
	if d.DeviceID == "" {
		return fmt.Errorf("%w: device_id is empty", ErrInvalidMessage)
	}

	if d.DeviceType == "" {
		return fmt.Errorf("%w: device_type is empty", ErrInvalidMessage)
	}

	return nil
}

// DeviceStatus is the mutable presence and health state for a device. It is
// created lazily on first heartbeat or registration and mutated only by the
// registry under its lock.
type DeviceStatus struct {
	DeviceID       string                 `json:"device_id"`
	State          ConnectionState        `json:"status"`
	LastSeen       time.Time              `json:"last_seen,omitempty"`
	LastMessage    time.Time              `json:"last_message,omitempty"`
	UptimeMS       int64                  `json:"uptime_ms"`
	ErrorCount     int                    `json:"error_count"`
	WarningCount   int                    `json:"warning_count"`
	BatteryLevel   *int                   `json:"battery_level,omitempty"`
	SignalStrength *int                   `json:"signal_strength,omitempty"`
	IPAddress      string                 `json:"ip_address,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// IsOnline reports whether the device is currently online.
func (s *DeviceStatus) IsOnline() bool {
	return s.State == ConnectionOnline
}

// Validate checks optional gauge fields for range violations.
func (s *DeviceStatus) Validate() error {
	if s.DeviceID == "" {
		return fmt.Errorf("%w: device_id is empty", ErrInvalidMessage)
	}

	if s.BatteryLevel != nil && (*s.BatteryLevel < 0 || *s.BatteryLevel > 100) {
		return fmt.Errorf("%w: battery_level %d out of range [0,100]", ErrInvalidMessage, *s.BatteryLevel)
	}

	if s.SignalStrength != nil && (*s.SignalStrength < 0 || *s.SignalStrength > 100) {
		return fmt.Errorf("%w: signal_strength %d out of range [0,100]", ErrInvalidMessage, *s.SignalStrength)
	}

	return nil
}
