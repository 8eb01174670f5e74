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

package hub

import "strings"

// DefaultTopicPrefix namespaces all fleet topics.
const DefaultTopicPrefix = "herd"

// Topics builds the fleet's topic names under a configurable prefix.
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder; an empty prefix uses the default.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	return Topics{prefix: strings.Trim(prefix, "/")}
}

// Prefix returns the configured topic prefix.
func (t Topics) Prefix() string { return t.prefix }

// DeviceInfo is the registration topic for one device.
func (t Topics) DeviceInfo(deviceID string) string {
	return t.prefix + "/devices/" + deviceID + "/info"
}

// Heartbeat is the liveness topic for one device.
func (t Topics) Heartbeat(deviceID string) string {
	return t.prefix + "/devices/" + deviceID + "/heartbeat"
}

// Sensor is the telemetry topic for one sensor path on a device, e.g.
// Sensor("dev1", "imu", "accel") -> "{prefix}/sensors/dev1/imu/accel".
func (t Topics) Sensor(deviceID string, path ...string) string {
	topic := t.prefix + "/sensors/" + deviceID
	if len(path) > 0 {
		topic += "/" + strings.Join(path, "/")
	}

	return topic
}

// Command is the inbound command topic for one device.
func (t Topics) Command(deviceID string) string {
	return t.prefix + "/commands/" + deviceID
}

// CommandResponse is the response topic for one device.
func (t Topics) CommandResponse(deviceID string) string {
	return t.prefix + "/commands/" + deviceID + "/response"
}

// DeviceInfoPattern matches every device's registration topic.
func (t Topics) DeviceInfoPattern() string {
	return t.prefix + "/devices/*/info"
}

// HeartbeatPattern matches every device's liveness topic.
func (t Topics) HeartbeatPattern() string {
	return t.prefix + "/devices/*/heartbeat"
}

// SensorPattern matches every telemetry topic.
func (t Topics) SensorPattern() string {
	return t.prefix + "/sensors/**"
}

// CommandResponsePattern matches every device's response topic.
func (t Topics) CommandResponsePattern() string {
	return t.prefix + "/commands/*/response"
}
