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

package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the MQTT-backed session.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	QoS      byte   `json:"qos"`
}

// MQTTSession is a Session backed by an MQTT broker. Publishes are retained
// so Query can collect the broker's latest value per matching topic.
type MQTTSession struct {
	client mqtt.Client
	config MQTTConfig
}

var _ Session = (*MQTTSession)(nil)

// NewMQTTSession connects to the broker.
func NewMQTTSession(config MQTTConfig) (*MQTTSession, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}

	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return &MQTTSession{client: client, config: config}, nil
}

// Publish sends a retained payload to a concrete topic.
func (s *MQTTSession) Publish(_ context.Context, topic string, payload []byte) error {
	if !s.client.IsConnected() {
		return ErrClosed
	}

	if err := validateConcreteTopic(topic); err != nil {
		return err
	}

	token := s.client.Publish(topic, s.config.QoS, true, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// Subscribe consumes a pattern using MQTT filter syntax.
func (s *MQTTSession) Subscribe(_ context.Context, pattern string, fn MessageFunc) (Subscription, error) {
	if !s.client.IsConnected() {
		return nil, ErrClosed
	}

	filter := mqttFilter(pattern)

	token := s.client.Subscribe(filter, s.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		fn(msg.Topic(), msg.Payload())
	})
	token.Wait()

	if token.Error() != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", pattern, token.Error())
	}

	return &mqttSubscription{client: s.client, filter: filter}, nil
}

// Query subscribes transiently to the selector and collects the retained
// messages the broker replays, returning whatever arrived when the timeout
// elapses. No replies is an empty result, not an error.
func (s *MQTTSession) Query(ctx context.Context, selector string, timeout time.Duration) ([]Entry, error) {
	if !s.client.IsConnected() {
		return nil, ErrClosed
	}

	var (
		mu      sync.Mutex
		entries = []Entry{}
	)

	filter := mqttFilter(selector)

	token := s.client.Subscribe(filter, s.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		mu.Lock()
		defer mu.Unlock()

		entries = append(entries, Entry{Topic: msg.Topic(), Payload: msg.Payload()})
	})
	token.Wait()

	if token.Error() != nil {
		return nil, fmt.Errorf("querying %s: %w", selector, token.Error())
	}

	defer s.client.Unsubscribe(filter)

	select {
	case <-ctx.Done():
	case <-time.After(timeout):
	}

	mu.Lock()
	defer mu.Unlock()

	out := make([]Entry, len(entries))
	copy(out, entries)

	return out, nil
}

// Close disconnects from the broker, allowing 250ms for in-flight work.
func (s *MQTTSession) Close() error {
	s.client.Disconnect(250)
	return nil
}

type mqttSubscription struct {
	client mqtt.Client
	filter string
}

func (m *mqttSubscription) Unsubscribe() error {
	token := m.client.Unsubscribe(m.filter)
	token.Wait()

	return token.Error()
}

// mqttFilter maps a /-delimited pattern to MQTT filter syntax:
// "*" -> "+", trailing "**" -> "#".
func mqttFilter(pattern string) string {
	segments := strings.Split(pattern, "/")

	for i, segment := range segments {
		switch segment {
		case "*":
			segments[i] = "+"
		case "**":
			segments[i] = "#"
		}
	}

	return strings.Join(segments, "/")
}
