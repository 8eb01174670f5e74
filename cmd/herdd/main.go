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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/herdworks/herd/pkg/hub"
	"github.com/herdworks/herd/pkg/logger"
	"github.com/herdworks/herd/pkg/models"
	"github.com/herdworks/herd/pkg/registry"
	"github.com/herdworks/herd/pkg/telemetry"
	"github.com/herdworks/herd/pkg/transport"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var (
		transportKind = flag.String("transport", "nats", "Transport backend: nats or mqtt")
		natsURL       = flag.String("nats-url", "nats://127.0.0.1:4222", "NATS server URL")
		mqttBroker    = flag.String("mqtt-broker", "tcp://127.0.0.1:1883", "MQTT broker URL")
		topicPrefix   = flag.String("prefix", hub.DefaultTopicPrefix, "Topic prefix for fleet traffic")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	herdLogger, err := logger.New(nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	session, err := openSession(ctx, *transportKind, *natsURL, *mqttBroker, *topicPrefix)
	if err != nil {
		return err
	}
	defer session.Close()

	reg, err := registry.New(nil, herdLogger)
	if err != nil {
		return err
	}

	hubConfig := hub.DefaultConfig()
	hubConfig.TopicPrefix = *topicPrefix

	messageHub := hub.New(session, reg, hubConfig, herdLogger)
	broadcaster := telemetry.New(nil, herdLogger)

	messageHub.OnSensorReading(func(_ string, reading *models.SensorReading) {
		broadcaster.PublishReading(reading)
	})

	reg.Start(ctx)
	defer reg.Stop()

	broadcaster.Start(ctx)
	defer broadcaster.Stop()

	if err := messageHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}
	defer messageHub.Stop()

	herdLogger.Info().Str("transport", *transportKind).Msg("herdd running")

	<-ctx.Done()

	herdLogger.Info().Msg("Shutting down")

	return nil
}

func openSession(ctx context.Context, kind, natsURL, mqttBroker, prefix string) (transport.Session, error) {
	switch kind {
	case "nats":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		return transport.NewNATSSession(connectCtx, transport.NATSConfig{
			URL:           natsURL,
			Name:          "herdd",
			QueryStream:   "HERD",
			QuerySubjects: []string{prefix + "/**"},
		})
	case "mqtt":
		return transport.NewMQTTSession(transport.MQTTConfig{
			Broker:   mqttBroker,
			ClientID: "herdd",
			QoS:      1,
		})
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}
