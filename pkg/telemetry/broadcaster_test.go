package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/herdworks/herd/pkg/codec"
	"github.com/herdworks/herd/pkg/logger"
	"github.com/herdworks/herd/pkg/models"
)

// testContext stands in for testing.T.Context, which needs Go 1.24+.
func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return ctx
}

func newTestBroadcaster(config *Config) *Broadcaster {
	return New(config, logger.NewTestLogger())
}

func reading(deviceID string) *models.SensorReading {
	quality := 1.0

	return &models.SensorReading{
		DeviceID:   deviceID,
		SensorType: models.SensorTemperature,
		Value:      models.Scalar(21.5),
		Unit:       "C",
		Quality:    &quality,
		Timestamp:  codec.Now(),
	}
}

func drain(obs *Observer) []Event {
	var events []Event

	for {
		select {
		case event, ok := <-obs.Events():
			if !ok {
				return events
			}

			events = append(events, event)
		default:
			return events
		}
	}
}

func TestFanoutDeliversOneCopyPerObserver(t *testing.T) {
	b := newTestBroadcaster(nil)

	devA := b.SubscribeDevice("dev-A")
	devB := b.SubscribeDevice("dev-B")
	all := b.SubscribeAll()

	b.PublishReading(reading("dev-A"))

	if events := drain(devA); len(events) != 1 || events[0].Reading.DeviceID != "dev-A" {
		t.Fatalf("expected one copy for dev-A observer, got %v", events)
	}

	if events := drain(all); len(events) != 1 {
		t.Fatalf("expected one copy for global observer, got %v", events)
	}

	if events := drain(devB); len(events) != 0 {
		t.Fatalf("expected nothing for dev-B observer, got %v", events)
	}
}

func TestFullObserverIsEvictedNotFatal(t *testing.T) {
	b := newTestBroadcaster(&Config{BufferSize: 1, KeepaliveInterval: time.Minute})

	slow := b.SubscribeDevice("dev-A")
	healthy := b.SubscribeDevice("dev-A")

	// healthy keeps consuming between publishes; slow never drains, so the
	// second publish overflows its one-slot buffer. The publish must still
	// return normally and keep delivering to the healthy observer.
	b.PublishReading(reading("dev-A"))

	if events := drain(healthy); len(events) != 1 {
		t.Fatalf("expected first reading for healthy observer, got %d", len(events))
	}

	b.PublishReading(reading("dev-A"))

	if events := drain(healthy); len(events) != 1 {
		t.Fatalf("expected second reading for healthy observer, got %d", len(events))
	}

	// slow kept its first event and was evicted: channel closed.
	got := drain(slow)
	if len(got) != 1 {
		t.Fatalf("expected one buffered event for slow observer, got %d", len(got))
	}

	if _, ok := <-slow.Events(); ok {
		t.Fatalf("expected slow observer channel closed after eviction")
	}

	// Further publishes must not see the evicted observer.
	b.PublishReading(reading("dev-A"))

	if stats := b.Stats(); stats.ActiveStreams != 1 {
		t.Fatalf("expected one active stream, got %d", stats.ActiveStreams)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := newTestBroadcaster(nil)

	obs := b.SubscribeDevice("dev-A")

	b.Unsubscribe(obs)
	b.Unsubscribe(obs) // unknown handle now, must be a no-op
	b.Unsubscribe(nil)

	b.PublishReading(reading("dev-A"))
}

func TestKeepaliveOnlyWhenIdle(t *testing.T) {
	b := newTestBroadcaster(&Config{BufferSize: 4, KeepaliveInterval: 30 * time.Second})

	clock := time.Unix(1700000000, 0).UTC()
	b.clock = func() time.Time { return clock }

	idle := b.SubscribeDevice("dev-B")
	busy := b.SubscribeDevice("dev-A")

	clock = clock.Add(10 * time.Second)
	b.PublishReading(reading("dev-A"))

	clock = clock.Add(25 * time.Second)
	b.sendKeepalives()

	events := drain(idle)
	if len(events) != 1 {
		t.Fatalf("expected a keepalive for the idle observer, got %v", events)
	}

	if events[0].Type != EventKeepalive || events[0].Reading != nil {
		t.Fatalf("expected keepalive marker distinguishable from telemetry, got %+v", events[0])
	}

	// busy saw a reading 25s ago, inside the idle window.
	if events := drain(busy); len(events) != 1 || events[0].Type != EventReading {
		t.Fatalf("expected only the reading for busy observer, got %v", events)
	}
}

func TestMarkActivityResetsIdleWindow(t *testing.T) {
	b := newTestBroadcaster(&Config{BufferSize: 4, KeepaliveInterval: 30 * time.Second})

	clock := time.Unix(1700000000, 0).UTC()
	b.clock = func() time.Time { return clock }

	obs := b.SubscribeAll()

	clock = clock.Add(29 * time.Second)
	b.MarkActivity(obs)

	clock = clock.Add(20 * time.Second)
	b.sendKeepalives()

	if events := drain(obs); len(events) != 0 {
		t.Fatalf("expected no keepalive after recent client activity, got %v", events)
	}
}

func TestStats(t *testing.T) {
	b := newTestBroadcaster(nil)

	b.SubscribeDevice("dev-A")
	b.SubscribeAll()

	b.PublishReading(reading("dev-A"))
	b.PublishReading(reading("dev-B"))

	stats := b.Stats()

	if stats.TotalMessages != 2 {
		t.Fatalf("expected 2 total messages, got %d", stats.TotalMessages)
	}

	if stats.ActiveStreams != 2 {
		t.Fatalf("expected 2 active streams, got %d", stats.ActiveStreams)
	}

	if len(stats.DevicesStreaming) != 1 || stats.DevicesStreaming[0] != "dev-A" {
		t.Fatalf("expected dev-A streaming, got %v", stats.DevicesStreaming)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	b := newTestBroadcaster(nil)

	b.Start(testContext(t))
	b.Start(testContext(t))
	b.Stop()
	b.Stop()
}
