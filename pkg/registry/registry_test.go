package registry

import (
	"context"
	"sync"
	"testing"
	"time"

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

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T) (*Registry, *fakeClock) {
	t.Helper()

	reg, err := New(nil, logger.NewTestLogger())
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}

	clock := newFakeClock()
	reg.clock = clock.Now

	return reg, clock
}

func testInfo(deviceID string) *models.DeviceInfo {
	return &models.DeviceInfo{
		DeviceID:        deviceID,
		DeviceType:      models.DeviceTypeSensorNode,
		Name:            "bench unit",
		FirmwareVersion: "1.2.0",
		Capabilities: []models.DeviceCapability{
			{Name: "thermo", CapabilityType: models.CapabilitySensor},
		},
		Metadata: map[string]interface{}{"site": "lab"},
	}
}

func TestRegisterFiresOnlineOnce(t *testing.T) {
	reg, _ := newTestRegistry(t)

	var events []string

	reg.OnOnline(func(deviceID string, _ *models.DeviceInfo) {
		events = append(events, deviceID)
	})

	reg.Register(testInfo("dev-A"))
	reg.Register(testInfo("dev-A")) // already ONLINE, no extra event

	if len(events) != 1 || events[0] != "dev-A" {
		t.Fatalf("expected exactly one online event for dev-A, got %v", events)
	}

	status, ok := reg.GetStatus("dev-A")
	if !ok || !status.IsOnline() {
		t.Fatalf("expected dev-A to be online, got %#v", status)
	}
}

func TestRegisterReplacesInfoWholesale(t *testing.T) {
	reg, _ := newTestRegistry(t)

	reg.Register(testInfo("dev-A"))

	replacement := &models.DeviceInfo{
		DeviceID:        "dev-A",
		DeviceType:      models.DeviceTypeDrone,
		FirmwareVersion: "2.0.0",
	}
	reg.Register(replacement)

	got, ok := reg.GetDevice("dev-A")
	if !ok {
		t.Fatalf("expected dev-A to be registered")
	}

	if got.DeviceType != models.DeviceTypeDrone {
		t.Fatalf("expected replaced device_type, got %q", got.DeviceType)
	}

	if got.Name != "" || len(got.Capabilities) != 0 {
		t.Fatalf("expected no merge of prior fields, got %#v", got)
	}
}

func TestReadsReturnClones(t *testing.T) {
	reg, _ := newTestRegistry(t)

	reg.Register(testInfo("dev-A"))

	got, _ := reg.GetDevice("dev-A")
	got.Metadata["site"] = "mutated"
	got.Capabilities[0].Name = "mutated"

	original, _ := reg.GetDevice("dev-A")
	if original.Metadata["site"] != "lab" {
		t.Fatalf("expected registry state unaffected by caller mutation, got %v", original.Metadata)
	}

	if original.Capabilities[0].Name != "thermo" {
		t.Fatalf("expected capability unchanged, got %q", original.Capabilities[0].Name)
	}
}

func TestHeartbeatWithoutRegistration(t *testing.T) {
	reg, _ := newTestRegistry(t)

	var onlineEvents int

	reg.OnOnline(func(string, *models.DeviceInfo) { onlineEvents++ })

	memFree := int64(32768)
	reg.Heartbeat("ghost", 1000, 0.25, &memFree)

	status, ok := reg.GetStatus("ghost")
	if !ok {
		t.Fatalf("expected status created lazily on heartbeat")
	}

	if !status.IsOnline() {
		t.Fatalf("expected lazily created status to be online")
	}

	if status.Extra["memory_free"] != memFree || status.Extra["load"] != 0.25 {
		t.Fatalf("expected heartbeat fields recorded, got %v", status.Extra)
	}

	// A status with no registration record is not a fleet member and must
	// not fire a user-facing online event.
	if onlineEvents != 0 {
		t.Fatalf("expected no online event for unregistered device, got %d", onlineEvents)
	}

	if online := reg.ListOnlineDevices(); len(online) != 0 {
		t.Fatalf("expected no online fleet members, got %d", len(online))
	}
}

func TestSweepFlipsExpiredExactlyOnce(t *testing.T) {
	reg, clock := newTestRegistry(t)

	var offline []string

	reg.OnOffline(func(deviceID string) { offline = append(offline, deviceID) })

	reg.Register(testInfo("dev-A"))

	clock.Advance(DefaultHeartbeatTimeout + DefaultSweepInterval)
	reg.sweep()
	reg.sweep() // already OFFLINE, no second notification

	if len(offline) != 1 || offline[0] != "dev-A" {
		t.Fatalf("expected exactly one offline event for dev-A, got %v", offline)
	}

	status, _ := reg.GetStatus("dev-A")
	if status.IsOnline() {
		t.Fatalf("expected dev-A offline after sweep")
	}

	if online := reg.ListOnlineDevices(); len(online) != 0 {
		t.Fatalf("expected list_online_devices to exclude dev-A, got %d entries", len(online))
	}
}

func TestSweepOnlineMatchesTimeoutWindow(t *testing.T) {
	reg, clock := newTestRegistry(t)

	reg.Register(testInfo("stale"))

	clock.Advance(DefaultHeartbeatTimeout - time.Second)
	reg.Register(testInfo("fresh"))
	clock.Advance(DefaultHeartbeatTimeout - time.Second)

	// stale is now past the timeout, fresh is within it.
	reg.sweep()

	now := clock.Now()

	for _, deviceID := range []string{"fresh", "stale"} {
		status, _ := reg.GetStatus(deviceID)

		expected := now.Sub(status.LastSeen) <= DefaultHeartbeatTimeout
		if status.IsOnline() != expected {
			t.Fatalf("device %s: online=%v, want %v", deviceID, status.IsOnline(), expected)
		}
	}
}

func TestHeartbeatReconnectFiresOnline(t *testing.T) {
	reg, clock := newTestRegistry(t)

	var online []string

	reg.OnOnline(func(deviceID string, _ *models.DeviceInfo) { online = append(online, deviceID) })

	reg.Register(testInfo("dev-A"))

	clock.Advance(DefaultHeartbeatTimeout * 2)
	reg.sweep()

	reg.Heartbeat("dev-A", 5000, 0.1, nil)

	if len(online) != 2 {
		t.Fatalf("expected initial online plus one reconnect event, got %v", online)
	}

	status, _ := reg.GetStatus("dev-A")
	if !status.IsOnline() {
		t.Fatalf("expected dev-A online after reconnect heartbeat")
	}
}

func TestUnregister(t *testing.T) {
	reg, _ := newTestRegistry(t)

	var offlineEvents int

	reg.OnOffline(func(string) { offlineEvents++ })

	reg.Register(testInfo("dev-A"))

	if !reg.Unregister("dev-A") {
		t.Fatalf("expected unregister to report an existing entry")
	}

	if reg.Unregister("dev-A") {
		t.Fatalf("expected second unregister to report no entry")
	}

	if _, ok := reg.GetDevice("dev-A"); ok {
		t.Fatalf("expected info removed")
	}

	if _, ok := reg.GetStatus("dev-A"); ok {
		t.Fatalf("expected status removed")
	}

	// Explicit unregistration is not an offline timeout.
	if offlineEvents != 0 {
		t.Fatalf("expected no offline event on unregister, got %d", offlineEvents)
	}
}

func TestListenerPanicDoesNotStopOthers(t *testing.T) {
	reg, clock := newTestRegistry(t)

	var survived bool

	reg.OnOffline(func(string) { panic("listener bug") })
	reg.OnOffline(func(string) { survived = true })

	reg.Register(testInfo("dev-A"))

	clock.Advance(DefaultHeartbeatTimeout * 2)
	reg.sweep()

	if !survived {
		t.Fatalf("expected second listener to run despite first panicking")
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults", *DefaultConfig(), false},
		{"timeout below interval", Config{HeartbeatTimeout: time.Second, SweepInterval: 2 * time.Second}, true},
		{"timeout equals interval", Config{HeartbeatTimeout: 2 * time.Second, SweepInterval: 2 * time.Second}, true},
		{"zero timeout", Config{SweepInterval: time.Second}, true},
		{"zero interval", Config{HeartbeatTimeout: time.Second}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSweepLoopStopIsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)

	reg.Start(testContext(t))
	reg.Stop()
	reg.Stop()
}
