package models

import (
	"errors"
	"testing"
)

func TestHeartbeatValidate(t *testing.T) {
	hb := Heartbeat{DeviceID: "dev-A", Sequence: 1, UptimeMS: 500, Load: 0.5}
	if err := hb.Validate(); err != nil {
		t.Fatalf("expected valid heartbeat, got %v", err)
	}

	bad := []Heartbeat{
		{Sequence: 1},                           // missing device_id
		{DeviceID: "dev-A", Load: 1.5},          // load out of range
		{DeviceID: "dev-A", UptimeMS: -1},       // negative uptime
		{DeviceID: "dev-A", Load: -0.1},         // negative load
	}

	for i, hb := range bad {
		if err := hb.Validate(); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("case %d: expected ErrInvalidMessage, got %v", i, err)
		}
	}
}

func TestSensorReadingQualityDefault(t *testing.T) {
	r := SensorReading{
		DeviceID:   "dev-A",
		SensorType: SensorTemperature,
		Value:      Scalar(20),
		Unit:       "C",
	}

	if err := r.Validate(); err != nil {
		t.Fatalf("expected valid reading, got %v", err)
	}

	if r.Quality == nil || *r.Quality != 1.0 {
		t.Fatalf("expected omitted quality to default to 1.0, got %v", r.Quality)
	}
}

func TestSensorReadingKeepsExplicitZeroQuality(t *testing.T) {
	zero := 0.0
	r := SensorReading{
		DeviceID:   "dev-A",
		SensorType: SensorTemperature,
		Value:      Scalar(20),
		Unit:       "C",
		Quality:    &zero,
	}

	if err := r.Validate(); err != nil {
		t.Fatalf("expected quality 0 accepted, got %v", err)
	}

	if *r.Quality != 0 {
		t.Fatalf("expected explicit quality 0 preserved, got %v", *r.Quality)
	}
}

func TestSensorReadingRejectsOutOfRangeQuality(t *testing.T) {
	q := 1.5
	r := SensorReading{
		DeviceID:   "dev-A",
		SensorType: SensorTemperature,
		Value:      Scalar(20),
		Unit:       "C",
		Quality:    &q,
	}

	if err := r.Validate(); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected quality 1.5 rejected, got %v", err)
	}
}

func TestSensorReadingRejectsMissingValue(t *testing.T) {
	r := SensorReading{DeviceID: "dev-A", SensorType: SensorTemperature, Unit: "C"}

	if err := r.Validate(); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue for unset value, got %v", err)
	}
}

func TestCommandValidate(t *testing.T) {
	cmd := Command{DeviceID: "dev-A", Action: "stop", Priority: 10}
	if err := cmd.Validate(); err != nil {
		t.Fatalf("expected valid command, got %v", err)
	}

	cmd.Priority = 11
	if err := cmd.Validate(); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected priority 11 rejected, got %v", err)
	}
}

func TestDeviceStatusGaugeRanges(t *testing.T) {
	battery := 101
	status := DeviceStatus{DeviceID: "dev-A", BatteryLevel: &battery}

	if err := status.Validate(); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected battery_level 101 rejected, got %v", err)
	}

	battery = 80
	signal := 55
	status.SignalStrength = &signal

	if err := status.Validate(); err != nil {
		t.Fatalf("expected valid status, got %v", err)
	}
}
