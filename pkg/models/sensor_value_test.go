package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSensorValueShapes(t *testing.T) {
	scalar := Scalar(3.5)
	if v, ok := scalar.AsScalar(); !ok || v != 3.5 {
		t.Fatalf("expected scalar 3.5, got %v (ok=%v)", v, ok)
	}

	vector := Vector(1, 2, 3)
	if v, ok := vector.AsVector(); !ok || len(v) != 3 {
		t.Fatalf("expected 3-element vector, got %v (ok=%v)", v, ok)
	}

	fields := Fields(map[string]SensorValue{
		"lat": Scalar(52.1),
		"fix": Vector(1, 0),
	})
	if m, ok := fields.AsFields(); !ok || len(m) != 2 {
		t.Fatalf("expected 2 fields, got %v (ok=%v)", m, ok)
	}

	var unset SensorValue
	if unset.Kind() != ValueInvalid {
		t.Fatalf("expected zero value to be invalid")
	}
}

func TestSensorValueJSONRoundTrip(t *testing.T) {
	cases := []SensorValue{
		Scalar(21.5),
		Vector(0.1, 0.2, 9.8),
		Fields(map[string]SensorValue{
			"x":    Scalar(1),
			"gyro": Vector(0.01, 0.02, 0.03),
		}),
	}

	for _, original := range cases {
		data, err := json.Marshal(original)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		var decoded SensorValue
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}

		if decoded.Kind() != original.Kind() {
			t.Fatalf("kind changed across round trip: %v -> %v", original.Kind(), decoded.Kind())
		}
	}
}

func TestSensorValueWireIsUntagged(t *testing.T) {
	data, err := json.Marshal(Scalar(42))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if string(data) != "42" {
		t.Fatalf("expected naked scalar on the wire, got %s", data)
	}
}

func TestSensorValueRejectsBadShapes(t *testing.T) {
	cases := []string{
		`"text"`,
		`[1, "two"]`,
		`{"nested": {"deep": 1}}`,
		`{"mixed": [1, "two"]}`,
		`true`,
	}

	for _, payload := range cases {
		var v SensorValue

		err := json.Unmarshal([]byte(payload), &v)
		if !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("payload %s: expected ErrInvalidValue, got %v", payload, err)
		}
	}
}
