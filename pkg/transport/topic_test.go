package transport

import (
	"errors"
	"testing"
)

func TestNATSSubjectMapping(t *testing.T) {
	cases := []struct {
		topic   string
		subject string
	}{
		{"herd/devices/dev1/info", "herd.devices.dev1.info"},
		{"herd/devices/*/heartbeat", "herd.devices.*.heartbeat"},
		{"herd/sensors/**", "herd.sensors.>"},
		{"herd", "herd"},
	}

	for _, tc := range cases {
		if got := natsSubject(tc.topic); got != tc.subject {
			t.Errorf("natsSubject(%q) = %q, want %q", tc.topic, got, tc.subject)
		}
	}
}

func TestNATSTopicMappingInverse(t *testing.T) {
	for _, topic := range []string{"herd/devices/dev1/info", "herd/sensors/**", "herd"} {
		if got := natsTopic(natsSubject(topic)); got != topic {
			t.Errorf("round trip of %q gave %q", topic, got)
		}
	}
}

func TestMQTTFilterMapping(t *testing.T) {
	cases := []struct {
		pattern string
		filter  string
	}{
		{"herd/devices/*/info", "herd/devices/+/info"},
		{"herd/sensors/**", "herd/sensors/#"},
		{"herd/commands/dev1", "herd/commands/dev1"},
	}

	for _, tc := range cases {
		if got := mqttFilter(tc.pattern); got != tc.filter {
			t.Errorf("mqttFilter(%q) = %q, want %q", tc.pattern, got, tc.filter)
		}
	}
}

func TestValidateConcreteTopic(t *testing.T) {
	for _, topic := range []string{"herd/devices/dev1/info", "herd"} {
		if err := validateConcreteTopic(topic); err != nil {
			t.Errorf("validateConcreteTopic(%q) = %v, want nil", topic, err)
		}
	}

	for _, topic := range []string{"", "herd//info", "herd/*/info", "herd/sensors/**"} {
		if err := validateConcreteTopic(topic); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("validateConcreteTopic(%q) = %v, want ErrInvalidTopic", topic, err)
		}
	}
}
