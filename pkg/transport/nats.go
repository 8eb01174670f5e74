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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSConfig configures the NATS-backed session.
type NATSConfig struct {
	// URL is the server to connect to, e.g. nats://127.0.0.1:4222.
	URL string `json:"url"`

	// Name identifies this connection to the server.
	Name string `json:"name"`

	// QueryStream names the JetStream stream that retains the last message
	// per subject so Query can answer latest-value selectors. Empty
	// disables the query surface and retention mirroring.
	QueryStream string `json:"query_stream"`

	// QuerySubjects is the subject space captured by the query stream,
	// in topic form (e.g. "herd/**").
	QuerySubjects []string `json:"query_subjects"`
}

// NATSSession is a Session backed by a NATS connection. Publishes are
// mirrored into a last-value JetStream stream so queries can serve the
// latest retained payload per topic.
type NATSSession struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	config NATSConfig
}

var _ Session = (*NATSSession)(nil)

// NewNATSSession connects to NATS and, when configured, ensures the
// last-value query stream exists.
func NewNATSSession(ctx context.Context, config NATSConfig) (*NATSSession, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if config.Name != "" {
		opts = append(opts, nats.Name(config.Name))
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	session := &NATSSession{nc: nc, config: config}

	if config.QueryStream != "" {
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("initializing JetStream: %w", err)
		}

		subjects := make([]string, 0, len(config.QuerySubjects))
		for _, topic := range config.QuerySubjects {
			subjects = append(subjects, natsSubject(topic))
		}

		stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:              config.QueryStream,
			Subjects:          subjects,
			MaxMsgsPerSubject: 1,
			Storage:           jetstream.MemoryStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("ensuring query stream: %w", err)
		}

		session.js = js
		session.stream = stream
	}

	return session, nil
}

// Publish sends a payload to a concrete topic. With a query stream
// configured the publish goes through JetStream so the stream retains it;
// plain subscribers on the subject still receive it either way.
func (s *NATSSession) Publish(ctx context.Context, topic string, payload []byte) error {
	if s.nc == nil || s.nc.IsClosed() {
		return ErrClosed
	}

	if err := validateConcreteTopic(topic); err != nil {
		return err
	}

	subject := natsSubject(topic)

	if s.js != nil {
		if _, err := s.js.Publish(ctx, subject, payload); err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}

		return nil
	}

	if err := s.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	return nil
}

// Subscribe consumes a pattern; delivery order per subscription follows
// server delivery order.
func (s *NATSSession) Subscribe(_ context.Context, pattern string, fn MessageFunc) (Subscription, error) {
	if s.nc == nil || s.nc.IsClosed() {
		return nil, ErrClosed
	}

	sub, err := s.nc.Subscribe(natsSubject(pattern), func(msg *nats.Msg) {
		fn(natsTopic(msg.Subject), msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", pattern, err)
	}

	return &natsSubscription{sub: sub}, nil
}

// Query lists the subjects retained by the query stream that match the
// selector and returns the last payload for each. No matches is an empty
// result, not an error.
func (s *NATSSession) Query(ctx context.Context, selector string, timeout time.Duration) ([]Entry, error) {
	if s.nc == nil || s.nc.IsClosed() {
		return nil, ErrClosed
	}

	if s.stream == nil {
		return nil, fmt.Errorf("%w: no query stream configured", ErrClosed)
	}

	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	filter := natsSubject(selector)

	info, err := s.stream.Info(ctx, jetstream.WithSubjectFilter(filter))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return []Entry{}, nil
		}

		return nil, fmt.Errorf("querying %s: %w", selector, err)
	}

	entries := make([]Entry, 0, len(info.State.Subjects))

	for subject := range info.State.Subjects {
		msg, err := s.stream.GetLastMsgForSubject(ctx, subject)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}

			continue
		}

		entries = append(entries, Entry{Topic: natsTopic(msg.Subject), Payload: msg.Data})
	}

	return entries, nil
}

// Close drains the connection so in-flight messages are delivered before
// shutdown.
func (s *NATSSession) Close() error {
	if s.nc == nil || s.nc.IsClosed() {
		return nil
	}

	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return err
	}

	return nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (n *natsSubscription) Unsubscribe() error {
	return n.sub.Unsubscribe()
}

// natsSubject maps a /-delimited topic or pattern to NATS subject syntax:
// "/" -> ".", "**" -> ">", "*" unchanged.
func natsSubject(topic string) string {
	segments := strings.Split(topic, "/")

	for i, segment := range segments {
		if segment == "**" {
			segments[i] = ">"
		}
	}

	return strings.Join(segments, ".")
}

// natsTopic is the inverse mapping for concrete subjects.
func natsTopic(subject string) string {
	segments := strings.Split(subject, ".")

	for i, segment := range segments {
		if segment == ">" {
			segments[i] = "**"
		}
	}

	return strings.Join(segments, "/")
}

func validateConcreteTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}

	for _, segment := range strings.Split(topic, "/") {
		switch segment {
		case "":
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidTopic, topic)
		case "*", "**":
			return fmt.Errorf("%w: wildcard in publish topic %q", ErrInvalidTopic, topic)
		}
	}

	return nil
}
