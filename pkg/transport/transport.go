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

// Package transport abstracts the pub/sub substrate that carries fleet
// traffic. Topics are /-delimited; `*` matches one segment and `**` matches
// one or more trailing segments. Each implementation maps that syntax onto
// its native subject scheme.
package transport

//go:generate mockgen -destination=mock_session.go -package=transport github.com/herdworks/herd/pkg/transport Session,Subscription

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned when no transport session is active.
	ErrClosed = errors.New("transport session closed")

	// ErrInvalidTopic is returned for topics with empty segments or
	// wildcards in a publish topic.
	ErrInvalidTopic = errors.New("invalid topic")
)

// MessageFunc receives one inbound message. The topic is the concrete
// /-delimited topic the message was published on, never a pattern.
type MessageFunc func(topic string, payload []byte)

// Subscription is a handle to an active pattern subscription.
type Subscription interface {
	Unsubscribe() error
}

// Entry is one reply from a Query: a concrete topic and its payload.
type Entry struct {
	Topic   string
	Payload []byte
}

// Session is the minimal capability the core needs from the substrate:
// publish, pattern subscribe, and a bounded best-effort query against
// whatever retained data the substrate keeps.
type Session interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, pattern string, fn MessageFunc) (Subscription, error)
	Query(ctx context.Context, selector string, timeout time.Duration) ([]Entry, error)
	Close() error
}
