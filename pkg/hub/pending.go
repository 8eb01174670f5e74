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

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herdworks/herd/pkg/models"
)

// pendingResponses correlates outstanding commands to their responses by
// request id. Entries expire on the command's own timeout so an unanswered
// command never leaks a table slot.
type pendingResponses struct {
	mu      sync.Mutex
	waiting map[uuid.UUID]*pendingEntry
}

type pendingEntry struct {
	ch       chan *models.CommandResponse
	timer    *time.Timer
	resolved bool
}

func newPendingResponses() *pendingResponses {
	return &pendingResponses{
		waiting: make(map[uuid.UUID]*pendingEntry),
	}
}

// add registers an outstanding request and returns its delivery channel.
// The channel is buffered so resolution never blocks the dispatch loop.
func (p *pendingResponses) add(requestID uuid.UUID, ttl time.Duration) <-chan *models.CommandResponse {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.waiting[requestID]; ok {
		return existing.ch
	}

	entry := &pendingEntry{ch: make(chan *models.CommandResponse, 1)}

	entry.timer = time.AfterFunc(ttl, func() {
		p.drop(requestID)
	})

	p.waiting[requestID] = entry

	return entry.ch
}

// resolve delivers a response to its waiting channel. The entry stays in
// the table until the caller drains it through remove or the command's
// timeout reaps it, so a response that arrives before anyone awaits is not
// lost. Responses with no outstanding command report false; callers log
// and drop them.
func (p *pendingResponses) resolve(resp *models.CommandResponse) bool {
	p.mu.Lock()
	entry, ok := p.waiting[resp.RequestID]
	if ok && entry.resolved {
		ok = false
	}
	if ok {
		entry.resolved = true
	}
	p.mu.Unlock()

	if !ok {
		return false
	}

	entry.ch <- resp
	close(entry.ch)

	return true
}

// channel returns the delivery channel for an outstanding request.
func (p *pendingResponses) channel(requestID uuid.UUID) (<-chan *models.CommandResponse, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.waiting[requestID]
	if !ok {
		return nil, false
	}

	return entry.ch, true
}

// remove retires a drained entry. Called after the response has been
// received; resolve already closed the channel.
func (p *pendingResponses) remove(requestID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.waiting[requestID]
	if !ok {
		return
	}

	entry.timer.Stop()
	delete(p.waiting, requestID)
}

func (p *pendingResponses) drop(requestID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.waiting[requestID]
	if !ok {
		return
	}

	delete(p.waiting, requestID)

	if !entry.resolved {
		close(entry.ch)
	}
}

// stopAll drops every outstanding entry; used during shutdown.
func (p *pendingResponses) stopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for requestID, entry := range p.waiting {
		entry.timer.Stop()

		if !entry.resolved {
			close(entry.ch)
		}

		delete(p.waiting, requestID)
	}
}
