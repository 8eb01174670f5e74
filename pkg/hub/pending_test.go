package hub

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/herdworks/herd/pkg/models"
)

func TestPendingResolveDeliversOnce(t *testing.T) {
	pending := newPendingResponses()

	requestID := uuid.New()
	ch := pending.add(requestID, time.Minute)

	resp := &models.CommandResponse{RequestID: requestID, Success: true}

	if !pending.resolve(resp) {
		t.Fatalf("expected resolve to find the outstanding request")
	}

	got, ok := <-ch
	if !ok || got != resp {
		t.Fatalf("expected delivered response, got %v (ok=%v)", got, ok)
	}

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after delivery")
	}

	// A second response for the same id has nothing to resolve.
	if pending.resolve(resp) {
		t.Fatalf("expected duplicate response to find no outstanding request")
	}
}

func TestPendingResolvedEntryAwaitsPickup(t *testing.T) {
	pending := newPendingResponses()

	requestID := uuid.New()
	pending.add(requestID, time.Minute)

	resp := &models.CommandResponse{RequestID: requestID, Success: true}
	if !pending.resolve(resp) {
		t.Fatalf("expected resolve to find the outstanding request")
	}

	// The resolved entry stays in the table so a late lookup still finds
	// the buffered response.
	ch, ok := pending.channel(requestID)
	if !ok {
		t.Fatalf("expected resolved entry to remain until drained")
	}

	got, ok := <-ch
	if !ok || got != resp {
		t.Fatalf("expected buffered response, got %v (ok=%v)", got, ok)
	}

	pending.remove(requestID)

	if _, ok := pending.channel(requestID); ok {
		t.Fatalf("expected drained entry retired from the table")
	}

	// Reaping a resolved entry must not double-close the channel.
	pending.drop(requestID)
}

func TestPendingTimeoutReapsResolvedEntry(t *testing.T) {
	pending := newPendingResponses()

	requestID := uuid.New()
	pending.add(requestID, 10*time.Millisecond)

	if !pending.resolve(&models.CommandResponse{RequestID: requestID}) {
		t.Fatalf("expected resolve to find the outstanding request")
	}

	deadline := time.Now().Add(time.Second)

	for {
		if _, ok := pending.channel(requestID); !ok {
			break
		}

		if time.Now().After(deadline) {
			t.Fatalf("expected timeout to reap the undrained resolved entry")
		}

		time.Sleep(time.Millisecond)
	}
}

func TestPendingTimeoutReapsEntry(t *testing.T) {
	pending := newPendingResponses()

	requestID := uuid.New()
	ch := pending.add(requestID, 10*time.Millisecond)

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected bare close on timeout")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected entry reaped by its timeout")
	}

	if pending.resolve(&models.CommandResponse{RequestID: requestID}) {
		t.Fatalf("expected reaped entry to be gone")
	}
}

func TestPendingStopAll(t *testing.T) {
	pending := newPendingResponses()

	ch := pending.add(uuid.New(), time.Minute)
	pending.stopAll()

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed by stopAll")
	}
}
