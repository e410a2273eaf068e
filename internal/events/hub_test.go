package events

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	t.Parallel()

	h := NewHub(8)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(TypeJobEnqueued, map[string]any{"job_id": "j1"})

	select {
	case ev := <-ch:
		if ev.Type != TypeJobEnqueued {
			t.Fatalf("event type = %q", ev.Type)
		}
		if ev.ID != 1 {
			t.Fatalf("event id = %d, want 1", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestSnapshotSinceReplaysBufferedEvents(t *testing.T) {
	t.Parallel()

	h := NewHub(4)
	for i := 0; i < 6; i++ {
		h.Publish(TypeJobCompleted, nil)
	}

	// Ring holds the last 4 events: IDs 3..6.
	all := h.SnapshotSince(0)
	if len(all) != 4 || all[0].ID != 3 || all[3].ID != 6 {
		t.Fatalf("SnapshotSince(0) = %+v", all)
	}

	tail := h.SnapshotSince(5)
	if len(tail) != 1 || tail[0].ID != 6 {
		t.Fatalf("SnapshotSince(5) = %+v", tail)
	}
}

func TestCancelledSubscriberIsRemoved(t *testing.T) {
	t.Parallel()

	h := NewHub(4)
	ch, cancel := h.Subscribe()
	cancel()

	// Channel must be closed after cancel.
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}

	// Publishing after cancel must not panic.
	h.Publish(TypeJobFailed, nil)
}
