package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagekit/recognize-gw/internal/events"
)

func TestEventsReplayBufferedEvents(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.hub.Publish(events.TypeJobEnqueued, map[string]any{"job_id": "a"})
	env.hub.Publish(events.TypeJobCompleted, map[string]any{"job_id": "a"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	env.server.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: job.enqueued")
	assert.Contains(t, body, "event: job.completed")
	assert.Contains(t, body, `"job_id":"a"`)
}

func TestEventsHonorsLastEventID(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.hub.Publish(events.TypeJobEnqueued, map[string]any{"job_id": "old"})
	env.hub.Publish(events.TypeJobCompleted, map[string]any{"job_id": "new"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()
	env.server.Routes().ServeHTTP(w, req)

	body := w.Body.String()
	assert.NotContains(t, body, `"job_id":"old"`)
	assert.Contains(t, body, `"job_id":"new"`)
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("garbage"))
	assert.Equal(t, int64(0), parseLastEventID("-3"))
	assert.Equal(t, int64(42), parseLastEventID("42"))
}

func TestEventsStreamsLiveEvents(t *testing.T) {
	env := newTestEnv(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		env.server.Routes().ServeHTTP(w, req)
		close(done)
	}()

	// Give the handler time to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	env.hub.Publish(events.TypeJobFailed, map[string]any{"job_id": "b"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("events handler did not exit on context cancel")
	}

	body := w.Body.String()
	assert.True(t, strings.Contains(body, "event: job.failed"), "body: %s", body)
	assert.Contains(t, body, `"job_id":"b"`)
}
