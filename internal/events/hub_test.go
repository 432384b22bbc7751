package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytbatch/internal/model"
)

func receive(t *testing.T, s *Subscription) Message {
	t.Helper()
	select {
	case m, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestPublishDoesNotBlockOnSlowConsumer(t *testing.T) {
	h := NewHub()
	defer h.Close()
	sub := h.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish(Progress(model.ProgressEvent{JobID: "a", Status: model.StatusDownloading, Progress: float64(i) / 10}))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked with an idle subscriber")
	}

	for i := 0; i < 1000; i++ {
		m := receive(t, sub)
		require.Equal(t, TypeProgress, m.Type)
		require.InDelta(t, float64(i)/10, m.Event.Progress, 1e-9)
	}
}

func TestEverySubscriberSeesEveryMessage(t *testing.T) {
	h := NewHub()
	defer h.Close()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(Stopping())
	h.Publish(Stopped(model.BatchSummary{BatchID: "x", Total: 2, Cancelled: 2, Stopped: true}))

	for _, s := range []*Subscription{a, b} {
		assert.Equal(t, TypeStopping, receive(t, s).Type)
		m := receive(t, s)
		assert.Equal(t, TypeStopped, m.Type)
		assert.Equal(t, 2, m.Summary.Cancelled)
	}
}

func TestClosedSubscriptionStopsReceiving(t *testing.T) {
	h := NewHub()
	s := h.Subscribe()
	s.Close()
	h.Publish(Stopping())

	select {
	case _, ok := <-s.C():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}

	h.Close()
	late := h.Subscribe()
	_, ok := <-late.C()
	assert.False(t, ok)
}

func TestMessageJSON(t *testing.T) {
	raw, err := json.Marshal(Progress(model.ProgressEvent{JobID: "abc", Status: model.StatusDownloading, Progress: 45.2, Speed: "1.5MiB/s"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"download-progress","event":{"id":"abc","status":"downloading","progress":45.2,"speed":"1.5MiB/s"}}`, string(raw))

	raw, err = json.Marshal(Stopping())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"downloads-stopping"}`, string(raw))
}
