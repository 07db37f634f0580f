package push

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqerk/notisync/internal/model"
	"github.com/mqerk/notisync/internal/store"
)

// fakeStream feeds frames from a channel and unblocks Next on Close.
type fakeStream struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (s *fakeStream) Next() ([]byte, error) {
	select {
	case data := <-s.frames:
		return data, nil
	case <-s.done:
		return nil, io.EOF
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func newBridge(t *testing.T) (*Bridge, *store.Notifications) {
	t.Helper()
	notifications := store.NewNotifications(nil, 0, zerolog.Nop())
	b := NewBridge(notifications, zerolog.Nop())
	t.Cleanup(b.Unsubscribe)
	return b, notifications
}

func waitForLen(t *testing.T, s *store.Notifications, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(s.All()) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBridge_welcome_marks_connected(t *testing.T) {
	b, _ := newBridge(t)
	stream := newFakeStream()
	b.Subscribe(stream)

	assert.False(t, b.Connected())

	stream.frames <- []byte(`{"type":"welcome","role":"estudiante"}`)

	require.Eventually(t, b.Connected, 2*time.Second, 10*time.Millisecond)
}

func TestBridge_inserts_notification_events(t *testing.T) {
	b, notifications := newBridge(t)
	stream := newFakeStream()
	b.Subscribe(stream)

	stream.frames <- []byte(`{"type":"notification","payload":{
		"notif_id": 31,
		"kind": "payment",
		"priority": "high",
		"title": "Pago registrado",
		"message": "Se registró tu pago.",
		"action_url": "/dashboard/pagos",
		"payment_id": 15
	}}`)

	waitForLen(t, notifications, 1)

	got := notifications.All()[0]
	assert.Equal(t, "31", got.ID)
	assert.Equal(t, "payment:15", got.DedupKey)
	assert.Equal(t, model.TypePayment, got.Type)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	assert.Equal(t, "Pago registrado", got.Title)
	assert.Equal(t, "/dashboard/pagos", got.ActionURL)
	assert.Equal(t, model.SourcePush, got.Source)
	assert.False(t, got.IsRead)
}

func TestBridge_dedups_repeated_events(t *testing.T) {
	b, notifications := newBridge(t)
	stream := newFakeStream()
	b.Subscribe(stream)

	event := []byte(`{"type":"notification","payload":{"kind":"new_content","course_id":8,"title":"Nuevo material"}}`)
	stream.frames <- event
	stream.frames <- event

	waitForLen(t, notifications, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, notifications.All(), 1)
}

func TestBridge_timestamp_bucket_fallback(t *testing.T) {
	b, notifications := newBridge(t)
	ts := time.Date(2025, time.March, 10, 12, 30, 0, 0, time.UTC)
	b.now = func() time.Time { return ts }

	stream := newFakeStream()
	b.Subscribe(stream)

	// No entity IDs: identity degrades to kind plus minute bucket.
	stream.frames <- []byte(`{"type":"notification","payload":{"kind":"system","title":"Aviso"}}`)

	waitForLen(t, notifications, 1)

	got := notifications.All()[0]
	assert.Empty(t, got.ID)
	assert.Equal(t, model.BuildDedupKey("system", nil, ts), got.DedupKey)
}

func TestBridge_unknown_priority_defaults_to_medium(t *testing.T) {
	b, notifications := newBridge(t)
	stream := newFakeStream()
	b.Subscribe(stream)

	stream.frames <- []byte(`{"type":"notification","payload":{"kind":"message","priority":"extreme"}}`)

	waitForLen(t, notifications, 1)
	assert.Equal(t, model.PriorityMedium, notifications.All()[0].Priority)
}

func TestBridge_drops_malformed_and_unknown_frames(t *testing.T) {
	b, notifications := newBridge(t)
	stream := newFakeStream()
	b.Subscribe(stream)

	stream.frames <- []byte(`{not json`)
	stream.frames <- []byte(`{"type":"ping"}`)
	stream.frames <- []byte(`{"type":"notification"}`)
	stream.frames <- []byte(`{"type":"notification","payload":{"title":"sin kind"}}`)
	stream.frames <- []byte(`{"type":"notification","payload":{"kind":"message","title":"ok"}}`)

	// Only the last, well-formed frame lands.
	waitForLen(t, notifications, 1)
	assert.Equal(t, "ok", notifications.All()[0].Title)
}

func TestBridge_unsubscribe_drops_late_frames(t *testing.T) {
	b, notifications := newBridge(t)
	stream := newFakeStream()
	b.Subscribe(stream)
	b.Unsubscribe()

	// A frame racing the teardown is ignored, not inserted.
	b.handle([]byte(`{"type":"notification","payload":{"kind":"message","title":"tarde"}}`))
	b.handle([]byte(`{"type":"welcome"}`))

	assert.Empty(t, notifications.All())
	assert.False(t, b.Connected())

	// Unsubscribe is idempotent.
	b.Unsubscribe()
}

func TestBridge_unsubscribe_waits_for_inflight_frame(t *testing.T) {
	b, notifications := newBridge(t)
	stream := newFakeStream()
	b.Subscribe(stream)

	// Block the frame mid-application, between the closed-check and the
	// completion of its store write.
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	notifications.OnChange(func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	go b.handle([]byte(`{"type":"notification","payload":{"kind":"message","title":"en vuelo"}}`))
	<-entered

	done := make(chan struct{})
	go func() {
		b.Unsubscribe()
		close(done)
	}()

	// Unsubscribe must not return while the frame is still being applied.
	select {
	case <-done:
		t.Fatal("unsubscribe returned before the in-flight frame finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribe did not return after the frame finished")
	}

	// Clearing after unsubscribe is final: no late write can repopulate.
	notifications.Clear()
	b.handle([]byte(`{"type":"notification","payload":{"kind":"message","title":"tarde"}}`))
	assert.Empty(t, notifications.All())
}

func TestBridge_resubscribe_replaces_stream(t *testing.T) {
	b, notifications := newBridge(t)

	first := newFakeStream()
	b.Subscribe(first)

	second := newFakeStream()
	b.Subscribe(second)

	// The first stream was closed by the resubscribe.
	select {
	case <-first.done:
	case <-time.After(time.Second):
		t.Fatal("first stream was not closed")
	}

	second.frames <- []byte(`{"type":"notification","payload":{"kind":"grade","title":"Calificación"}}`)
	waitForLen(t, notifications, 1)
}
