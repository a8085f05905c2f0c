package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lorrc/event-attendance-backend/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	Type    string          `json:"type"`
	EventID string          `json:"eventId"`
	Version int64           `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startHub runs a hub behind an httptest server and returns a dial func.
func startHub(t *testing.T, cfg Config) (*Hub, func() *websocket.Conn) {
	t.Helper()

	hub := NewHub(cfg, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, conn, nil).Serve()
	}))

	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		srv.Close()
	})

	dial := func() *websocket.Conn {
		url := "ws" + strings.TrimPrefix(srv.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}
	return hub, dial
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func updated(eventID uuid.UUID, version int64) domain.Message {
	return domain.NewEventUpdatedMessage(&domain.Event{ID: eventID, AttendanceVersion: version})
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	hub, dial := startHub(t, DefaultConfig())

	a, b := dial(), dial()
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	eventID := uuid.New()
	require.NoError(t, hub.Broadcast(updated(eventID, 1)))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, "eventUpdated", msg.Type)
		assert.Equal(t, eventID.String(), msg.EventID)
		assert.Equal(t, int64(1), msg.Version)
	}
}

func TestHub_DropsStaleAttendeeUpdates(t *testing.T) {
	hub, dial := startHub(t, DefaultConfig())

	conn := dial()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	eventID := uuid.New()
	other := uuid.New()
	require.NoError(t, hub.Broadcast(updated(eventID, 2)))
	require.NoError(t, hub.Broadcast(updated(eventID, 1)))
	require.NoError(t, hub.Broadcast(updated(eventID, 2)))
	require.NoError(t, hub.Broadcast(updated(other, 1)))
	require.NoError(t, hub.Broadcast(updated(eventID, 3)))

	first := readMessage(t, conn)
	assert.Equal(t, eventID.String(), first.EventID)
	assert.Equal(t, int64(2), first.Version)

	second := readMessage(t, conn)
	assert.Equal(t, other.String(), second.EventID)

	third := readMessage(t, conn)
	assert.Equal(t, eventID.String(), third.EventID)
	assert.Equal(t, int64(3), third.Version)
}

func TestHub_NewEventMessage(t *testing.T) {
	hub, dial := startHub(t, DefaultConfig())

	conn := dial()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	event := &domain.Event{
		ID:        uuid.New(),
		Title:     "Launch party",
		Date:      time.Date(2026, 12, 24, 20, 0, 0, 0, time.UTC),
		Category:  "social",
		Attendees: []domain.UserInfo{},
	}
	require.NoError(t, hub.Broadcast(domain.NewEventCreatedMessage(event)))

	msg := readMessage(t, conn)
	assert.Equal(t, "newEvent", msg.Type)

	var payload struct {
		Event domain.EventSnapshot `json:"event"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "Launch party", payload.Event.Title)
	assert.Equal(t, "2026-12-24T20:00:00Z", payload.Event.Date)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, dial := startHub(t, DefaultConfig())

	conn := dial()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	// Run is never started, so the buffer fills up.
	hub := NewHub(Config{BroadcastBuffer: 1}, testLogger())

	require.NoError(t, hub.Broadcast(updated(uuid.New(), 1)))

	done := make(chan error, 1)
	go func() { done <- hub.Broadcast(updated(uuid.New(), 1)) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrBroadcastQueueFull)
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full queue")
	}
}

func TestHub_StopClosesConnections(t *testing.T) {
	hub := NewHub(DefaultConfig(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, conn, nil).Serve()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-hub.Done()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure),
		"expected close, got %v", err)

	assert.ErrorIs(t, hub.Broadcast(updated(uuid.New(), 1)), ErrHubStopped)
	assert.Zero(t, hub.ClientCount())
}
