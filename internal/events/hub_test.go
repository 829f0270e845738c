package events

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/yamaha-remote-go/internal/yamaha"
)

type stubSubscriber struct {
	mu       sync.Mutex
	listener yamaha.Listener
}

func (s *stubSubscriber) SubscribeAll(fn yamaha.Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listener = nil
	}
}

func (s *stubSubscriber) emit(change yamaha.Change) {
	s.mu.Lock()
	fn := s.listener
	s.mu.Unlock()
	if fn != nil {
		fn(change)
	}
}

func newTestHub(t *testing.T) (*Hub, *stubSubscriber, string) {
	t.Helper()
	hub := NewHub(log.New(io.Discard, "", 0))
	sub := &stubSubscriber{}
	detach := hub.Attach(sub)

	router := chi.NewRouter()
	RegisterRoutes(router, hub, func() yamaha.State {
		return yamaha.State{Power: true, Volume: -40, Source: "NET RADIO"}
	})
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		detach()
		hub.Close()
		server.Close()
	})

	return hub, sub, "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/events"
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestHub_SnapshotThenChanges(t *testing.T) {
	hub, sub, url := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	event := readEvent(t, conn)
	require.Equal(t, EventState, event.Type)
	require.NotNil(t, event.State)
	require.Equal(t, "NET RADIO", event.State.Source)
	require.NotEmpty(t, event.Timestamp)
	require.Equal(t, 1, hub.ClientCount())

	sub.emit(yamaha.Change{Property: yamaha.PropertyVolume, Value: -35.5})
	event = readEvent(t, conn)
	require.Equal(t, EventChange, event.Type)
	require.Equal(t, yamaha.PropertyVolume, event.Property)
	require.Equal(t, -35.5, event.Value)

	sub.emit(yamaha.Change{Property: yamaha.PropertyMuted, Value: false})
	event = readEvent(t, conn)
	require.Equal(t, yamaha.PropertyMuted, event.Property)
	require.Equal(t, false, event.Value)
}

func TestHub_ClientDisconnectIsRemoved(t *testing.T) {
	hub, _, url := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	readEvent(t, conn)
	require.Equal(t, 1, hub.ClientCount())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub, _, url := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	readEvent(t, conn)

	hub.Close()
	require.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestHub_BroadcastDropsSlowClient(t *testing.T) {
	hub := NewHub(log.New(io.Discard, "", 0))
	slow := &client{send: make(chan []byte), remoteAddr: "slow"}
	hub.clients[slow] = struct{}{}

	hub.Broadcast(Event{Type: EventChange, Property: yamaha.PropertyPower, Value: true})

	require.Equal(t, 0, hub.ClientCount())
	_, ok := <-slow.send
	require.False(t, ok)
}
