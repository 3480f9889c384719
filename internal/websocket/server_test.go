package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/planetracker/pkg/logger"
)

type recordingHandler struct {
	mu    sync.Mutex
	types []string
}

func (h *recordingHandler) HandleMessage(_ *Client, messageType string, _ map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.types = append(h.types, messageType)
	return nil
}

func (h *recordingHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.types...)
}

func startHub(t *testing.T) (*Server, string) {
	t.Helper()
	hub := NewServer(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *Server, url string, wantClients int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	waitFor(t, func() bool { return hub.ClientCount() == wantClients })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestBroadcastReachesClients(t *testing.T) {
	hub, url := startHub(t)
	a := dial(t, hub, url, 1)
	b := dial(t, hub, url, 2)

	hub.Broadcast(&Message{Type: MessageTypeAlert, Data: map[string]any{"text": "Boeing 737"}})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		if msg.Type != MessageTypeAlert || msg.Data["text"] != "Boeing 737" {
			t.Fatalf("message = %+v", msg)
		}
	}
}

func TestSubscribeFiltersTypes(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url, 1)

	if err := conn.WriteJSON(Message{Type: MessageTypeSubscribe, Data: map[string]any{"types": []string{MessageTypeFlagState}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool {
		for c := range snapshotClients(hub) {
			c.mu.Lock()
			ok := c.topics != nil
			c.mu.Unlock()
			return ok
		}
		return false
	})

	hub.Broadcast(&Message{Type: MessageTypeAlert, Data: map[string]any{}})
	hub.Broadcast(&Message{Type: MessageTypeFlagState, Data: map[string]any{"enabled": true}})

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeFlagState {
		t.Fatalf("got %q, want only flag_state", msg.Type)
	}
}

func TestIncomingMessagesReachHandler(t *testing.T) {
	hub, url := startHub(t)
	h := &recordingHandler{}
	hub.SetMessageHandler(h)
	conn := dial(t, hub, url, 1)

	if err := conn.WriteJSON(Message{Type: MessageTypeFlagSet, Data: map[string]any{"enabled": true}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return len(h.seen()) == 1 })
	if got := h.seen()[0]; got != MessageTypeFlagSet {
		t.Fatalf("handler saw %q", got)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url, 1)
	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func snapshotClients(s *Server) map[*Client]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[*Client]bool, len(s.clients))
	for c := range s.clients {
		out[c] = true
	}
	return out
}
