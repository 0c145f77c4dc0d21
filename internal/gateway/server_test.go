package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/messenger/internal/broadcast"
	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/internal/store/memory"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

var (
	alice = store.Provider{Alias: "user", ID: "alice"}
	bob   = store.Provider{Alias: "user", ID: "bob"}
	carol = store.Provider{Alias: "user", ID: "carol"}
)

type hub struct {
	srv    *Server
	url    string
	thread *store.ThreadData
}

func newHub(t *testing.T, cfg *config.Config) *hub {
	t.Helper()
	ctx := context.Background()
	stores := memory.NewStores()
	now := time.Now()
	thread := store.NewPrivateThread(alice, bob, now)
	if err := stores.Threads.Create(ctx, thread); err != nil {
		t.Fatalf("create thread: %v", err)
	}
	for _, p := range []store.Provider{alice, bob} {
		if err := stores.Participants.Create(ctx, store.NewParticipant(thread.ID, p, now)); err != nil {
			t.Fatalf("create participant: %v", err)
		}
	}

	srv := NewServer(cfg, stores.Participants)
	mux := http.NewServeMux()
	srv.Mount(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return &hub{srv: srv, url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws", thread: thread}
}

func (h *hub) dial(t *testing.T, p store.Provider, header http.Header) *websocket.Conn {
	t.Helper()
	if header == nil {
		header = http.Header{}
	}
	header.Set("X-Provider", p.Key())
	conn, _, err := websocket.DefaultDialer.Dial(h.url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, f protocol.ClientFrame) {
	t.Helper()
	if err := conn.WriteJSON(f); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) protocol.ServerFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f protocol.ServerFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", s.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeAuthorization(t *testing.T) {
	h := newHub(t, config.Default())
	presence := broadcast.PresenceChannel(h.thread.ID)

	tests := []struct {
		name     string
		as       store.Provider
		channel  string
		wantType string
	}{
		{"own private channel", alice, broadcast.PrivateChannel(alice), protocol.FrameSubscribed},
		{"someone else's private channel", alice, broadcast.PrivateChannel(bob), protocol.FrameError},
		{"participant presence", bob, presence, protocol.FrameSubscribed},
		{"non participant presence", carol, presence, protocol.FrameError},
		{"malformed presence", alice, protocol.PresenceChannelPrefix + "nope", protocol.FrameError},
		{"unknown channel", alice, "public", protocol.FrameError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := h.dial(t, tt.as, nil)
			send(t, conn, protocol.ClientFrame{Type: protocol.FrameSubscribe, Channel: tt.channel})
			got := read(t, conn)
			if got.Type != tt.wantType {
				t.Errorf("frame type = %q, want %q (error %q)", got.Type, tt.wantType, got.Error)
			}
		})
	}
}

func TestSendRoutesToSubscribers(t *testing.T) {
	h := newHub(t, config.Default())
	a := h.dial(t, alice, nil)
	b := h.dial(t, bob, nil)

	send(t, a, protocol.ClientFrame{Type: protocol.FrameSubscribe, Channel: broadcast.PrivateChannel(alice)})
	read(t, a)
	send(t, b, protocol.ClientFrame{Type: protocol.FrameSubscribe, Channel: broadcast.PrivateChannel(bob)})
	read(t, b)

	err := h.srv.Send(context.Background(), []string{broadcast.PrivateChannel(bob)}, protocol.EventNewMessage, map[string]string{"body": "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := read(t, b)
	if got.Type != protocol.FrameEvent || got.Event != protocol.EventNewMessage {
		t.Errorf("frame = %+v, want %s event", got, protocol.EventNewMessage)
	}

	send(t, a, protocol.ClientFrame{Type: protocol.FramePing})
	if f := read(t, a); f.Type != protocol.FramePong {
		t.Errorf("alice got %q before pong, want only pong", f.Type)
	}
}

func TestWhisperSkipsSender(t *testing.T) {
	h := newHub(t, config.Default())
	presence := broadcast.PresenceChannel(h.thread.ID)
	a := h.dial(t, alice, nil)
	b := h.dial(t, bob, nil)
	for _, c := range []*websocket.Conn{a, b} {
		send(t, c, protocol.ClientFrame{Type: protocol.FrameSubscribe, Channel: presence})
		read(t, c)
	}

	send(t, a, protocol.ClientFrame{Type: protocol.FrameEvent, Channel: presence, Event: "client-typing", Payload: []byte(`{"typing":true}`)})
	got := read(t, b)
	if got.Event != "client-typing" || got.Channel != presence {
		t.Errorf("bob got %+v, want client-typing on %s", got, presence)
	}

	send(t, a, protocol.ClientFrame{Type: protocol.FrameEvent, Channel: presence, Event: "new.message"})
	if f := read(t, a); f.Type != protocol.FrameError {
		t.Errorf("non client event frame = %q, want error", f.Type)
	}
}

func TestAuthAndProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Token = "secret"
	h := newHub(t, cfg)

	tests := []struct {
		name     string
		header   http.Header
		wantCode int
	}{
		{"missing token", http.Header{"X-Provider": {alice.Key()}}, http.StatusUnauthorized},
		{"wrong token", http.Header{"Authorization": {"Bearer nope"}, "X-Provider": {alice.Key()}}, http.StatusUnauthorized},
		{"bad provider", http.Header{"Authorization": {"Bearer secret"}, "X-Provider": {"alice"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(h.url, tt.header)
			if err == nil {
				t.Fatal("Dial succeeded, want error")
			}
			if resp == nil || resp.StatusCode != tt.wantCode {
				t.Errorf("status = %v, want %d", resp, tt.wantCode)
			}
		})
	}

	h.dial(t, alice, http.Header{"Authorization": {"Bearer secret"}})
	waitClients(t, h.srv, 1)
}

func TestDisconnectUnregisters(t *testing.T) {
	h := newHub(t, config.Default())
	conn := h.dial(t, alice, nil)
	send(t, conn, protocol.ClientFrame{Type: protocol.FrameSubscribe, Channel: broadcast.PrivateChannel(alice)})
	read(t, conn)
	waitClients(t, h.srv, 1)

	conn.Close()
	waitClients(t, h.srv, 0)

	h.srv.mu.RLock()
	n := len(h.srv.channels)
	h.srv.mu.RUnlock()
	if n != 0 {
		t.Errorf("channels = %d, want 0", n)
	}
}

func TestCheckOrigin(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.AllowedOrigins = []string{"https://app.example.com"}
	s := NewServer(cfg, nil)

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := s.checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestBuildMuxHealthAndRegistrars(t *testing.T) {
	s := NewServer(config.Default(), nil)
	called := false
	mux := s.BuildMux(func(mux *http.ServeMux) {
		called = true
		mux.HandleFunc("GET /extra", func(w http.ResponseWriter, r *http.Request) {})
	})
	if !called {
		t.Error("registrar not called")
	}
	if again := s.BuildMux(); again != mux {
		t.Error("BuildMux built a second mux")
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("health body = %s, want status ok", rec.Body.String())
	}
}
