// Package gateway is the realtime websocket hub. Clients subscribe to
// their private channel and to the presence channels of threads they
// participate in; the hub implements broadcast.Driver to fan events out.
package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/messenger/internal/broadcast"
	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/metrics"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

// Server is the websocket hub.
type Server struct {
	cfg          *config.Config
	participants store.ParticipantStore

	upgrader   websocket.Upgrader
	mux        *http.ServeMux
	httpServer *http.Server

	mu       sync.RWMutex
	clients  map[string]*Client
	channels map[string]map[*Client]struct{}
}

var _ broadcast.Driver = (*Server)(nil)

// NewServer creates a hub that authorizes presence subscriptions against
// participants.
func NewServer(cfg *config.Config, participants store.ParticipantStore) *Server {
	s := &Server{
		cfg:          cfg,
		participants: participants,
		clients:      make(map[string]*Client),
		channels:     make(map[string]map[*Client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin validates the Origin header against the allowed origins.
// No configured origins allows all; an empty Origin (non-browser client)
// is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// Mount registers the websocket endpoint on mux.
func (s *Server) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// BuildMux creates the HTTP mux with the websocket and health endpoints,
// then lets each registrar add its routes.
func (s *Server) BuildMux(registrars ...func(*http.ServeMux)) *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	s.Mount(mux)
	mux.HandleFunc("GET /health", s.handleHealth)
	for _, register := range registrars {
		register(mux)
	}
	s.mux = mux
	return mux
}

// Start serves the mux built by BuildMux until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","protocol":%d,"clients":%d}`, protocol.ProtocolVersion, s.ClientCount())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	raw := r.Header.Get("X-Provider")
	if raw == "" {
		raw = r.URL.Query().Get("provider")
	}
	provider, err := store.ParseProvider(raw)
	if err != nil {
		http.Error(w, "invalid provider", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gateway.upgrade_failed", "error", err)
		return
	}

	client := newClient(conn, s, provider)
	s.register(client)
	defer func() {
		s.unregister(client)
		client.close()
	}()
	client.run(r.Context())
}

func (s *Server) authenticated(r *http.Request) bool {
	want := s.cfg.Gateway.Token
	if want == "" {
		return true
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if got == "" {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) register(c *Client) {
	s.mu.Lock()
	s.clients[c.id] = c
	n := len(s.clients)
	s.mu.Unlock()
	metrics.GatewayClients.Set(float64(n))
	slog.Info("gateway.client.connected", "id", c.id, "provider", c.provider.Key())
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	for ch, subs := range s.channels {
		delete(subs, c)
		if len(subs) == 0 {
			delete(s.channels, ch)
		}
	}
	n := len(s.clients)
	s.mu.Unlock()
	metrics.GatewayClients.Set(float64(n))
	slog.Info("gateway.client.disconnected", "id", c.id)
}

// authorize reports whether p may subscribe to channel.
func (s *Server) authorize(ctx context.Context, p store.Provider, channel string) error {
	if channel == broadcast.PrivateChannel(p) {
		return nil
	}
	rest, ok := strings.CutPrefix(channel, protocol.PresenceChannelPrefix)
	if !ok {
		return fmt.Errorf("forbidden channel %s", channel)
	}
	threadID, err := uuid.Parse(rest)
	if err != nil {
		return fmt.Errorf("invalid thread channel %s", channel)
	}
	part, err := s.participants.Get(ctx, threadID, p)
	if err != nil || part.Pending {
		return fmt.Errorf("not a participant of %s", threadID)
	}
	return nil
}

func (s *Server) subscribe(c *Client, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, ok := s.channels[channel]
	if !ok {
		subs = make(map[*Client]struct{})
		s.channels[channel] = subs
	}
	subs[c] = struct{}{}
}

func (s *Server) unsubscribe(c *Client, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subs, ok := s.channels[channel]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(s.channels, channel)
		}
	}
}

// Send delivers event to every client subscribed to any of channels.
func (s *Server) Send(_ context.Context, channels []string, event string, payload any) error {
	s.fanOut(channels, event, payload, nil)
	return nil
}

func (s *Server) fanOut(channels []string, event string, payload any, skip *Client) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range channels {
		for c := range s.channels[ch] {
			if c == skip {
				continue
			}
			c.send(protocol.ServerFrame{Type: protocol.FrameEvent, Channel: ch, Event: event, Payload: payload})
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
