package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Client is one websocket connection acting as a provider.
type Client struct {
	id       string
	conn     *websocket.Conn
	server   *Server
	provider store.Provider

	out       chan protocol.ServerFrame
	closeOnce sync.Once
	done      chan struct{}

	subsMu sync.Mutex
	subs   map[string]bool
}

func newClient(conn *websocket.Conn, s *Server, p store.Provider) *Client {
	return &Client{
		id:       store.GenNewID().String(),
		conn:     conn,
		server:   s,
		provider: p,
		out:      make(chan protocol.ServerFrame, sendBuffer),
		done:     make(chan struct{}),
		subs:     make(map[string]bool),
	}
}

// send queues f. Slow clients lose frames rather than blocking the hub.
func (c *Client) send(f protocol.ServerFrame) {
	select {
	case <-c.done:
	case c.out <- f:
	default:
		slog.Warn("gateway.client.dropped_frame", "id", c.id, "event", f.Event)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) run(ctx context.Context) {
	go c.writePump()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("gateway.client.read_error", "id", c.id, "error", err)
			}
			return
		}
		var f protocol.ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.send(protocol.ServerFrame{Type: protocol.FrameError, Error: "invalid frame"})
			continue
		}
		c.handle(ctx, f)
	}
}

func (c *Client) handle(ctx context.Context, f protocol.ClientFrame) {
	switch f.Type {
	case protocol.FramePing:
		c.send(protocol.ServerFrame{Type: protocol.FramePong})
	case protocol.FrameSubscribe:
		if err := c.server.authorize(ctx, c.provider, f.Channel); err != nil {
			slog.Warn("gateway.subscribe.denied", "id", c.id, "provider", c.provider.Key(), "channel", f.Channel)
			c.send(protocol.ServerFrame{Type: protocol.FrameError, Channel: f.Channel, Error: err.Error()})
			return
		}
		c.server.subscribe(c, f.Channel)
		c.subsMu.Lock()
		c.subs[f.Channel] = true
		c.subsMu.Unlock()
		c.send(protocol.ServerFrame{Type: protocol.FrameSubscribed, Channel: f.Channel})
	case protocol.FrameUnsubscribe:
		c.server.unsubscribe(c, f.Channel)
		c.subsMu.Lock()
		delete(c.subs, f.Channel)
		c.subsMu.Unlock()
	case protocol.FrameEvent:
		c.whisper(f)
	default:
		c.send(protocol.ServerFrame{Type: protocol.FrameError, Error: "unknown frame type " + f.Type})
	}
}

// whisper relays a client-* event to the other subscribers of a presence
// channel the client is subscribed to.
func (c *Client) whisper(f protocol.ClientFrame) {
	c.subsMu.Lock()
	subscribed := c.subs[f.Channel]
	c.subsMu.Unlock()
	if !subscribed || !strings.HasPrefix(f.Channel, protocol.PresenceChannelPrefix) || !strings.HasPrefix(f.Event, "client-") {
		c.send(protocol.ServerFrame{Type: protocol.FrameError, Channel: f.Channel, Error: "event not allowed"})
		return
	}
	c.server.fanOut([]string{f.Channel}, f.Event, f.Payload, c)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
