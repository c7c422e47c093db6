// Package websocket serves realtime channel subscriptions over WebSocket.
// Clients send subscribe and unsubscribe actions; broadcasts are pushed back
// as JSON frames until the connection closes. A subscribe may carry "since"
// so a reconnecting client is replayed the cached ticket state it missed.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/realtime"
	"github.com/garyjia/ticket-workflow/internal/application/session"
	"github.com/garyjia/ticket-workflow/internal/application/ticketcache"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Subscriber is the session capability used to join channels
type Subscriber interface {
	Subscribe(ctx context.Context, channel, event string, handler realtime.Handler) (*realtime.Subscription, error)
}

// Snapshots reads cached ticket state
type Snapshots interface {
	Get(ticketID string) (ticketcache.Entry, bool)
}

// ClientMessage is a frame sent by the browser
type ClientMessage struct {
	Action  string     `json:"action"`
	Channel string     `json:"channel"`
	Event   string     `json:"event"`
	Since   *time.Time `json:"since,omitempty"`
}

// ServerMessage is a control frame sent to the browser. Broadcasts are sent as realtime.Message.
type ServerMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Event   string `json:"event,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Config holds websocket handler settings
type Config struct {
	// AllowedOrigins lists accepted Origin headers; empty accepts same-host requests only
	AllowedOrigins []string
}

// Handler upgrades authenticated requests and relays hub broadcasts
type Handler struct {
	subscriber Subscriber
	snapshots  Snapshots
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithSnapshots replays cached ticket state after each ticket channel subscribe
func WithSnapshots(s Snapshots) Option {
	return func(h *Handler) {
		h.snapshots = s
	}
}

// NewHandler creates a new websocket handler
func NewHandler(subscriber Subscriber, cfg Config, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		subscriber: subscriber,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if len(cfg.AllowedOrigins) > 0 {
		allowed := make(map[string]bool, len(cfg.AllowedOrigins))
		for _, o := range cfg.AllowedOrigins {
			allowed[strings.TrimRight(o, "/")] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return allowed["*"] || allowed[r.Header.Get("Origin")]
		}
	}
	return h
}

// ServeHTTP implements http.Handler. The request context must carry a session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		http.Error(w, session.ErrUnauthenticated.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Websocket upgrade failed", zap.Error(err))
		return
	}

	// the connection outlives the HTTP request context but keeps its session
	ctx, cancel := context.WithCancel(session.WithSession(context.Background(), sess))
	c := &client{
		conn:   conn,
		send:   make(chan interface{}, sendBuffer),
		subs:   make(map[string]*realtime.Subscription),
		ctx:    ctx,
		cancel: cancel,
		h:      h,
	}

	h.logger.Info("Websocket connected",
		zap.String("user_id", sess.UserID),
		zap.String("organization_id", sess.OrganizationID))

	go c.writePump()
	c.readPump()
}

type client struct {
	conn   *websocket.Conn
	send   chan interface{}
	ctx    context.Context
	cancel context.CancelFunc
	h      *Handler

	mu   sync.Mutex
	subs map[string]*realtime.Subscription
}

func subKey(channel, event string) string {
	return channel + "|" + event
}

// readPump processes client frames until the connection fails, then releases every subscription.
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.reply(ServerMessage{Type: "error", Error: "invalid message"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.logger.Info("Websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg ClientMessage) {
	if msg.Channel == "" || msg.Event == "" {
		c.reply(ServerMessage{Type: "error", Error: "channel and event are required"})
		return
	}
	key := subKey(msg.Channel, msg.Event)

	switch msg.Action {
	case "subscribe":
		c.mu.Lock()
		_, exists := c.subs[key]
		c.mu.Unlock()
		if exists {
			c.reply(ServerMessage{Type: "subscribed", Channel: msg.Channel, Event: msg.Event})
			return
		}

		sub, err := c.h.subscriber.Subscribe(c.ctx, msg.Channel, msg.Event, c.deliver)
		if err != nil {
			errMsg := "subscription failed"
			if errors.Is(err, realtime.ErrForbidden) || errors.Is(err, session.ErrUnauthenticated) {
				errMsg = realtime.ErrForbidden.Error()
			} else {
				c.h.logger.Error("Subscribe failed", zap.String("channel", msg.Channel), zap.Error(err))
			}
			c.reply(ServerMessage{Type: "error", Channel: msg.Channel, Event: msg.Event, Error: errMsg})
			return
		}

		c.mu.Lock()
		c.subs[key] = sub
		c.mu.Unlock()
		c.reply(ServerMessage{Type: "subscribed", Channel: msg.Channel, Event: msg.Event})
		c.replay(msg)

	case "unsubscribe":
		c.mu.Lock()
		sub := c.subs[key]
		delete(c.subs, key)
		c.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		c.reply(ServerMessage{Type: "unsubscribed", Channel: msg.Channel, Event: msg.Event})

	default:
		c.reply(ServerMessage{Type: "error", Error: "unknown action " + msg.Action})
	}
}

// replay sends the cached state of the subscribed ticket when it changed after msg.Since.
// The subscribe already passed the channel authorizer.
func (c *client) replay(msg ClientMessage) {
	if c.h.snapshots == nil {
		return
	}
	id, ok := realtime.TicketIDFromChannel(msg.Channel)
	if !ok {
		return
	}
	e, ok := c.h.snapshots.Get(id)
	if !ok || (msg.Since != nil && !e.UpdatedAt.After(*msg.Since)) {
		return
	}
	c.reply(realtime.Message{
		Channel: msg.Channel,
		Event:   realtime.EventTicketSnapshot,
		Payload: map[string]interface{}{
			"ticket_id":  e.TicketID,
			"status":     e.Status,
			"fields":     e.Fields,
			"updated_at": e.UpdatedAt,
		},
		SentAt: time.Now().UTC(),
	})
}

// deliver runs on the subscription goroutine and must not block.
func (c *client) deliver(m realtime.Message) {
	c.reply(m)
}

func (c *client) reply(v interface{}) {
	select {
	case <-c.ctx.Done():
	case c.send <- v:
	default:
		c.h.logger.Warn("Dropping websocket frame for slow client")
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case v := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(v); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *client) close() {
	c.cancel()

	c.mu.Lock()
	subs := c.subs
	c.subs = map[string]*realtime.Subscription{}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	c.h.logger.Info("Websocket disconnected", zap.Int("released_subscriptions", len(subs)))
}

