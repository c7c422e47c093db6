// Package realtime is a transient in-process pub/sub hub. Broadcasts reach only
// subscribers present at publish time; nothing is queued for later or replayed.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrForbidden is returned when the caller may not subscribe to a private channel
	ErrForbidden = errors.New("channel subscription forbidden")

	ErrHubClosed = errors.New("realtime hub is closed")
)

// Message is one broadcast as delivered to handlers
type Message struct {
	Channel string                 `json:"channel"`
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
	SentAt  time.Time              `json:"sent_at"`
}

// Handler receives broadcasts for one subscription
type Handler func(Message)

// Authorizer decides whether the caller in ctx may subscribe to channel
type Authorizer func(ctx context.Context, channel string) error

// Logger is the key/value logging surface the hub needs
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type topic struct {
	channel string
	event   string
}

// Hub fans broadcasts out to channel/event subscriptions
type Hub struct {
	mu     sync.RWMutex
	subs   map[topic]map[uint64]*Subscription
	taps   map[uint64]Handler
	nextID atomic.Uint64
	closed bool

	authorize Authorizer
	buffer    int
	logger    Logger
	now       func() time.Time
	dropped   atomic.Uint64
}

// Option configures a Hub
type Option func(*Hub)

// WithAuthorizer gates private channels. Without one, private channels are refused.
func WithAuthorizer(a Authorizer) Option {
	return func(h *Hub) { h.authorize = a }
}

// WithBuffer sets each subscription's pending-message queue length.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func WithLogger(l Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:   make(map[topic]map[uint64]*Subscription),
		taps:   make(map[uint64]Handler),
		buffer: 16,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers handler for event on channel until the returned
// subscription is released or ctx is done. Handlers run on a dedicated
// goroutine per subscription, in broadcast order.
func (h *Hub) Subscribe(ctx context.Context, channel, event string, handler Handler) (*Subscription, error) {
	if channel == "" || event == "" || handler == nil {
		return nil, fmt.Errorf("realtime: channel, event and handler are required")
	}
	if IsPrivate(channel) {
		if h.authorize == nil {
			return nil, ErrForbidden
		}
		if err := h.authorize(ctx, channel); err != nil {
			return nil, err
		}
	}

	sub := &Subscription{
		id:      h.nextID.Add(1),
		topic:   topic{channel: channel, event: event},
		hub:     h,
		queue:   make(chan Message, h.buffer),
		done:    make(chan struct{}),
		handler: handler,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	if h.subs[sub.topic] == nil {
		h.subs[sub.topic] = make(map[uint64]*Subscription)
	}
	h.subs[sub.topic][sub.id] = sub
	h.mu.Unlock()

	go sub.run()
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
			case <-sub.done:
			}
		}()
	}
	return sub, nil
}

// Tap registers handler for every broadcast on every channel. Tap handlers run
// synchronously inside Broadcast and must not block. The returned func removes the tap.
func (h *Hub) Tap(handler Handler) (untap func()) {
	id := h.nextID.Add(1)
	h.mu.Lock()
	h.taps[id] = handler
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.taps, id)
			h.mu.Unlock()
		})
	}
}

// Broadcast hands the message to every current subscriber of channel/event
// without blocking. A subscriber whose queue is full misses the message.
// Returns how many subscriptions accepted it.
func (h *Hub) Broadcast(channel, event string, payload map[string]interface{}) int {
	msg := Message{Channel: channel, Event: event, Payload: payload, SentAt: h.now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}

	for _, tap := range h.taps {
		tap(msg)
	}

	delivered := 0
	for _, sub := range h.subs[topic{channel: channel, event: event}] {
		select {
		case sub.queue <- msg:
			delivered++
		default:
			h.dropped.Add(1)
			if h.logger != nil {
				h.logger.Error("Dropping realtime message for slow subscriber",
					"channel", channel, "event", event, "subscription_id", sub.id)
			}
		}
	}
	return delivered
}

// SubscriberCount returns the number of live subscriptions for channel/event.
func (h *Hub) SubscriberCount(channel, event string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic{channel: channel, event: event}])
}

// Dropped returns how many deliveries were skipped because a queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close releases every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*Subscription
	for _, byID := range h.subs {
		for _, sub := range byID {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Unsubscribe()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	byID := h.subs[sub.topic]
	delete(byID, sub.id)
	if len(byID) == 0 {
		delete(h.subs, sub.topic)
	}
}

// Subscription is a live channel/event registration
type Subscription struct {
	id      uint64
	topic   topic
	hub     *Hub
	queue   chan Message
	done    chan struct{}
	once    sync.Once
	handler Handler
}

func (s *Subscription) Channel() string { return s.topic.channel }
func (s *Subscription) Event() string   { return s.topic.event }

// Unsubscribe stops delivery. Safe to call more than once and from any goroutine.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

// Done is closed once the subscription has been released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			s.deliver(msg)
		}
	}
}

func (s *Subscription) deliver(msg Message) {
	defer func() {
		if r := recover(); r != nil && s.hub.logger != nil {
			s.hub.logger.Error("Realtime handler panic recovered",
				"channel", msg.Channel, "event", msg.Event, "panic", r)
		}
	}()
	s.handler(msg)
}
