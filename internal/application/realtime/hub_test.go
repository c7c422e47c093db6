package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allowAll(ctx context.Context, channel string) error { return nil }

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestTicketChannel(t *testing.T) {
	ch := TicketChannel("abc")
	assert.Equal(t, "ticket:abc:ocr", ch)

	id, ok := TicketIDFromChannel(ch)
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	for _, bad := range []string{"ticket::ocr", "ticket:a:b:ocr", "loads:abc:ocr", "ticket:abc"} {
		_, ok := TicketIDFromChannel(bad)
		assert.False(t, ok, bad)
	}
	assert.False(t, IsPrivate("announcements"))
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	h := NewHub(WithAuthorizer(allowAll))
	got := make(chan Message, 1)

	sub, err := h.Subscribe(context.Background(), TicketChannel("t1"), EventOCRCompleted, func(m Message) { got <- m })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	n := h.Broadcast(TicketChannel("t1"), EventOCRCompleted, map[string]interface{}{"fields": map[string]interface{}{"tons": 20.0}})
	assert.Equal(t, 1, n)

	msg := receive(t, got)
	assert.Equal(t, "ticket:t1:ocr", msg.Channel)
	assert.Equal(t, EventOCRCompleted, msg.Event)
	assert.Contains(t, msg.Payload, "fields")
	assert.False(t, msg.SentAt.IsZero())
}

func TestHub_EventNameFilters(t *testing.T) {
	h := NewHub(WithAuthorizer(allowAll))
	got := make(chan Message, 2)

	sub, err := h.Subscribe(context.Background(), TicketChannel("t1"), EventTicketApproved, func(m Message) { got <- m })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Equal(t, 0, h.Broadcast(TicketChannel("t1"), EventOCRCompleted, nil))
	assert.Equal(t, 0, h.Broadcast(TicketChannel("t2"), EventTicketApproved, nil))
	assert.Equal(t, 1, h.Broadcast(TicketChannel("t1"), EventTicketApproved, map[string]interface{}{"status": "approved"}))
	assert.Equal(t, "approved", receive(t, got).Payload["status"])
}

func TestHub_NoReplayForLateSubscribers(t *testing.T) {
	h := NewHub(WithAuthorizer(allowAll))
	assert.Equal(t, 0, h.Broadcast(TicketChannel("t1"), EventOCRCompleted, nil))

	got := make(chan Message, 1)
	sub, err := h.Subscribe(context.Background(), TicketChannel("t1"), EventOCRCompleted, func(m Message) { got <- m })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case <-got:
		t.Fatal("late subscriber must not receive earlier broadcast")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_PrivateChannelAuthorization(t *testing.T) {
	t.Run("no authorizer refuses private channels", func(t *testing.T) {
		h := NewHub()
		_, err := h.Subscribe(context.Background(), TicketChannel("t1"), EventOCRCompleted, func(Message) {})
		assert.ErrorIs(t, err, ErrForbidden)

		sub, err := h.Subscribe(context.Background(), "announcements", "notice", func(Message) {})
		require.NoError(t, err)
		sub.Unsubscribe()
	})

	t.Run("authorizer error is returned", func(t *testing.T) {
		h := NewHub(WithAuthorizer(func(ctx context.Context, channel string) error {
			return ErrForbidden
		}))
		_, err := h.Subscribe(context.Background(), TicketChannel("t1"), EventOCRCompleted, func(Message) {})
		assert.True(t, errors.Is(err, ErrForbidden))
		assert.Equal(t, 0, h.SubscriberCount(TicketChannel("t1"), EventOCRCompleted))
	})
}

func TestSubscription_UnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub(WithAuthorizer(allowAll))
	sub, err := h.Subscribe(context.Background(), TicketChannel("t1"), EventOCRCompleted, func(Message) {})
	require.NoError(t, err)
	assert.Equal(t, 1, h.SubscriberCount(TicketChannel("t1"), EventOCRCompleted))

	sub.Unsubscribe()
	sub.Unsubscribe()

	assert.Equal(t, 0, h.SubscriberCount(TicketChannel("t1"), EventOCRCompleted))
	assert.Equal(t, 0, h.Broadcast(TicketChannel("t1"), EventOCRCompleted, nil))
	<-sub.Done()
}

func TestHub_ContextCancellationReleases(t *testing.T) {
	h := NewHub(WithAuthorizer(allowAll))
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := h.Subscribe(ctx, TicketChannel("t1"), EventOCRCompleted, func(Message) {})
	require.NoError(t, err)

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not released on context cancel")
	}
	assert.Equal(t, 0, h.SubscriberCount(TicketChannel("t1"), EventOCRCompleted))
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(WithAuthorizer(allowAll), WithBuffer(1))
	release := make(chan struct{})
	var calls sync.WaitGroup
	calls.Add(1)
	first := true

	sub, err := h.Subscribe(context.Background(), TicketChannel("t1"), EventOCRCompleted, func(Message) {
		if first {
			first = false
			calls.Done()
			<-release
		}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	h.Broadcast(TicketChannel("t1"), EventOCRCompleted, nil)
	calls.Wait()

	// handler is blocked: one message fits the queue, the next is dropped
	assert.Equal(t, 1, h.Broadcast(TicketChannel("t1"), EventOCRCompleted, nil))
	assert.Equal(t, 0, h.Broadcast(TicketChannel("t1"), EventOCRCompleted, nil))
	assert.Equal(t, uint64(1), h.Dropped())
	close(release)
}

func TestHub_TapSeesEveryBroadcast(t *testing.T) {
	h := NewHub()
	var mu sync.Mutex
	var seen []string

	untap := h.Tap(func(m Message) {
		mu.Lock()
		seen = append(seen, m.Channel+"/"+m.Event)
		mu.Unlock()
	})

	h.Broadcast(TicketChannel("t1"), EventOCRCompleted, nil)
	h.Broadcast(TicketChannel("t2"), EventTicketApproved, nil)
	untap()
	untap()
	h.Broadcast(TicketChannel("t3"), EventTicketApproved, nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ticket:t1:ocr/ocr_completed", "ticket:t2:ocr/ticket_approved"}, seen)
}

func TestHub_Close(t *testing.T) {
	h := NewHub(WithAuthorizer(allowAll))
	sub, err := h.Subscribe(context.Background(), TicketChannel("t1"), EventOCRCompleted, func(Message) {})
	require.NoError(t, err)

	h.Close()
	<-sub.Done()

	_, err = h.Subscribe(context.Background(), TicketChannel("t1"), EventOCRCompleted, func(Message) {})
	assert.ErrorIs(t, err, ErrHubClosed)
	assert.Equal(t, 0, h.Broadcast(TicketChannel("t1"), EventOCRCompleted, nil))
}
