package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/realtime"
	"github.com/garyjia/ticket-workflow/internal/application/session"
	"github.com/garyjia/ticket-workflow/internal/application/ticketcache"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

func newTestServer(t *testing.T, hub *realtime.Hub, withSession bool, opts ...Option) *httptest.Server {
	t.Helper()
	provider := session.NewProvider(nil, hub, time.Hour)
	h := NewHandler(provider, Config{}, zap.NewNop(), opts...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if withSession {
			r = r.WithContext(session.WithSession(r.Context(), &entity.Session{UserID: "u1", OrganizationID: "org-1"}))
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func testHub() *realtime.Hub {
	return realtime.NewHub(realtime.WithAuthorizer(func(ctx context.Context, channel string) error {
		if channel == realtime.TicketChannel("t1") {
			return nil
		}
		return realtime.ErrForbidden
	}))
}

func TestHandler_SubscribeAndReceive(t *testing.T) {
	hub := testHub()
	conn := dial(t, newTestServer(t, hub, true))
	channel := realtime.TicketChannel("t1")

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", Channel: channel, Event: realtime.EventOCRCompleted}))
	var ack ServerMessage
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack.Type)

	hub.Broadcast(channel, realtime.EventOCRCompleted, map[string]interface{}{"fields": map[string]interface{}{"tons": 20}})

	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, channel, msg.Channel)
	assert.Equal(t, realtime.EventOCRCompleted, msg.Event)
	assert.Contains(t, msg.Payload, "fields")
	assert.False(t, msg.SentAt.IsZero())
}

func TestHandler_ForbiddenChannel(t *testing.T) {
	hub := testHub()
	conn := dial(t, newTestServer(t, hub, true))

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", Channel: realtime.TicketChannel("t2"), Event: realtime.EventOCRCompleted}))
	var reply ServerMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, realtime.ErrForbidden.Error(), reply.Error)
	assert.Zero(t, hub.SubscriberCount(realtime.TicketChannel("t2"), realtime.EventOCRCompleted))
}

func TestHandler_UnsubscribeAndDisconnectRelease(t *testing.T) {
	hub := testHub()
	conn := dial(t, newTestServer(t, hub, true))
	channel := realtime.TicketChannel("t1")

	for _, event := range []string{realtime.EventOCRCompleted, realtime.EventTicketApproved} {
		require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", Channel: channel, Event: event}))
		var ack ServerMessage
		require.NoError(t, conn.ReadJSON(&ack))
	}

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "unsubscribe", Channel: channel, Event: realtime.EventOCRCompleted}))
	var ack ServerMessage
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "unsubscribed", ack.Type)
	assert.Zero(t, hub.SubscriberCount(channel, realtime.EventOCRCompleted))
	assert.Equal(t, 1, hub.SubscriberCount(channel, realtime.EventTicketApproved))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return hub.SubscriberCount(channel, realtime.EventTicketApproved) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHandler_BadFrames(t *testing.T) {
	conn := dial(t, newTestServer(t, testHub(), true))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var reply ServerMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "invalid message", reply.Error)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "listen", Channel: "c", Event: "e"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "unknown action listen", reply.Error)
}

func TestHandler_RequiresSession(t *testing.T) {
	srv := newTestServer(t, testHub(), false)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_ReplaysCachedStateOnSubscribe(t *testing.T) {
	hub := testHub()
	cache := ticketcache.New()
	cache.Apply(ticketcache.Patch{TicketID: "t1", Status: "ocr_completed", Fields: map[string]interface{}{"tons": 20.0}})
	srv := newTestServer(t, hub, true, WithSnapshots(cache))
	channel := realtime.TicketChannel("t1")

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", Channel: channel, Event: realtime.EventOCRCompleted}))
	var ack ServerMessage
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack.Type)

	var snap realtime.Message
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, realtime.EventTicketSnapshot, snap.Event)
	assert.Equal(t, "ocr_completed", snap.Payload["status"])
	assert.Equal(t, 20.0, snap.Payload["fields"].(map[string]interface{})["tons"])

	// a client that already saw this state gets no replay
	since := time.Now().Add(time.Minute)
	again := dial(t, srv)
	require.NoError(t, again.WriteJSON(ClientMessage{Action: "subscribe", Channel: channel, Event: realtime.EventTicketUpdated, Since: &since}))
	require.NoError(t, again.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack.Type)

	hub.Broadcast(channel, realtime.EventTicketUpdated, map[string]interface{}{"status": "approved"})
	var next realtime.Message
	require.NoError(t, again.ReadJSON(&next))
	assert.Equal(t, realtime.EventTicketUpdated, next.Event)
}
