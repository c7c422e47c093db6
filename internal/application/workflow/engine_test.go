package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/ticket-workflow/internal/application/dispatcher"
	"github.com/garyjia/ticket-workflow/internal/application/port/porttest"
	"github.com/garyjia/ticket-workflow/internal/application/realtime"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/domain/event"
	domainwf "github.com/garyjia/ticket-workflow/internal/domain/workflow"
)

var fixedNow = time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)

func newTestEngine(tickets *porttest.TicketRepo, history *porttest.HistoryRepo, opts ...EngineOption) Engine {
	opts = append(opts, WithClock(func() time.Time { return fixedNow }))
	return NewEngine(tickets, history, &porttest.TxManager{}, opts...)
}

func TestEngine_Fire(t *testing.T) {
	history := &porttest.HistoryRepo{}
	e := newTestEngine(porttest.NewTicketRepo(), history)
	ticket := &entity.Ticket{ID: "t1", Status: "pending"}

	prev, err := e.Fire(context.Background(), ticket, domainwf.TriggerCompleteOCR, "", "ocr callback")
	require.NoError(t, err)

	assert.Equal(t, domainwf.StatePending, prev)
	assert.Equal(t, "ocr_completed", ticket.Status)
	assert.Equal(t, fixedNow, ticket.UpdatedAt)
	require.Len(t, history.Rows, 1)
	assert.Equal(t, entity.SystemActor, history.Rows[0].ActorID)
	assert.Equal(t, "COMPLETE_OCR", history.Rows[0].Action)
	assert.Equal(t, "ocr callback", history.Rows[0].Detail)
}

func TestEngine_FireInvalid(t *testing.T) {
	history := &porttest.HistoryRepo{}
	e := newTestEngine(porttest.NewTicketRepo(), history)
	ticket := &entity.Ticket{ID: "t1", Status: "paid"}

	_, err := e.Fire(context.Background(), ticket, domainwf.TriggerCancel, "u1", "")
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)
	assert.Equal(t, "paid", ticket.Status)
	assert.Empty(t, history.Rows)

	ticket.Status = "archived"
	_, err = e.Fire(context.Background(), ticket, domainwf.TriggerCancel, "u1", "")
	assert.ErrorIs(t, err, domainwf.ErrInvalidState)
}

func TestEngine_Transition(t *testing.T) {
	tickets := porttest.NewTicketRepo(&entity.Ticket{ID: "t1", OrganizationID: "org-1", Status: "approved"})
	history := &porttest.HistoryRepo{}
	broadcaster := &porttest.Broadcaster{}
	d := dispatcher.NewDispatcher()
	seen := make(chan *event.Event, 1)
	d.Subscribe(event.TypeStatusChanged, "test", func(ctx context.Context, evt *event.Event) error {
		seen <- evt
		return nil
	})

	e := newTestEngine(tickets, history, WithDispatcher(d), WithBroadcaster(broadcaster))

	got, err := e.Transition(context.Background(), "t1", domainwf.TriggerInvoice, "manager-1")
	require.NoError(t, err)

	assert.Equal(t, "invoiced", got.Status)
	assert.Equal(t, "invoiced", tickets.Get("t1").Status)
	require.Len(t, history.Rows, 1)
	assert.Equal(t, "manager-1", history.Rows[0].ActorID)
	assert.Equal(t, "approved", history.Rows[0].PreviousStatus)

	require.Len(t, broadcaster.Sent, 1)
	assert.Equal(t, realtime.TicketChannel("t1"), broadcaster.Sent[0].Channel)
	assert.Equal(t, realtime.EventTicketUpdated, broadcaster.Sent[0].Event)
	assert.Equal(t, "invoiced", broadcaster.Sent[0].Payload["status"])

	select {
	case evt := <-seen:
		assert.Equal(t, "approved", evt.GetPayloadString("previous_status"))
		assert.Equal(t, "invoiced", evt.GetPayloadString("new_status"))
		assert.Equal(t, "org-1", evt.OrganizationID)
	case <-time.After(time.Second):
		t.Fatal("status changed event not dispatched")
	}
}

func TestEngine_TransitionNotFound(t *testing.T) {
	e := newTestEngine(porttest.NewTicketRepo(), &porttest.HistoryRepo{})

	_, err := e.Transition(context.Background(), "missing", domainwf.TriggerPay, "u1")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestEngine_TransitionRejectedLeavesRowUntouched(t *testing.T) {
	tickets := porttest.NewTicketRepo(&entity.Ticket{ID: "t1", Status: "pending"})
	broadcaster := &porttest.Broadcaster{}
	e := newTestEngine(tickets, &porttest.HistoryRepo{}, WithBroadcaster(broadcaster))

	_, err := e.Transition(context.Background(), "t1", domainwf.TriggerPay, "u1")
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)
	assert.Equal(t, "pending", tickets.Get("t1").Status)
	assert.Zero(t, tickets.Count("UpdateStatus"))
	assert.Empty(t, broadcaster.Sent)
}

func TestEngine_TransitionTransactionFailure(t *testing.T) {
	tickets := porttest.NewTicketRepo(&entity.Ticket{ID: "t1", Status: "approved"})
	txErr := errors.New("database is locked")
	e := NewEngine(tickets, &porttest.HistoryRepo{}, &porttest.TxManager{Err: txErr})

	_, err := e.Transition(context.Background(), "t1", domainwf.TriggerInvoice, "u1")
	assert.ErrorIs(t, err, txErr)
}

func TestEngine_TransitionHistoryFailure(t *testing.T) {
	tickets := porttest.NewTicketRepo(&entity.Ticket{ID: "t1", Status: "approved"})
	history := &porttest.HistoryRepo{CreateErr: errors.New("disk full")}
	e := newTestEngine(tickets, history)

	_, err := e.Transition(context.Background(), "t1", domainwf.TriggerInvoice, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history")
	assert.Zero(t, tickets.Count("UpdateStatus"))
}
