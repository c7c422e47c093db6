package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

type recordingWriter struct {
	got *port.Statement
	err error
}

func (w *recordingWriter) Write(ctx context.Context, s *port.Statement) ([]byte, error) {
	w.got = s
	if w.err != nil {
		return nil, w.err
	}
	return []byte("xlsx"), nil
}

func (w *recordingWriter) ContentType() string { return "application/test" }

func TestPayrollService_Statement(t *testing.T) {
	at := func(day int) time.Time { return time.Date(2024, 6, day, 9, 0, 0, 0, time.UTC) }
	f := newFixture(
		&entity.Ticket{ID: "t1", DriverID: "drv-1", Status: "approved", Quantity: ptr(10), PayRate: ptr(2), CreatedAt: at(10)},
		&entity.Ticket{ID: "t2", DriverID: "drv-1", Status: "paid", Quantity: ptr(5), PayRate: ptr(2), CreatedAt: at(8)},
		&entity.Ticket{ID: "t3", DriverID: "drv-1", Status: "pending", Quantity: ptr(100), PayRate: ptr(2), CreatedAt: at(9)},
		&entity.Ticket{ID: "t4", DriverID: "drv-1", Status: "approved", Quantity: ptr(100), PayRate: ptr(2), CreatedAt: at(14)},
		&entity.Ticket{ID: "t5", DriverID: "drv-2", Status: "approved", Quantity: ptr(100), PayRate: ptr(2), CreatedAt: at(10)},
	)
	f.pays.Rows["t2"] = &entity.DriverPay{TicketID: "t2", DriverID: "drv-1", Amount: 12.34}
	f.refs.Drivers["drv-1"] = &entity.Driver{ID: "drv-1", Name: "Dana Ortiz"}
	writer := &recordingWriter{}
	svc := NewPayrollService(f.tickets, f.pays, f.refs, writer, f.gate, nil)

	file, err := svc.Statement(context.Background(), "", "drv-1", "2024-06-12")
	require.NoError(t, err)

	assert.Equal(t, "statement_drv-1_2024-06-07.xlsx", file.Name)
	assert.Equal(t, "application/test", file.ContentType)
	assert.Equal(t, []byte("xlsx"), file.Content)

	stmt := writer.got
	assert.Equal(t, "Dana Ortiz", stmt.DriverName)
	assert.Equal(t, "2024-06-13", stmt.WeekEnd)
	require.Len(t, stmt.Lines, 2)
	assert.Equal(t, "t2", stmt.Lines[0].Ticket.ID)
	assert.Equal(t, 12.34, stmt.Lines[0].Pay)
	assert.Equal(t, 20.0, stmt.Lines[1].Pay)
	assert.Equal(t, 32.34, stmt.Total)
}

func TestPayrollService_StatementErrors(t *testing.T) {
	f := newFixture()
	writer := &recordingWriter{err: errors.New("disk full")}
	svc := NewPayrollService(f.tickets, f.pays, f.refs, writer, f.gate, nil)

	_, err := svc.Statement(context.Background(), "", "", "2024-06-12")
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = svc.Statement(context.Background(), "", "drv-1", "June")
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = svc.Statement(context.Background(), "", "drv-1", "2024-06-12")
	assert.ErrorContains(t, err, "disk full")
}

func TestPayrollService_StatementUsesPickupDate(t *testing.T) {
	inWeek := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	f := newFixture(
		&entity.Ticket{ID: "late-upload", DriverID: "drv-1", Status: "approved", PickupDate: "2024-06-12", Quantity: ptr(1), PayRate: ptr(10), CreatedAt: inWeek.AddDate(0, 0, 7)},
		&entity.Ticket{ID: "last-week", DriverID: "drv-1", Status: "approved", PickupDate: "2024-06-06", Quantity: ptr(1), PayRate: ptr(10), CreatedAt: inWeek},
		&entity.Ticket{ID: "no-pickup", DriverID: "drv-1", Status: "approved", Quantity: ptr(1), PayRate: ptr(5), CreatedAt: inWeek},
	)
	writer := &recordingWriter{}
	svc := NewPayrollService(f.tickets, f.pays, f.refs, writer, f.gate, nil)

	_, err := svc.Statement(context.Background(), "", "drv-1", "2024-06-12")
	require.NoError(t, err)

	var ids []string
	for _, l := range writer.got.Lines {
		ids = append(ids, l.Ticket.ID)
	}
	assert.Equal(t, []string{"no-pickup", "late-upload"}, ids)
	assert.Equal(t, 15.0, writer.got.Total)
}

func TestPayrollService_StatementPagesThroughAllTickets(t *testing.T) {
	total := statementPageSize + 7
	tickets := make([]*entity.Ticket, 0, total)
	for i := 0; i < total; i++ {
		tickets = append(tickets, &entity.Ticket{
			ID:         fmt.Sprintf("t%04d", i),
			DriverID:   "drv-1",
			Status:     "approved",
			PickupDate: "2024-06-11",
			Quantity:   ptr(1),
			PayRate:    ptr(1),
		})
	}
	f := newFixture(tickets...)
	writer := &recordingWriter{}
	svc := NewPayrollService(f.tickets, f.pays, f.refs, writer, f.gate, nil)

	_, err := svc.Statement(context.Background(), "", "drv-1", "2024-06-12")
	require.NoError(t, err)

	assert.Len(t, writer.got.Lines, total)
	assert.Equal(t, float64(total), writer.got.Total)
	assert.Equal(t, 2, f.tickets.Count("List"))
}
