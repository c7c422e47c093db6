package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

func TestOCRService_Complete(t *testing.T) {
	f := newFixture(&entity.Ticket{ID: "t1", Status: "pending"})
	svc := f.ocrService()

	ticket, err := svc.Complete(context.Background(), "t1", entity.OCRExtraction{"tons": 18.5, "material": "Gravel"})
	require.NoError(t, err)
	assert.Equal(t, "ocr_completed", ticket.Status)

	stored := f.tickets.Get("t1")
	assert.Equal(t, "ocr_completed", stored.Status)
	assert.Equal(t, 18.5, stored.OCR["tons"])

	require.Len(t, f.history.Rows, 1)
	assert.Equal(t, entity.SystemActor, f.history.Rows[0].ActorID)
	assert.Equal(t, "material,tons", f.history.Rows[0].Detail)

	assert.Equal(t, []string{"ocr_completed", "ticket_updated"}, f.broadcaster.Events())
	assert.Equal(t, "ticket:t1:ocr", f.broadcaster.Sent[0].Channel)
}

func TestOCRService_CompleteAfterApprovalKeepsStatus(t *testing.T) {
	f := newFixture(&entity.Ticket{
		ID:     "t1",
		Status: "approved",
		OCR:    entity.OCRExtraction{"tons": 20.0, "plant": "North Pit"},
	})
	svc := f.ocrService()

	_, err := svc.Complete(context.Background(), "t1", entity.OCRExtraction{"tons": 21.0})
	require.NoError(t, err)

	stored := f.tickets.Get("t1")
	assert.Equal(t, "approved", stored.Status)
	assert.Equal(t, 21.0, stored.OCR["tons"])
	assert.Equal(t, "North Pit", stored.OCR["plant"])
	assert.Empty(t, f.history.Rows)
	assert.Equal(t, []string{"ocr_completed"}, f.broadcaster.Events())
}

func TestOCRService_ClosedTicketsRejectResults(t *testing.T) {
	for _, status := range []string{"paid", "cancelled"} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(&entity.Ticket{
				ID:        "t1",
				Status:    status,
				ImagePath: "tickets/2024-06-12/t1/scan.jpg",
				OCR:       entity.OCRExtraction{"tons": 20.0},
			})
			svc := f.ocrService()

			_, err := svc.Complete(context.Background(), "t1", entity.OCRExtraction{"tons": 99.0})
			assert.ErrorIs(t, err, ErrTicketLocked)

			_, err = svc.Resubmit(context.Background(), "t1", "manager-1")
			assert.ErrorIs(t, err, ErrTicketLocked)

			assert.Equal(t, 20.0, f.tickets.Get("t1").OCR["tons"])
			assert.Zero(t, f.tickets.Count("Update"))
			assert.Empty(t, f.extractor.Requests)
			assert.Empty(t, f.broadcaster.Sent)
		})
	}
}

func TestOCRService_CompleteMissing(t *testing.T) {
	svc := newFixture().ocrService()

	_, err := svc.Complete(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrNoTicketSelected)
	_, err = svc.Complete(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestOCRService_Resubmit(t *testing.T) {
	f := newFixture(&entity.Ticket{
		ID:        "t1",
		DriverID:  "drv-1",
		Status:    "pending",
		Material:  "Sand",
		Rate:      ptr(6),
		ImagePath: "tickets/2024-06-12/t1/scan.jpg",
	})
	f.extractor.ExtractFunc = func(ctx context.Context, req entity.OCRRequest) (*entity.OCRResponse, error) {
		return &entity.OCRResponse{Ticket: &entity.OCRTicket{Material: "Gravel", Quantity: ptr(5)}}, nil
	}
	svc := f.ocrService()

	ticket, err := svc.Resubmit(context.Background(), "t1", "manager-1")
	require.NoError(t, err)
	assert.Equal(t, "ocr_completed", ticket.Status)
	assert.Equal(t, "Sand", ticket.Material)
	assert.Equal(t, 30.0, *ticket.TotalAmount)
	assert.Equal(t, "https://files.test/tickets/2024-06-12/t1/scan.jpg?sig=test", f.extractor.Requests[0].FileURL)
}

func TestOCRService_ResubmitWithoutImage(t *testing.T) {
	f := newFixture(&entity.Ticket{ID: "t1", Status: "pending"})
	svc := f.ocrService()

	_, err := svc.Resubmit(context.Background(), "t1", "manager-1")
	assert.ErrorIs(t, err, ErrNoImage)
	assert.Empty(t, f.extractor.Requests)
}

func TestOCRService_RequestNoTicketObject(t *testing.T) {
	f := newFixture(&entity.Ticket{ID: "t1", Status: "pending", ImagePath: "tickets/x/t1/a.jpg"})
	svc := f.ocrService()

	ticket, err := svc.Resubmit(context.Background(), "t1", "manager-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", ticket.Status)
	assert.Zero(t, f.tickets.Count("Update"))
}
