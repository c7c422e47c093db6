package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/garyjia/ticket-workflow/internal/application/dispatcher"
	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/application/realtime"
	appworkflow "github.com/garyjia/ticket-workflow/internal/application/workflow"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/domain/event"
	domainwf "github.com/garyjia/ticket-workflow/internal/domain/workflow"
)

// OCRService runs extraction for stored ticket images and ingests results
type OCRService interface {
	// Request signs the ticket image URL and calls the extractor.
	Request(ctx context.Context, ticket *entity.Ticket) (*entity.OCRResponse, error)

	// Attach merges fields into the ticket's extraction, advances a pending
	// ticket to ocr_completed and saves the row. The ticket may carry other
	// unsaved column changes; they are saved too.
	Attach(ctx context.Context, ticket *entity.Ticket, fields entity.OCRExtraction, actor string) error

	// Complete ingests a result pushed by the external OCR job.
	Complete(ctx context.Context, ticketID string, fields entity.OCRExtraction) (*entity.Ticket, error)

	// Resubmit re-runs extraction against the stored image, filling blank columns.
	Resubmit(ctx context.Context, ticketID, actor string) (*entity.Ticket, error)
}

type ocrServiceImpl struct {
	ticketRepo  port.TicketRepository
	txManager   port.TransactionManager
	storage     port.ObjectStorage
	extractor   port.OCRExtractor
	engine      appworkflow.Engine
	broadcaster port.Broadcaster
	dispatcher  dispatcher.Dispatcher
	urlTTL      time.Duration
	logger      Logger
}

// NewOCRService creates a new OCRService
func NewOCRService(
	ticketRepo port.TicketRepository,
	txManager port.TransactionManager,
	storage port.ObjectStorage,
	extractor port.OCRExtractor,
	engine appworkflow.Engine,
	broadcaster port.Broadcaster,
	d dispatcher.Dispatcher,
	urlTTL time.Duration,
	logger Logger,
) OCRService {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &ocrServiceImpl{
		ticketRepo:  ticketRepo,
		txManager:   txManager,
		storage:     storage,
		extractor:   extractor,
		engine:      engine,
		broadcaster: broadcaster,
		dispatcher:  d,
		urlTTL:      urlTTL,
		logger:      orNop(logger),
	}
}

func (s *ocrServiceImpl) Request(ctx context.Context, ticket *entity.Ticket) (*entity.OCRResponse, error) {
	if ticket.ImagePath == "" {
		return nil, ErrNoImage
	}

	url, err := s.storage.SignedURL(ticket.ImagePath, s.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: sign image url: %v", ErrOCRFailed, err)
	}

	resp, err := s.extractor.Extract(ctx, entity.OCRRequest{
		Kind:     "ticket",
		FileURL:  url,
		DriverID: ticket.DriverID,
	})
	if err != nil {
		s.logger.Error("OCR extraction failed", "ticket_id", ticket.ID, "error", err)
		if s.dispatcher != nil {
			s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeOCRFailed, ticket.ID, ticket.OrganizationID,
				map[string]interface{}{"error": err.Error()}))
		}
		return nil, fmt.Errorf("%w: %v", ErrOCRFailed, err)
	}
	return resp, nil
}

func (s *ocrServiceImpl) Attach(ctx context.Context, ticket *entity.Ticket, fields entity.OCRExtraction, actor string) error {
	if domainwf.State(ticket.Status).IsTerminal() {
		s.logger.Info("OCR result ignored for closed ticket", "ticket_id", ticket.ID, "status", ticket.Status)
		return ErrTicketLocked
	}

	var (
		previous domainwf.State
		advanced bool
	)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ticket.OCR = ticket.OCR.Merge(fields)

		if domainwf.State(ticket.Status) == domainwf.StatePending {
			var err error
			previous, err = s.engine.Fire(txCtx, ticket, domainwf.TriggerCompleteOCR, actor, strings.Join(fieldNames(fields), ","))
			if err != nil {
				return err
			}
			advanced = true
		}

		if err := s.ticketRepo.Update(txCtx, ticket); err != nil {
			return fmt.Errorf("failed to save extraction: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"fields": map[string]interface{}(fields),
		"status": ticket.Status,
	}
	s.broadcaster.Broadcast(realtime.TicketChannel(ticket.ID), realtime.EventOCRCompleted, payload)

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeOCRCompleted, ticket.ID, ticket.OrganizationID,
			map[string]interface{}{"fields": fieldNames(fields)}))
	}
	if advanced {
		s.engine.Announce(ctx, ticket, previous, domainwf.TriggerCompleteOCR)
	}

	s.logger.Info("OCR extraction attached", "ticket_id", ticket.ID, "field_count", len(fields), "status", ticket.Status)
	return nil
}

func (s *ocrServiceImpl) Complete(ctx context.Context, ticketID string, fields entity.OCRExtraction) (*entity.Ticket, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, ErrNoTicketSelected
	}

	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticket: %w", err)
	}
	if ticket == nil {
		return nil, ErrTicketNotFound
	}

	if err := s.Attach(ctx, ticket, fields, entity.SystemActor); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *ocrServiceImpl) Resubmit(ctx context.Context, ticketID, actor string) (*entity.Ticket, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, ErrNoTicketSelected
	}

	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticket: %w", err)
	}
	if ticket == nil {
		return nil, ErrTicketNotFound
	}
	if domainwf.State(ticket.Status).IsTerminal() {
		return nil, ErrTicketLocked
	}

	resp, err := s.Request(ctx, ticket)
	if err != nil {
		return ticket, err
	}
	if resp == nil || resp.Ticket == nil {
		s.logger.Info("OCR returned no ticket", "ticket_id", ticket.ID)
		return ticket, nil
	}

	form := entity.FormFromTicket(ticket)
	filled := form.MergeOCR(resp)
	form.Apply(ticket)
	if containsString(filled, "quantity") {
		recomputeTotal(ticket)
	}

	if err := s.Attach(ctx, ticket, resp.Ticket.Extraction(), actor); err != nil {
		return nil, err
	}
	return ticket, nil
}

func fieldNames(x entity.OCRExtraction) []string {
	names := make([]string, 0, len(x))
	for k := range x {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
