package service

import (
	"time"

	"github.com/garyjia/ticket-workflow/internal/application/port/porttest"
	appworkflow "github.com/garyjia/ticket-workflow/internal/application/workflow"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/domain/payweek"
)

// 2024-06-12 is a Wednesday; its pay week runs 2024-06-07 through 2024-06-13.
var testNow = time.Date(2024, 6, 12, 15, 30, 0, 0, time.UTC)

type fixture struct {
	tickets     *porttest.TicketRepo
	history     *porttest.HistoryRepo
	pays        *porttest.DriverPayRepo
	loads       *porttest.LoadRepo
	refs        *porttest.ReferenceRepo
	tx          *porttest.TxManager
	storage     *porttest.Storage
	extractor   *porttest.OCRExtractor
	broadcaster *porttest.Broadcaster
	alerter     *porttest.Alerter
	engine      appworkflow.Engine
	gate        *payweek.Gate
}

func newFixture(tickets ...*entity.Ticket) *fixture {
	f := &fixture{
		tickets:     porttest.NewTicketRepo(tickets...),
		history:     &porttest.HistoryRepo{},
		pays:        porttest.NewDriverPayRepo(),
		loads:       porttest.NewLoadRepo(),
		refs:        &porttest.ReferenceRepo{Drivers: map[string]*entity.Driver{}},
		tx:          &porttest.TxManager{},
		storage:     porttest.NewStorage(),
		extractor:   &porttest.OCRExtractor{},
		broadcaster: &porttest.Broadcaster{},
		alerter:     &porttest.Alerter{},
		gate:        &payweek.Gate{Location: time.UTC},
	}
	f.engine = appworkflow.NewEngine(f.tickets, f.history, f.tx,
		appworkflow.WithBroadcaster(f.broadcaster),
		appworkflow.WithClock(func() time.Time { return testNow }),
	)
	return f
}

func (f *fixture) ocrService() OCRService {
	return NewOCRService(f.tickets, f.tx, f.storage, f.extractor, f.engine, f.broadcaster, nil, time.Minute, nil)
}

func (f *fixture) ticketService() TicketService {
	return NewTicketService(f.tickets, f.history, f.tx, f.storage, f.ocrService(), f.engine, f.gate, nil, nil)
}

func (f *fixture) approvalService(retry RetryPolicy) ApprovalService {
	return NewApprovalService(f.tickets, f.pays, f.loads, f.tx, f.engine, f.broadcaster, f.alerter, nil, retry, nil)
}

func (f *fixture) reviewService() ReviewService {
	return NewReviewService(f.tickets, f.history, f.refs, f.tx, f.broadcaster, nil, nil)
}

func ptr(v float64) *float64 { return &v }
