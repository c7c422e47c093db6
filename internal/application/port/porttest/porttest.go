// Package porttest provides in-memory port implementations for service tests.
package porttest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/domain/workflow"
)

// Calls counts method invocations by name
type Calls struct {
	mu sync.Mutex
	n  map[string]int
}

func (c *Calls) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = map[string]int{}
	}
	c.n[name]++
}

// Count returns how often name was called.
func (c *Calls) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[name]
}

// Total returns the number of calls to any method.
func (c *Calls) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, v := range c.n {
		total += v
	}
	return total
}

// TicketRepo stores tickets in a map. Func fields override the default behaviour.
type TicketRepo struct {
	Calls
	mu      sync.Mutex
	Tickets map[string]*entity.Ticket

	CreateFunc      func(ctx context.Context, t *entity.Ticket) error
	UpdateFunc      func(ctx context.Context, t *entity.Ticket) error
	UpdateFieldFunc func(ctx context.Context, id, column string, value interface{}) error
}

func NewTicketRepo(tickets ...*entity.Ticket) *TicketRepo {
	r := &TicketRepo{Tickets: map[string]*entity.Ticket{}}
	for _, t := range tickets {
		r.Tickets[t.ID] = t
	}
	return r
}

func clone(t *entity.Ticket) *entity.Ticket {
	c := *t
	if t.OCR != nil {
		c.OCR = t.OCR.Merge(nil)
	}
	return &c
}

func (r *TicketRepo) Create(ctx context.Context, t *entity.Ticket) error {
	r.add("Create")
	if r.CreateFunc != nil {
		if err := r.CreateFunc(ctx, t); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tickets[t.ID] = clone(t)
	return nil
}

func (r *TicketRepo) GetByID(ctx context.Context, id string) (*entity.Ticket, error) {
	r.add("GetByID")
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.Tickets[id]
	if !ok {
		return nil, nil
	}
	return clone(t), nil
}

func (r *TicketRepo) Update(ctx context.Context, t *entity.Ticket) error {
	r.add("Update")
	if r.UpdateFunc != nil {
		if err := r.UpdateFunc(ctx, t); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Tickets[t.ID]; !ok {
		return fmt.Errorf("ticket %s not found", t.ID)
	}
	r.Tickets[t.ID] = clone(t)
	return nil
}

func (r *TicketRepo) UpdateField(ctx context.Context, id, column string, value interface{}) error {
	r.add("UpdateField")
	if r.UpdateFieldFunc != nil {
		return r.UpdateFieldFunc(ctx, id, column, value)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.Tickets[id]
	if !ok {
		return fmt.Errorf("ticket %s not found", id)
	}
	num, _ := value.(*float64)
	switch column {
	case "quantity_final":
		t.QuantityFinal = num
	case "pay_rate":
		t.PayRate = num
	case "pay_percentage":
		t.PayPercentage = num
	case "pay_method":
		t.PayMethod, _ = value.(string)
	case "notes":
		t.Notes, _ = value.(string)
	default:
		return fmt.Errorf("unknown column %s", column)
	}
	return nil
}

func (r *TicketRepo) UpdateStatus(ctx context.Context, id, status string) error {
	r.add("UpdateStatus")
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.Tickets[id]
	if !ok {
		return fmt.Errorf("ticket %s not found", id)
	}
	t.Status = status
	return nil
}

func (r *TicketRepo) List(ctx context.Context, f entity.TicketFilter) ([]*entity.Ticket, error) {
	r.add("List")
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Ticket
	for _, t := range r.Tickets {
		if f.OrganizationID != "" && t.OrganizationID != f.OrganizationID {
			continue
		}
		if f.DriverID != "" && t.DriverID != f.DriverID {
			continue
		}
		if len(f.Statuses) > 0 && !contains(f.Statuses, t.Status) {
			continue
		}
		if f.From != nil && t.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && t.CreatedAt.After(*f.To) {
			continue
		}
		if !t.WorkedWithin(f.WorkFrom, f.WorkTo) {
			continue
		}
		out = append(out, clone(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *TicketRepo) CountByLoad(ctx context.Context, loadID string) (int, int, error) {
	r.add("CountByLoad")
	r.mu.Lock()
	defer r.mu.Unlock()
	total, approved := 0, 0
	for _, t := range r.Tickets {
		if t.LoadID != loadID || t.Status == workflow.StateCancelled.String() {
			continue
		}
		total++
		if workflow.State(t.Status).IsApprovedOrLater() {
			approved++
		}
	}
	return total, approved, nil
}

// Get returns the stored row without counting a call.
func (r *TicketRepo) Get(id string) *entity.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.Tickets[id]; ok {
		return clone(t)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// HistoryRepo appends history rows
type HistoryRepo struct {
	Calls
	mu        sync.Mutex
	Rows      []*entity.TicketHistory
	CreateErr error
}

func (r *HistoryRepo) Create(ctx context.Context, h *entity.TicketHistory) error {
	r.add("Create")
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h.ID = int64(len(r.Rows) + 1)
	r.Rows = append(r.Rows, h)
	return nil
}

func (r *HistoryRepo) GetByTicketID(ctx context.Context, ticketID string) ([]*entity.TicketHistory, error) {
	r.add("GetByTicketID")
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.TicketHistory
	for _, h := range r.Rows {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

// DriverPayRepo keeps one pay row per ticket
type DriverPayRepo struct {
	Calls
	mu         sync.Mutex
	Rows       map[string]*entity.DriverPay
	UpsertFunc func(ctx context.Context, p *entity.DriverPay) error
}

func NewDriverPayRepo() *DriverPayRepo {
	return &DriverPayRepo{Rows: map[string]*entity.DriverPay{}}
}

func (r *DriverPayRepo) Upsert(ctx context.Context, p *entity.DriverPay) error {
	r.add("Upsert")
	if r.UpsertFunc != nil {
		if err := r.UpsertFunc(ctx, p); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *p
	r.Rows[p.TicketID] = &copied
	return nil
}

func (r *DriverPayRepo) GetByTicketID(ctx context.Context, ticketID string) (*entity.DriverPay, error) {
	r.add("GetByTicketID")
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Rows[ticketID], nil
}

func (r *DriverPayRepo) ListByDriver(ctx context.Context, driverID string, from, to time.Time) ([]*entity.DriverPay, error) {
	r.add("ListByDriver")
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.DriverPay
	for _, p := range r.Rows {
		if p.DriverID == driverID && !p.CalculatedAt.Before(from) && !p.CalculatedAt.After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

// LoadRepo stores loads in a map
type LoadRepo struct {
	Calls
	mu    sync.Mutex
	Loads map[string]*entity.Load
}

func NewLoadRepo(loads ...*entity.Load) *LoadRepo {
	r := &LoadRepo{Loads: map[string]*entity.Load{}}
	for _, l := range loads {
		r.Loads[l.ID] = l
	}
	return r
}

func (r *LoadRepo) GetByID(ctx context.Context, id string) (*entity.Load, error) {
	r.add("GetByID")
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.Loads[id]
	if !ok {
		return nil, nil
	}
	copied := *l
	return &copied, nil
}

func (r *LoadRepo) UpdateStatus(ctx context.Context, id, status string) error {
	r.add("UpdateStatus")
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.Loads[id]
	if !ok {
		return fmt.Errorf("load %s not found", id)
	}
	l.Status = status
	return nil
}

// ReferenceRepo serves drivers, trucks and customers from memory
type ReferenceRepo struct {
	Drivers   map[string]*entity.Driver
	Trucks    map[string]*entity.Truck
	Customers []entity.Customer
}

func (r *ReferenceRepo) GetDriver(ctx context.Context, id string) (*entity.Driver, error) {
	return r.Drivers[id], nil
}

func (r *ReferenceRepo) GetTruck(ctx context.Context, id string) (*entity.Truck, error) {
	return r.Trucks[id], nil
}

func (r *ReferenceRepo) DriverNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if d, ok := r.Drivers[id]; ok {
			out[id] = d.Name
		}
	}
	return out, nil
}

func (r *ReferenceRepo) ListCustomers(ctx context.Context, organizationID string) ([]entity.Customer, error) {
	var out []entity.Customer
	for _, c := range r.Customers {
		if c.OrganizationID == organizationID {
			out = append(out, c)
		}
	}
	return out, nil
}

// TxManager runs fn directly. Err, when set, is returned instead of calling fn.
// Writes are not rolled back.
type TxManager struct {
	Calls
	Err error
}

func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.add("WithTransaction")
	if m.Err != nil {
		return m.Err
	}
	return fn(ctx)
}

// Broadcast is one recorded broadcast
type Broadcast struct {
	Channel string
	Event   string
	Payload map[string]interface{}
}

// Broadcaster records broadcasts
type Broadcaster struct {
	mu   sync.Mutex
	Sent []Broadcast
}

func (b *Broadcaster) Broadcast(channel, event string, payload map[string]interface{}) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Sent = append(b.Sent, Broadcast{Channel: channel, Event: event, Payload: payload})
	return 1
}

// Events returns the recorded event names in order.
func (b *Broadcaster) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.Sent))
	for i, s := range b.Sent {
		out[i] = s.Event
	}
	return out
}

// Alerter records alerts
type Alerter struct {
	mu     sync.Mutex
	Alerts []port.Alert
}

func (a *Alerter) Alert(ctx context.Context, alert port.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Alerts = append(a.Alerts, alert)
	return nil
}

// Storage keeps objects in memory
type Storage struct {
	Calls
	mu      sync.Mutex
	Objects map[string][]byte
	SaveErr error
}

func NewStorage() *Storage {
	return &Storage{Objects: map[string][]byte{}}
}

func (s *Storage) Save(ctx context.Context, path string, content []byte) error {
	s.add("Save")
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Objects[path] = append([]byte(nil), content...)
	return nil
}

func (s *Storage) Read(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Objects[path]
	if !ok {
		return nil, errors.New("object not found")
	}
	return b, nil
}

func (s *Storage) Exists(ctx context.Context, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Objects[path]
	return ok
}

func (s *Storage) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Objects, path)
	return nil
}

func (s *Storage) SignedURL(path string, ttl time.Duration) (string, error) {
	return "https://files.test/" + path + "?sig=test", nil
}

// OCRExtractor delegates to ExtractFunc and records requests
type OCRExtractor struct {
	mu          sync.Mutex
	Requests    []entity.OCRRequest
	ExtractFunc func(ctx context.Context, req entity.OCRRequest) (*entity.OCRResponse, error)
}

func (o *OCRExtractor) Extract(ctx context.Context, req entity.OCRRequest) (*entity.OCRResponse, error) {
	o.mu.Lock()
	o.Requests = append(o.Requests, req)
	o.mu.Unlock()
	if o.ExtractFunc == nil {
		return &entity.OCRResponse{}, nil
	}
	return o.ExtractFunc(ctx, req)
}

var (
	_ port.TicketRepository    = (*TicketRepo)(nil)
	_ port.HistoryRepository   = (*HistoryRepo)(nil)
	_ port.DriverPayRepository = (*DriverPayRepo)(nil)
	_ port.LoadRepository      = (*LoadRepo)(nil)
	_ port.ReferenceRepository = (*ReferenceRepo)(nil)
	_ port.TransactionManager  = (*TxManager)(nil)
	_ port.Broadcaster         = (*Broadcaster)(nil)
	_ port.Alerter             = (*Alerter)(nil)
	_ port.ObjectStorage       = (*Storage)(nil)
	_ port.OCRExtractor        = (*OCRExtractor)(nil)
)
