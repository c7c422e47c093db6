// Package ticketcache keeps an in-memory view of ticket rows that is patched
// from realtime broadcasts and periodically reloaded from the store.
package ticketcache

import (
	"sort"
	"sync"
	"time"

	"github.com/garyjia/ticket-workflow/internal/application/realtime"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/domain/workflow"
)

// Patch is one reducer input
type Patch struct {
	TicketID string
	Status   string
	Fields   map[string]interface{}
}

// Entry is the cached view of a ticket
type Entry struct {
	TicketID  string                 `json:"ticket_id"`
	Status    string                 `json:"status"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Cache is safe for concurrent use
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	loaded  time.Time
	now     func() time.Time
}

// entry remembers when each value last changed so a slower snapshot cannot
// overwrite a newer patch.
type entry struct {
	Entry
	statusAt time.Time
	fieldAt  map[string]time.Time
}

func newEntry(id string) *entry {
	return &entry{
		Entry:   Entry{TicketID: id, Fields: map[string]interface{}{}},
		fieldAt: map[string]time.Time{},
	}
}

func New() *Cache {
	return &Cache{entries: make(map[string]*entry), now: time.Now}
}

// Now is the cache clock. Callers read it before querying the store and pass
// it to Load as the snapshot time.
func (c *Cache) Now() time.Time {
	return c.now()
}

// Apply merges p into the entry for p.TicketID, creating it if needed.
// An empty Status keeps the current one. Fields are merged key by key.
func (c *Cache) Apply(p Patch) {
	if p.TicketID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[p.TicketID]
	if !ok {
		e = newEntry(p.TicketID)
		c.entries[p.TicketID] = e
	}
	if p.Status != "" {
		e.Status = p.Status
		e.statusAt = now
	}
	for k, v := range p.Fields {
		e.Fields[k] = v
		e.fieldAt[k] = now
	}
	e.UpdatedAt = now
}

// Load replaces the cache with rows read from the store at asOf. Values
// patched after asOf are newer than the rows and are kept on top of them.
func (c *Cache) Load(tickets []*entity.Ticket, asOf time.Time) {
	entries := make(map[string]*entry, len(tickets))
	for _, t := range tickets {
		e := newEntry(t.ID)
		e.Status = t.Status
		e.statusAt = asOf
		for k, v := range t.OCR {
			e.Fields[k] = v
			e.fieldAt[k] = asOf
		}
		e.UpdatedAt = asOf
		entries[t.ID] = e
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, old := range c.entries {
		if !old.UpdatedAt.After(asOf) {
			continue
		}
		e, ok := entries[id]
		if !ok {
			e = newEntry(id)
			entries[id] = e
		}
		if old.statusAt.After(asOf) {
			e.Status = old.Status
			e.statusAt = old.statusAt
		}
		for k, at := range old.fieldAt {
			if at.After(asOf) {
				e.Fields[k] = old.Fields[k]
				e.fieldAt[k] = at
			}
		}
		e.UpdatedAt = old.UpdatedAt
	}
	c.entries = entries
	c.loaded = asOf
}

// Get returns a copy of the entry.
func (c *Cache) Get(ticketID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[ticketID]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// List returns copies of every entry with the given status, or all when status is empty, sorted by id.
func (c *Cache) List(status string) []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if status == "" || e.Status == status {
			out = append(out, copyEntry(e))
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TicketID < out[j].TicketID })
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LoadedAt returns the snapshot time of the last Load.
func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Attach feeds every hub broadcast through PatchFromMessage into the cache.
func (c *Cache) Attach(h *realtime.Hub) (detach func()) {
	return h.Tap(func(m realtime.Message) {
		if p, ok := PatchFromMessage(m); ok {
			c.Apply(p)
		}
	})
}

// PatchFromMessage maps a ticket channel broadcast to a reducer patch.
func PatchFromMessage(m realtime.Message) (Patch, bool) {
	id, ok := realtime.TicketIDFromChannel(m.Channel)
	if !ok {
		return Patch{}, false
	}

	switch m.Event {
	case realtime.EventOCRCompleted:
		fields, _ := m.Payload["fields"].(map[string]interface{})
		status, _ := m.Payload["status"].(string)
		if status == "" {
			status = workflow.StateOCRCompleted.String()
		}
		return Patch{TicketID: id, Status: status, Fields: fields}, true

	case realtime.EventTicketApproved, realtime.EventTicketUpdated:
		p := Patch{TicketID: id}
		if s, ok := m.Payload["status"].(string); ok {
			p.Status = s
		}
		if fields, ok := m.Payload["fields"].(map[string]interface{}); ok {
			p.Fields = fields
		}
		return p, true
	}
	return Patch{}, false
}

func copyEntry(e *entry) Entry {
	out := e.Entry
	out.Fields = make(map[string]interface{}, len(e.Fields))
	for k, v := range e.Fields {
		out.Fields[k] = v
	}
	return out
}
