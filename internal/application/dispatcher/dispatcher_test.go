package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/ticket-workflow/internal/domain/event"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func newEvent(t event.Type) *event.Event {
	return event.NewEvent(t, "ticket-1", "org-1", nil)
}

func TestSubscribe(t *testing.T) {
	t.Run("calls handlers in registration order", func(t *testing.T) {
		d := NewDispatcher()
		var order []string

		d.Subscribe(event.TypeTicketApproved, "first", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "first")
			return nil
		})
		d.Subscribe(event.TypeTicketApproved, "second", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "second")
			return nil
		})

		if err := d.Dispatch(context.Background(), newEvent(event.TypeTicketApproved)); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if len(order) != 2 || order[0] != "first" || order[1] != "second" {
			t.Errorf("unexpected call order %v", order)
		}
	})

	t.Run("generates a name when empty", func(t *testing.T) {
		d := NewDispatcher()
		d.Subscribe(event.TypeTicketCreated, "", func(ctx context.Context, evt *event.Event) error { return nil })

		handlers := d.ListHandlers(event.TypeTicketCreated)
		if len(handlers) != 1 || handlers[0].Name != "ticket.created-0" {
			t.Errorf("unexpected handlers %+v", handlers)
		}
		if handlers[0].Handler != nil {
			t.Error("ListHandlers should not expose handler funcs")
		}
	})

	t.Run("any type receives every event", func(t *testing.T) {
		d := NewDispatcher()
		var seen []event.Type

		d.Subscribe(AnyType, "audit", func(ctx context.Context, evt *event.Event) error {
			seen = append(seen, evt.Type)
			return nil
		})

		_ = d.Dispatch(context.Background(), newEvent(event.TypeTicketCreated))
		_ = d.Dispatch(context.Background(), newEvent(event.TypeStatusChanged))

		if len(seen) != 2 {
			t.Errorf("expected 2 events, got %v", seen)
		}
	})
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	var called1, called2 bool

	d.Subscribe(event.TypeFieldUpdated, "one", func(ctx context.Context, evt *event.Event) error {
		called1 = true
		return nil
	})
	d.Subscribe(event.TypeFieldUpdated, "two", func(ctx context.Context, evt *event.Event) error {
		called2 = true
		return nil
	})

	d.Unsubscribe(event.TypeFieldUpdated, "one")

	if err := d.Dispatch(context.Background(), newEvent(event.TypeFieldUpdated)); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if called1 {
		t.Error("expected removed handler not to be called")
	}
	if !called2 {
		t.Error("expected remaining handler to be called")
	}
}

func TestDispatch(t *testing.T) {
	t.Run("runs every handler and joins errors", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		errA := errors.New("a failed")
		ranLast := false

		d.Subscribe(event.TypeTicketApproved, "a", func(ctx context.Context, evt *event.Event) error { return errA })
		d.Subscribe(event.TypeTicketApproved, "b", func(ctx context.Context, evt *event.Event) error {
			ranLast = true
			return nil
		})

		err := d.Dispatch(context.Background(), newEvent(event.TypeTicketApproved))
		if !errors.Is(err, errA) {
			t.Fatalf("expected joined error to wrap errA, got %v", err)
		}
		if !ranLast {
			t.Error("expected handler after failing one to run")
		}
		if logger.ErrorCount() != 1 {
			t.Errorf("expected 1 logged error, got %d", logger.ErrorCount())
		}
	})

	t.Run("recovers handler panics", func(t *testing.T) {
		d := NewDispatcher()
		d.Subscribe(event.TypeTicketCreated, "boom", func(ctx context.Context, evt *event.Event) error {
			panic("boom")
		})

		if err := d.Dispatch(context.Background(), newEvent(event.TypeTicketCreated)); err == nil {
			t.Fatal("expected panic to surface as error")
		}
	})

	t.Run("no handlers is not an error", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Dispatch(context.Background(), newEvent(event.TypeOCRFailed)); err != nil {
			t.Errorf("unexpected error %v", err)
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("handlers outlive a cancelled request context", func(t *testing.T) {
		d := NewDispatcher()
		var ctxErr atomic.Value
		done := make(chan struct{})

		d.Subscribe(event.TypeTicketApproved, "slow", func(ctx context.Context, evt *event.Event) error {
			time.Sleep(10 * time.Millisecond)
			if ctx.Err() != nil {
				ctxErr.Store(ctx.Err())
			}
			close(done)
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		d.DispatchAsync(ctx, newEvent(event.TypeTicketApproved))
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("async handler did not run")
		}
		if ctxErr.Load() != nil {
			t.Errorf("expected detached context, got %v", ctxErr.Load())
		}
	})

	t.Run("close waits for in-flight handlers", func(t *testing.T) {
		d := NewDispatcher()
		var finished atomic.Bool

		d.Subscribe(event.TypeTicketCreated, "slow", func(ctx context.Context, evt *event.Event) error {
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
			return nil
		})

		d.DispatchAsync(context.Background(), newEvent(event.TypeTicketCreated))
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if !finished.Load() {
			t.Error("expected Close to wait for async handler")
		}
	})
}

func TestClose(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	if err := d.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := d.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on second close, got %v", err)
	}
	if err := d.Dispatch(context.Background(), newEvent(event.TypeTicketCreated)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Dispatch, got %v", err)
	}

	d.DispatchAsync(context.Background(), newEvent(event.TypeTicketCreated))
	if logger.ErrorCount() != 1 {
		t.Errorf("expected dropped async event to be logged, got %d", logger.ErrorCount())
	}
}
