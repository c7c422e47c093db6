package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/port/porttest"
	"github.com/garyjia/ticket-workflow/internal/application/ticketcache"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

type stubWorker struct {
	name     string
	startErr error
	stopErr  error
	started  bool
	stopped  bool
}

func (w *stubWorker) Start(ctx context.Context) error {
	w.started = true
	return w.startErr
}

func (w *stubWorker) Stop() error {
	w.stopped = true
	return w.stopErr
}

func (w *stubWorker) Name() string { return w.name }

func TestWorkerManager_Lifecycle(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	a := &stubWorker{name: "a", startErr: errors.New("no")}
	b := &stubWorker{name: "b"}
	m.Register(a)
	m.Register(b)

	assert.Equal(t, []string{"a", "b"}, m.Workers())
	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.True(t, b.started, "a failing worker must not block the others")

	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.True(t, a.stopped)
	assert.True(t, b.stopped)

	assert.NoError(t, m.StopAll())
}

func TestWorkerManager_StopAllJoinsErrors(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	stopErr := errors.New("stuck")
	m.Register(&stubWorker{name: "a", stopErr: stopErr})
	require.NoError(t, m.StartAll(context.Background()))

	err := m.StopAll()
	assert.ErrorIs(t, err, stopErr)
}

func TestPeriodicWorker_RunsImmediatelyAndOnTick(t *testing.T) {
	var runs atomic.Int32
	w := NewPeriodicWorker("tick", 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	require.NoError(t, w.Stop())

	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())
	assert.False(t, w.Stats().Running)
}

func TestPeriodicWorker_RecordsFailures(t *testing.T) {
	boom := errors.New("boom")
	w := NewPeriodicWorker("fail", time.Hour, func(ctx context.Context) error { return boom }, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return w.Stats().Runs == 1 }, time.Second, time.Millisecond)
	require.NoError(t, w.Stop())

	stats := w.Stats()
	assert.Equal(t, 1, stats.Failures)
	assert.ErrorIs(t, stats.LastError, boom)
}

func TestPeriodicWorker_RejectsBadInterval(t *testing.T) {
	w := NewPeriodicWorker("zero", 0, func(ctx context.Context) error { return nil }, zap.NewNop())
	assert.Error(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
}

func TestCacheRefresher(t *testing.T) {
	tickets := porttest.NewTicketRepo(
		&entity.Ticket{ID: "t1", Status: "pending"},
		&entity.Ticket{ID: "t2", Status: "approved"},
	)
	cache := ticketcache.New()

	w := NewCacheRefresher(tickets, cache, time.Hour, zap.NewNop())
	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return cache.Len() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, w.Stop())

	entry, ok := cache.Get("t2")
	require.True(t, ok)
	assert.Equal(t, "approved", entry.Status)
}
