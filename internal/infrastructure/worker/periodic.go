package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one run of a periodic worker
type Task func(ctx context.Context) error

// PeriodicWorker runs a task immediately on start and then on every tick
type PeriodicWorker struct {
	name     string
	interval time.Duration
	task     Task
	logger   *zap.Logger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	runs      int
	failures  int
	lastRun   time.Time
	lastError error
}

// NewPeriodicWorker creates a new periodic worker
func NewPeriodicWorker(name string, interval time.Duration, task Task, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger,
	}
}

// Name returns the worker name
func (w *PeriodicWorker) Name() string {
	return w.name
}

// Start begins the polling loop
func (w *PeriodicWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("worker %s: interval must be positive", w.name)
	}

	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("worker %s already running", w.name)
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	go w.loop(ctx)
	return nil
}

// Stop cancels the loop and waits for the current run to finish
func (w *PeriodicWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (w *PeriodicWorker) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *PeriodicWorker) runOnce(ctx context.Context) {
	err := w.task(ctx)

	w.mu.Lock()
	w.runs++
	w.lastRun = time.Now()
	w.lastError = err
	if err != nil {
		w.failures++
	}
	w.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		w.logger.Error("Worker run failed",
			zap.String("worker_name", w.name),
			zap.Error(err))
	}
}

// Stats is a snapshot of a worker's run counters
type Stats struct {
	Running   bool
	Runs      int
	Failures  int
	LastRun   time.Time
	LastError error
}

// Stats returns the current run counters
func (w *PeriodicWorker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Stats{
		Running:   w.isRunning,
		Runs:      w.runs,
		Failures:  w.failures,
		LastRun:   w.lastRun,
		LastError: w.lastError,
	}
}
