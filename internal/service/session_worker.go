package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"predictionclub/internal/logger"
	"predictionclub/internal/registry"
)

// DefaultReconcileInterval is how often live sessions are refreshed
const DefaultReconcileInterval = time.Minute

// SessionWorker keeps live session stores in step with the backend and
// closes the ones nobody has used for a while
type SessionWorker struct {
	ctx       context.Context
	cancel    context.CancelFunc
	scheduler gocron.Scheduler
	sessions  *registry.Registry
	interval  time.Duration
	idle      time.Duration
}

// NewSessionWorker creates a worker. Scheduler options are passed through to gocron.
func NewSessionWorker(sessions *registry.Registry, interval, idle time.Duration, opts ...gocron.SchedulerOption) (*SessionWorker, error) {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	scheduler, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SessionWorker{
		ctx:       ctx,
		cancel:    cancel,
		scheduler: scheduler,
		sessions:  sessions,
		interval:  interval,
		idle:      idle,
	}, nil
}

// Start runs a first pass immediately, then one per interval
func (w *SessionWorker) Start() error {
	_, err := w.scheduler.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(w.reconcile),
		gocron.WithName("reconcile_sessions"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule session reconcile: %w", err)
	}

	w.scheduler.Start()
	logger.Debug("", "session_worker_started", fmt.Sprintf("interval=%v idle=%v", w.interval, w.idle))
	return nil
}

// Stop cancels a running pass and waits for the scheduler to finish
func (w *SessionWorker) Stop() error {
	w.cancel()
	if err := w.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	logger.Debug("", "session_worker_stopped", "")
	return nil
}

// reconcile evicts idle sessions, then refreshes the rest
func (w *SessionWorker) reconcile() {
	evicted := 0
	if w.idle > 0 {
		evicted = w.sessions.Sweep(w.idle)
	}
	refreshed := w.sessions.RefreshAll(w.ctx)
	if evicted > 0 || refreshed > 0 {
		logger.Debug("", "session_worker_pass", fmt.Sprintf("evicted=%d refreshed=%d", evicted, refreshed))
	}
}
