package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker runs the orchestrator on a poll interval. Kick wakes it early so
// a batch finalized moments ago does not wait out the full interval.
type Worker struct {
	orchestrator *Orchestrator
	pollInterval time.Duration
	logger       *zap.Logger

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	kickCh    chan struct{}
	isRunning bool
}

// NewWorker creates a new export worker
func NewWorker(orchestrator *Orchestrator, pollInterval time.Duration, logger *zap.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Worker{
		orchestrator: orchestrator,
		pollInterval: pollInterval,
		logger:       logger,
		kickCh:       make(chan struct{}, 1),
	}
}

// Name identifies the worker in lifecycle logs
func (w *Worker) Name() string {
	return "ledger-exporter"
}

// Start begins the polling loop
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("Export worker started", zap.Duration("poll_interval", w.pollInterval))
	go w.loop()
	return nil
}

// Stop terminates the polling loop
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	w.logger.Info("Export worker stopped")
}

// Kick requests an immediate export cycle. Non-blocking; a kick while one
// is already queued is absorbed.
func (w *Worker) Kick() {
	select {
	case w.kickCh <- struct{}{}:
	default:
	}
}

func (w *Worker) loop() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.kickCh:
		case <-ticker.C:
		}

		if err := w.orchestrator.ExportPending(w.ctx); err != nil && w.ctx.Err() == nil {
			w.logger.Error("Export cycle failed", zap.Error(err))
		}
	}
}
