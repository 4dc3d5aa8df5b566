/*
reconciler.go - Background retry of unpersisted balance changes

PURPOSE:
  Accrual ticks and refunds keep their in-memory effect when the store
  write fails, leaving the ledger dirty. Those changes reach disk on the
  next successful write, which may never come if accrual is stopped. The
  reconciler closes that gap by flushing a dirty ledger on a fixed interval.

DESIGN:
  - Background goroutine driven by a ticker
  - Does nothing while the ledger is clean
  - Failures are logged and retried on the next check

USAGE:
  r := coins.NewReconciler(mgr, 30*time.Second, logger)
  r.Start()
  defer r.Stop()
*/
package coins

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// flusher is the part of Manager the reconciler needs.
type flusher interface {
	Dirty() bool
	Flush(ctx context.Context) error
}

// Reconciler periodically flushes a dirty ledger.
type Reconciler struct {
	target        flusher
	CheckInterval time.Duration
	logger        *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReconciler creates a reconciler for target. A non-positive interval
// selects 30s.
func NewReconciler(target flusher, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		target:        target,
		CheckInterval: interval,
		logger:        logger,
	}
}

// Start begins periodic checks. Calling Start twice is a no-op.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker != nil {
		return
	}
	r.ticker = time.NewTicker(r.CheckInterval)
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.run(r.ticker, r.stop)

	r.logger.Debug("ledger reconciler started", "interval", r.CheckInterval)
}

// Stop halts the checks and waits for an in-flight flush.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	close(r.stop)
	r.wg.Wait()
	r.ticker = nil
}

func (r *Reconciler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer r.wg.Done()
	for {
		select {
		case <-ticker.C:
			r.CheckAndFlush(context.Background())
		case <-stop:
			return
		}
	}
}

// CheckAndFlush flushes the target if it is dirty. It reports whether a
// flush was attempted and its error.
func (r *Reconciler) CheckAndFlush(ctx context.Context) (bool, error) {
	if !r.target.Dirty() {
		return false, nil
	}
	if err := r.target.Flush(ctx); err != nil {
		r.logger.Warn("ledger still dirty after flush", "error", err)
		return true, err
	}
	r.logger.Info("ledger reconciled with store")
	return true, nil
}
