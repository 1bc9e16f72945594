package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"campuscard/internal/amqp"
	"campuscard/internal/ledger"
)

// BalanceWorker recomputes stored balances. It handles recalc messages from
// the queue and, on a timer, sweeps the whole ledger to repair any drift.
type BalanceWorker struct {
	store         ledger.BalanceRecalculator
	sweepInterval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewBalanceWorker(store ledger.BalanceRecalculator, sweepInterval time.Duration) *BalanceWorker {
	return &BalanceWorker{
		store:         store,
		sweepInterval: sweepInterval,
	}
}

// HandleRecalcMessage recomputes the student named by msg, or everyone when
// the message carries no student.
func (w *BalanceWorker) HandleRecalcMessage(ctx context.Context, msg *amqp.BalanceRecalcMessage) error {
	slog.InfoContext(ctx, "Processing balance recalc message",
		"message_id", msg.MessageID,
		"student_id", msg.StudentID,
		"reason", msg.Reason)

	if msg.AllStudents() {
		if _, err := w.Sweep(ctx); err != nil {
			return err
		}
		return nil
	}
	if err := w.store.RecalculateBalances(ctx, msg.StudentID); err != nil {
		return fmt.Errorf("recalculate student %s: %w", msg.StudentID, err)
	}
	return nil
}

// Sweep recomputes every student and returns how many there were.
func (w *BalanceWorker) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := w.store.RecalculateAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("recalculate all: %w", err)
	}
	slog.InfoContext(ctx, "Balance sweep finished",
		"students", n,
		"duration", time.Since(start))
	return n, nil
}

// Start runs a sweep immediately and then every sweep interval until Stop
// is called or ctx is done. Returns an error if already running.
func (w *BalanceWorker) Start(ctx context.Context) error {
	if w.sweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("balance worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "Balance sweeper started", "interval", w.sweepInterval)
	return nil
}

// Stop signals the sweep loop and waits for it to exit.
func (w *BalanceWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Balance sweeper stopped")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Balance sweeper stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the sweep loop is active.
func (w *BalanceWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *BalanceWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	w.sweepLogged(ctx)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepLogged(ctx)
		}
	}
}

func (w *BalanceWorker) sweepLogged(ctx context.Context) {
	if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Balance sweep failed", "error", err)
	}
}
