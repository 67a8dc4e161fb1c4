package login

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/battlespy-project/battlespy/internal/db"
	"github.com/battlespy-project/battlespy/internal/metrics"
	"github.com/battlespy-project/battlespy/internal/util"
)

// StatusWriter batches online/offline transitions and writes them to the
// account store on a timer, keeping status updates off the login hot path.
type StatusWriter struct {
	mu    sync.Mutex
	queue []db.StatusUpdate

	accounts *db.AccountStore
	interval time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewStatusWriter creates a status writer flushing at the given interval.
func NewStatusWriter(accounts *db.AccountStore, interval time.Duration, m *metrics.Metrics) *StatusWriter {
	return &StatusWriter{
		accounts: accounts,
		interval: interval,
		metrics:  m,
		logger:   util.ComponentLogger("status_writer"),
	}
}

// Enqueue appends one transition to the pending batch.
func (w *StatusWriter) Enqueue(update db.StatusUpdate) {
	if update.AccountID == 0 {
		return
	}
	w.mu.Lock()
	w.queue = append(w.queue, update)
	w.mu.Unlock()
}

// Start flushes on a timer until the context is cancelled, then performs a
// final flush of whatever remains.
func (w *StatusWriter) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Flush()
			return
		case <-ticker.C:
			w.Flush()
		}
	}
}

// Flush writes the pending batch in a single transaction, preserving
// enqueue order. A failed batch is logged and dropped with the transaction.
func (w *StatusWriter) Flush() {
	w.mu.Lock()
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := w.accounts.UpdateStatusBatch(batch); err != nil {
		w.logger.Error().Err(err).Int("updates", len(batch)).Msg("status flush failed, batch dropped")
		return
	}

	w.metrics.StatusFlushes.Inc()
	w.logger.Debug().Int("updates", len(batch)).Msg("status batch written")
}

// Pending returns the number of queued updates.
func (w *StatusWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}
