package hints

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cppla/heistctf/apperr"
	"github.com/cppla/heistctf/store"
)

const (
	DefaultAutoApproveAfter = 90 * time.Second
	DefaultBatchSize        = 100
)

// SweepReport counts what one sweep did with each stale request.
type SweepReport struct {
	RunID    string        `json:"run_id"`
	Scanned  int           `json:"scanned"`
	Approved int           `json:"approved"`
	Skipped  int           `json:"skipped"`
	Deferred int           `json:"deferred"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Sweeper auto-approves requests left pending longer than the threshold.
// It holds no lock of its own: every request goes through the same
// lock-then-recheck transaction as a human approval, so concurrent sweeps
// and concurrent humans are safe.
//
// Each sweep resumes after the last request the previous sweep scanned and
// wraps to the oldest once the scan runs dry, so requests that keep getting
// deferred cannot hide newer ones behind them.
type Sweeper struct {
	svc   *Service
	after time.Duration
	batch int

	mu     sync.Mutex
	cursor *store.PendingRef
}

// NewSweeper builds a Sweeper over svc.
func NewSweeper(svc *Service, after time.Duration, batch int) *Sweeper {
	if after <= 0 {
		after = DefaultAutoApproveAfter
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Sweeper{svc: svc, after: after, batch: batch}
}

// RunSweepOnce scans one batch of stale pending requests in requested_at
// order from the cursor. A failing request never aborts the sweep; only a
// failing scan returns an error.
func (w *Sweeper) RunSweepOnce(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	report := SweepReport{RunID: uuid.NewString()}
	logger := w.svc.logger.With(zap.String("sweep_id", report.RunID))

	cutoff := w.svc.now().UTC().Add(-w.after)
	refs, err := w.scan(ctx, cutoff)
	if err != nil {
		logger.Error("sweep scan failed", zap.Error(err))
		return report, err
	}
	report.Scanned = len(refs)

	for i, ref := range refs {
		if ctx.Err() != nil {
			// the rest stay pending for the next sweep
			report.Deferred += len(refs) - i
			break
		}
		id := ref.ID
		_, err := w.svc.AutoApprove(ctx, id)
		switch {
		case err == nil:
			report.Approved++
		case errors.Is(err, apperr.ErrInvalidState):
			report.Skipped++
			logger.Debug("sweep skipped resolved request", zap.Uint("request_id", id))
		case errors.Is(err, apperr.ErrInsufficientCurrency),
			errors.Is(err, apperr.ErrConcurrencyConflict),
			errors.Is(err, apperr.ErrTransientStore):
			report.Deferred++
			logger.Warn("sweep deferred request", zap.Uint("request_id", id), zap.Error(err))
		default:
			report.Failed++
			logger.Error("sweep failed request", zap.Uint("request_id", id), zap.Error(err))
		}
	}

	report.Duration = time.Since(start)
	w.svc.metrics.SweepFinished(report.Approved, report.Skipped, report.Deferred, report.Failed, report.Duration)
	if report.Scanned > 0 {
		logger.Info("sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("approved", report.Approved),
			zap.Int("skipped", report.Skipped),
			zap.Int("deferred", report.Deferred),
			zap.Int("failed", report.Failed),
			zap.Duration("took", report.Duration),
		)
	}
	return report, nil
}

// scan reads the next page after the cursor, wrapping to the oldest request
// when nothing is left past it. A full page moves the cursor to its last
// entry; a short one resets it.
func (w *Sweeper) scan(ctx context.Context, cutoff time.Time) ([]store.PendingRef, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	refs, err := w.svc.store.StalePendingRequests(ctx, cutoff, w.cursor, w.batch)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 && w.cursor != nil {
		w.cursor = nil
		if refs, err = w.svc.store.StalePendingRequests(ctx, cutoff, nil, w.batch); err != nil {
			return nil, err
		}
	}
	if len(refs) < w.batch {
		w.cursor = nil
	} else {
		last := refs[len(refs)-1]
		w.cursor = &last
	}
	return refs, nil
}
