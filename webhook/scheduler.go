package webhook

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// sweepBatchSize caps how many due retries one sweep claims
const sweepBatchSize = 100

/* Scheduler is the background retry path: a periodic sweep that claims
 * failed deliveries whose retry time has passed and re-attempts them.
 * Claiming removes a delivery from the queue, so the same record is
 * never retried concurrently even with multiple sweeps racing
 */
type Scheduler struct {
	Repo       Repository
	Dispatcher *Dispatcher
	Interval   time.Duration
	Logger     *slog.Logger
}

// NewScheduler creates a retry scheduler
func NewScheduler(repo Repository, dispatcher *Dispatcher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Repo:       repo,
		Dispatcher: dispatcher,
		Interval:   interval,
		Logger:     logger,
	}
}

// Run sweeps until the context is cancelled. Blocks; run in a goroutine
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.Logger.Error("retry sweep failed", "error", err)
			}
		}
	}
}

// Sweep claims and re-attempts every delivery currently due for retry.
// Exported so operators can trigger a sweep outside the timer
func (s *Scheduler) Sweep(ctx context.Context) error {
	ids, err := s.Repo.ClaimDueRetries(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		return err
	}

	for _, id := range ids {
		outcome, err := s.Dispatcher.Redeliver(ctx, id)
		if err != nil {
			s.Logger.Error("redelivering", "delivery_id", id, "error", err)
			// The claim already consumed the queue entry. Unless the
			// record is gone or final, put the entry back so a later
			// sweep picks the delivery up instead of stranding it
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrFinal) {
				continue
			}
			if err := s.Repo.ScheduleRetry(ctx, id, time.Now().Add(s.Interval)); err != nil {
				s.Logger.Error("rescheduling claimed retry", "delivery_id", id, "error", err)
			}
			continue
		}
		s.Logger.Info("retried delivery",
			"delivery_id", outcome.DeliveryID,
			"status", outcome.Status,
		)
	}
	return nil
}
