package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/repository"
)

// Sweeper deletes expired refresh ledger entries. Expiry is enforced at
// validation time, so the sweep only reclaims storage.
type Sweeper struct {
	ledger   repository.RefreshLedger
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(ledger repository.RefreshLedger, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{ledger: ledger, interval: interval, logger: logger}
}

// Sweep runs one purge pass and returns the number of deleted entries.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.ledger.PurgeExpired(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "refresh token sweep failed", slog.String("error", err.Error()))
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "purged expired refresh tokens", slog.Int64("count", n))
	}
	return n, nil
}

// Run sweeps on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
