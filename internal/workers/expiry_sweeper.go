package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
	"github.com/SAP-F-2025/mocktest-service/internal/services"
	"github.com/SAP-F-2025/mocktest-service/internal/timer"
)

const defaultSweepBatch = 100

// AutoSubmitter closes an attempt on the timer path
type AutoSubmitter interface {
	AutoSubmit(ctx context.Context, attemptID uint) (*services.SubmitResult, error)
}

type ExpirySweeperConfig struct {
	Interval  time.Duration
	BatchSize int
	// Grace delays the sweep past the hard cutoff so late saves inside the grace window still land
	Grace time.Duration
}

// ExpirySweeper auto-submits IN_PROGRESS attempts whose time ran out without the
// student coming back. It is opt-in; without it such attempts stay IN_PROGRESS.
type ExpirySweeper struct {
	attempts  repositories.AttemptRepository
	submitter AutoSubmitter
	clock     timer.Clock
	config    ExpirySweeperConfig
	logger    *slog.Logger
}

func NewExpirySweeper(config ExpirySweeperConfig, attempts repositories.AttemptRepository, submitter AutoSubmitter, clock timer.Clock, logger *slog.Logger) *ExpirySweeper {
	if config.BatchSize <= 0 {
		config.BatchSize = defaultSweepBatch
	}
	if clock == nil {
		clock = timer.SystemClock()
	}
	if config.Grace < 0 {
		config.Grace = 0
	}
	return &ExpirySweeper{
		attempts:  attempts,
		submitter: submitter,
		clock:     clock,
		config:    config,
		logger:    logger,
	}
}

// Run sweeps on every tick until ctx is cancelled
func (s *ExpirySweeper) Run(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", s.config.Interval)
	}

	s.logger.Info("Expiry sweeper started", "interval", s.config.Interval, "batch_size", s.config.BatchSize)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("Expiry sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce submits one batch of expired attempts and returns how many were closed
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.config.Grace)
	expired, err := s.attempts.ListExpiredInProgress(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired attempts: %w", err)
	}

	submitted := 0
	for _, attempt := range expired {
		if ctx.Err() != nil {
			return submitted, ctx.Err()
		}

		result, err := s.submitter.AutoSubmit(ctx, attempt.ID)
		if err != nil {
			s.logger.Error("Auto-submit failed", "attempt_id", attempt.ID, "user_id", attempt.UserID, "error", err)
			continue
		}
		if !result.AlreadySubmitted {
			submitted++
		}
	}

	if submitted > 0 {
		s.logger.Info("Expired attempts auto-submitted", "count", submitted)
	}
	return submitted, nil
}
