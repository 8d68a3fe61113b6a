package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 100
	exportPageSize          = 500
	recalculateLogEvery     = 100
	leaderboardSheet        = "Leaderboard"
)

type rankService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewRankService(repo repositories.Repository, logger *slog.Logger) RankService {
	return &rankService{
		repo:   repo,
		logger: logger,
	}
}

// ComputeRankMetric rebuilds a user's metric from all of their submitted attempts.
// Only the latest attempt per test counts. The result depends on nothing but the input set.
func ComputeRankMetric(userID string, attempts []repositories.SubmittedAttempt) *models.RankMetric {
	latest := make(map[uint]repositories.SubmittedAttempt, len(attempts))
	for _, attempt := range attempts {
		current, ok := latest[attempt.TestID]
		if !ok || isLater(attempt, current) {
			latest[attempt.TestID] = attempt
		}
	}

	testIDs := make([]uint, 0, len(latest))
	for testID := range latest {
		testIDs = append(testIDs, testID)
	}
	// fixed summation order keeps float results bit-identical across runs
	sort.Slice(testIDs, func(i, j int) bool { return testIDs[i] < testIDs[j] })

	var total, weighted float64
	for _, testID := range testIDs {
		attempt := latest[testID]
		total += attempt.Score
		weighted += attempt.Score * attempt.RankingWeight
	}

	metric := &models.RankMetric{
		UserID:          userID,
		TotalXP:         int(total),
		TestsTakenCount: len(latest),
		WeightedXP:      roundTo2(weighted),
	}
	if len(latest) > 0 {
		metric.AvgScore = roundTo2(total / float64(len(latest)))
	}
	return metric
}

func isLater(a, b repositories.SubmittedAttempt) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.AttemptID > b.AttemptID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *rankService) Recalculate(ctx context.Context, userID string) error {
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		// concurrent submissions of one user recompute one at a time
		if err := tx.Rank().LockUser(ctx, userID); err != nil {
			return err
		}

		attempts, err := tx.Attempt().ListSubmittedByUser(ctx, userID)
		if err != nil {
			return err
		}

		metric := ComputeRankMetric(userID, attempts)
		metric.UpdatedAt = time.Now().UTC()
		return tx.Rank().Upsert(ctx, metric)
	})
	if err != nil {
		return fmt.Errorf("failed to recalculate rank for user %s: %w", userID, err)
	}

	// outside the transaction, or a concurrent read can cache the pre-commit page
	s.repo.Rank().InvalidateLeaderboard(ctx)

	s.logger.Debug("Rank metric rebuilt", "user_id", userID)
	return nil
}

func (s *rankService) RecalculateAll(ctx context.Context) (int, error) {
	userIDs, err := s.repo.Attempt().ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	s.logger.Info("Recalculating ranks", "users", len(userIDs))

	processed, failed := 0, 0
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		if err := s.Recalculate(ctx, userID); err != nil {
			failed++
			s.logger.Error("Rank recalculation failed", "user_id", userID, "error", err)
			continue
		}

		processed++
		if processed%recalculateLogEvery == 0 {
			s.logger.Info("Rank recalculation progress", "processed", processed, "total", len(userIDs))
		}
	}

	s.logger.Info("Rank recalculation finished", "processed", processed, "failed", failed)

	if failed > 0 {
		return processed, fmt.Errorf("rank recalculation failed for %d of %d users", failed, len(userIDs))
	}
	return processed, nil
}

func (s *rankService) Leaderboard(ctx context.Context, limit, offset int) (*LeaderboardResponse, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	if offset < 0 {
		offset = 0
	}

	metrics, total, err := s.repo.Rank().List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}

	return &LeaderboardResponse{
		Entries: s.rankEntries(ctx, metrics, offset),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

func (s *rankService) GetUserRank(ctx context.Context, userID string) (*UserRankResponse, error) {
	metric, err := s.repo.Rank().GetByUser(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			// no submissions yet
			return &UserRankResponse{Metric: &models.RankMetric{UserID: userID}}, nil
		}
		return nil, fmt.Errorf("failed to get rank metric: %w", err)
	}

	position, err := s.repo.Rank().Position(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard position: %w", err)
	}

	return &UserRankResponse{Position: position, Metric: metric}, nil
}

func (s *rankService) ExportLeaderboard(ctx context.Context) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close workbook", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", leaderboardSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := []interface{}{"Rank", "User ID", "Name", "Total XP", "Tests Taken", "Avg Score", "Weighted XP", "Updated At"}
	if err := f.SetSheetRow(leaderboardSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	row := 2
	for offset := 0; ; offset += exportPageSize {
		metrics, _, err := s.repo.Rank().List(ctx, exportPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list leaderboard: %w", err)
		}

		for _, entry := range s.rankEntries(ctx, metrics, offset) {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return nil, err
			}
			values := []interface{}{
				entry.Rank,
				entry.UserID,
				entry.FullName,
				entry.TotalXP,
				entry.TestsTakenCount,
				entry.AvgScore,
				entry.WeightedXP,
				entry.UpdatedAt.Format(time.RFC3339),
			}
			if err := f.SetSheetRow(leaderboardSheet, cell, &values); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", row, err)
			}
			row++
		}

		if len(metrics) < exportPageSize {
			break
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	s.logger.Info("Leaderboard exported", "rows", row-2)
	return buf.Bytes(), nil
}

// rankEntries attaches positions and display names. Missing names are left blank.
func (s *rankService) rankEntries(ctx context.Context, metrics []models.RankMetric, offset int) []models.LeaderboardEntry {
	names := make(map[string]string, len(metrics))
	if len(metrics) > 0 && s.repo.User() != nil {
		ids := make([]string, 0, len(metrics))
		for _, metric := range metrics {
			ids = append(ids, metric.UserID)
		}
		users, err := s.repo.User().GetByIDs(ctx, ids)
		if err != nil {
			s.logger.Warn("Failed to resolve leaderboard names", "error", err)
		}
		for _, user := range users {
			names[user.ID] = user.FullName
		}
	}

	entries := make([]models.LeaderboardEntry, 0, len(metrics))
	for i, metric := range metrics {
		entries = append(entries, models.LeaderboardEntry{
			Rank:       offset + i + 1,
			FullName:   names[metric.UserID],
			RankMetric: metric,
		})
	}
	return entries
}
