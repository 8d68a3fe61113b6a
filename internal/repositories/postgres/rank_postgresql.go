package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/mocktest-service/internal/cache"
	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
)

type RankPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewRankPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.RankRepository {
	return &RankPostgreSQL{
		db:           db,
		cacheManager: cacheManager,
	}
}

// LockUser takes a transaction scoped advisory lock keyed by the user id
func (r *RankPostgreSQL) LockUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "rank:"+userID).Error; err != nil {
		return fmt.Errorf("failed to lock rank for user: %w", err)
	}
	return nil
}

func (r *RankPostgreSQL) Upsert(ctx context.Context, metric *models.RankMetric) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"total_xp", "tests_taken_count", "avg_score", "weighted_xp", "updated_at"}),
		}).
		Create(metric).Error
	if err != nil {
		return fmt.Errorf("failed to upsert rank metric: %w", err)
	}
	return nil
}

func (r *RankPostgreSQL) InvalidateLeaderboard(ctx context.Context) {
	cache.InvalidateLeaderboardCache(ctx, r.cacheManager)
}

func (r *RankPostgreSQL) GetByUser(ctx context.Context, userID string) (*models.RankMetric, error) {
	var metric models.RankMetric
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&metric).Error; err != nil {
		return nil, fmt.Errorf("failed to get rank metric: %w", err)
	}
	return &metric, nil
}

type leaderboardPage struct {
	Items []models.RankMetric `json:"items"`
	Total int64               `json:"total"`
}

func (r *RankPostgreSQL) List(ctx context.Context, limit, offset int) ([]models.RankMetric, int64, error) {
	var page leaderboardPage
	key := fmt.Sprintf("leaderboard:%d:%d", limit, offset)

	err := r.cacheManager.Stats.CacheOrExecute(ctx, key, &page, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		var result leaderboardPage
		query := r.db.WithContext(ctx).Model(&models.RankMetric{})
		if err := query.Count(&result.Total).Error; err != nil {
			return nil, fmt.Errorf("failed to count rank metrics: %w", err)
		}

		query = query.Order("total_xp DESC, avg_score DESC, user_id ASC")
		if limit > 0 {
			query = query.Limit(limit)
		}
		if offset > 0 {
			query = query.Offset(offset)
		}
		if err := query.Find(&result.Items).Error; err != nil {
			return nil, fmt.Errorf("failed to list rank metrics: %w", err)
		}
		return &result, nil
	})
	if err != nil {
		return nil, 0, err
	}

	return page.Items, page.Total, nil
}

func (r *RankPostgreSQL) Position(ctx context.Context, userID string) (int, error) {
	metric, err := r.GetByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	var ahead int64
	if err := r.db.WithContext(ctx).
		Model(&models.RankMetric{}).
		Where("total_xp > ?", metric.TotalXP).
		Count(&ahead).Error; err != nil {
		return 0, fmt.Errorf("failed to compute leaderboard position: %w", err)
	}
	return int(ahead) + 1, nil
}
