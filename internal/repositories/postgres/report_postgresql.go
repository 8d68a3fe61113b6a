package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/mocktest-service/internal/cache"
	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
)

type ReportPostgreSQL struct {
	db *gorm.DB
}

func NewReportPostgreSQL(db *gorm.DB) repositories.ReportRepository {
	return &ReportPostgreSQL{db: db}
}

func (r *ReportPostgreSQL) Create(ctx context.Context, report *models.QuestionReport) error {
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("failed to create question report: %w", err)
	}
	return nil
}

type EnrollmentPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewEnrollmentPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{
		db:           db,
		cacheManager: cacheManager,
	}
}

// Exists caches positive answers only, so a fresh purchase is visible immediately
func (e *EnrollmentPostgreSQL) Exists(ctx context.Context, userID string, testID uint) (bool, error) {
	key := fmt.Sprintf("enrollment:%s:%d", userID, testID)

	var cached bool
	if err := e.cacheManager.Exists.Get(ctx, key, &cached); err == nil && cached {
		return true, nil
	}

	var count int64
	if err := e.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("user_id = ? AND test_id = ?", userID, testID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}

	exists := count > 0
	if exists {
		if err := e.cacheManager.Exists.Set(ctx, key, true, cache.ExistsCacheConfig.TTL); err != nil {
			slog.WarnContext(ctx, "Failed to cache enrollment", "error", err, "user_id", userID, "test_id", testID)
		}
	}
	return exists, nil
}
