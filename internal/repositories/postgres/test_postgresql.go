package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/mocktest-service/internal/cache"
	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
)

type TestPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewTestPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.TestRepository {
	return &TestPostgreSQL{
		db:           db,
		cacheManager: cacheManager,
	}
}

func (t *TestPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Test, error) {
	var test models.Test
	err := t.cacheManager.Test.CacheOrExecute(ctx, fmt.Sprintf("id:%d", id), &test, cache.TestCacheConfig.TTL, func() (interface{}, error) {
		var dbTest models.Test
		if err := t.db.WithContext(ctx).First(&dbTest, id).Error; err != nil {
			return nil, fmt.Errorf("failed to get test: %w", err)
		}
		return &dbTest, nil
	})
	if err != nil {
		return nil, err
	}
	return &test, nil
}

// GetWithQuestions loads the full question bank of a test, including correctness keys.
// Callers must not expose the result to students as is.
func (t *TestPostgreSQL) GetWithQuestions(ctx context.Context, id uint) (*models.Test, error) {
	var test models.Test
	err := t.cacheManager.Test.CacheOrExecute(ctx, fmt.Sprintf("full:%d", id), &test, cache.TestCacheConfig.TTL, func() (interface{}, error) {
		var dbTest models.Test
		err := t.db.WithContext(ctx).
			Preload("Sections", func(db *gorm.DB) *gorm.DB {
				return db.Order("sort_order ASC, id ASC")
			}).
			Preload("Sections.Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order("sort_order ASC, id ASC")
			}).
			Preload("Sections.Questions.Options", func(db *gorm.DB) *gorm.DB {
				return db.Order("id ASC")
			}).
			First(&dbTest, id).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get test with questions: %w", err)
		}
		return &dbTest, nil
	})
	if err != nil {
		return nil, err
	}
	return &test, nil
}

func (t *TestPostgreSQL) GetQuestion(ctx context.Context, questionID uint) (*models.Question, error) {
	var question models.Question
	if err := t.db.WithContext(ctx).First(&question, questionID).Error; err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return &question, nil
}
