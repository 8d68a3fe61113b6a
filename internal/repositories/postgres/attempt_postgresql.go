package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
)

// Attempts are never cached: status must be read fresh for every gate check.
type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.Attempt) error {
	if err := a.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetForUpdate(ctx context.Context, id uint) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&attempt, id).Error; err != nil {
		return nil, fmt.Errorf("failed to lock attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetForShare(ctx context.Context, id uint) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		First(&attempt, id).Error; err != nil {
		return nil, fmt.Errorf("failed to share-lock attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetInProgress(ctx context.Context, userID string, testID uint) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.db.WithContext(ctx).
		Where("user_id = ? AND test_id = ? AND status = ?", userID, testID, models.AttemptInProgress).
		First(&attempt).Error; err != nil {
		return nil, fmt.Errorf("failed to get in-progress attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) MarkSubmitted(ctx context.Context, id uint, update repositories.SubmissionUpdate) (bool, error) {
	breakdown, err := json.Marshal(update.Breakdown)
	if err != nil {
		return false, fmt.Errorf("failed to encode breakdown: %w", err)
	}

	// The status predicate makes the transition a compare-and-swap
	result := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":         models.AttemptSubmitted,
			"score":          update.Score,
			"is_passed":      update.Passed,
			"breakdown":      datatypes.JSON(breakdown),
			"completed_at":   update.CompletedAt,
			"submit_trigger": update.Trigger,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark attempt submitted: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (a *AttemptPostgreSQL) ListSubmittedByUser(ctx context.Context, userID string) ([]repositories.SubmittedAttempt, error) {
	var rows []repositories.SubmittedAttempt
	err := a.db.WithContext(ctx).
		Table("test_attempts AS a").
		Select("a.id AS attempt_id, a.test_id, COALESCE(a.score, 0) AS score, t.ranking_weight, a.created_at").
		Joins("JOIN tests t ON t.id = a.test_id").
		Where("a.user_id = ? AND a.status = ?", userID, models.AttemptSubmitted).
		Order("a.created_at DESC, a.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list submitted attempts: %w", err)
	}
	return rows, nil
}

func (a *AttemptPostgreSQL) ListExpiredInProgress(ctx context.Context, now time.Time, limit int) ([]models.Attempt, error) {
	var attempts []models.Attempt
	query := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Select("test_attempts.*").
		Joins("JOIN tests ON tests.id = test_attempts.test_id").
		Where("test_attempts.status = ?", models.AttemptInProgress).
		Where("test_attempts.started_at + make_interval(mins => tests.duration_minutes) <= ?", now).
		Order("test_attempts.started_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired attempts: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempt users: %w", err)
	}
	return ids, nil
}

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

func (a *AnswerPostgreSQL) UpsertResponse(ctx context.Context, answer *models.Answer) error {
	return a.upsert(ctx, answer, []string{"selected_option_id", "text_answer", "is_marked_for_review", "updated_at"})
}

func (a *AnswerPostgreSQL) UpsertAudio(ctx context.Context, answer *models.Answer) error {
	return a.upsert(ctx, answer, []string{"audio_answer", "audio_content_type", "updated_at"})
}

// upsert relies on the (attempt_id, question_id) unique constraint; the conflicting
// row lock serializes concurrent saves of the same question
func (a *AnswerPostgreSQL) upsert(ctx context.Context, answer *models.Answer, columns []string) error {
	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(answer).Error
	if err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

func (a *AnswerPostgreSQL) ListByAttempt(ctx context.Context, attemptID uint) ([]models.Answer, error) {
	var answers []models.Answer
	if err := a.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("question_id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) ApplyGrades(ctx context.Context, attemptID uint, grades []repositories.AnswerGrade) error {
	for _, grade := range grades {
		err := a.db.WithContext(ctx).
			Model(&models.Answer{}).
			Where("attempt_id = ? AND question_id = ?", attemptID, grade.QuestionID).
			Updates(map[string]interface{}{
				"is_correct":    grade.IsCorrect,
				"score_awarded": grade.ScoreAwarded,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to grade answer for question %d: %w", grade.QuestionID, err)
		}
	}
	return nil
}
