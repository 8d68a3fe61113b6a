package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/mocktest-service/internal/models"
)

// ===== SHARED STRUCTS =====

// SubmissionUpdate is written to the attempt row on the IN_PROGRESS -> SUBMITTED transition
type SubmissionUpdate struct {
	Score       float64
	Passed      bool
	Breakdown   map[string]float64
	CompletedAt time.Time
	Trigger     models.SubmitTrigger
}

// AnswerGrade is the grading outcome for one answer row
type AnswerGrade struct {
	QuestionID   uint
	IsCorrect    *bool
	ScoreAwarded float64
}

// SubmittedAttempt is the projection the rank aggregator works on
type SubmittedAttempt struct {
	AttemptID     uint
	TestID        uint
	Score         float64
	RankingWeight float64
	CreatedAt     time.Time
}

// ===== REPOSITORIES =====

type TestRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Test, error)
	// GetWithQuestions loads sections, questions and options in display order
	GetWithQuestions(ctx context.Context, id uint) (*models.Test, error)
	GetQuestion(ctx context.Context, questionID uint) (*models.Question, error)
}

type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	GetByID(ctx context.Context, id uint) (*models.Attempt, error)
	// GetForUpdate locks the attempt row until the surrounding transaction ends
	GetForUpdate(ctx context.Context, id uint) (*models.Attempt, error)
	// GetForShare takes a shared row lock: answer saves run in parallel but wait for a running submit
	GetForShare(ctx context.Context, id uint) (*models.Attempt, error)
	GetInProgress(ctx context.Context, userID string, testID uint) (*models.Attempt, error)
	// MarkSubmitted moves an IN_PROGRESS attempt to SUBMITTED; false means it was not IN_PROGRESS
	MarkSubmitted(ctx context.Context, id uint, update SubmissionUpdate) (bool, error)

	ListSubmittedByUser(ctx context.Context, userID string) ([]SubmittedAttempt, error)
	ListExpiredInProgress(ctx context.Context, now time.Time, limit int) ([]models.Attempt, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

type AnswerRepository interface {
	// UpsertResponse writes the choice/text payload and review flag, keyed by (attempt, question)
	UpsertResponse(ctx context.Context, answer *models.Answer) error
	// UpsertAudio writes the audio payload, keyed by (attempt, question)
	UpsertAudio(ctx context.Context, answer *models.Answer) error
	ListByAttempt(ctx context.Context, attemptID uint) ([]models.Answer, error)
	ApplyGrades(ctx context.Context, attemptID uint, grades []AnswerGrade) error
}

type RankRepository interface {
	// LockUser serializes rank recomputation for one user within the current transaction
	LockUser(ctx context.Context, userID string) error
	Upsert(ctx context.Context, metric *models.RankMetric) error
	GetByUser(ctx context.Context, userID string) (*models.RankMetric, error)
	List(ctx context.Context, limit, offset int) ([]models.RankMetric, int64, error)
	// Position is the 1-based leaderboard position by total_xp
	Position(ctx context.Context, userID string) (int, error)
	// InvalidateLeaderboard drops cached leaderboard pages; call it after the upsert commits
	InvalidateLeaderboard(ctx context.Context)
}

type ReportRepository interface {
	Create(ctx context.Context, report *models.QuestionReport) error
}

type EnrollmentRepository interface {
	Exists(ctx context.Context, userID string, testID uint) (bool, error)
}
