package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/mocktest-service/internal/grading"
	"github.com/SAP-F-2025/mocktest-service/internal/models"
)

// ===== ATTEMPT DTOs =====

type SaveAnswerRequest struct {
	SelectedOptionID  *uint   `json:"selected_option_id"`
	TextAnswer        *string `json:"text_answer" validate:"omitempty,max=10000"`
	IsMarkedForReview bool    `json:"is_marked_for_review"`
}

type SaveAudioAnswerRequest struct {
	Data        []byte `json:"-" validate:"required,max=10485760"`
	ContentType string `json:"content_type" validate:"required,audio_mime"`
}

// ReviewRequest is the optional testimonial a student leaves when submitting
type ReviewRequest struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Text   string `json:"text" validate:"max=2000"`
}

type SubmitRequest struct {
	Review *ReviewRequest `json:"review"`
}

type AttemptResponse struct {
	*models.Attempt
	RemainingSeconds int  `json:"remaining_seconds"`
	Resumed          bool `json:"resumed"`
}

type AnswerResponse struct {
	AnswerID          uint  `json:"answer_id"`
	QuestionID        uint  `json:"question_id"`
	IsMarkedForReview bool  `json:"is_marked_for_review"`
	SelectedOptionID  *uint `json:"selected_option_id,omitempty"`
}

// SubmitResult is returned by every submit call. Calls after the first return the stored result.
type SubmitResult struct {
	AttemptID        uint                 `json:"attempt_id"`
	TestID           uint                 `json:"test_id"`
	Score            float64              `json:"score"`
	Passed           bool                 `json:"passed"`
	Breakdown        map[string]float64   `json:"breakdown"`
	CompletedAt      *time.Time           `json:"completed_at"`
	Trigger          models.SubmitTrigger `json:"trigger,omitempty"`
	AlreadySubmitted bool                 `json:"already_submitted"`
}

type HeartbeatResponse struct {
	RemainingSeconds int  `json:"remaining_seconds"`
	Submitted        bool `json:"submitted"`
}

// ===== TAKE-TEST VIEW (no correctness keys) =====

type TakeTestView struct {
	AttemptID        uint                 `json:"attempt_id"`
	StartedAt        time.Time            `json:"started_at"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	Template         string               `json:"template"`
	Test             TestView             `json:"test"`
	Answers          map[uint]AnswerState `json:"answers"`
}

type TestView struct {
	ID              uint             `json:"id"`
	Title           string           `json:"title"`
	ExamType        models.ExamType  `json:"exam_type"`
	Level           models.TestLevel `json:"level"`
	DurationMinutes int              `json:"duration_minutes"`
	Instructions    string           `json:"instructions,omitempty"`
	Sections        []SectionView    `json:"sections"`
}

type SectionView struct {
	ID              uint           `json:"id"`
	Title           string         `json:"title"`
	SortOrder       int            `json:"sort_order"`
	DurationMinutes *int           `json:"duration_minutes,omitempty"`
	IsMandatory     bool           `json:"is_mandatory"`
	Questions       []QuestionView `json:"questions"`
}

type QuestionView struct {
	ID         uint                   `json:"id"`
	Type       models.QuestionType    `json:"type"`
	Difficulty models.DifficultyLevel `json:"difficulty"`
	Text       string                 `json:"text"`
	Marks      int                    `json:"marks"`
	SortOrder  int                    `json:"sort_order"`
	Options    []OptionView           `json:"options,omitempty"`
}

type OptionView struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

// AnswerState is the saved response of one question, keyed by question id in TakeTestView
type AnswerState struct {
	SelectedOptionID  *uint   `json:"selected_option_id,omitempty"`
	TextAnswer        *string `json:"text_answer,omitempty"`
	HasAudio          bool    `json:"has_audio"`
	IsMarkedForReview bool    `json:"is_marked_for_review"`
}

// ===== RESULT VIEW =====

type QuestionStatus string

const (
	StatusCorrect QuestionStatus = "CORRECT"
	StatusWrong   QuestionStatus = "WRONG"
	StatusSkipped QuestionStatus = "SKIPPED"
)

type ResultView struct {
	AttemptID uint               `json:"attempt_id"`
	TestID    uint               `json:"test_id"`
	TestTitle string             `json:"test_title"`
	ExamType  models.ExamType    `json:"exam_type"`
	Score     float64            `json:"score"`
	Passed    bool               `json:"passed"`
	Breakdown map[string]float64 `json:"breakdown"`

	TotalQuestions   int     `json:"total_questions"`
	CorrectAnswers   int     `json:"correct_answers"`
	IncorrectAnswers int     `json:"incorrect_answers"`
	SkippedAnswers   int     `json:"skipped_answers"`
	Accuracy         float64 `json:"accuracy"`
	TimeTaken        string  `json:"time_taken"`

	Questions []QuestionAnalysis `json:"questions"`
	Template  string             `json:"template"`
}

type QuestionAnalysis struct {
	QuestionID         uint                `json:"question_id"`
	SectionTitle       string              `json:"section_title"`
	Type               models.QuestionType `json:"type"`
	Text               string              `json:"text"`
	Explanation        string              `json:"explanation,omitempty"`
	Status             QuestionStatus      `json:"status"`
	SelectedOptionID   *uint               `json:"selected_option_id,omitempty"`
	TextAnswer         *string             `json:"text_answer,omitempty"`
	CorrectOptionIDs   []uint              `json:"correct_option_ids,omitempty"`
	CorrectAnswerValue *string             `json:"correct_answer_value,omitempty"`
	ScoreAwarded       float64             `json:"score_awarded"`
	Options            []models.Option     `json:"options,omitempty"`
}

// ===== RANK DTOs =====

type LeaderboardResponse struct {
	Entries []models.LeaderboardEntry `json:"entries"`
	Total   int64                     `json:"total"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
}

type UserRankResponse struct {
	Position int                `json:"position"`
	Metric   *models.RankMetric `json:"metric"`
}

// ===== REPORT DTOs =====

type ReportQuestionRequest struct {
	Reason string `json:"reason" validate:"required,not_blank,max=2000"`
}

// ===== SERVICE INTERFACES =====

type AttemptService interface {
	// Lifecycle
	StartOrResume(ctx context.Context, testID uint, userID string) (*AttemptResponse, error)
	SaveAnswer(ctx context.Context, attemptID, questionID uint, req *SaveAnswerRequest, userID string) (*AnswerResponse, error)
	SaveAudioAnswer(ctx context.Context, attemptID, questionID uint, req *SaveAudioAnswerRequest, userID string) (*AnswerResponse, error)
	Submit(ctx context.Context, attemptID uint, req *SubmitRequest, userID string) (*SubmitResult, error)
	// AutoSubmit is the timer path; it skips the ownership check
	AutoSubmit(ctx context.Context, attemptID uint) (*SubmitResult, error)

	// Time management
	GetRemainingSeconds(ctx context.Context, attemptID uint) (int, error)
	Heartbeat(ctx context.Context, attemptID uint, userID string) (*HeartbeatResponse, error)

	// Views
	TakeTest(ctx context.Context, attemptID uint, userID string) (*TakeTestView, error)
	GetResult(ctx context.Context, attemptID uint, userID string) (*ResultView, error)
}

type RankService interface {
	Recalculate(ctx context.Context, userID string) error
	RecalculateAll(ctx context.Context) (int, error)
	Leaderboard(ctx context.Context, limit, offset int) (*LeaderboardResponse, error)
	GetUserRank(ctx context.Context, userID string) (*UserRankResponse, error)
	ExportLeaderboard(ctx context.Context) ([]byte, error)
}

type ReportService interface {
	ReportQuestion(ctx context.Context, questionID uint, req *ReportQuestionRequest, userID string) (*models.QuestionReport, error)
}

// EntitlementChecker decides whether a user may take a test
type EntitlementChecker interface {
	IsEntitled(ctx context.Context, userID string, testID uint) (bool, error)
}

// ReviewSink receives testimonials left at submission time
type ReviewSink interface {
	SubmitReview(ctx context.Context, review Review) error
}

type Review struct {
	AttemptID uint
	UserID    string
	TestID    uint
	Rating    int
	Text      string
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Attempt() AttemptService
	Rank() RankService
	Report() ReportService
	Grading() *grading.Registry

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
