package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted  AttemptStatus = "SUBMITTED"
)

type SubmitTrigger string

const (
	SubmitManual SubmitTrigger = "MANUAL"
	SubmitAuto   SubmitTrigger = "AUTO"
)

// Attempt is one student's timed run through a test.
// At most one IN_PROGRESS attempt exists per (user, test); see idx_attempts_user_test_in_progress.
type Attempt struct {
	ID     uint          `json:"id" gorm:"primaryKey"`
	UserID string        `json:"user_id" gorm:"not null;index;size:255"`
	TestID uint          `json:"test_id" gorm:"not null;index"`
	Status AttemptStatus `json:"status" gorm:"size:20;not null;default:IN_PROGRESS;index"`

	// Timing. StartedAt is written once at creation.
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	CompletedAt *time.Time `json:"completed_at"`

	// Scoring, null until submission
	Score         *float64       `json:"score" gorm:"type:numeric(10,2)"`
	IsPassed      bool           `json:"is_passed" gorm:"not null;default:false"`
	Breakdown     datatypes.JSON `json:"breakdown,omitempty" gorm:"type:jsonb"`
	SubmitTrigger *SubmitTrigger `json:"submit_trigger,omitempty" gorm:"size:10"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Test    *Test    `json:"test,omitempty" gorm:"foreignKey:TestID"`
	Answers []Answer `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
}

func (Attempt) TableName() string {
	return "test_attempts"
}

func (a *Attempt) IsSubmitted() bool {
	return a.Status == AttemptSubmitted
}

func (a *Attempt) IsOwnedBy(userID string) bool {
	return a.UserID == userID
}

// ScoreValue returns the stored score or 0 before submission
func (a *Attempt) ScoreValue() float64 {
	if a.Score == nil {
		return 0
	}
	return *a.Score
}

// Answer is the student's current response to one question of an attempt.
// Unique per (attempt_id, question_id); saves upsert in place.
type Answer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;uniqueIndex:idx_answers_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;uniqueIndex:idx_answers_attempt_question"`

	// Payload, populated according to the question type
	SelectedOptionID *uint   `json:"selected_option_id"`
	TextAnswer       *string `json:"text_answer" gorm:"type:text"`
	AudioAnswer      []byte  `json:"-" gorm:"type:bytea"`
	AudioContentType *string `json:"audio_content_type,omitempty" gorm:"size:100"`

	IsMarkedForReview bool `json:"is_marked_for_review" gorm:"not null;default:false"`

	// Grading, written once during submission
	IsCorrect    *bool   `json:"is_correct"`
	ScoreAwarded float64 `json:"score_awarded" gorm:"type:numeric(10,2);not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Answer) TableName() string {
	return "attempt_answers"
}

// HasResponse reports whether the student provided any payload
func (a *Answer) HasResponse() bool {
	if a.SelectedOptionID != nil || len(a.AudioAnswer) > 0 {
		return true
	}
	return a.TextAnswer != nil && *a.TextAnswer != ""
}
