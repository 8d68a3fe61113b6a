package grading

import (
	"errors"
	"fmt"
	"math"

	"github.com/SAP-F-2025/mocktest-service/internal/models"
)

var ErrUnknownExamType = errors.New("unknown exam type")

// Templates are the UI template identifiers a strategy renders with
type Templates struct {
	TakeTest string `json:"take_test"`
	Result   string `json:"result"`
}

// Sheet is everything a strategy needs to grade one attempt.
// Test must have sections, questions and options loaded.
type Sheet struct {
	Test    *models.Test
	Answers []models.Answer
}

// AnswerMark is the grading outcome written back to one answer row
type AnswerMark struct {
	QuestionID   uint    `json:"question_id"`
	IsCorrect    *bool   `json:"is_correct"`
	ScoreAwarded float64 `json:"score_awarded"`
}

// Issue records a question that could not be graded. The question scores 0.
type Issue struct {
	QuestionID uint   `json:"question_id"`
	Reason     string `json:"reason"`
}

func (i Issue) String() string {
	return fmt.Sprintf("question %d: %s", i.QuestionID, i.Reason)
}

// ScoreResult is the outcome of grading an attempt
type ScoreResult struct {
	Score     float64            `json:"score"`
	Passed    bool               `json:"passed"`
	Breakdown map[string]float64 `json:"breakdown"`
	Marks     []AnswerMark       `json:"-"`
	Issues    []Issue            `json:"-"`
}

// Strategy grades attempts for one family of exam types
type Strategy interface {
	Name() string
	Templates() Templates
	Grade(sheet Sheet) ScoreResult
}

func passed(score float64, test *models.Test) bool {
	// Raw points against the configured threshold, not a percentage
	return score >= float64(test.PassPercentage)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
