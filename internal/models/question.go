package models

import (
	"strings"
)

type QuestionType string

const (
	QuestionMCQ     QuestionType = "MCQ"
	QuestionNumeric QuestionType = "NUMERIC"
	QuestionEssay   QuestionType = "ESSAY"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "EASY"
	DifficultyMedium DifficultyLevel = "MEDIUM"
	DifficultyHard   DifficultyLevel = "HARD"
)

type Question struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	SectionID   uint            `json:"section_id" gorm:"not null;index"`
	Type        QuestionType    `json:"type" gorm:"column:question_type;size:20;not null;default:MCQ"`
	Difficulty  DifficultyLevel `json:"difficulty" gorm:"size:10;not null;default:MEDIUM"`
	Text        string          `json:"text" gorm:"column:question_text;type:text;not null"`
	Explanation string          `json:"explanation,omitempty" gorm:"type:text"`
	Marks       int             `json:"marks" gorm:"not null;default:1"`
	SortOrder   int             `json:"sort_order" gorm:"not null;default:0"`

	// Canonical value for NUMERIC comparison
	CorrectAnswerValue *string `json:"correct_answer_value,omitempty" gorm:"size:255"`

	Options []Option `json:"options,omitempty" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string {
	return "test_questions"
}

// FindOption returns the option with the given id, or nil if it does not belong to the question
func (q *Question) FindOption(optionID uint) *Option {
	for i := range q.Options {
		if q.Options[i].ID == optionID {
			return &q.Options[i]
		}
	}
	return nil
}

// CorrectOptionCount counts options flagged correct. Authoring does not enforce exactly one.
func (q *Question) CorrectOptionCount() int {
	count := 0
	for _, opt := range q.Options {
		if opt.IsCorrect {
			count++
		}
	}
	return count
}

// NormalizedCorrectValue returns the trimmed lower-cased correct value and whether one is set
func (q *Question) NormalizedCorrectValue() (string, bool) {
	if q.CorrectAnswerValue == nil {
		return "", false
	}
	value := strings.ToLower(strings.TrimSpace(*q.CorrectAnswerValue))
	return value, value != ""
}

type Option struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Text       string `json:"text" gorm:"column:option_text;size:500;not null"`
	IsCorrect  bool   `json:"is_correct" gorm:"not null;default:false"`
}

func (Option) TableName() string {
	return "question_options"
}
