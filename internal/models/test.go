package models

import (
	"time"
)

type ExamType string

const (
	ExamGeneral        ExamType = "GENERAL"
	ExamSATAdaptive    ExamType = "SAT_ADAPTIVE"
	ExamSATNonAdaptive ExamType = "SAT_NON_ADAPTIVE"
	ExamIELTS          ExamType = "IELTS"
	ExamJEEMains       ExamType = "JEE_MAINS"
	ExamJEEAdvanced    ExamType = "JEE_ADVANCED"
)

type TestLevel string

const (
	LevelBeginner     TestLevel = "BEGINNER"
	LevelIntermediate TestLevel = "INTERMEDIATE"
	LevelAdvanced     TestLevel = "ADVANCED"
)

// Test is a purchasable mock test. Read-only from the attempt engine's perspective.
type Test struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	Title           string    `json:"title" gorm:"not null;size:255"`
	ExamType        ExamType  `json:"exam_type" gorm:"size:20;not null;default:GENERAL"`
	Level           TestLevel `json:"level" gorm:"size:50;not null;default:BEGINNER"`
	DurationMinutes int       `json:"duration_minutes" gorm:"not null"`
	Instructions    string    `json:"instructions" gorm:"type:text"`

	// Scoring
	PassPercentage            int     `json:"pass_percentage" gorm:"not null;default:50"`
	HasNegativeMarking        bool    `json:"has_negative_marking" gorm:"not null;default:false"`
	NegativeMarkingPercentage float64 `json:"negative_marking_percentage" gorm:"type:numeric(5,2);not null;default:0"`

	// Multiplier for the global ranking
	RankingWeight float64 `json:"ranking_weight" gorm:"type:numeric(4,2);not null;default:1"`

	// Schedule window, both optional
	StartAt *time.Time `json:"start_at"`
	EndAt   *time.Time `json:"end_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sections []Section `json:"sections,omitempty" gorm:"foreignKey:TestID"`
}

func (Test) TableName() string {
	return "tests"
}

// Duration returns the configured time budget of the test
func (t *Test) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// IsOpenAt reports whether new attempts may be started at the given time
func (t *Test) IsOpenAt(now time.Time) (opened bool, closed bool) {
	if t.StartAt != nil && now.Before(*t.StartAt) {
		return false, false
	}
	if t.EndAt != nil && now.After(*t.EndAt) {
		return true, true
	}
	return true, false
}

// FindQuestion locates a question by id in the loaded sections
func (t *Test) FindQuestion(questionID uint) *Question {
	for i := range t.Sections {
		for j := range t.Sections[i].Questions {
			if t.Sections[i].Questions[j].ID == questionID {
				return &t.Sections[i].Questions[j]
			}
		}
	}
	return nil
}

type Section struct {
	ID              uint   `json:"id" gorm:"primaryKey"`
	TestID          uint   `json:"test_id" gorm:"not null;index"`
	Title           string `json:"title" gorm:"not null;size:255"`
	SortOrder       int    `json:"sort_order" gorm:"not null;default:0"`
	DurationMinutes *int   `json:"duration_minutes"` // informational, not enforced
	IsMandatory     bool   `json:"is_mandatory" gorm:"not null;default:true"`

	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:SectionID"`
}

func (Section) TableName() string {
	return "test_sections"
}
