package models

import "time"

// QuestionReport is a student's complaint about a question's content
type QuestionReport struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"not null;index;size:255"`
	QuestionID uint      `json:"question_id" gorm:"not null;index"`
	ReportText string    `json:"report_text" gorm:"type:text;not null"`
	IsResolved bool      `json:"is_resolved" gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`
}

func (QuestionReport) TableName() string {
	return "question_reports"
}

// Enrollment is the read model behind the default entitlement check.
// Rows are written by the enrollment/billing side.
type Enrollment struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_enrollments_user_test"`
	TestID    uint      `json:"test_id" gorm:"not null;uniqueIndex:idx_enrollments_user_test"`
	CreatedAt time.Time `json:"created_at"`
}

func (Enrollment) TableName() string {
	return "user_enrollments"
}
