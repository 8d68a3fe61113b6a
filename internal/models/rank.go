package models

import "time"

// RankMetric is the denormalized per-user leaderboard row, rebuilt from source attempts.
type RankMetric struct {
	UserID          string    `json:"user_id" gorm:"primaryKey;size:255"`
	TotalXP         int       `json:"total_xp" gorm:"column:total_xp;not null;default:0;index"`
	TestsTakenCount int       `json:"tests_taken_count" gorm:"not null;default:0"`
	AvgScore        float64   `json:"avg_score" gorm:"type:numeric(10,2);not null;default:0"`
	WeightedXP      float64   `json:"weighted_xp" gorm:"column:weighted_xp;type:numeric(12,2);not null;default:0"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (RankMetric) TableName() string {
	return "user_rank_metrics"
}

// LeaderboardEntry is a ranked RankMetric with optional display data from the user directory
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	FullName string `json:"full_name,omitempty"`
	RankMetric
}
