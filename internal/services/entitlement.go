package services

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
)

// enrollmentEntitlement treats an enrollment row as proof of purchase
type enrollmentEntitlement struct {
	repo repositories.Repository
}

func NewEnrollmentEntitlementChecker(repo repositories.Repository) EntitlementChecker {
	return &enrollmentEntitlement{repo: repo}
}

func (e *enrollmentEntitlement) IsEntitled(ctx context.Context, userID string, testID uint) (bool, error) {
	exists, err := e.repo.Enrollment().Exists(ctx, userID, testID)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return exists, nil
}
