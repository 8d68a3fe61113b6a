package repositories

import (
	"context"

	"github.com/SAP-F-2025/mocktest-service/internal/models"
)

// UserRepository reads accounts from the identity provider. The service never owns user data.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByIDs skips ids that cannot be resolved
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
}
