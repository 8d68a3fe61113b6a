package casdoor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"

	"github.com/SAP-F-2025/mocktest-service/internal/cache"
	"github.com/SAP-F-2025/mocktest-service/internal/config"
	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
)

// userClient is the subset of the Casdoor SDK client the directory uses
type userClient interface {
	GetUserByUserId(userId string) (*casdoorsdk.User, error)
}

type UserCasdoor struct {
	client userClient
	cache  *cache.CacheHelper
}

func NewUserCasdoor(cfg config.CasdoorConfig, cacheManager *cache.CacheManager) repositories.UserRepository {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Organization,
		cfg.Application,
	)

	return newUserCasdoor(client, cacheManager)
}

func newUserCasdoor(client userClient, cacheManager *cache.CacheManager) *UserCasdoor {
	return &UserCasdoor{
		client: client,
		cache:  cacheManager.User,
	}
}

// GetByID retrieves a user by ID
func (u *UserCasdoor) GetByID(ctx context.Context, id string) (*models.User, error) {
	cacheKey := fmt.Sprintf("id:%s", id)

	var cached models.User
	if err := u.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	}

	casdoorUser, err := u.client.GetUserByUserId(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user from Casdoor: %w", err)
	}
	if casdoorUser == nil {
		return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}

	user := ConvertUser(casdoorUser)
	if err := u.cache.Set(ctx, cacheKey, user, cache.UserCacheConfig.TTL); err != nil {
		slog.WarnContext(ctx, "Failed to cache user", "error", err, "user_id", id)
	}

	return user, nil
}

// GetByIDs retrieves multiple users, skipping ids that cannot be resolved
func (u *UserCasdoor) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		user, err := u.GetByID(ctx, id)
		if err != nil {
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

// ConvertUser maps a Casdoor account to the internal user model
func ConvertUser(casdoorUser *casdoorsdk.User) *models.User {
	user := &models.User{
		ID:       casdoorUser.Id,
		FullName: casdoorUser.DisplayName,
		Email:    casdoorUser.Email,
		Role:     primaryRole(casdoorUser),
	}
	if casdoorUser.Avatar != "" {
		avatar := casdoorUser.Avatar
		user.AvatarURL = &avatar
	}
	return user
}

func primaryRole(casdoorUser *casdoorsdk.User) models.UserRole {
	var roles []models.UserRole
	for _, role := range casdoorUser.Roles {
		if role == nil {
			continue
		}
		mapped := MapRole(role.Name)
		if !slices.Contains(roles, mapped) {
			roles = append(roles, mapped)
		}
	}

	// admin wins over anything else
	if casdoorUser.IsAdmin || slices.Contains(roles, models.RoleAdmin) {
		return models.RoleAdmin
	}
	if len(roles) == 0 {
		return MapRole(casdoorUser.Type)
	}
	return roles[0]
}

// MapRole maps a Casdoor role or user type name to an internal role
func MapRole(name string) models.UserRole {
	switch strings.ToLower(name) {
	case "admin", "administrator":
		return models.RoleAdmin
	case "teacher", "instructor", "educator":
		return models.RoleTeacher
	default:
		return models.RoleStudent
	}
}
