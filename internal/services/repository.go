package services

import (
	"context"
	"time"

	"github.com/harvestly/harvestly/internal/models"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// UpdateProfile writes only the fields present in patch
	UpdateProfile(ctx context.Context, id string, patch models.UserPatch) (*models.User, error)
	SetProfilePicture(ctx context.Context, id, url string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	RevokeTokens(ctx context.Context, id string, at time.Time) error
	SetPasswordReset(ctx context.Context, id, tokenHash string, expires time.Time) error
	ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.User, error)
	ConsumeVerification(ctx context.Context, tokenHash string) (*models.User, error)
	ClearExpiredResets(ctx context.Context, now time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
}

// TokenIssuer signs bearer tokens for a user
type TokenIssuer interface {
	GenerateToken(user *models.User) (string, error)
}

// cutoffNow returns now at the second precision bearer tokens carry
func cutoffNow(now func() time.Time) time.Time {
	return now().UTC().Truncate(time.Second)
}
