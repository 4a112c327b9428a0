package services

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/harvestly/harvestly/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc              func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc           func(ctx context.Context, email string) (*models.User, error)
	ListFunc                 func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CountFunc                func(ctx context.Context) (int64, error)
	CreateFunc               func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateProfileFunc        func(ctx context.Context, id string, patch models.UserPatch) (*models.User, error)
	SetProfilePictureFunc    func(ctx context.Context, id, url string) (*models.User, error)
	UpdatePasswordFunc       func(ctx context.Context, id, passwordHash string, at time.Time) error
	UpdateLastLoginFunc      func(ctx context.Context, id string, at time.Time) error
	RevokeTokensFunc         func(ctx context.Context, id string, at time.Time) error
	SetPasswordResetFunc     func(ctx context.Context, id, tokenHash string, expires time.Time) error
	ConsumePasswordResetFunc func(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.User, error)
	ConsumeVerificationFunc  func(ctx context.Context, tokenHash string) (*models.User, error)
	ClearExpiredResetsFunc   func(ctx context.Context, now time.Time) (int64, error)
	DeleteFunc               func(ctx context.Context, id string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Count(ctx context.Context) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, id, patch)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) SetProfilePicture(ctx context.Context, id, url string) (*models.User, error) {
	if m.SetProfilePictureFunc != nil {
		return m.SetProfilePictureFunc(ctx, id, url)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash, at)
	}
	return nil
}

func (m *MockUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.UpdateLastLoginFunc != nil {
		return m.UpdateLastLoginFunc(ctx, id, at)
	}
	return nil
}

func (m *MockUserRepository) RevokeTokens(ctx context.Context, id string, at time.Time) error {
	if m.RevokeTokensFunc != nil {
		return m.RevokeTokensFunc(ctx, id, at)
	}
	return nil
}

func (m *MockUserRepository) SetPasswordReset(ctx context.Context, id, tokenHash string, expires time.Time) error {
	if m.SetPasswordResetFunc != nil {
		return m.SetPasswordResetFunc(ctx, id, tokenHash, expires)
	}
	return nil
}

func (m *MockUserRepository) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.User, error) {
	if m.ConsumePasswordResetFunc != nil {
		return m.ConsumePasswordResetFunc(ctx, tokenHash, passwordHash, now)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) ConsumeVerification(ctx context.Context, tokenHash string) (*models.User, error) {
	if m.ConsumeVerificationFunc != nil {
		return m.ConsumeVerificationFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) ClearExpiredResets(ctx context.Context, now time.Time) (int64, error) {
	if m.ClearExpiredResetsFunc != nil {
		return m.ClearExpiredResetsFunc(ctx, now)
	}
	return 0, nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockEmailService records every message it is asked to send
type MockEmailService struct {
	mu                 sync.Mutex
	VerificationTokens []string
	ResetTokens        []string
	Err                error
}

func (m *MockEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerificationTokens = append(m.VerificationTokens, token)
	return m.Err
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetTokens = append(m.ResetTokens, token)
	return m.Err
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	GenerateTokenFunc func(user *models.User) (string, error)
}

func (m *MockTokenIssuer) GenerateToken(user *models.User) (string, error) {
	if m.GenerateTokenFunc != nil {
		return m.GenerateTokenFunc(user)
	}
	return "token-for-" + user.ID, nil
}

// MockResetThrottle implements ResetThrottle for testing
type MockResetThrottle struct {
	AllowFunc func(ctx context.Context, key string, window time.Duration) (bool, error)
}

func (m *MockResetThrottle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, window)
	}
	return true, nil
}

// MockImageUploader implements ImageUploader for testing
type MockImageUploader struct {
	UploadImageFunc func(ctx context.Context, file io.Reader, publicID string) (string, error)
}

func (m *MockImageUploader) UploadImage(ctx context.Context, file io.Reader, publicID string) (string, error) {
	if m.UploadImageFunc != nil {
		return m.UploadImageFunc(ctx, file, publicID)
	}
	return "https://res.cloudinary.com/demo/image/upload/" + publicID + ".jpg", nil
}

// NewTestUser builds a verified user with the given plaintext password
func NewTestUser(id, email, password string) *models.User {
	now := time.Now().UTC()
	user := &models.User{
		ID:         id,
		FirstName:  "Asha",
		LastName:   "Rao",
		Email:      email,
		Phone:      "9876543210",
		State:      "Karnataka",
		Role:       models.RoleUser,
		IsVerified: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if password != "" {
		if err := user.SetPassword(password); err != nil {
			panic(err)
		}
	}
	return user
}
