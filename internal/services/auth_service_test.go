package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/harvestly/harvestly/internal/auth"
	"github.com/harvestly/harvestly/internal/models"
	"github.com/harvestly/harvestly/internal/repositories"
	pkgauth "github.com/harvestly/harvestly/pkg/auth"
	pkglogger "github.com/harvestly/harvestly/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "services-test-secret-at-least-32-bytes"

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type authFixture struct {
	repo    *repositories.MemoryUserRepository
	tm      *auth.TokenManager
	email   *MockEmailService
	service *AuthService
	verify  *EmailVerificationService
}

func newAuthFixture(demoMode bool) *authFixture {
	repo := repositories.NewMemoryUserRepository()
	tm := auth.NewTokenManager(testSecret, time.Hour)
	email := &MockEmailService{}
	audit := pkglogger.NewAuditLogger(testLogger)
	verify := NewEmailVerificationService(repo, email, testLogger, audit)

	return &authFixture{
		repo:    repo,
		tm:      tm,
		email:   email,
		verify:  verify,
		service: NewAuthService(repo, tm, verify, nil, testLogger, audit, demoMode),
	}
}

func validRegistration() RegisterInput {
	return RegisterInput{
		FirstName: " Asha ",
		LastName:  "Rao",
		Email:     "  Asha@Farm.TEST ",
		Phone:     "9876543210",
		State:     "Karnataka",
		Password:  "password123",
	}
}

func TestAuthService_Register_SendsVerification(t *testing.T) {
	f := newAuthFixture(false)
	ctx := context.Background()

	resp, err := f.service.Register(ctx, validRegistration(), "203.0.113.1")
	require.NoError(t, err)

	assert.Empty(t, resp.Token, "unverified accounts get no token")
	assert.Equal(t, "asha@farm.test", resp.User.Email)
	assert.Equal(t, "Asha", resp.User.FirstName)
	assert.Equal(t, models.RoleUser, resp.User.Role)
	assert.False(t, resp.User.IsVerified)

	require.Len(t, f.email.VerificationTokens, 1)
	plain := f.email.VerificationTokens[0]

	stored, err := f.repo.GetByEmail(ctx, "asha@farm.test")
	require.NoError(t, err)
	require.NotNil(t, stored.VerificationTokenHash)
	assert.Equal(t, pkgauth.HashOpaqueToken(plain), *stored.VerificationTokenHash)
	assert.NotEqual(t, plain, *stored.VerificationTokenHash)
	assert.NotEqual(t, "password123", stored.PasswordHash)
	assert.True(t, stored.CheckPassword("password123"))
}

func TestAuthService_Register_DemoMode(t *testing.T) {
	f := newAuthFixture(true)

	resp, err := f.service.Register(context.Background(), validRegistration(), "")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Token)
	assert.True(t, resp.User.IsVerified)
	assert.Empty(t, f.email.VerificationTokens)

	claims, err := f.tm.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(true)
	ctx := context.Background()

	_, err := f.service.Register(ctx, validRegistration(), "")
	require.NoError(t, err)

	in := validRegistration()
	in.Email = "asha@farm.test"
	resp, err := f.service.Register(ctx, in, "")

	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Nil(t, resp)
}

func TestAuthService_Register_RaceLostOnInsert(t *testing.T) {
	repo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}
	svc := NewAuthService(repo, &MockTokenIssuer{}, nil, nil, testLogger, nil, true)

	_, err := svc.Register(context.Background(), validRegistration(), "")

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAuthService_Register_ShortPassword(t *testing.T) {
	f := newAuthFixture(true)
	in := validRegistration()
	in.Password = "short"

	_, err := f.service.Register(context.Background(), in, "")

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, models.ErrBadRequest)
	assert.Contains(t, verr.Message, "at least 8")
}

func TestAuthService_Register_StoreFailure(t *testing.T) {
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewAuthService(repo, &MockTokenIssuer{}, nil, nil, testLogger, nil, true)

	_, err := svc.Register(context.Background(), validRegistration(), "")

	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestAuthService_Login(t *testing.T) {
	f := newAuthFixture(true)
	ctx := context.Background()

	_, err := f.service.Register(ctx, validRegistration(), "")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "success", email: "asha@farm.test", password: "password123"},
		{name: "email normalized", email: " ASHA@farm.test", password: "password123"},
		{name: "wrong password", email: "asha@farm.test", password: "password124", wantErr: models.ErrInvalidCredentials},
		{name: "unknown email", email: "nobody@farm.test", password: "password123", wantErr: models.ErrInvalidCredentials},
		{name: "empty password", email: "asha@farm.test", password: "", wantErr: models.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.service.Login(ctx, tt.email, tt.password, "")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, resp.Token)
			require.NotNil(t, resp.User.LastLogin)

			claims, err := f.tm.ValidateToken(resp.Token)
			require.NoError(t, err)
			assert.Equal(t, resp.User.ID, claims.UserID)
		})
	}
}

func TestAuthService_Login_Unverified(t *testing.T) {
	f := newAuthFixture(false)
	ctx := context.Background()

	_, err := f.service.Register(ctx, validRegistration(), "")
	require.NoError(t, err)

	_, err = f.service.Login(ctx, "asha@farm.test", "password123", "")
	assert.ErrorIs(t, err, models.ErrEmailNotVerified)

	// Wrong password on an unverified account still reads as bad credentials
	_, err = f.service.Login(ctx, "asha@farm.test", "nope-nope", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = f.verify.Verify(ctx, f.email.VerificationTokens[0])
	require.NoError(t, err)

	resp, err := f.service.Login(ctx, "asha@farm.test", "password123", "")
	require.NoError(t, err)
	assert.True(t, resp.User.IsVerified)
}

func TestAuthService_Login_PadsFailures(t *testing.T) {
	repo := repositories.NewMemoryUserRepository()
	delay := auth.NewFailureDelay(60*time.Millisecond, 0)
	svc := NewAuthService(repo, auth.NewTokenManager(testSecret, time.Hour), nil, delay, testLogger, nil, true)

	start := time.Now()
	_, err := svc.Login(context.Background(), "ghost@farm.test", "password123", "")

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestAuthService_Me(t *testing.T) {
	user := NewTestUser("u1", "asha@farm.test", "")
	repo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			if id == "u1" {
				return user, nil
			}
			return nil, models.ErrNotFound
		},
	}
	svc := NewAuthService(repo, &MockTokenIssuer{}, nil, nil, testLogger, nil, false)

	resp, err := svc.Me(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "asha@farm.test", resp.Email)

	_, err = svc.Me(context.Background(), "u2")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAuthService_LogoutAll(t *testing.T) {
	var gotID string
	var gotAt time.Time
	repo := &MockUserRepository{
		RevokeTokensFunc: func(ctx context.Context, id string, at time.Time) error {
			gotID, gotAt = id, at
			return nil
		},
	}
	svc := NewAuthService(repo, &MockTokenIssuer{}, nil, nil, testLogger, nil, false)
	fixed := time.Date(2026, 5, 1, 8, 0, 0, 750_000_000, time.UTC)
	svc.now = func() time.Time { return fixed }

	require.NoError(t, svc.LogoutAll(context.Background(), "u1", ""))

	assert.Equal(t, "u1", gotID)
	assert.Equal(t, time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC), gotAt, "cutoff is truncated to token precision")
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	f := newAuthFixture(false)
	ctx := context.Background()

	require.NoError(t, f.service.EnsureAdmin(ctx, "Admin@Farm.test", "admin-password"))

	admin, err := f.repo.GetByEmail(ctx, "admin@farm.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.True(t, admin.IsVerified)

	// Idempotent
	require.NoError(t, f.service.EnsureAdmin(ctx, "admin@farm.test", "admin-password"))
	total, err := f.repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestAuthService_EnsureAdmin_RefusesExistingRegularAccount(t *testing.T) {
	f := newAuthFixture(true)
	ctx := context.Background()

	// Someone registered the admin address before the first boot
	in := validRegistration()
	in.Email = "admin@farm.test"
	in.Password = "squatter-pass"
	_, err := f.service.Register(ctx, in, "")
	require.NoError(t, err)

	err = f.service.EnsureAdmin(ctx, "admin@farm.test", "operator-secret-pw")
	assert.ErrorIs(t, err, ErrAdminEmailTaken)

	user, err := f.repo.GetByEmail(ctx, "admin@farm.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)

	resp, err := f.service.Login(ctx, "admin@farm.test", "squatter-pass", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, resp.User.Role)

	_, err = f.service.Login(ctx, "admin@farm.test", "operator-secret-pw", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}
