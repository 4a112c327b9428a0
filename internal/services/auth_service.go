package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harvestly/harvestly/internal/auth"
	"github.com/harvestly/harvestly/internal/models"
	pkgauth "github.com/harvestly/harvestly/pkg/auth"
	pkglogger "github.com/harvestly/harvestly/pkg/logger"
)

// RegisterInput carries a validated registration request
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	State     string
	Password  string
}

// AuthService handles registration, login and session revocation
type AuthService struct {
	repo         UserRepository
	tm           TokenIssuer
	verification *EmailVerificationService
	delay        *auth.FailureDelay
	logger       *slog.Logger
	auditLogger  *pkglogger.AuditLogger
	demoMode     bool
	now          func() time.Time
}

// NewAuthService creates a new AuthService. In demo mode new accounts are
// verified immediately and receive a token at registration.
func NewAuthService(repo UserRepository, tm TokenIssuer, verification *EmailVerificationService, delay *auth.FailureDelay, logger *slog.Logger, auditLogger *pkglogger.AuditLogger, demoMode bool) *AuthService {
	return &AuthService{
		repo:         repo,
		tm:           tm,
		verification: verification,
		delay:        delay,
		logger:       logger,
		auditLogger:  auditLogger,
		demoMode:     demoMode,
		now:          time.Now,
	}
}

// NormalizeEmail trims and lowercases an address the way it is stored
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// equalizeUnknownUser spends one bcrypt comparison so a missing account
// costs about as much as a wrong password.
func equalizeUnknownUser(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = pkgauth.HashPassword("harvestly-timing-equalizer")
	})
	if dummyHash != "" {
		_ = pkgauth.ComparePassword(dummyHash, password)
	}
}

// Register creates a new account
func (s *AuthService) Register(ctx context.Context, in RegisterInput, ip string) (*AuthResponse, error) {
	email := NormalizeEmail(in.Email)

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: user already exists")
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.EventRegister, "", email, ip, false, "duplicate_email")
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check if user exists", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		Email:      email,
		Phone:      strings.TrimSpace(in.Phone),
		State:      strings.TrimSpace(in.State),
		Role:       models.RoleUser,
		IsVerified: s.demoMode,
	}

	if err := user.SetPassword(in.Password); err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	var verificationToken string
	if !s.demoMode {
		verificationToken, err = s.verification.Attach(user)
		if err != nil {
			s.logger.Error("failed to generate verification token", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Lost a race with a concurrent registration for the same address
			s.auditLogger.LogAuthAttempt(ctx, pkglogger.EventRegister, "", email, ip, false, "duplicate_email")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", created.ID))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.EventRegister, created.ID, email, ip, true, "")

	resp := &AuthResponse{User: ToUserResponse(created)}

	if s.demoMode {
		token, err := s.tm.GenerateToken(created)
		if err != nil {
			s.logger.Error("failed to generate token", slog.String("user_id", created.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		resp.Token = token
		return resp, nil
	}

	s.verification.Send(ctx, created, verificationToken)
	return resp, nil
}

// Login checks credentials and issues a bearer token
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*AuthResponse, error) {
	start := time.Now()
	email = NormalizeEmail(email)

	fail := func(userID, reason string) (*AuthResponse, error) {
		s.logger.Info("login failed: invalid credentials")
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.EventLogin, userID, email, ip, false, reason)
		s.delay.PadFrom(ctx, start)
		return nil, models.ErrInvalidCredentials
	}

	if email == "" || password == "" {
		return fail("", "missing_credentials")
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			equalizeUnknownUser(password)
			return fail("", "invalid_credentials")
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.CheckPassword(password) {
		return fail(user.ID, "invalid_credentials")
	}

	if !user.IsVerified {
		s.logger.Info("login blocked: email not verified", slog.String("user_id", user.ID))
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.EventLogin, user.ID, email, ip, false, "email_not_verified")
		return nil, models.ErrEmailNotVerified
	}

	loginAt := s.now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, loginAt); err != nil {
		s.logger.Error("failed to record last login", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	user.LastLogin = &loginAt

	token, err := s.tm.GenerateToken(user)
	if err != nil {
		s.logger.Error("failed to generate token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.EventLogin, user.ID, email, ip, true, "")

	return &AuthResponse{
		Token: token,
		User:  ToUserResponse(user),
	}, nil
}

// Me returns the caller's own public record
func (s *AuthService) Me(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get current user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return ToUserResponse(user), nil
}

// LogoutAll invalidates every token issued to the user before now
func (s *AuthService) LogoutAll(ctx context.Context, userID, ip string) error {
	if err := s.repo.RevokeTokens(ctx, userID, cutoffNow(s.now)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to revoke tokens", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user logged out from all devices", slog.String("user_id", userID))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventLogoutAll, UserID: userID, IPAddress: ip, Success: true})
	return nil
}

// ErrAdminEmailTaken is returned when the bootstrap admin email belongs to a
// regular account. That account is never promoted: its password was chosen
// by whoever registered it, not by the operator.
var ErrAdminEmailTaken = errors.New("admin email is registered to a non-admin account")

// EnsureAdmin creates the bootstrap admin account unless it already exists.
// The account is marked verified so it can log in without email delivery.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = NormalizeEmail(email)

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		if existing.Role == models.RoleAdmin {
			s.logger.Info("admin user already exists")
			return nil
		}
		s.logger.Error("bootstrap admin email belongs to a regular account, not promoting",
			slog.String("user_id", existing.ID),
			slog.String("email", pkglogger.SanitizedEmail(email)),
		)
		return ErrAdminEmailTaken
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return err
	}

	admin := &models.User{
		FirstName:  "Admin",
		LastName:   "User",
		Email:      email,
		Phone:      "0000000000",
		State:      "N/A",
		Role:       models.RoleAdmin,
		IsVerified: true,
	}
	if err := admin.SetPassword(password); err != nil {
		return err
	}

	created, err := s.repo.Create(ctx, admin)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil
		}
		return err
	}

	s.logger.Info("bootstrap admin created", slog.String("user_id", created.ID))
	return nil
}
