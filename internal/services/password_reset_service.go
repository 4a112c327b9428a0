package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harvestly/harvestly/internal/models"
	pkgauth "github.com/harvestly/harvestly/pkg/auth"
	pkglogger "github.com/harvestly/harvestly/pkg/logger"
)

// ResetThrottle limits how often a reset email goes to one address
type ResetThrottle interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

// ResetRequestResult carries the plaintext token of a newly issued reset.
// Token is empty when nothing was issued; callers must not reveal which.
type ResetRequestResult struct {
	Token     string
	ExpiresAt time.Time
}

// PasswordResetService runs the forgot-password and reset-password flows
type PasswordResetService struct {
	repo         UserRepository
	tm           TokenIssuer
	emailService EmailService
	throttle     ResetThrottle
	cooldown     time.Duration
	tokenExpiry  time.Duration
	logger       *slog.Logger
	auditLogger  *pkglogger.AuditLogger
	now          func() time.Time
	sends        sync.WaitGroup
}

// resetEmailTimeout bounds one background send
const resetEmailTimeout = 30 * time.Second

// NewPasswordResetService creates a new PasswordResetService. throttle may be nil.
func NewPasswordResetService(repo UserRepository, tm TokenIssuer, emailService EmailService, throttle ResetThrottle, cooldown, tokenExpiry time.Duration, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *PasswordResetService {
	if tokenExpiry <= 0 {
		tokenExpiry = time.Hour
	}
	return &PasswordResetService{
		repo:         repo,
		tm:           tm,
		emailService: emailService,
		throttle:     throttle,
		cooldown:     cooldown,
		tokenExpiry:  tokenExpiry,
		logger:       logger,
		auditLogger:  auditLogger,
		now:          time.Now,
	}
}

// RequestReset issues a reset token for email if the account exists. The
// result is success-shaped for unknown addresses too.
func (s *PasswordResetService) RequestReset(ctx context.Context, email, ip string) (*ResetRequestResult, error) {
	email = NormalizeEmail(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.auditLogger.LogAuthAttempt(ctx, pkglogger.EventResetRequest, "", email, ip, false, "unknown_email")
			return &ResetRequestResult{}, nil
		}
		s.logger.Error("failed to look up user for reset", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if s.throttle != nil && s.cooldown > 0 {
		allowed, err := s.throttle.Allow(ctx, email, s.cooldown)
		if err != nil {
			// Redis outage should not block account recovery
			s.logger.Warn("reset throttle unavailable", slog.Any("error", err))
		} else if !allowed {
			s.auditLogger.LogAuthAttempt(ctx, pkglogger.EventResetRequest, user.ID, email, ip, false, "throttled")
			return &ResetRequestResult{}, nil
		}
	}

	plain, hash, err := pkgauth.GenerateOpaqueToken()
	if err != nil {
		s.logger.Error("failed to generate reset token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	expiresAt := s.now().UTC().Add(s.tokenExpiry)
	if err := s.repo.SetPasswordReset(ctx, user.ID, hash, expiresAt); err != nil {
		s.logger.Error("failed to store reset token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// The email goes out after the response so that response time does not
	// depend on whether the account exists
	s.sends.Add(1)
	go func(userID, to string) {
		defer s.sends.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetEmailTimeout)
		defer cancel()
		if err := s.emailService.SendPasswordResetEmail(sendCtx, to, plain, expiresAt); err != nil {
			s.logger.Error("failed to send reset email", slog.String("user_id", userID), slog.Any("error", err))
		}
	}(user.ID, user.Email)

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.EventResetRequest, user.ID, email, ip, true, "")
	return &ResetRequestResult{Token: plain, ExpiresAt: expiresAt}, nil
}

// Wait blocks until every queued reset email has been handed to the email service
func (s *PasswordResetService) Wait() {
	s.sends.Wait()
}

// ConsumeReset sets a new password using a reset token and issues a fresh
// bearer token. Every token issued before the reset stops working.
func (s *PasswordResetService) ConsumeReset(ctx context.Context, token, newPassword, ip string) (*AuthResponse, error) {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, models.ErrInvalidResetToken
	}

	passwordHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.repo.ConsumePasswordReset(ctx, pkgauth.HashOpaqueToken(token), passwordHash, cutoffNow(s.now))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.auditLogger.LogAuthAttempt(ctx, pkglogger.EventResetConsume, "", "", ip, false, "invalid_token")
			return nil, models.ErrInvalidResetToken
		}
		s.logger.Error("failed to reset password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	bearer, err := s.tm.GenerateToken(user)
	if err != nil {
		s.logger.Error("failed to generate token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("password reset", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.EventResetConsume, user.ID, user.Email, ip, true, "")

	return &AuthResponse{
		Token: bearer,
		User:  ToUserResponse(user),
	}, nil
}

// CleanupExpired clears reset tokens whose expiry has passed
func (s *PasswordResetService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.ClearExpiredResets(ctx, s.now().UTC())
}
