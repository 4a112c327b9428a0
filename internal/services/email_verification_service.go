package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/harvestly/harvestly/internal/models"
	pkgauth "github.com/harvestly/harvestly/pkg/auth"
	pkglogger "github.com/harvestly/harvestly/pkg/logger"
)

// EmailVerificationService issues and consumes email verification tokens
type EmailVerificationService struct {
	repo         UserRepository
	emailService EmailService
	logger       *slog.Logger
	auditLogger  *pkglogger.AuditLogger
}

// NewEmailVerificationService creates a new EmailVerificationService
func NewEmailVerificationService(repo UserRepository, emailService EmailService, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *EmailVerificationService {
	return &EmailVerificationService{
		repo:         repo,
		emailService: emailService,
		logger:       logger,
		auditLogger:  auditLogger,
	}
}

// Attach generates a token for a user that is about to be saved. Only the
// digest goes on the record; the plaintext is returned for delivery.
func (s *EmailVerificationService) Attach(user *models.User) (string, error) {
	plain, hash, err := pkgauth.GenerateOpaqueToken()
	if err != nil {
		return "", err
	}
	user.IsVerified = false
	user.VerificationTokenHash = &hash
	return plain, nil
}

// Send delivers the verification link. Delivery failures are logged, not
// returned: the account exists either way.
func (s *EmailVerificationService) Send(ctx context.Context, user *models.User, token string) {
	if err := s.emailService.SendVerificationEmail(ctx, user.Email, token); err != nil {
		s.logger.Error("failed to send verification email",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}
}

// Verify consumes a verification token and marks the account verified
func (s *EmailVerificationService) Verify(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, models.ErrInvalidVerificationToken
	}

	user, err := s.repo.ConsumeVerification(ctx, pkgauth.HashOpaqueToken(token))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.auditLogger.Log(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventVerifyEmail, FailureReason: "invalid_token"})
			return nil, models.ErrInvalidVerificationToken
		}
		s.logger.Error("failed to verify email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("email verified", slog.String("user_id", user.ID))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventVerifyEmail, UserID: user.ID, Success: true})
	return user, nil
}
