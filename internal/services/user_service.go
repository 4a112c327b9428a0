package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/harvestly/harvestly/internal/models"
	pkgauth "github.com/harvestly/harvestly/pkg/auth"
	pkglogger "github.com/harvestly/harvestly/pkg/logger"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// UserService handles user business logic
type UserService struct {
	repo        UserRepository
	tm          TokenIssuer
	uploader    ImageUploader
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewUserService creates a new UserService. uploader may be nil, which
// disables profile picture uploads.
func NewUserService(repo UserRepository, tm TokenIssuer, uploader ImageUploader, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *UserService {
	return &UserService{
		repo:        repo,
		tm:          tm,
		uploader:    uploader,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// canModify reports whether actor may change the account id
func canModify(actor *models.Identity, id string) bool {
	return actor != nil && (actor.UserID == id || actor.IsAdmin())
}

func (s *UserService) load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", id))
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}

// ListUsers returns one page of users, newest first, and the total count
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*UserResponse, int64, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Int("limit", limit), slog.Int("offset", offset), slog.Any("error", err))
		return nil, 0, models.ErrInternalServer
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count users", slog.Any("error", err))
		return nil, 0, models.ErrInternalServer
	}

	return toUserResponses(users), total, nil
}

// GetUser returns the public record of any user
func (s *UserService) GetUser(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToUserResponse(user), nil
}

// UpdateProfile applies patch to the account. Only admins may change roles;
// a role in a non-admin patch is ignored.
func (s *UserService) UpdateProfile(ctx context.Context, actor *models.Identity, id string, patch models.UserPatch) (*UserResponse, error) {
	if !canModify(actor, id) {
		return nil, models.ErrForbidden
	}
	if !actor.IsAdmin() {
		patch.Role = nil
	}

	updated, err := s.repo.UpdateProfile(ctx, id, patch)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user updated", slog.String("user_id", id))
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventProfileUpdate, actor.UserID, id)
	return ToUserResponse(updated), nil
}

// ChangePassword replaces the caller's own password after checking the
// current one. Earlier tokens are revoked; the returned token replaces them.
func (s *UserService) ChangePassword(ctx context.Context, actor *models.Identity, id, currentPassword, newPassword string) (string, error) {
	if actor == nil || actor.UserID != id {
		return "", models.ErrForbidden
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}

	if !user.CheckPassword(currentPassword) {
		s.auditLogger.Log(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventPasswordChange, UserID: id, FailureReason: "wrong_password"})
		return "", models.ErrWrongPassword
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return "", models.NewValidationError(err.Error())
	}

	if err := user.SetPassword(newPassword); err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	changedAt := cutoffNow(s.now)
	if err := s.repo.UpdatePassword(ctx, id, user.PasswordHash, changedAt); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrNotFound
		}
		s.logger.Error("failed to update password", slog.String("user_id", id), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	token, err := s.tm.GenerateToken(user)
	if err != nil {
		s.logger.Error("failed to generate token", slog.String("user_id", id), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.logger.Info("password changed", slog.String("user_id", id))
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventPasswordChange, id, id)
	return token, nil
}

// DeleteUser removes an account permanently
func (s *UserService) DeleteUser(ctx context.Context, actor *models.Identity, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", id))
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete user", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user deleted", slog.String("user_id", id))
	if actor != nil {
		s.auditLogger.LogAccountAction(ctx, pkglogger.EventUserDelete, actor.UserID, id)
	}
	return nil
}

// UploadProfilePicture stores an image and records its URL on the account
func (s *UserService) UploadProfilePicture(ctx context.Context, actor *models.Identity, id string, file io.Reader) (*UserResponse, error) {
	if s.uploader == nil {
		return nil, models.ErrServiceUnavailable
	}
	if !canModify(actor, id) {
		return nil, models.ErrForbidden
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	url, err := s.uploader.UploadImage(ctx, file, "user_"+user.ID)
	if err != nil {
		s.logger.Error("failed to upload profile picture", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrServiceUnavailable
	}

	updated, err := s.repo.SetProfilePicture(ctx, id, url)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to save profile picture", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventProfilePicture, actor.UserID, id)
	return ToUserResponse(updated), nil
}
