package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventRegister       = "register"
	EventLogin          = "login"
	EventVerifyEmail    = "verify_email"
	EventResetRequest   = "password_reset_request"
	EventResetConsume   = "password_reset"
	EventPasswordChange = "password_change"
	EventLogoutAll      = "logout_all"
	EventProfileUpdate  = "profile_update"
	EventProfilePicture = "profile_picture"
	EventUserDelete     = "user_delete"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string // masked before it is logged
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes account and authentication events to the structured log
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger. A nil logger uses slog.Default.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Log records one event. Failures log at warn level.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAuthAttempt logs a login or registration outcome
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, eventType, userID, email, ip string, success bool, reason string) {
	al.Log(ctx, AuditEvent{
		EventType:     eventType,
		UserID:        userID,
		Email:         email,
		IPAddress:     ip,
		Success:       success,
		FailureReason: reason,
	})
}

// LogAccountAction logs a successful change to an account
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, actorID, targetID string) {
	event := AuditEvent{EventType: eventType, UserID: actorID, Success: true}
	if targetID != "" && targetID != actorID {
		event.Metadata = map[string]string{"target_user_id": targetID}
	}
	al.Log(ctx, event)
}
