package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	pkglogger "github.com/harvestly/harvestly/pkg/logger"
)

// EmailService delivers single-use tokens out of band
type EmailService interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error
}

// SESSender is the subset of the SES client used here
type SESSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   SESSender
	fromAddress string
	appURL      string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(ctx context.Context, region, fromAddress, appURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewAWSSESEmailServiceWithClient(ses.NewFromConfig(cfg), fromAddress, appURL, logger), nil
}

// NewAWSSESEmailServiceWithClient wires an existing SES client
func NewAWSSESEmailServiceWithClient(client SESSender, fromAddress, appURL string, logger *slog.Logger) *AWSSESEmailService {
	return &AWSSESEmailService{
		sesClient:   client,
		fromAddress: fromAddress,
		appURL:      appURL,
		logger:      logger,
	}
}

func verificationLink(appURL, token string) string {
	return fmt.Sprintf("%s/verify-email/%s", appURL, url.PathEscape(token))
}

func resetLink(appURL, token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", appURL, url.QueryEscape(token))
}

// SendVerificationEmail sends the account verification link
func (s *AWSSESEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	link := verificationLink(s.appURL, token)

	text := fmt.Sprintf(`Welcome to Harvestly!

Please confirm your email address to finish setting up your farm dashboard:

%s

If you did not create an account, you can ignore this email.
`, link)

	html := fmt.Sprintf(`<p>Welcome to Harvestly!</p>
<p>Please confirm your email address to finish setting up your farm dashboard.</p>
<p><a href="%s">Verify email address</a></p>
<p>If you did not create an account, you can ignore this email.</p>`, link)

	return s.send(ctx, email, "Verify your email address", text, html)
}

// SendPasswordResetEmail sends the reset link with its expiry
func (s *AWSSESEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	link := resetLink(s.appURL, token)
	expires := expiresAt.UTC().Format("15:04 MST, 2 Jan 2006")

	text := fmt.Sprintf(`A password reset was requested for your Harvestly account.

Reset your password here (valid until %s):

%s

If you did not request this, you can ignore this email. Your password will not change.
`, expires, link)

	html := fmt.Sprintf(`<p>A password reset was requested for your Harvestly account.</p>
<p><a href="%s">Reset your password</a> (valid until %s)</p>
<p>If you did not request this, you can ignore this email. Your password will not change.</p>`, link, expires)

	return s.send(ctx, email, "Reset your password", text, html)
}

func (s *AWSSESEmailService) send(ctx context.Context, to, subject, text, html string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(html),
				},
				Text: &types.Content{
					Data: aws.String(text),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("subject", subject),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// LogEmailService writes links to the log instead of sending mail. For local development.
type LogEmailService struct {
	appURL string
	logger *slog.Logger
}

func NewLogEmailService(appURL string, logger *slog.Logger) *LogEmailService {
	return &LogEmailService{appURL: appURL, logger: logger}
}

func (s *LogEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	s.logger.InfoContext(ctx, "verification email",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("link", verificationLink(s.appURL, token)))
	return nil
}

func (s *LogEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	s.logger.InfoContext(ctx, "password reset email",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("link", resetLink(s.appURL, token)),
		slog.Time("expires_at", expiresAt))
	return nil
}
