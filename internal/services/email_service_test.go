package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestAWSSESEmailService_SendVerificationEmail(t *testing.T) {
	client := &fakeSES{}
	svc := NewAWSSESEmailServiceWithClient(client, "no-reply@harvestly.test", "https://app.harvestly.test", testLogger)

	require.NoError(t, svc.SendVerificationEmail(context.Background(), "asha@farm.test", "abc123"))

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "no-reply@harvestly.test", aws.ToString(in.Source))
	assert.Equal(t, []string{"asha@farm.test"}, in.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(in.Message.Body.Text.Data), "https://app.harvestly.test/verify-email/abc123")
	assert.Contains(t, aws.ToString(in.Message.Body.Html.Data), `href="https://app.harvestly.test/verify-email/abc123"`)
}

func TestAWSSESEmailService_SendPasswordResetEmail(t *testing.T) {
	client := &fakeSES{}
	svc := NewAWSSESEmailServiceWithClient(client, "no-reply@harvestly.test", "https://app.harvestly.test", testLogger)
	expires := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.SendPasswordResetEmail(context.Background(), "asha@farm.test", "tok", expires))

	require.Len(t, client.inputs, 1)
	text := aws.ToString(client.inputs[0].Message.Body.Text.Data)
	assert.Contains(t, text, "https://app.harvestly.test/reset-password?token=tok")
	assert.Contains(t, text, "10:00 UTC, 10 Mar 2026")
}

func TestAWSSESEmailService_SendError(t *testing.T) {
	client := &fakeSES{err: errors.New("MessageRejected")}
	svc := NewAWSSESEmailServiceWithClient(client, "no-reply@harvestly.test", "https://app.harvestly.test", testLogger)

	err := svc.SendVerificationEmail(context.Background(), "asha@farm.test", "abc123")
	assert.ErrorContains(t, err, "failed to send email")
}

func TestLogEmailService(t *testing.T) {
	svc := NewLogEmailService("http://localhost:3000", testLogger)

	assert.NoError(t, svc.SendVerificationEmail(context.Background(), "a@farm.test", "t"))
	assert.NoError(t, svc.SendPasswordResetEmail(context.Background(), "a@farm.test", "t", time.Now()))
}
