package mail

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/config"
)

type MockSESClient struct {
	mock.Mock
}

func (m *MockSESClient) SendEmail(ctx context.Context, input *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sesv2.SendEmailOutput), args.Error(1)
}

func sesConfig() config.NotificationConfig {
	return config.NotificationConfig{
		Transport:   "ses",
		FromAddress: "privacy-office@clinic.example.com",
		FromName:    "Privacy Office",
		SES:         config.SESConfig{Region: "eu-west-1", ConfigurationSet: "breach-notices"},
	}
}

func TestSESSender_Send(t *testing.T) {
	ctx := context.Background()
	client := &MockSESClient{}
	sender := NewSESSenderWithClient(client, sesConfig(), zaptest.NewLogger(t))

	client.On("SendEmail", ctx, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return aws.ToString(in.FromEmailAddress) == `"Privacy Office" <privacy-office@clinic.example.com>` &&
			len(in.Destination.ToAddresses) == 1 &&
			in.Destination.ToAddresses[0] == `"Data Protection Authority" <dpa@authority.example.eu>` &&
			aws.ToString(in.Content.Simple.Subject.Data) == "Breach notice" &&
			aws.ToString(in.Content.Simple.Body.Text.Data) == "details" &&
			aws.ToString(in.ConfigurationSetName) == "breach-notices" &&
			len(in.EmailTags) == 1 && aws.ToString(in.EmailTags[0].Value) == "n-1"
	})).Return(&sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}, nil)

	err := sender.Send(ctx, Message{
		To:        "dpa@authority.example.eu",
		ToName:    "Data Protection Authority",
		Subject:   "Breach notice",
		Body:      "details",
		Reference: "n-1",
	})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestSESSender_SendFailure(t *testing.T) {
	ctx := context.Background()
	client := &MockSESClient{}
	sender := NewSESSenderWithClient(client, sesConfig(), zaptest.NewLogger(t))

	cause := stderrors.New("MessageRejected: Email address is not verified")
	client.On("SendEmail", ctx, mock.Anything).Return(nil, cause)

	err := sender.Send(ctx, Message{To: "hhs@authority.example.gov", Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExternal))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "not verified")
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "a@clinic.example.com", formatAddress("", "a@clinic.example.com"))
	assert.Equal(t, `"Dr. Jane Roe" <a@clinic.example.com>`, formatAddress("Dr. Jane Roe", "a@clinic.example.com"))
	assert.Equal(t, "=?utf-8?q?J=C3=BCrgen?= <a@clinic.example.com>", formatAddress("Jürgen", "a@clinic.example.com"))
}

func TestNewSender(t *testing.T) {
	logger := zaptest.NewLogger(t)

	s, err := NewSender(context.Background(), config.NotificationConfig{Transport: "log"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	s, err = NewSender(context.Background(), config.NotificationConfig{
		Transport: "smtp",
		SMTP:      config.SMTPConfig{Host: "mail.clinic.example.com", Port: 587},
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, s)

	_, err = NewSender(context.Background(), config.NotificationConfig{Transport: "pigeon"}, logger)
	assert.Error(t, err)
}

func TestLogSender_RespectsCancellation(t *testing.T) {
	s := NewLogSender(zaptest.NewLogger(t))
	require.NoError(t, s.Send(context.Background(), Message{To: "a@clinic.example.com"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: "a@clinic.example.com"}), context.Canceled)
}
