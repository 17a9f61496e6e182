package mail

import (
	"context"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/config"
)

const charset = "UTF-8"

// SESClient is the subset of the SES v2 API used for delivery
type SESClient interface {
	SendEmail(ctx context.Context, input *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers notices through Amazon SES
type SESSender struct {
	client           SESClient
	from             string
	configurationSet string
	logger           *zap.Logger
}

var _ Sender = (*SESSender)(nil)

// NewSESSender loads the default AWS credential chain for the configured region
func NewSESSender(ctx context.Context, cfg config.NotificationConfig, logger *zap.Logger) (*SESSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SES.Region))
	if err != nil {
		return nil, errors.NewInternalError("failed to load AWS config").WithCause(err)
	}

	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.SES.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.SES.Endpoint)
		}
	})
	return NewSESSenderWithClient(client, cfg, logger), nil
}

// NewSESSenderWithClient builds a sender over an existing client
func NewSESSenderWithClient(client SESClient, cfg config.NotificationConfig, logger *zap.Logger) *SESSender {
	return &SESSender{
		client:           client,
		from:             formatAddress(cfg.FromName, cfg.FromAddress),
		configurationSet: cfg.SES.ConfigurationSet,
		logger:           logger.With(zap.String("component", "ses_sender")),
	}
}

func (s *SESSender) Send(ctx context.Context, msg Message) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{formatAddress(msg.ToName, msg.To)},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(charset)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String(charset)},
				},
			},
		},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}
	if msg.Reference != "" {
		input.EmailTags = []types.MessageTag{{Name: aws.String("notification_id"), Value: aws.String(msg.Reference)}}
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return errors.NewExternalError("ses", "send email failed").WithCause(err)
	}

	s.logger.Info("notice delivered",
		zap.String("reference", msg.Reference),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

// formatAddress renders an RFC 5322 address, encoding non-ASCII display names
func formatAddress(name, address string) string {
	if name == "" {
		return address
	}
	return (&mail.Address{Name: name, Address: address}).String()
}
