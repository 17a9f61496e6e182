package mail

import (
	"context"

	"go.uber.org/zap"
)

// LogSender records notices in the log instead of delivering them.
// Used in development.
type LogSender struct {
	logger *zap.Logger
}

var _ Sender = (*LogSender)(nil)

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.With(zap.String("component", "log_sender"))}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("notice not delivered (log transport)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("reference", msg.Reference),
		zap.Int("body_bytes", len(msg.Body)))
	return nil
}
