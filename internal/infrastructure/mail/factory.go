package mail

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/config"
)

// NewSender returns the sender for the configured transport
func NewSender(ctx context.Context, cfg config.NotificationConfig, logger *zap.Logger) (Sender, error) {
	switch cfg.Transport {
	case "", "log":
		return NewLogSender(logger), nil
	case "smtp":
		return NewSMTPSender(cfg, logger), nil
	case "ses":
		return NewSESSender(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown notification transport %q", cfg.Transport)
	}
}
