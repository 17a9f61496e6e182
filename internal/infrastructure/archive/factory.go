package archive

import (
	"context"

	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/config"
)

// NewArchiver returns the configured archiver, or a no-op one when archiving is disabled
func NewArchiver(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (Archiver, error) {
	if !cfg.Enabled {
		return noopArchiver{}, nil
	}
	if cfg.Bucket == "" {
		return nil, errors.NewValidationError("INVALID_CONFIG", "archive.bucket is required when archiving is enabled")
	}
	return NewS3Archiver(ctx, cfg, logger)
}

type noopArchiver struct{}

func (noopArchiver) ArchiveIncident(context.Context, *Dossier) (*Result, error) {
	return nil, nil
}
