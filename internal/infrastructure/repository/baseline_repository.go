package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

// BaselineRepository keeps the latest baseline per (user, type)
type BaselineRepository struct {
	db querier
	tx transactor
}

func NewBaselineRepository(db querier, tx transactor) *BaselineRepository {
	return &BaselineRepository{db: db, tx: tx}
}

var _ behavior.BaselineRepository = (*BaselineRepository)(nil)

// Upsert writes all baselines in one transaction. The row id of an existing
// (user, type) pair is preserved and copied back onto the baseline.
func (r *BaselineRepository) Upsert(ctx context.Context, baselines ...*behavior.Baseline) error {
	if len(baselines) == 0 {
		return nil
	}
	for _, b := range baselines {
		if err := b.Validate(); err != nil {
			return err
		}
	}

	return r.tx.Transaction(ctx, func(tx pgx.Tx) error {
		for _, b := range baselines {
			data, err := json.Marshal(b.Data)
			if err != nil {
				return fmt.Errorf("failed to marshal %s baseline: %w", b.Type, err)
			}

			var id uuid.UUID
			err = tx.QueryRow(ctx, `
				INSERT INTO behavior_baselines (id, user_id, baseline_type, baseline_data, low_confidence, message, calculated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (user_id, baseline_type) DO UPDATE SET
					baseline_data = EXCLUDED.baseline_data,
					low_confidence = EXCLUDED.low_confidence,
					message = EXCLUDED.message,
					calculated_at = EXCLUDED.calculated_at
				RETURNING id`,
				b.ID, b.UserID, string(b.Type), data, b.LowConfidence, b.Message, b.CalculatedAt,
			).Scan(&id)
			if IsForeignKeyViolation(err) {
				return errors.ErrUserNotFound()
			}
			if err != nil {
				return mapError(err, "failed to upsert baseline", nil)
			}
			b.ID = id
		}
		return nil
	})
}

// Get returns nil, nil when no baseline has been calculated yet
func (r *BaselineRepository) Get(ctx context.Context, userID uuid.UUID, t behavior.BaselineType) (*behavior.Baseline, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, baseline_type, baseline_data, low_confidence, message, calculated_at
		FROM behavior_baselines
		WHERE user_id = $1 AND baseline_type = $2`,
		userID, string(t))
	if err != nil {
		return nil, mapError(err, "failed to query baseline", nil)
	}
	baselines, err := collectBaselines(rows)
	if err != nil || len(baselines) == 0 {
		return nil, err
	}
	return baselines[0], nil
}

func (r *BaselineRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*behavior.Baseline, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, baseline_type, baseline_data, low_confidence, message, calculated_at
		FROM behavior_baselines
		WHERE user_id = $1
		ORDER BY baseline_type`,
		userID)
	if err != nil {
		return nil, mapError(err, "failed to query baselines", nil)
	}
	return collectBaselines(rows)
}

func collectBaselines(rows pgx.Rows) ([]*behavior.Baseline, error) {
	defer rows.Close()

	var out []*behavior.Baseline
	for rows.Next() {
		var (
			b            behavior.Baseline
			baselineType string
			raw          []byte
		)
		if err := rows.Scan(&b.ID, &b.UserID, &baselineType, &raw, &b.LowConfidence, &b.Message, &b.CalculatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		b.Type = behavior.BaselineType(baselineType)

		data, err := behavior.DecodeBaselineData(b.Type, raw)
		if err != nil {
			return nil, errors.NewInternalError("stored baseline is corrupt").WithCause(err)
		}
		b.Data = data
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate baselines", nil)
	}
	return out, nil
}
