package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

const remediationColumns = `id, incident_id, action_taken, effectiveness, notes, taken_by, taken_at, updated_at`

// RemediationRepository persists corrective actions. Rows are never deleted.
type RemediationRepository struct {
	db querier
}

func NewRemediationRepository(db querier) *RemediationRepository {
	return &RemediationRepository{db: db}
}

var _ breach.RemediationRepository = (*RemediationRepository)(nil)

func (r *RemediationRepository) Create(ctx context.Context, rem *breach.Remediation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO breach_remediations (`+remediationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rem.ID, rem.IncidentID, rem.ActionTaken, string(rem.Effectiveness), rem.Notes,
		rem.TakenBy, rem.TakenAt, rem.UpdatedAt,
	)
	if IsForeignKeyViolation(err) {
		return errors.ErrIncidentNotFound()
	}
	return mapError(err, "failed to create remediation", nil)
}

func (r *RemediationRepository) Get(ctx context.Context, id uuid.UUID) (*breach.Remediation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+remediationColumns+` FROM breach_remediations WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err, "failed to query remediation", nil)
	}
	out, err := collectRemediations(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.ErrRemediationNotFound()
	}
	return out[0], nil
}

// Update writes only the mutable fields; incident, author and time stay as created
func (r *RemediationRepository) Update(ctx context.Context, rem *breach.Remediation) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE breach_remediations
		SET action_taken = $2, effectiveness = $3, notes = $4, updated_at = $5
		WHERE id = $1`,
		rem.ID, rem.ActionTaken, string(rem.Effectiveness), rem.Notes, rem.UpdatedAt)
	if err != nil {
		return mapError(err, "failed to update remediation", nil)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrRemediationNotFound()
	}
	return nil
}

func (r *RemediationRepository) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*breach.Remediation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+remediationColumns+`
		FROM breach_remediations
		WHERE incident_id = $1
		ORDER BY taken_at DESC, id`, incidentID)
	if err != nil {
		return nil, mapError(err, "failed to query remediations", nil)
	}
	return collectRemediations(rows)
}

func collectRemediations(rows pgx.Rows) ([]*breach.Remediation, error) {
	defer rows.Close()

	var out []*breach.Remediation
	for rows.Next() {
		var (
			rem           breach.Remediation
			effectiveness string
		)
		if err := rows.Scan(&rem.ID, &rem.IncidentID, &rem.ActionTaken, &effectiveness, &rem.Notes,
			&rem.TakenBy, &rem.TakenAt, &rem.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan remediation: %w", err)
		}
		rem.Effectiveness = breach.Effectiveness(effectiveness)
		out = append(out, &rem)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate remediations", nil)
	}
	return out, nil
}
