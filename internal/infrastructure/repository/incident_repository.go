package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/querybuilder"
)

const incidentColumns = `id, incident_type, description, severity, status, detected_at,
	affected_users, affected_data_types, source_anomaly_id, created_by, created_at, updated_at`

// IncidentRepository persists breach incidents and their status history
type IncidentRepository struct {
	db querier
	tx transactor
}

func NewIncidentRepository(db querier, tx transactor) *IncidentRepository {
	return &IncidentRepository{db: db, tx: tx}
}

var _ breach.IncidentRepository = (*IncidentRepository)(nil)

func (r *IncidentRepository) Create(ctx context.Context, inc *breach.Incident) error {
	return insertIncident(ctx, r.db, inc)
}

func insertIncident(ctx context.Context, db querier, inc *breach.Incident) error {
	_, err := db.Exec(ctx, `
		INSERT INTO breach_incidents (`+incidentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inc.ID, inc.IncidentType, inc.Description, string(inc.Severity), string(inc.Status), inc.DetectedAt,
		nonNil(inc.AffectedUsers), nonNil(inc.AffectedDataTypes), inc.SourceAnomalyID,
		inc.CreatedBy, inc.CreatedAt, inc.UpdatedAt,
	)
	if IsDuplicateKeyViolation(err) && strings.Contains(constraintName(err), "source_anomaly_id") {
		return errors.ErrAlreadyEscalated()
	}
	if IsForeignKeyViolation(err) {
		return errors.ErrAnomalyNotFound()
	}
	return mapError(err, "failed to create incident", nil)
}

// Escalate locks the anomaly row, lets fn build the incident and link the
// anomaly, then stores both. Concurrent escalations of one anomaly serialize
// on the row lock and all but the first see the link and fail.
func (r *IncidentRepository) Escalate(ctx context.Context, anomalyID uuid.UUID, fn breach.EscalateFunc) (*breach.Incident, error) {
	var created *breach.Incident

	err := r.tx.Transaction(ctx, func(tx pgx.Tx) error {
		anomaly, err := getAnomaly(ctx, tx, anomalyID, true)
		if err != nil {
			return err
		}

		inc, err := fn(anomaly)
		if err != nil {
			return err
		}
		if err := insertIncident(ctx, tx, inc); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE behavior_anomalies
			SET status = $2, incident_id = $3, reviewed_by = $4, reviewed_at = $5, updated_at = $6
			WHERE id = $1 AND incident_id IS NULL`,
			anomaly.ID, string(anomaly.Status), anomaly.IncidentID, nullString(anomaly.ReviewedBy),
			anomaly.ReviewedAt, anomaly.UpdatedAt,
		)
		if err != nil {
			return mapError(err, "failed to link anomaly", nil)
		}
		if tag.RowsAffected() != 1 {
			return errors.ErrAlreadyEscalated()
		}

		created = inc
		return nil
	})
	if err != nil {
		return nil, mapError(err, "failed to escalate anomaly", nil)
	}
	return created, nil
}

func (r *IncidentRepository) Get(ctx context.Context, id uuid.UUID) (*breach.Incident, error) {
	return getIncident(ctx, r.db, id, false)
}

func getIncident(ctx context.Context, db querier, id uuid.UUID, forUpdate bool) (*breach.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM breach_incidents WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := db.Query(ctx, query, id)
	if err != nil {
		return nil, mapError(err, "failed to query incident", nil)
	}
	incidents, err := collectIncidents(rows)
	if err != nil {
		return nil, err
	}
	if len(incidents) == 0 {
		return nil, errors.ErrIncidentNotFound()
	}
	return incidents[0], nil
}

// List returns incidents newest detection first
func (r *IncidentRepository) List(ctx context.Context, f breach.IncidentFilter) ([]*breach.Incident, error) {
	cols := "i." + strings.ReplaceAll(strings.Join(strings.Fields(incidentColumns), " "), ", ", ", i.")
	qb := querybuilder.New().Select(cols).From("breach_incidents i").
		OptionalEqual("i.status", string(f.Status)).
		OptionalEqual("i.severity", string(f.Severity))
	if f.From != nil {
		qb.Where("i.detected_at", querybuilder.GreaterThanOrEqual, *f.From)
	}
	if f.To != nil {
		qb.Where("i.detected_at", querybuilder.LessThanOrEqual, *f.To)
	}
	if f.Notified != nil {
		cond := `EXISTS (SELECT 1 FROM breach_notifications n WHERE n.incident_id = i.id AND n.status = 'sent')`
		if !*f.Notified {
			cond = "NOT " + cond
		}
		qb.WhereRaw(cond)
	}

	query, args, err := qb.OrderByDesc("i.detected_at").OrderByAsc("i.id").Page(pageBounds(f.Limit, f.Offset)).ToSQL()
	if err != nil {
		return nil, errors.NewInternalError("failed to build incident query").WithCause(err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "failed to query incidents", nil)
	}
	return collectIncidents(rows)
}

// ChangeStatus locks the incident, applies fn and appends the resulting
// change to the audit trail in the same transaction. A nil change from fn
// leaves the row untouched.
func (r *IncidentRepository) ChangeStatus(ctx context.Context, id uuid.UUID, fn func(*breach.Incident) (*breach.StatusChange, error)) (*breach.Incident, error) {
	var updated *breach.Incident

	err := r.tx.Transaction(ctx, func(tx pgx.Tx) error {
		inc, err := getIncident(ctx, tx, id, true)
		if err != nil {
			return err
		}
		change, err := fn(inc)
		if err != nil {
			return err
		}
		updated = inc
		if change == nil {
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE breach_incidents SET status = $2, updated_at = $3 WHERE id = $1`,
			inc.ID, string(inc.Status), inc.UpdatedAt); err != nil {
			return mapError(err, "failed to update incident status", nil)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO incident_status_changes (id, incident_id, from_status, to_status, changed_by, changed_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			change.ID, change.IncidentID, string(change.FromStatus), string(change.ToStatus),
			change.ChangedBy, change.ChangedAt)
		return mapError(err, "failed to record status change", nil)
	})
	if err != nil {
		return nil, mapError(err, "failed to change incident status", nil)
	}
	return updated, nil
}

// ListStatusChanges returns the audit trail oldest first
func (r *IncidentRepository) ListStatusChanges(ctx context.Context, incidentID uuid.UUID) ([]*breach.StatusChange, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, incident_id, from_status, to_status, changed_by, changed_at
		FROM incident_status_changes
		WHERE incident_id = $1
		ORDER BY changed_at, id`, incidentID)
	if err != nil {
		return nil, mapError(err, "failed to query status changes", nil)
	}
	defer rows.Close()

	var out []*breach.StatusChange
	for rows.Next() {
		var (
			c        breach.StatusChange
			from, to string
		)
		if err := rows.Scan(&c.ID, &c.IncidentID, &from, &to, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		c.FromStatus = breach.Status(from)
		c.ToStatus = breach.Status(to)
		out = append(out, &c)
	}
	return out, mapError(rows.Err(), "failed to iterate status changes", nil)
}

func collectIncidents(rows pgx.Rows) ([]*breach.Incident, error) {
	defer rows.Close()

	var out []*breach.Incident
	for rows.Next() {
		var (
			inc              breach.Incident
			severity, status string
		)
		if err := rows.Scan(&inc.ID, &inc.IncidentType, &inc.Description, &severity, &status, &inc.DetectedAt,
			&inc.AffectedUsers, &inc.AffectedDataTypes, &inc.SourceAnomalyID,
			&inc.CreatedBy, &inc.CreatedAt, &inc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		inc.Severity = breach.Severity(severity)
		inc.Status = breach.Status(status)
		out = append(out, &inc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate incidents", nil)
	}
	return out, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
