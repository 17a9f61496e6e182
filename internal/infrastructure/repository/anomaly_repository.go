package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/querybuilder"
)

const anomalyColumns = `id, user_id, user_email, event_id, anomaly_type, severity, status, details,
	detected_at, reviewed_by, reviewed_at, incident_id, updated_at`

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// AnomalyRepository persists detected anomalies
type AnomalyRepository struct {
	db querier
}

func NewAnomalyRepository(db querier) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

var _ behavior.AnomalyRepository = (*AnomalyRepository)(nil)

// Create inserts the anomaly unless one of the same type already exists for its event
func (r *AnomalyRepository) Create(ctx context.Context, a *behavior.Anomaly) (bool, error) {
	if err := a.Validate(); err != nil {
		return false, err
	}
	details, err := json.Marshal(a.Details)
	if err != nil {
		return false, fmt.Errorf("failed to marshal anomaly details: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO behavior_anomalies (`+anomalyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (event_id, anomaly_type) DO NOTHING`,
		a.ID, a.UserID, a.UserEmail, a.EventID, string(a.Type), string(a.Severity), string(a.Status),
		details, a.DetectedAt, nullString(a.ReviewedBy), a.ReviewedAt, a.IncidentID, a.UpdatedAt,
	)
	if err != nil {
		return false, mapError(err, "failed to create anomaly", nil)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AnomalyRepository) Get(ctx context.Context, id uuid.UUID) (*behavior.Anomaly, error) {
	return getAnomaly(ctx, r.db, id, false)
}

// getAnomaly loads one anomaly, optionally taking a row lock inside a transaction
func getAnomaly(ctx context.Context, db querier, id uuid.UUID, forUpdate bool) (*behavior.Anomaly, error) {
	query := `SELECT ` + anomalyColumns + ` FROM behavior_anomalies WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := db.Query(ctx, query, id)
	if err != nil {
		return nil, mapError(err, "failed to query anomaly", nil)
	}
	anomalies, err := collectAnomalies(rows)
	if err != nil {
		return nil, err
	}
	if len(anomalies) == 0 {
		return nil, errors.ErrAnomalyNotFound()
	}
	return anomalies[0], nil
}

// UpdateStatus writes the mutable lifecycle fields when the stored status
// still equals expected.
func (r *AnomalyRepository) UpdateStatus(ctx context.Context, a *behavior.Anomaly, expected behavior.Status) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE behavior_anomalies
		SET status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $5
		WHERE id = $1 AND status = $6`,
		a.ID, string(a.Status), nullString(a.ReviewedBy), a.ReviewedAt, a.UpdatedAt, string(expected),
	)
	if err != nil {
		return mapError(err, "failed to update anomaly status", nil)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM behavior_anomalies WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
		return mapError(err, "failed to check anomaly", nil)
	}
	if !exists {
		return errors.ErrAnomalyNotFound()
	}
	return errors.ErrConcurrentModification("anomaly")
}

// List returns one page of anomalies newest first together with the total match count
func (r *AnomalyRepository) List(ctx context.Context, f behavior.AnomalyFilter) ([]*behavior.Anomaly, int, error) {
	qb := querybuilder.New().Select(anomalyColumns).From("behavior_anomalies").
		OptionalEqual("status", string(f.Status)).
		OptionalEqual("severity", string(f.Severity))
	if f.UserID != uuid.Nil {
		qb.WhereEqual("user_id", f.UserID)
	}
	if f.From != nil {
		qb.Where("detected_at", querybuilder.GreaterThanOrEqual, *f.From)
	}
	if f.To != nil {
		qb.Where("detected_at", querybuilder.LessThanOrEqual, *f.To)
	}

	countSQL, countArgs, err := qb.CountSQL()
	if err != nil {
		return nil, 0, errors.NewInternalError("failed to build anomaly count").WithCause(err)
	}
	var total int
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, mapError(err, "failed to count anomalies", nil)
	}

	query, args, err := qb.OrderByDesc("detected_at").OrderByAsc("id").Page(pageBounds(f.Limit, f.Offset)).ToSQL()
	if err != nil {
		return nil, 0, errors.NewInternalError("failed to build anomaly query").WithCause(err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err, "failed to query anomalies", nil)
	}
	anomalies, err := collectAnomalies(rows)
	if err != nil {
		return nil, 0, err
	}
	return anomalies, total, nil
}

// Statistics counts anomalies by status and severity, plus those detected since recentSince
func (r *AnomalyRepository) Statistics(ctx context.Context, recentSince time.Time) (*behavior.AnomalyStatistics, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, severity, COUNT(*), COUNT(*) FILTER (WHERE detected_at >= $1)
		FROM behavior_anomalies
		GROUP BY status, severity`, recentSince)
	if err != nil {
		return nil, mapError(err, "failed to query anomaly statistics", nil)
	}
	defer rows.Close()

	stats := behavior.NewAnomalyStatistics()
	for rows.Next() {
		var (
			status, severity string
			count, recent    int
		)
		if err := rows.Scan(&status, &severity, &count, &recent); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly statistics: %w", err)
		}
		stats.Total += count
		stats.Recent += recent
		stats.ByStatus[behavior.Status(status)] += count
		stats.BySeverity[behavior.Severity(severity)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate anomaly statistics", nil)
	}
	return stats, nil
}

func collectAnomalies(rows pgx.Rows) ([]*behavior.Anomaly, error) {
	defer rows.Close()

	var out []*behavior.Anomaly
	for rows.Next() {
		var (
			a                             behavior.Anomaly
			anomalyType, severity, status string
			details                       []byte
			reviewedBy                    *string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.UserEmail, &a.EventID, &anomalyType, &severity, &status,
			&details, &a.DetectedAt, &reviewedBy, &a.ReviewedAt, &a.IncidentID, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.Type = behavior.AnomalyType(anomalyType)
		a.Severity = behavior.Severity(severity)
		a.Status = behavior.Status(status)
		if reviewedBy != nil {
			a.ReviewedBy = *reviewedBy
		}

		d, err := behavior.DecodeDetails(a.Type, details)
		if err != nil {
			return nil, errors.NewInternalError("stored anomaly details are corrupt").WithCause(err)
		}
		a.Details = d
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate anomalies", nil)
	}
	return out, nil
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
