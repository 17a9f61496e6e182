package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/breach"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

const notificationColumns = `id, incident_id, notification_type, recipient_email, recipient_name,
	status, sent_at, error_message, created_by, created_at`

// NotificationRepository persists regulatory and individual notices
type NotificationRepository struct {
	db querier
}

func NewNotificationRepository(db querier) *NotificationRepository {
	return &NotificationRepository{db: db}
}

var _ breach.NotificationRepository = (*NotificationRepository)(nil)

func (r *NotificationRepository) Create(ctx context.Context, n *breach.Notification) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO breach_notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, n.IncidentID, string(n.Type), n.RecipientEmail, n.RecipientName,
		string(n.Status), n.SentAt, n.ErrorMessage, n.CreatedBy, n.CreatedAt,
	)
	if IsForeignKeyViolation(err) {
		return errors.ErrIncidentNotFound()
	}
	return mapError(err, "failed to create notification", nil)
}

func (r *NotificationRepository) Get(ctx context.Context, id uuid.UUID) (*breach.Notification, error) {
	rows, err := r.db.Query(ctx, `SELECT `+notificationColumns+` FROM breach_notifications WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err, "failed to query notification", nil)
	}
	out, err := collectNotifications(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.ErrNotificationNotFound()
	}
	return out[0], nil
}

// ListByIncident returns notifications newest first
func (r *NotificationRepository) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*breach.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM breach_notifications
		WHERE incident_id = $1
		ORDER BY created_at DESC, id`, incidentID)
	if err != nil {
		return nil, mapError(err, "failed to query notifications", nil)
	}
	return collectNotifications(rows)
}

func (r *NotificationRepository) ClaimDelivery(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE breach_notifications
		SET send_started_at = $2
		WHERE id = $1 AND status = 'pending'
		  AND (send_started_at IS NULL OR send_started_at < $3)`,
		id, now.UTC(), staleBefore.UTC())
	if err != nil {
		return false, mapError(err, "failed to claim notification", nil)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteDelivery moves a pending notification to its terminal state. It
// reports false when the row already left pending.
func (r *NotificationRepository) CompleteDelivery(ctx context.Context, n *breach.Notification) (bool, error) {
	if !n.IsTerminal() {
		return false, errors.NewValidationError(errors.CodeValidation, "delivery outcome must be sent or failed")
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE breach_notifications
		SET status = $2, sent_at = $3, error_message = $4
		WHERE id = $1 AND status = 'pending'`,
		n.ID, string(n.Status), n.SentAt, n.ErrorMessage)
	if err != nil {
		return false, mapError(err, "failed to record delivery outcome", nil)
	}
	return tag.RowsAffected() == 1, nil
}

func collectNotifications(rows pgx.Rows) ([]*breach.Notification, error) {
	defer rows.Close()

	var out []*breach.Notification
	for rows.Next() {
		var (
			n                      breach.Notification
			notificationType, stat string
		)
		if err := rows.Scan(&n.ID, &n.IncidentID, &notificationType, &n.RecipientEmail, &n.RecipientName,
			&stat, &n.SentAt, &n.ErrorMessage, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = breach.NotificationType(notificationType)
		n.Status = breach.NotificationStatus(stat)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate notifications", nil)
	}
	return out, nil
}
