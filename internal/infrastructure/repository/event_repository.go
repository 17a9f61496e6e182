package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

const eventColumns = `id, user_id, event_type, occurred_at, source_address, location_label, action, received_at, scored_at`

// EventRepository stores raw behavioral events
type EventRepository struct {
	db querier
}

func NewEventRepository(db querier) *EventRepository {
	return &EventRepository{db: db}
}

var _ behavior.EventRepository = (*EventRepository)(nil)

func (r *EventRepository) Save(ctx context.Context, e *behavior.Event) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO behavior_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.UserID, string(e.Type), e.OccurredAt, e.SourceAddress,
		e.LocationLabel, e.Action, e.ReceivedAt, e.ScoredAt,
	)
	if IsForeignKeyViolation(err) {
		return errors.ErrUserNotFound()
	}
	return mapError(err, "failed to save event", nil)
}

// ListForBaseline returns the user's most recent events of the given types
// since the lookback start, newest first, capped at limit.
func (r *EventRepository) ListForBaseline(ctx context.Context, userID uuid.UUID, types []behavior.EventType, since time.Time, limit int) ([]*behavior.Event, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM behavior_events
		WHERE user_id = $1 AND event_type = ANY($2) AND occurred_at >= $3
		ORDER BY occurred_at DESC, id
		LIMIT $4`,
		userID, names, since, limit)
	if err != nil {
		return nil, mapError(err, "failed to query events", nil)
	}
	return collectEvents(rows)
}

// ListUnscored returns events received before the cutoff that detection never finished
func (r *EventRepository) ListUnscored(ctx context.Context, receivedBefore time.Time, limit int) ([]*behavior.Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM behavior_events
		WHERE scored_at IS NULL AND received_at < $1
		ORDER BY received_at
		LIMIT $2`,
		receivedBefore, limit)
	if err != nil {
		return nil, mapError(err, "failed to query unscored events", nil)
	}
	return collectEvents(rows)
}

func (r *EventRepository) MarkScored(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE behavior_events SET scored_at = $2 WHERE id = $1 AND scored_at IS NULL`,
		eventID, at)
	return mapError(err, "failed to mark event scored", nil)
}

func collectEvents(rows pgx.Rows) ([]*behavior.Event, error) {
	defer rows.Close()

	var events []*behavior.Event
	for rows.Next() {
		var (
			e         behavior.Event
			eventType string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &eventType, &e.OccurredAt, &e.SourceAddress,
			&e.LocationLabel, &e.Action, &e.ReceivedAt, &e.ScoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = behavior.EventType(eventType)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate events", nil)
	}
	return events, nil
}
