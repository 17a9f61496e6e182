package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/database"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// transactor runs fn inside a single database transaction
type transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// Repositories holds every Postgres-backed repository
type Repositories struct {
	Users         *UserRepository
	Events        *EventRepository
	Baselines     *BaselineRepository
	Anomalies     *AnomalyRepository
	Incidents     *IncidentRepository
	Notifications *NotificationRepository
	Remediations  *RemediationRepository
}

// NewRepositories creates all repositories on a shared pool
func NewRepositories(pool *database.ConnectionPool) *Repositories {
	db := pool.Pool()
	return &Repositories{
		Users:         NewUserRepository(db),
		Events:        NewEventRepository(db),
		Baselines:     NewBaselineRepository(db, pool),
		Anomalies:     NewAnomalyRepository(db),
		Incidents:     NewIncidentRepository(db, pool),
		Notifications: NewNotificationRepository(db),
		Remediations:  NewRemediationRepository(db),
	}
}
