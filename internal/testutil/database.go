package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/config"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/database"
	"github.com/davidleathers/clinic-security-monitor/internal/testutil/containers"
)

// TestDB is a migrated, containerized database for integration tests
type TestDB struct {
	t    *testing.T
	pool *database.ConnectionPool
	url  string
}

// NewTestDB starts a PostgreSQL container, applies the embedded migrations
// and returns a connection pool. Everything is torn down at test cleanup.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := containers.NewPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pg.Terminate(context.Background())
	})

	logger := zaptest.NewLogger(t)

	migrator, err := database.NewMigrator(pg.ConnectionString, logger)
	require.NoError(t, err)
	require.NoError(t, migrator.Up(0))
	require.NoError(t, migrator.Close())

	cfg := config.Defaults().Database
	cfg.URL = pg.ConnectionString
	cfg.MaxConns = 10

	pool, err := database.NewConnectionPool(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &TestDB{t: t, pool: pool, url: pg.ConnectionString}
}

// Pool returns the connection pool
func (tdb *TestDB) Pool() *database.ConnectionPool {
	return tdb.pool
}

// URL returns the connection string of the container
func (tdb *TestDB) URL() string {
	return tdb.url
}

// Truncate clears all monitoring tables between subtests
func (tdb *TestDB) Truncate() {
	tdb.t.Helper()
	_, err := tdb.pool.Pool().Exec(context.Background(), `
		TRUNCATE breach_remediations, breach_notifications, incident_status_changes,
			behavior_anomalies, breach_incidents, behavior_baselines, behavior_events, security_users
		CASCADE`)
	require.NoError(tdb.t, err)
}
