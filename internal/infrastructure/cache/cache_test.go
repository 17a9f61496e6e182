package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/config"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, Cache, RateLimiter) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	logger := zaptest.NewLogger(t)
	client, err := NewRedisClient(context.Background(), config.RedisConfig{
		URL:          mr.Addr(),
		PoolSize:     5,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisCache(client, logger), NewRedisRateLimiter(client, logger)
}

func TestRedisCache_GetSet(t *testing.T) {
	_, c, _ := setupRedis(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	var miss ErrCacheKeyNotFound
	assert.ErrorAs(t, err, &miss)

	require.NoError(t, c.SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute))
	var got map[string]int
	require.NoError(t, c.GetJSON(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])

	stored, err := c.SetJSONIfAbsent(ctx, "k", map[string]int{"a": 2}, time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)
	require.NoError(t, c.GetJSON(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])

	require.NoError(t, c.Delete(ctx, "k"))
	assert.ErrorAs(t, c.GetJSON(ctx, "k", &got), &miss)

	stored, err = c.SetJSONIfAbsent(ctx, "k", map[string]int{"a": 3}, time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.NoError(t, c.Ping(ctx))
}

func TestRedisRateLimiter(t *testing.T) {
	mr, _, rl := setupRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "operator-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
	}

	allowed, err := rl.Allow(ctx, "operator-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	remaining, err := rl.Remaining(ctx, "operator-1", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	allowed, err = rl.Allow(ctx, "operator-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "keys are independent")

	assert.Equal(t, time.Minute, mr.TTL(RateLimitPrefix+"operator-1"), "denied requests do not extend the window")

	mr.FastForward(time.Minute)
	remaining, err = rl.Remaining(ctx, "operator-1", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	allowed, err = rl.Allow(ctx, "operator-1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "a new window opens after expiry")
}

func TestRedisRateLimiter_RepairsMissingExpiry(t *testing.T) {
	mr, _, rl := setupRedis(t)
	ctx := context.Background()

	// a counter left without a TTL would block the key forever
	require.NoError(t, mr.Set(RateLimitPrefix+"operator-3", "7"))

	allowed, err := rl.Allow(ctx, "operator-3", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, mr.TTL(RateLimitPrefix+"operator-3"))
}

type countingBaselineRepo struct {
	baselines map[string]*behavior.Baseline
	gets      int
	// onGet runs after the row is read and before it is returned
	onGet func()
}

func (r *countingBaselineRepo) Upsert(_ context.Context, baselines ...*behavior.Baseline) error {
	for _, b := range baselines {
		r.baselines[baselineKey(b.UserID, b.Type)] = b
	}
	return nil
}

func (r *countingBaselineRepo) Get(_ context.Context, userID uuid.UUID, t behavior.BaselineType) (*behavior.Baseline, error) {
	r.gets++
	b := r.baselines[baselineKey(userID, t)]
	if r.onGet != nil {
		r.onGet()
	}
	return b, nil
}

func (r *countingBaselineRepo) ListByUser(context.Context, uuid.UUID) ([]*behavior.Baseline, error) {
	return nil, nil
}

func timeBaseline(t *testing.T, userID uuid.UUID, now time.Time, hours ...int) *behavior.Baseline {
	t.Helper()
	events := make([]*behavior.Event, 0, len(hours))
	for i, h := range hours {
		at := time.Date(2026, 1, 10-i, h, 0, 0, 0, time.UTC)
		e, err := behavior.NewEvent(userID, behavior.EventLogin, at, "198.51.100.7", "Main Clinic", "")
		require.NoError(t, err)
		events = append(events, e)
	}
	b, err := behavior.Calculate(context.Background(), userID, behavior.BaselineTime, events, time.UTC, behavior.DefaultPolicy(), now)
	require.NoError(t, err)
	return b
}

func TestBaselineCache_ReadThroughAndEviction(t *testing.T) {
	_, c, _ := setupRedis(t)
	ctx := context.Background()
	repo := &countingBaselineRepo{baselines: map[string]*behavior.Baseline{}}
	bc := NewBaselineCache(repo, c, time.Minute, zaptest.NewLogger(t))

	userID := uuid.New()
	now := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)

	missing, err := bc.Get(ctx, userID, behavior.BaselineTime)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, bc.Upsert(ctx, timeBaseline(t, userID, now, 9, 9, 9, 14)))

	first, err := bc.Get(ctx, userID, behavior.BaselineTime)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, repo.gets, "upsert writes the cache through")

	data, ok := first.Time()
	require.True(t, ok)
	assert.Equal(t, 10, data.AverageHour)

	require.NoError(t, bc.Upsert(ctx, timeBaseline(t, userID, now.Add(time.Hour), 22, 22, 23)))
	refreshed, err := bc.Get(ctx, userID, behavior.BaselineTime)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.gets)
	assert.True(t, refreshed.CalculatedAt.Equal(now.Add(time.Hour)))
}

func TestBaselineCache_MissFillsEmptyKey(t *testing.T) {
	mr, c, _ := setupRedis(t)
	ctx := context.Background()
	repo := &countingBaselineRepo{baselines: map[string]*behavior.Baseline{}}
	bc := NewBaselineCache(repo, c, time.Minute, zaptest.NewLogger(t))

	userID := uuid.New()
	require.NoError(t, repo.Upsert(ctx, timeBaseline(t, userID, time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC), 9, 9, 14)))

	_, err := bc.Get(ctx, userID, behavior.BaselineTime)
	require.NoError(t, err)
	assert.True(t, mr.Exists(baselineKey(userID, behavior.BaselineTime)))

	_, err = bc.Get(ctx, userID, behavior.BaselineTime)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.gets)
}

func TestBaselineCache_StaleReadDoesNotOverwriteRecalculation(t *testing.T) {
	_, c, _ := setupRedis(t)
	ctx := context.Background()
	repo := &countingBaselineRepo{baselines: map[string]*behavior.Baseline{}}
	bc := NewBaselineCache(repo, c, time.Minute, zaptest.NewLogger(t))

	userID := uuid.New()
	calculated := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, timeBaseline(t, userID, calculated, 9, 9, 14)))

	// a recalculation commits after the reader loaded the old row
	recalculated := calculated.Add(time.Hour)
	repo.onGet = func() {
		repo.onGet = nil
		require.NoError(t, bc.Upsert(ctx, timeBaseline(t, userID, recalculated, 22, 22, 23)))
	}

	stale, err := bc.Get(ctx, userID, behavior.BaselineTime)
	require.NoError(t, err)
	assert.True(t, stale.CalculatedAt.Equal(calculated))

	current, err := bc.Get(ctx, userID, behavior.BaselineTime)
	require.NoError(t, err)
	assert.True(t, current.CalculatedAt.Equal(recalculated), "cache holds the recalculated baseline")
	assert.Equal(t, 1, repo.gets)
}

func TestBaselineCache_FailsOpen(t *testing.T) {
	mr, c, _ := setupRedis(t)
	ctx := context.Background()
	repo := &countingBaselineRepo{baselines: map[string]*behavior.Baseline{}}
	bc := NewBaselineCache(repo, c, time.Minute, zaptest.NewLogger(t))

	userID := uuid.New()
	require.NoError(t, repo.Upsert(ctx, timeBaseline(t, userID, time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC), 9, 9, 14)))

	mr.Close()

	b, err := bc.Get(ctx, userID, behavior.BaselineTime)
	require.NoError(t, err)
	assert.NotNil(t, b)
	assert.NoError(t, bc.Upsert(ctx, b))
}
