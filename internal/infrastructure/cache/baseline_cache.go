package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
)

// BaselineCache is a read-through cache in front of a BaselineRepository.
// Detection reads a user's baselines for every event, while writes only
// happen on recalculation. Recalculation overwrites the cached entry and a
// read miss only fills an empty key, so a read that loaded the previous
// baseline cannot replace a newer one. Cache failures never fail the caller.
type BaselineCache struct {
	repo   behavior.BaselineRepository
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewBaselineCache wraps repo. A non-positive ttl selects DefaultBaselineTTL.
func NewBaselineCache(repo behavior.BaselineRepository, cache Cache, ttl time.Duration, logger *zap.Logger) *BaselineCache {
	if ttl <= 0 {
		ttl = DefaultBaselineTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaselineCache{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

var _ behavior.BaselineRepository = (*BaselineCache)(nil)

func baselineKey(userID uuid.UUID, t behavior.BaselineType) string {
	return BaselinePrefix + userID.String() + ":" + string(t)
}

// Upsert writes through to the repository, then replaces the cached
// entries. An entry that cannot be replaced is evicted instead.
func (c *BaselineCache) Upsert(ctx context.Context, baselines ...*behavior.Baseline) error {
	if err := c.repo.Upsert(ctx, baselines...); err != nil {
		return err
	}

	for _, b := range baselines {
		key := baselineKey(b.UserID, b.Type)
		err := c.cache.SetJSON(ctx, key, b, c.ttl)
		if err == nil {
			continue
		}
		c.logger.Warn("baseline cache write failed", zap.String("key", key), zap.Error(err))
		if err := c.cache.Delete(ctx, key); err != nil {
			c.logger.Warn("baseline cache eviction failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Get serves from cache, loading and populating on a miss. Absent
// baselines are not cached.
func (c *BaselineCache) Get(ctx context.Context, userID uuid.UUID, t behavior.BaselineType) (*behavior.Baseline, error) {
	key := baselineKey(userID, t)

	var cached behavior.Baseline
	err := c.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	var miss ErrCacheKeyNotFound
	if !errors.As(err, &miss) {
		c.logger.Warn("baseline cache read failed", zap.String("key", key), zap.Error(err))
	}

	b, err := c.repo.Get(ctx, userID, t)
	if err != nil || b == nil {
		return b, err
	}
	if _, err := c.cache.SetJSONIfAbsent(ctx, key, b, c.ttl); err != nil {
		c.logger.Warn("baseline cache write failed", zap.String("key", key), zap.Error(err))
	}
	return b, nil
}

// ListByUser always reads the repository
func (c *BaselineCache) ListByUser(ctx context.Context, userID uuid.UUID) ([]*behavior.Baseline, error) {
	return c.repo.ListByUser(ctx, userID)
}
