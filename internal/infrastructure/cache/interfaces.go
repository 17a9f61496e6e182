package cache

import (
	"context"
	"time"
)

// Cache provides a generic caching interface with TTL support
type Cache interface {
	// Get retrieves a value by key
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with optional TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes keys
	Delete(ctx context.Context, keys ...string) error

	// GetJSON retrieves and unmarshals JSON data
	GetJSON(ctx context.Context, key string, dest interface{}) error

	// SetJSON marshals and stores JSON data
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetJSONIfAbsent stores JSON data only when key is unset and reports whether it did
	SetJSONIfAbsent(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Ping reports whether the backing store is reachable
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// RateLimiter provides fixed window rate limiting
type RateLimiter interface {
	// Allow checks if a request is allowed under the rate limit
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Remaining returns how many requests are remaining in the current window
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// Key prefixes for consistent cache key naming
const (
	BaselinePrefix  = "csm:baseline:"
	RateLimitPrefix = "csm:ratelimit:"
)

// DefaultBaselineTTL bounds how long a cached baseline may outlive a missed invalidation
const DefaultBaselineTTL = 15 * time.Minute

// ErrCacheKeyNotFound is returned when a cache key doesn't exist
type ErrCacheKeyNotFound struct {
	Key string
}

func (e ErrCacheKeyNotFound) Error() string {
	return "cache key not found: " + e.Key
}
