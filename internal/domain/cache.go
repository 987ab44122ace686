package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market snapshot lookups for the query surface.
type MarketCache interface {
	Set(ctx context.Context, m Market) error
	Get(ctx context.Context, id uint64) (Market, error)
	Invalidate(ctx context.Context, id uint64) error
}

// RateLimiter provides distributed rate limiting for the HTTP surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. The service layer takes a
// per-market lock around settlement sweeps so replicas sharing a store never
// run the same sweep concurrently.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
