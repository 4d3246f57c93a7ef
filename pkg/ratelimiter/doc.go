// Package ratelimiter provides token bucket rate limiting over a pluggable
// Store.
//
// A bucket holds up to Capacity tokens and gains RefillRate tokens every
// RefillInterval. Each request consumes tokens; when too few are left the
// request is denied and nothing is consumed.
//
//	store := ratelimiter.NewMemoryStore()
//	limiter, err := ratelimiter.NewBucket(store, ratelimiter.Config{
//		Capacity:       10,
//		RefillRate:     1,
//		RefillInterval: 6 * time.Second,
//	})
//
//	result, err := limiter.Allow(ctx, "user:"+userID)
//	if err == nil && !result.Allowed() {
//		// answer 429 with result.RetryAfter()
//	}
//
// MemoryStore keeps buckets in process memory; Start (or Run with errgroup)
// removes buckets that have not been touched for an hour.
package ratelimiter
