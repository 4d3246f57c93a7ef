package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// staleThreshold is how long an untouched bucket survives cleanup.
const staleThreshold = time.Hour

type bucket struct {
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	cleanupInterval time.Duration
	logger          *slog.Logger
	now             func() time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
	removed atomic.Int64
}

// MemoryStoreStats provides observability metrics.
type MemoryStoreStats struct {
	ActiveBuckets  int
	BucketsRemoved int64
	IsRunning      bool
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often stale buckets are removed.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.cleanupInterval = interval
	}
}

// WithMemoryStoreLogger sets the logger for background cleanup.
func WithMemoryStoreLogger(logger *slog.Logger) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if logger != nil {
			ms.logger = logger
		}
	}
}

// WithMemoryStoreClock overrides the time source.
func WithMemoryStoreClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		buckets:         make(map[string]*bucket),
		cleanupInterval: 5 * time.Minute,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(ms)
	}

	return ms
}

// ConsumeTokens implements Store.
func (ms *MemoryStore) ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config) (int, time.Time, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	b, exists := ms.buckets[key]
	if !exists {
		b = &bucket{tokens: cfg.Capacity, lastRefill: now}
		ms.buckets[key] = b
	}
	b.lastAccess = now

	// Cap intervals to avoid overflow for long-idle buckets.
	maxIntervals := int64(cfg.Capacity/cfg.RefillRate + 1)
	intervals := int(min(int64(now.Sub(b.lastRefill)/cfg.RefillInterval), maxIntervals))
	if intervals > 0 {
		b.tokens = min(b.tokens+intervals*cfg.RefillRate, cfg.Capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * cfg.RefillInterval)
		if b.tokens == cfg.Capacity {
			b.lastRefill = now
		}
	}

	resetAt := b.lastRefill.Add(cfg.RefillInterval)
	if b.tokens < tokens {
		return b.tokens, resetAt, false, nil
	}

	b.tokens -= tokens
	return b.tokens, resetAt, true, nil
}

// Reset implements Store.
func (ms *MemoryStore) Reset(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.buckets, key)
	return nil
}

// Start removes stale buckets every cleanup interval until ctx is cancelled
// or Stop is called. It blocks.
func (ms *MemoryStore) Start(ctx context.Context) error {
	if ms.cleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be > 0, got %v", ms.cleanupInterval)
	}
	if !ms.running.CompareAndSwap(false, true) {
		return errors.New("memory store already started")
	}
	defer ms.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	defer close(done)

	ms.mu.Lock()
	ms.cancel, ms.done = cancel, done
	ms.mu.Unlock()

	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	ms.logger.InfoContext(ctx, "rate limiter cleanup started",
		slog.Duration("cleanup_interval", ms.cleanupInterval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ms.removeStale()
		}
	}
}

// Stop ends the cleanup loop and waits for it to exit.
func (ms *MemoryStore) Stop() error {
	ms.mu.Lock()
	cancel, done := ms.cancel, ms.done
	ms.cancel, ms.done = nil, nil
	ms.mu.Unlock()

	if cancel == nil {
		return errors.New("memory store not started")
	}
	cancel()
	<-done
	return nil
}

// Run provides errgroup compatibility.
func (ms *MemoryStore) Run(ctx context.Context) func() error {
	return func() error {
		if err := ms.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func (ms *MemoryStore) removeStale() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var removed int64
	for key, b := range ms.buckets {
		if now.Sub(b.lastAccess) > staleThreshold {
			delete(ms.buckets, key)
			removed++
		}
	}
	ms.removed.Add(removed)
}

// Stats returns current store statistics.
func (ms *MemoryStore) Stats() MemoryStoreStats {
	ms.mu.Lock()
	active := len(ms.buckets)
	ms.mu.Unlock()

	return MemoryStoreStats{
		ActiveBuckets:  active,
		BucketsRemoved: ms.removed.Load(),
		IsRunning:      ms.running.Load(),
	}
}
