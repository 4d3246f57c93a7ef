package streamtoken

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

// MemoryStore implements Store and Transactor in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	creds map[string]Credential // keyed by token hash

	// txMu serializes transactions; plain operations only take mu.
	txMu sync.Mutex

	cleanupInterval time.Duration
	logger          *slog.Logger
	now             func() time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// memTxKey carries the undo journal of an open memory transaction.
type memTxKey struct{}

type undoEntry struct {
	hash    string
	prev    Credential
	existed bool
}

type memTx struct {
	journal []undoEntry
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often Start purges expired credentials.
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

// WithMemoryStoreClock overrides the time source used by background cleanup.
func WithMemoryStoreClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

// NewMemoryStore creates an empty store. Call Start to purge expired
// credentials in the background.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		creds:           make(map[string]Credential),
		cleanupInterval: 10 * time.Minute,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(ms)
	}

	return ms
}

// Len returns the number of stored credentials.
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.creds)
}

// Insert implements Store.
func (ms *MemoryStore) Insert(ctx context.Context, cred Credential) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.creds[cred.TokenHash]; exists {
		return fmt.Errorf("credential with token hash %s already exists", cred.TokenHash)
	}

	cred.Token = ""
	ms.record(ctx, cred.TokenHash)
	ms.creds[cred.TokenHash] = cloneCredential(cred)
	return nil
}

// FindByToken implements Store.
func (ms *MemoryStore) FindByToken(ctx context.Context, tokenHash string, purpose Purpose) (Credential, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cred, ok := ms.creds[tokenHash]
	if !ok || cred.Purpose != purpose {
		return Credential{}, ErrNotFound
	}
	return cloneCredential(cred), nil
}

// InvalidateUnconsumed implements Store.
func (ms *MemoryStore) InvalidateUnconsumed(ctx context.Context, userID string, purpose Purpose, at time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var n int64
	for hash, cred := range ms.creds {
		if cred.UserID != userID || cred.Purpose != purpose || cred.IsConsumed() {
			continue
		}
		ms.record(ctx, hash)
		consumedAt := at
		cred.ConsumedAt = &consumedAt
		ms.creds[hash] = cred
		n++
	}
	return n, nil
}

// MarkConsumed implements Store.
func (ms *MemoryStore) MarkConsumed(ctx context.Context, cred Credential, at time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored, ok := ms.creds[cred.TokenHash]
	if !ok || stored.ID != cred.ID {
		return ErrNotFound
	}
	if stored.IsConsumed() {
		return ErrAlreadyConsumed
	}

	ms.record(ctx, cred.TokenHash)
	consumedAt := at
	stored.ConsumedAt = &consumedAt
	ms.creds[cred.TokenHash] = stored
	return nil
}

// DeleteExpired implements Store.
func (ms *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var n int64
	for hash, cred := range ms.creds {
		if cred.ExpiresAt.Before(before) {
			ms.record(ctx, hash)
			delete(ms.creds, hash)
			n++
		}
	}
	return n, nil
}

// WithinTx implements Transactor. Changes made through the transaction
// context are undone when fn returns an error.
func (ms *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(memTxKey{}).(*memTx); nested {
		return fn(ctx)
	}

	ms.txMu.Lock()
	defer ms.txMu.Unlock()

	tx := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		ms.rollback(tx)
		return err
	}
	return nil
}

// record saves the current state of hash into the transaction journal.
// Caller must hold ms.mu.
func (ms *MemoryStore) record(ctx context.Context, hash string) {
	tx, ok := ctx.Value(memTxKey{}).(*memTx)
	if !ok {
		return
	}
	prev, existed := ms.creds[hash]
	tx.journal = append(tx.journal, undoEntry{hash: hash, prev: prev, existed: existed})
}

func (ms *MemoryStore) rollback(tx *memTx) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for i := len(tx.journal) - 1; i >= 0; i-- {
		e := tx.journal[i]
		if e.existed {
			ms.creds[e.hash] = e.prev
		} else {
			delete(ms.creds, e.hash)
		}
	}
}

// Start purges expired credentials every cleanup interval until ctx is
// cancelled or Stop is called. It blocks; run it in a goroutine or errgroup.
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
	ms.cancel = cancel
	ms.done = done
	ms.mu.Unlock()

	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	ms.logger.InfoContext(ctx, "stream credential cleanup started",
		slog.Duration("cleanup_interval", ms.cleanupInterval))

	for {
		select {
		case <-ctx.Done():
			ms.logger.InfoContext(context.Background(), "stream credential cleanup stopping")
			return ctx.Err()
		case <-ticker.C:
			n, err := ms.DeleteExpired(ctx, ms.now())
			if err != nil {
				ms.logger.ErrorContext(ctx, "stream credential cleanup failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				ms.logger.DebugContext(ctx, "expired stream credentials removed", slog.Int64("count", n))
			}
		}
	}
}

// Stop ends the cleanup loop started by Start and waits for it to exit.
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

// Run provides errgroup compatibility: it runs the cleanup loop and treats
// context cancellation as a clean exit.
func (ms *MemoryStore) Run(ctx context.Context) func() error {
	return func() error {
		if err := ms.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func cloneCredential(c Credential) Credential {
	if c.ConsumedAt != nil {
		t := *c.ConsumedAt
		c.ConsumedAt = &t
	}
	return c
}
