package streamtoken_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/eventstream/core/streamtoken"
)

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestIssuer_Issue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("creates usable credential", func(t *testing.T) {
		t.Parallel()

		clk := newClock()
		store := streamtoken.NewMemoryStore()
		issuer := streamtoken.NewIssuer(store, streamtoken.WithClock(clk.Now))

		cred, err := issuer.Issue(ctx, "u1")
		require.NoError(t, err)

		assert.NotEmpty(t, cred.Token)
		assert.GreaterOrEqual(t, len(cred.Token), 43, "token must carry 256 bits")
		assert.Equal(t, streamtoken.HashToken(cred.Token), cred.TokenHash)
		assert.Equal(t, "u1", cred.UserID)
		assert.Equal(t, streamtoken.PurposeStream, cred.Purpose)
		assert.Equal(t, clk.Now().Add(streamtoken.DefaultTTL), cred.ExpiresAt)
		assert.Nil(t, cred.ConsumedAt)

		stored, err := store.FindByToken(ctx, cred.TokenHash, streamtoken.PurposeStream)
		require.NoError(t, err)
		assert.Empty(t, stored.Token, "plain token must never be stored")
	})

	t.Run("rejects empty user", func(t *testing.T) {
		t.Parallel()

		issuer := streamtoken.NewIssuer(streamtoken.NewMemoryStore())
		_, err := issuer.Issue(ctx, "  ")
		assert.ErrorIs(t, err, streamtoken.ErrInvalidUser)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		t.Parallel()

		issuer := streamtoken.NewIssuer(streamtoken.NewMemoryStore())
		seen := make(map[string]struct{})
		for range 50 {
			cred, err := issuer.Issue(ctx, "u1")
			require.NoError(t, err)
			_, dup := seen[cred.Token]
			require.False(t, dup)
			seen[cred.Token] = struct{}{}
		}
	})

	t.Run("random source failure", func(t *testing.T) {
		t.Parallel()

		issuer := streamtoken.NewIssuer(streamtoken.NewMemoryStore(),
			streamtoken.WithRandom(strings.NewReader("short")))
		_, err := issuer.Issue(ctx, "u1")
		assert.ErrorIs(t, err, streamtoken.ErrTokenGeneration)
	})

	t.Run("at most one usable credential per user", func(t *testing.T) {
		t.Parallel()

		clk := newClock()
		store := streamtoken.NewMemoryStore()
		issuer := streamtoken.NewIssuer(store, streamtoken.WithClock(clk.Now))

		var creds []streamtoken.Credential
		for range 5 {
			cred, err := issuer.Issue(ctx, "u1")
			require.NoError(t, err)
			creds = append(creds, cred)
			clk.Advance(time.Second)
		}
		other, err := issuer.Issue(ctx, "u2")
		require.NoError(t, err)

		usable := 0
		for _, c := range creds {
			stored, err := store.FindByToken(ctx, c.TokenHash, streamtoken.PurposeStream)
			require.NoError(t, err)
			if stored.IsUsable(clk.Now()) {
				usable++
				assert.Equal(t, creds[len(creds)-1].ID, stored.ID, "only the newest credential may be usable")
			}
		}
		assert.Equal(t, 1, usable)

		stored, err := store.FindByToken(ctx, other.TokenHash, streamtoken.PurposeStream)
		require.NoError(t, err)
		assert.True(t, stored.IsUsable(clk.Now()), "other users are not affected")
	})

	t.Run("concurrent issue keeps one usable credential", func(t *testing.T) {
		t.Parallel()

		store := streamtoken.NewMemoryStore()
		issuer := streamtoken.NewIssuer(store)

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			creds []streamtoken.Credential
		)
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cred, err := issuer.Issue(ctx, "u1")
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				creds = append(creds, cred)
				mu.Unlock()
			}()
		}
		wg.Wait()

		usable := 0
		for _, c := range creds {
			stored, err := store.FindByToken(ctx, c.TokenHash, streamtoken.PurposeStream)
			require.NoError(t, err)
			if stored.IsUsable(time.Now()) {
				usable++
			}
		}
		assert.Equal(t, 1, usable)
	})

	t.Run("store failure rolls back invalidation", func(t *testing.T) {
		t.Parallel()

		store := &failingStore{MemoryStore: streamtoken.NewMemoryStore()}
		issuer := streamtoken.NewIssuer(store)

		first, err := issuer.Issue(ctx, "u1")
		require.NoError(t, err)

		store.failInsert.Store(true)
		_, err = issuer.Issue(ctx, "u1")
		require.ErrorIs(t, err, streamtoken.ErrIssue)

		// The failed issue must not have burned the previous credential.
		user, err := issuer.Consume(ctx, first.Token)
		require.NoError(t, err)
		assert.Equal(t, "u1", user)
	})
}

func TestIssuer_Consume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("succeeds exactly once", func(t *testing.T) {
		t.Parallel()

		issuer := streamtoken.NewIssuer(streamtoken.NewMemoryStore())
		cred, err := issuer.Issue(ctx, "u1")
		require.NoError(t, err)

		user, err := issuer.Consume(ctx, cred.Token)
		require.NoError(t, err)
		assert.Equal(t, "u1", user)

		_, err = issuer.Consume(ctx, cred.Token)
		assert.ErrorIs(t, err, streamtoken.ErrAlreadyConsumed)
	})

	t.Run("unknown token", func(t *testing.T) {
		t.Parallel()

		issuer := streamtoken.NewIssuer(streamtoken.NewMemoryStore())
		_, err := issuer.Consume(ctx, "does-not-exist")
		assert.ErrorIs(t, err, streamtoken.ErrNotFound)

		_, err = issuer.Consume(ctx, "")
		assert.ErrorIs(t, err, streamtoken.ErrNotFound)
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()

		clk := newClock()
		issuer := streamtoken.NewIssuer(streamtoken.NewMemoryStore(),
			streamtoken.WithClock(clk.Now),
			streamtoken.WithTTL(time.Minute),
		)
		cred, err := issuer.Issue(ctx, "u1")
		require.NoError(t, err)

		clk.Advance(time.Minute)
		_, err = issuer.Consume(ctx, cred.Token)
		assert.ErrorIs(t, err, streamtoken.ErrExpired)
	})

	t.Run("purpose must match", func(t *testing.T) {
		t.Parallel()

		store := streamtoken.NewMemoryStore()
		streamIssuer := streamtoken.NewIssuer(store)
		otherIssuer := streamtoken.NewIssuer(store, streamtoken.WithPurpose("export_download"))

		cred, err := otherIssuer.Issue(ctx, "u1")
		require.NoError(t, err)

		_, err = streamIssuer.Consume(ctx, cred.Token)
		assert.ErrorIs(t, err, streamtoken.ErrNotFound)
	})

	t.Run("reissue invalidates previous token", func(t *testing.T) {
		t.Parallel()

		issuer := streamtoken.NewIssuer(streamtoken.NewMemoryStore())

		first, err := issuer.Issue(ctx, "u2")
		require.NoError(t, err)
		second, err := issuer.Issue(ctx, "u2")
		require.NoError(t, err)

		_, err = issuer.Consume(ctx, first.Token)
		require.Error(t, err)
		assert.True(t, errors.Is(err, streamtoken.ErrNotFound) || errors.Is(err, streamtoken.ErrAlreadyConsumed))

		user, err := issuer.Consume(ctx, second.Token)
		require.NoError(t, err)
		assert.Equal(t, "u2", user)

		_, err = issuer.Consume(ctx, second.Token)
		assert.ErrorIs(t, err, streamtoken.ErrAlreadyConsumed)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		t.Parallel()

		issuer := streamtoken.NewIssuer(streamtoken.NewMemoryStore())
		cred, err := issuer.Issue(ctx, "u1")
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
			consumed  atomic.Int32
		)
		for range 32 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := issuer.Consume(ctx, cred.Token)
				switch {
				case err == nil:
					successes.Add(1)
				case errors.Is(err, streamtoken.ErrAlreadyConsumed):
					consumed.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), successes.Load())
		assert.Equal(t, int32(31), consumed.Load())
	})
}

func TestIssuer_Cleanup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	store := streamtoken.NewMemoryStore()
	issuer := streamtoken.NewIssuer(store, streamtoken.WithClock(clk.Now), streamtoken.WithTTL(time.Minute))

	_, err := issuer.Issue(ctx, "u1")
	require.NoError(t, err)
	_, err = issuer.Issue(ctx, "u2")
	require.NoError(t, err)

	n, err := issuer.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(2 * time.Minute)
	n, err = issuer.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Zero(t, store.Len())
}

func TestIsAuthError(t *testing.T) {
	t.Parallel()

	assert.True(t, streamtoken.IsAuthError(streamtoken.ErrNotFound))
	assert.True(t, streamtoken.IsAuthError(streamtoken.ErrExpired))
	assert.True(t, streamtoken.IsAuthError(streamtoken.ErrAlreadyConsumed))
	assert.False(t, streamtoken.IsAuthError(streamtoken.ErrIssue))
	assert.False(t, streamtoken.IsAuthError(nil))
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	issuer := streamtoken.NewFromConfig(streamtoken.Config{TTL: 90 * time.Second}, streamtoken.NewMemoryStore())
	assert.Equal(t, 90*time.Second, issuer.TTL())

	issuer = streamtoken.NewFromConfig(streamtoken.Config{}, streamtoken.NewMemoryStore())
	assert.Equal(t, streamtoken.DefaultTTL, issuer.TTL())
}

// failingStore wraps MemoryStore and can be told to fail inserts.
type failingStore struct {
	*streamtoken.MemoryStore
	failInsert atomic.Bool
}

var errInsert = errors.New("insert failed")

func (s *failingStore) Insert(ctx context.Context, cred streamtoken.Credential) error {
	if s.failInsert.Load() {
		return errInsert
	}
	return s.MemoryStore.Insert(ctx, cred)
}
