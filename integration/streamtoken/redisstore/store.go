// Package redisstore persists stream credentials in Redis.
//
// Each credential is a hash keyed by its token hash; a per-user set indexes
// the unconsumed ones. Insert, invalidation and consumption are Lua scripts,
// so they are atomic across processes. Keys carry a TTL of the credential
// expiry plus a retention window, during which Consume still reports
// expiry instead of not-found.
//
// Scripts touch keys derived from the user index, so the store needs a
// single Redis node (or a cluster slot shared by the prefix).
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/eventstream/core/streamtoken"
)

const (
	DefaultKeyPrefix     = "streamtoken"
	DefaultRetention     = 10 * time.Minute
	DefaultScanBatchSize = 1000
)

// Store implements streamtoken.Store.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	scanBatch int64
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix sets the namespace of every key the store writes.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRetention sets how long credentials outlive their expiry.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithScanBatchSize sets the SCAN count hint used by DeleteExpired.
func WithScanBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.scanBatch = int64(n)
		}
	}
}

// New creates a store over client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:    client,
		prefix:    DefaultKeyPrefix,
		retention: DefaultRetention,
		scanBatch: DefaultScanBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) credPrefix() string {
	return s.prefix + ":cred:"
}

func (s *Store) credKey(tokenHash string) string {
	return s.credPrefix() + tokenHash
}

func (s *Store) userKey(userID string, purpose streamtoken.Purpose) string {
	return s.prefix + ":user:" + string(purpose) + ":" + userID
}

// Insert implements streamtoken.Store. It also consumes the user's other
// unconsumed credentials of the same purpose.
func (s *Store) Insert(ctx context.Context, cred streamtoken.Credential) error {
	consumedAt := ""
	if cred.ConsumedAt != nil {
		consumedAt = formatTime(*cred.ConsumedAt)
	}
	expireAt := cred.ExpiresAt.Add(s.retention).UnixMilli()

	ok, err := insertScript.Run(ctx, s.client,
		[]string{s.credKey(cred.TokenHash), s.userKey(cred.UserID, cred.Purpose)},
		cred.ID.String(), cred.UserID, string(cred.Purpose), cred.TokenHash,
		formatTime(cred.ExpiresAt), formatTime(cred.CreatedAt), consumedAt,
		expireAt, s.credPrefix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("insert stream credential: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("credential with token hash %s already exists", cred.TokenHash)
	}
	return nil
}

// FindByToken implements streamtoken.Store.
func (s *Store) FindByToken(ctx context.Context, tokenHash string, purpose streamtoken.Purpose) (streamtoken.Credential, error) {
	fields, err := s.client.HGetAll(ctx, s.credKey(tokenHash)).Result()
	if err != nil {
		return streamtoken.Credential{}, fmt.Errorf("find stream credential: %w", err)
	}
	if len(fields) == 0 || fields["purpose"] != string(purpose) {
		return streamtoken.Credential{}, streamtoken.ErrNotFound
	}

	cred, err := decodeCredential(fields)
	if err != nil {
		return streamtoken.Credential{}, fmt.Errorf("decode stream credential %s: %w", tokenHash, err)
	}
	return cred, nil
}

// InvalidateUnconsumed implements streamtoken.Store.
func (s *Store) InvalidateUnconsumed(ctx context.Context, userID string, purpose streamtoken.Purpose, at time.Time) (int64, error) {
	n, err := invalidateScript.Run(ctx, s.client,
		[]string{s.userKey(userID, purpose)},
		formatTime(at), s.credPrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("invalidate stream credentials: %w", err)
	}
	return n, nil
}

// MarkConsumed implements streamtoken.Store.
func (s *Store) MarkConsumed(ctx context.Context, cred streamtoken.Credential, at time.Time) error {
	res, err := consumeScript.Run(ctx, s.client,
		[]string{s.credKey(cred.TokenHash), s.userKey(cred.UserID, cred.Purpose)},
		cred.ID.String(), formatTime(at), cred.TokenHash,
	).Int64()
	if err != nil {
		return fmt.Errorf("consume stream credential: %w", err)
	}

	switch res {
	case 1:
		return nil
	case 0:
		return streamtoken.ErrAlreadyConsumed
	default:
		return streamtoken.ErrNotFound
	}
}

// DeleteExpired implements streamtoken.Store. Key TTLs already bound how
// long credentials live; this removes them as soon as they expire.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	iter := s.client.Scan(ctx, 0, s.credPrefix()+"*", s.scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.HGet(ctx, key, "expires_at").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("delete expired stream credentials: %w", err)
		}
		exp, err := parseTime(raw)
		if err != nil || !exp.Before(before) {
			continue
		}
		deleted, err := s.client.Del(ctx, key).Result()
		if err != nil {
			return n, fmt.Errorf("delete expired stream credentials: %w", err)
		}
		n += deleted
	}
	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("delete expired stream credentials: %w", err)
	}
	return n, nil
}

func decodeCredential(fields map[string]string) (streamtoken.Credential, error) {
	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return streamtoken.Credential{}, err
	}
	expiresAt, err := parseTime(fields["expires_at"])
	if err != nil {
		return streamtoken.Credential{}, err
	}
	createdAt, err := parseTime(fields["created_at"])
	if err != nil {
		return streamtoken.Credential{}, err
	}

	cred := streamtoken.Credential{
		ID:        id,
		UserID:    fields["user_id"],
		Purpose:   streamtoken.Purpose(fields["purpose"]),
		TokenHash: fields["token_hash"],
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}
	if raw, ok := fields["consumed_at"]; ok {
		consumedAt, err := parseTime(raw)
		if err != nil {
			return streamtoken.Credential{}, err
		}
		cred.ConsumedAt = &consumedAt
	}
	return cred, nil
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseTime(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}

var _ streamtoken.Store = (*Store)(nil)
