package streamtoken

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Issuer mints and consumes stream credentials over a Store.
type Issuer struct {
	store   Store
	ttl     time.Duration
	purpose Purpose
	now     func() time.Time
	random  io.Reader
	logger  *slog.Logger
}

// NewIssuer creates an issuer with DefaultTTL and PurposeStream unless
// overridden by options.
func NewIssuer(store Store, opts ...Option) *Issuer {
	i := &Issuer{
		store:   store,
		ttl:     DefaultTTL,
		purpose: PurposeStream,
		now:     time.Now,
		random:  rand.Reader,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// TTL returns the lifetime of issued credentials.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates a new credential for the user and invalidates every earlier
// unconsumed credential of the same purpose. The returned credential carries
// the plain Token; the store only sees its hash.
func (i *Issuer) Issue(ctx context.Context, userID string) (Credential, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Credential{}, ErrInvalidUser
	}

	token, err := generateToken(i.random)
	if err != nil {
		return Credential{}, err
	}

	now := i.now()
	cred := Credential{
		ID:        uuid.New(),
		UserID:    userID,
		Purpose:   i.purpose,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(i.ttl),
		CreatedAt: now,
	}

	var invalidated int64
	err = i.withinTx(ctx, func(ctx context.Context) error {
		n, err := i.store.InvalidateUnconsumed(ctx, userID, i.purpose, now)
		if err != nil {
			return fmt.Errorf("invalidate previous credentials: %w", err)
		}
		invalidated = n
		if err := i.store.Insert(ctx, cred); err != nil {
			return fmt.Errorf("insert credential: %w", err)
		}
		return nil
	})
	if err != nil {
		return Credential{}, errors.Join(ErrIssue, err)
	}

	i.logger.DebugContext(ctx, "stream credential issued",
		slog.String("user_id", userID),
		slog.String("credential_id", cred.ID.String()),
		slog.Int64("invalidated", invalidated),
	)

	cred.Token = token
	return cred, nil
}

// Consume spends the credential identified by token and returns its owner.
// Fails with ErrNotFound, ErrExpired or ErrAlreadyConsumed.
func (i *Issuer) Consume(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrNotFound
	}

	cred, err := i.store.FindByToken(ctx, HashToken(token), i.purpose)
	if err != nil {
		return "", err
	}

	now := i.now()
	if cred.IsExpired(now) {
		return "", ErrExpired
	}
	if cred.IsConsumed() {
		return "", ErrAlreadyConsumed
	}

	if err := i.store.MarkConsumed(ctx, cred, now); err != nil {
		return "", err
	}

	i.logger.DebugContext(ctx, "stream credential consumed",
		slog.String("user_id", cred.UserID),
		slog.String("credential_id", cred.ID.String()),
	)

	return cred.UserID, nil
}

// Cleanup deletes credentials that are already expired.
func (i *Issuer) Cleanup(ctx context.Context) (int64, error) {
	return i.store.DeleteExpired(ctx, i.now())
}

func (i *Issuer) withinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := i.store.(Transactor); ok {
		return tx.WithinTx(ctx, fn)
	}
	return fn(ctx)
}
