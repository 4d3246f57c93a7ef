// Package pgstore persists stream credentials in PostgreSQL.
//
// Consumption is a single conditional UPDATE, so exactly one of any number
// of concurrent consumers across processes wins. Issue runs inside a
// transaction that takes a per-user advisory lock, keeping at most one
// usable credential per user and purpose.
package pgstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/eventstream/core/streamtoken"
	"github.com/dmitrymomot/eventstream/integration/database/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the schema migrations for use with pg.MigrateFS.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Store implements streamtoken.Store and streamtoken.Transactor.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store over pool. The schema must be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const credentialColumns = `id, user_id, purpose, token_hash, expires_at, consumed_at, created_at`

// Insert implements streamtoken.Store.
func (s *Store) Insert(ctx context.Context, cred streamtoken.Credential) error {
	_, err := pg.Conn(ctx, s.pool).Exec(ctx,
		`INSERT INTO stream_credentials (`+credentialColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cred.ID, cred.UserID, string(cred.Purpose), cred.TokenHash,
		cred.ExpiresAt, cred.ConsumedAt, cred.CreatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("credential with token hash %s already exists: %w", cred.TokenHash, err)
		}
		return fmt.Errorf("insert stream credential: %w", err)
	}
	return nil
}

// FindByToken implements streamtoken.Store.
func (s *Store) FindByToken(ctx context.Context, tokenHash string, purpose streamtoken.Purpose) (streamtoken.Credential, error) {
	var (
		cred streamtoken.Credential
		purp string
	)
	err := pg.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+credentialColumns+`
		 FROM stream_credentials
		 WHERE token_hash = $1 AND purpose = $2`,
		tokenHash, string(purpose),
	).Scan(&cred.ID, &cred.UserID, &purp, &cred.TokenHash, &cred.ExpiresAt, &cred.ConsumedAt, &cred.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return streamtoken.Credential{}, streamtoken.ErrNotFound
		}
		return streamtoken.Credential{}, fmt.Errorf("find stream credential: %w", err)
	}
	cred.Purpose = streamtoken.Purpose(purp)
	return cred, nil
}

// InvalidateUnconsumed implements streamtoken.Store. Inside a transaction it
// first takes a transaction-scoped advisory lock on the user and purpose so
// concurrent issues for the same user serialize.
func (s *Store) InvalidateUnconsumed(ctx context.Context, userID string, purpose streamtoken.Purpose, at time.Time) (int64, error) {
	q := pg.Conn(ctx, s.pool)

	if _, inTx := pg.TxFromContext(ctx); inTx {
		if _, err := q.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			string(purpose)+":"+userID,
		); err != nil {
			return 0, fmt.Errorf("lock user credentials: %w", err)
		}
	}

	tag, err := q.Exec(ctx,
		`UPDATE stream_credentials
		 SET consumed_at = $3
		 WHERE user_id = $1 AND purpose = $2 AND consumed_at IS NULL`,
		userID, string(purpose), at,
	)
	if err != nil {
		return 0, fmt.Errorf("invalidate stream credentials: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkConsumed implements streamtoken.Store.
func (s *Store) MarkConsumed(ctx context.Context, cred streamtoken.Credential, at time.Time) error {
	q := pg.Conn(ctx, s.pool)

	tag, err := q.Exec(ctx,
		`UPDATE stream_credentials
		 SET consumed_at = $3
		 WHERE token_hash = $1 AND id = $2 AND consumed_at IS NULL`,
		cred.TokenHash, cred.ID, at,
	)
	if err != nil {
		return fmt.Errorf("consume stream credential: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Lost the race or the row is gone; tell the two apart.
	var exists bool
	err = q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stream_credentials WHERE token_hash = $1 AND id = $2)`,
		cred.TokenHash, cred.ID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("consume stream credential: %w", err)
	}
	if !exists {
		return streamtoken.ErrNotFound
	}
	return streamtoken.ErrAlreadyConsumed
}

// DeleteExpired implements streamtoken.Store.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := pg.Conn(ctx, s.pool).Exec(ctx,
		`DELETE FROM stream_credentials WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired stream credentials: %w", err)
	}
	return tag.RowsAffected(), nil
}

// WithinTx implements streamtoken.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return pg.InTx(ctx, s.pool, fn)
}

// Healthcheck pings the database.
func (s *Store) Healthcheck(ctx context.Context) error {
	return pg.Healthcheck(s.pool)(ctx)
}

var _ interface {
	streamtoken.Store
	streamtoken.Transactor
} = (*Store)(nil)
