package streamtoken

import (
	"context"
	"time"
)

// Store defines the persistence interface for stream credentials.
// Implementations must handle concurrent access safely.
type Store interface {
	// Insert stores a new credential. Token is empty; TokenHash is the key.
	Insert(ctx context.Context, cred Credential) error
	// FindByToken returns the credential with the given token hash and purpose,
	// or ErrNotFound.
	FindByToken(ctx context.Context, tokenHash string, purpose Purpose) (Credential, error)
	// InvalidateUnconsumed sets consumed-at to at on every unconsumed
	// credential of the purpose owned by the user and returns how many changed.
	InvalidateUnconsumed(ctx context.Context, userID string, purpose Purpose, at time.Time) (int64, error)
	// MarkConsumed sets consumed-at to at only if it is still unset.
	// Returns ErrAlreadyConsumed when another caller got there first and
	// ErrNotFound when the credential no longer exists.
	MarkConsumed(ctx context.Context, cred Credential, at time.Time) error
	// DeleteExpired removes credentials that expired before the given time
	// and returns the count of deleted credentials.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Transactor is implemented by stores that can run several operations
// atomically. fn receives a context bound to the transaction; when fn returns
// an error every change made through that context is rolled back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
