package streamtoken

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Purpose tags what a credential authorizes.
type Purpose string

// PurposeStream authorizes opening an event stream.
const PurposeStream Purpose = "event_stream"

// tokenBytes is the amount of randomness in a token (256 bits).
const tokenBytes = 32

// Credential is a single-use stream authorization.
type Credential struct {
	ID         uuid.UUID
	UserID     string
	Purpose    Purpose
	TokenHash  string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time

	// Token is the plain token value. It is only set on the credential
	// returned by Issue and is never persisted.
	Token string
}

// IsExpired reports whether the credential is past its expiry at t.
func (c Credential) IsExpired(t time.Time) bool {
	return !t.Before(c.ExpiresAt)
}

// IsConsumed reports whether the credential was used or invalidated.
func (c Credential) IsConsumed() bool {
	return c.ConsumedAt != nil
}

// IsUsable reports whether the credential can still be consumed at t.
func (c Credential) IsUsable(t time.Time) bool {
	return !c.IsConsumed() && !c.IsExpired(t)
}

// HashToken returns the storage key for a token value.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateToken(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
