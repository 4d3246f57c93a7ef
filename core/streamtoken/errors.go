package streamtoken

import "errors"

var (
	// ErrNotFound is returned when no credential matches the token and purpose.
	ErrNotFound = errors.New("stream credential not found")
	// ErrExpired is returned when the credential is past its expiry.
	ErrExpired = errors.New("stream credential expired")
	// ErrAlreadyConsumed is returned when the credential was used or invalidated.
	ErrAlreadyConsumed = errors.New("stream credential already consumed")
	// ErrInvalidUser is returned when issuing a credential for an empty user id.
	ErrInvalidUser = errors.New("stream credential requires a user id")
	// ErrTokenGeneration is returned when the random source fails.
	ErrTokenGeneration = errors.New("failed to generate stream token")
	// ErrIssue is returned when the store fails while issuing a credential.
	ErrIssue = errors.New("failed to issue stream credential")
)

// IsAuthError reports whether err means the presented token must be refused.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrAlreadyConsumed)
}
