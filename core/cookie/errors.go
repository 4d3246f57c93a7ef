package cookie

import "errors"

var (
	ErrCookieNotFound = errors.New("cookie not found")
	ErrCookieTooLarge = errors.New("cookie exceeds maximum size")
	ErrInvalidName    = errors.New("invalid cookie name")
)
