package cookie

import (
	"errors"
	"fmt"
	"net/http"
)

// MaxCookieSize is the maximum size for a cookie (4KB).
const MaxCookieSize = 4096

// Manager writes cookies with a shared set of default attributes.
type Manager struct {
	defaults Options
}

// New creates a manager. Defaults are Path "/", HttpOnly and SameSite=Lax.
func New(opts ...Option) *Manager {
	defaults := Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{defaults: defaults.with(opts)}
}

// Defaults returns the manager's default cookie attributes.
func (m *Manager) Defaults() Options {
	return m.defaults
}

// Set writes a cookie. Per-call options override the manager defaults.
func (m *Manager) Set(w http.ResponseWriter, name, value string, opts ...Option) error {
	if name == "" {
		return ErrInvalidName
	}

	c := m.defaults.with(opts).cookie(name, value)
	if err := c.Valid(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidName, err)
	}
	if len(c.String()) > MaxCookieSize {
		return ErrCookieTooLarge
	}

	http.SetCookie(w, c)
	return nil
}

// Get returns the value of the named cookie or ErrCookieNotFound.
func (m *Manager) Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrCookieNotFound
		}
		return "", err
	}
	if c.Value == "" {
		return "", ErrCookieNotFound
	}
	return c.Value, nil
}

// Delete expires the named cookie. Options must match the path and domain
// the cookie was set with.
func (m *Manager) Delete(w http.ResponseWriter, name string, opts ...Option) {
	o := m.defaults.with(opts)
	o.MaxAge = -1
	http.SetCookie(w, o.cookie(name, ""))
}
