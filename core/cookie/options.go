package cookie

import (
	"net/http"
	"time"
)

// Options are the attributes written with every cookie.
type Options struct {
	Path     string
	Domain   string
	MaxAge   int // seconds; negative deletes, zero makes a session cookie
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

// Option overrides one attribute.
type Option func(*Options)

func WithPath(path string) Option { return func(o *Options) { o.Path = path } }
func WithDomain(domain string) Option { return func(o *Options) { o.Domain = domain } }
func WithMaxAge(seconds int) Option { return func(o *Options) { o.MaxAge = seconds } }
func WithSecure(secure bool) Option { return func(o *Options) { o.Secure = secure } }
func WithHTTPOnly(httpOnly bool) Option { return func(o *Options) { o.HttpOnly = httpOnly } }
func WithSameSite(s http.SameSite) Option { return func(o *Options) { o.SameSite = s } }

// with returns a copy of o with opts applied.
func (o Options) with(opts []Option) Options {
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// cookie builds an http.Cookie carrying o's attributes. A positive MaxAge
// also sets Expires for clients that ignore Max-Age; a negative one expires
// the cookie at the epoch.
func (o Options) cookie(name, value string) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   o.MaxAge,
		Secure:   o.Secure,
		HttpOnly: o.HttpOnly,
		SameSite: o.SameSite,
	}
	switch {
	case o.MaxAge > 0:
		c.Expires = time.Now().Add(time.Duration(o.MaxAge) * time.Second)
	case o.MaxAge < 0:
		c.Expires = time.Unix(0, 0)
	}
	return c
}
