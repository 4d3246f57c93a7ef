// Package cookie sets, reads and clears HTTP cookies with secure defaults
// (HttpOnly, SameSite=Lax) shared by every cookie a Manager writes.
//
//	m := cookie.New(cookie.WithSecure(true), cookie.WithPath("/api/events"))
//	_ = m.Set(w, "stream_token", token, cookie.WithMaxAge(300))
//	value, err := m.Get(r, "stream_token")
//	m.Delete(w, "stream_token")
package cookie
