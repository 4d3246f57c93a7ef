// Package token signs small JSON payloads into compact, URL-safe strings.
//
// A token is <base64url payload>.<base64url signature>, where the signature
// is the first 16 bytes of HMAC-SHA256 over the encoded payload. The service
// uses it for session bearer tokens (see middleware.NewSessionToken); stream
// credentials are random values looked up in a store instead.
//
//	type Claims struct {
//		Subject   string `json:"sub"`
//		ExpiresAt int64  `json:"exp"`
//	}
//
//	tok, err := token.GenerateToken(Claims{Subject: "u1", ExpiresAt: exp}, secret)
//	claims, err := token.ParseToken[Claims](tok, secret)
//
// ParseToken returns ErrInvalidToken for malformed input and
// ErrSignatureInvalid when the signature does not match. Payloads are not
// encrypted, and expiry is the caller's job.
package token
