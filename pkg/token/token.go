package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// signatureLength is the number of HMAC-SHA256 bytes kept in the token.
const signatureLength = 16

var (
	ErrInvalidToken     = errors.New("invalid token format")
	ErrSignatureInvalid = errors.New("invalid token signature")
)

// GenerateToken encodes payload as JSON and signs it with secret.
func GenerateToken[T any](payload T, secret string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	encoded := base64.RawURLEncoding.EncodeToString(data)
	return encoded + "." + sign(encoded, secret), nil
}

// ParseToken verifies the signature and decodes the payload.
func ParseToken[T any](token, secret string) (T, error) {
	var payload T

	encoded, sig, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || sig == "" || strings.Contains(sig, ".") {
		return payload, ErrInvalidToken
	}

	gotSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return payload, ErrInvalidToken
	}
	wantSig, _ := base64.RawURLEncoding.DecodeString(sign(encoded, secret))
	if !hmac.Equal(gotSig, wantSig) {
		return payload, ErrSignatureInvalid
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return payload, ErrInvalidToken
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, err
	}

	return payload, nil
}

func sign(encoded, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:signatureLength])
}
