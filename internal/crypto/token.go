package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// Refresh tokens are opaque to clients. The server keeps only the sha256
// hash, so a leaked sessions table cannot be replayed.
const refreshTokenBytes = 32

func NewRefreshToken() (string, error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashToken derives the at-rest lookup key for a refresh token.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}
