package helpers

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateToken returns a URL-safe random token with len bytes of entropy.
func GenerateToken(len int) (string, error) {
	b := make([]byte, len)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MustGenerateToken is GenerateToken for startup paths where a failing CSPRNG
// is unrecoverable.
func MustGenerateToken(len int) string {
	token, err := GenerateToken(len)
	if err != nil {
		panic(err)
	}

	return token
}
