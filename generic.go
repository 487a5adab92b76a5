package lti1p3

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/google/uuid"
)

// GenerateKeyPair creates the tool's RSA keypair: 2048 bits, PKCS8 private /
// SubjectPublicKeyInfo public, both PEM encoded. Called once at startup.
func GenerateKeyPair() (privatePEM []byte, publicPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("could not generate rsa key: %w", err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("could not marshal private key: %w", err)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("could not marshal public key: %w", err)
	}

	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	return privatePEM, publicPEM, nil
}

// generateToken returns a URL-safe random token with len bytes of entropy.
// Nonce, state, csrf and refresh tokens all use 32 bytes.
func generateToken(len int) (string, error) {
	b := make([]byte, len)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// newSessionID returns a 128-bit random identifier rendered as 32 hex chars.
func newSessionID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// audienceClaim extracts the audience from a decoded claim set. The aud claim
// may be a single string or an array.
func audienceClaim(claims map[string]any) string {
	switch v := claims["aud"].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}

	return ""
}
