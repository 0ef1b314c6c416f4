package gateway

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const apiKeyBytes = 32

// NewAPIKeySecret returns a fresh 256-bit key secret and its digest. Only the
// digest may be stored.
func NewAPIKeySecret() (secret, digest string, err error) {
	raw := make([]byte, apiKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	secret = base64.RawURLEncoding.EncodeToString(raw)
	return secret, DigestAPIKey(secret), nil
}

// DigestAPIKey is the lookup digest of a presented key secret.
func DigestAPIKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
