package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DefaultSecretBytes is the entropy of generated reset secrets.
const DefaultSecretBytes = 32

// SecretGenerator creates random single-use secrets and the SHA-256
// fingerprints stored in their place.
type SecretGenerator struct {
	size int
}

// NewSecretGenerator returns a generator producing byteLength random bytes per secret.
func NewSecretGenerator(byteLength int) (*SecretGenerator, error) {
	if byteLength < DefaultSecretBytes {
		return nil, fmt.Errorf("secret length must be at least %d bytes", DefaultSecretBytes)
	}
	return &SecretGenerator{size: byteLength}, nil
}

// Generate returns a hex-encoded secret and its fingerprint.
func (g *SecretGenerator) Generate() (string, string, error) {
	buf := make([]byte, g.size)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}

	secret := hex.EncodeToString(buf)
	return secret, HashToken(secret), nil
}

// Fingerprint recomputes the stored fingerprint of a secret.
func (g *SecretGenerator) Fingerprint(secret string) string {
	return HashToken(secret)
}

// HashToken calculates a SHA-256 hash of the provided value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
