package port

import "time"

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// SecretGenerator produces single-use secrets and their storage fingerprints.
type SecretGenerator interface {
	Generate() (secret string, fingerprint string, err error)
	Fingerprint(secret string) string
}

// SessionIssuer signs and verifies stateless session credentials.
type SessionIssuer interface {
	Issue(accountID string) (token string, expiresAt time.Time, err error)
	Verify(token string) (accountID string, err error)
}
