package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// ErrInvalidSession is the only failure Verify reports; callers learn
// nothing about why a credential was rejected.
var ErrInvalidSession = errors.New("session: invalid credential")

const (
	// DefaultSessionTTL is the lifetime of an issued session credential.
	DefaultSessionTTL = 7 * 24 * time.Hour

	minSigningSecretBytes = 32
)

// SessionClaims is the payload of a session credential.
type SessionClaims struct {
	AccountID string `json:"uid"`
	jwt.RegisteredClaims
}

// SessionIssuer signs HS256 session credentials with a process-wide secret.
type SessionIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer builds an issuer. Rotating secret invalidates every
// credential signed with the previous value.
func NewSessionIssuer(secret, issuer string, ttl time.Duration) (*SessionIssuer, error) {
	if len(secret) < minSigningSecretBytes {
		return nil, fmt.Errorf("session: signing secret must be at least %d bytes", minSigningSecretBytes)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionIssuer{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock overrides the time source; intended for tests.
func (s *SessionIssuer) WithClock(now func() time.Time) *SessionIssuer {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue signs a credential for accountID expiring after the configured TTL.
func (s *SessionIssuer) Issue(accountID string) (string, time.Time, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", time.Time{}, errors.New("session: account id is required")
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.ttl)

	claims := SessionClaims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   accountID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: sign credential: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify returns the account id carried by a well-formed, correctly signed,
// unexpired credential, and ErrInvalidSession otherwise.
func (s *SessionIssuer) Verify(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrInvalidSession
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidSession
	}

	if claims.AccountID == "" || claims.AccountID != claims.Subject {
		return "", ErrInvalidSession
	}

	return claims.AccountID, nil
}
