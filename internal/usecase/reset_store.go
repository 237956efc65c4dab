package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beridzemate00/codereview/internal/core/domain"
	"github.com/beridzemate00/codereview/internal/core/port"
	"github.com/beridzemate00/codereview/internal/repository"
)

const (
	defaultResetTTL         = time.Hour
	defaultReservationLease = 30 * time.Second
	defaultResetRetention   = 24 * time.Hour
)

// IssuedSecret is the raw secret handed out once for delivery.
type IssuedSecret struct {
	Secret    string
	ExpiresAt time.Time
}

// Reservation is a short-lived exclusive claim on a reset request.
type Reservation struct {
	RequestID string
	Holder    string
	Until     time.Time
}

// ResetTokenStore is the only owner of reset requests. It hands out raw
// secrets, resolves them back to live requests and retires them.
type ResetTokenStore struct {
	repo      port.ResetRequestRepository
	secrets   port.SecretGenerator
	logger    *zap.Logger
	now       func() time.Time
	ttl       time.Duration
	lease     time.Duration
	retention time.Duration
}

// ResetStoreOption customizes a ResetTokenStore.
type ResetStoreOption func(*ResetTokenStore)

// WithClock overrides the store clock.
func WithClock(now func() time.Time) ResetStoreOption {
	return func(s *ResetTokenStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTTL overrides the one hour validity window.
func WithTTL(ttl time.Duration) ResetStoreOption {
	return func(s *ResetTokenStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithReservationLease bounds how long a crashed reset blocks its token.
func WithReservationLease(lease time.Duration) ResetStoreOption {
	return func(s *ResetTokenStore) {
		if lease > 0 {
			s.lease = lease
		}
	}
}

// WithRetention sets how long expired requests are kept before Purge removes them.
func WithRetention(retention time.Duration) ResetStoreOption {
	return func(s *ResetTokenStore) {
		if retention > 0 {
			s.retention = retention
		}
	}
}

// NewResetTokenStore wires a repository and a secret generator.
func NewResetTokenStore(repo port.ResetRequestRepository, secrets port.SecretGenerator, logger *zap.Logger, opts ...ResetStoreOption) *ResetTokenStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ResetTokenStore{
		repo:      repo,
		secrets:   secrets,
		logger:    logger,
		now:       time.Now,
		ttl:       defaultResetTTL,
		lease:     defaultReservationLease,
		retention: defaultResetRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue replaces whatever request email had with a fresh one and returns
// its raw secret. The secret is not retained anywhere.
func (s *ResetTokenStore) Issue(ctx context.Context, email string) (*IssuedSecret, error) {
	secret, fingerprint, err := s.secrets.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate reset secret: %w", err)
	}

	now := s.now().UTC()
	req := domain.ResetRequest{
		ID:          uuid.NewString(),
		Email:       email,
		Fingerprint: fingerprint,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}

	if err := s.repo.Replace(ctx, req); err != nil {
		return nil, fmt.Errorf("store reset request: %w", err)
	}

	return &IssuedSecret{Secret: secret, ExpiresAt: req.ExpiresAt}, nil
}

// Lookup resolves secret to a live request. Unknown, expired and used
// secrets all yield ResetNotFound; the error is reserved for backend failures.
func (s *ResetTokenStore) Lookup(ctx context.Context, secret string) (domain.ResetLookup, error) {
	if secret == "" {
		return domain.ResetNotFound{}, nil
	}

	req, err := s.repo.FindByFingerprint(ctx, s.secrets.Fingerprint(secret))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ResetNotFound{}, nil
		}
		return nil, fmt.Errorf("find reset request: %w", err)
	}

	if !req.IsLive(s.now()) {
		return domain.ResetNotFound{}, nil
	}

	return domain.ResetFound{Request: *req}, nil
}

// Reserve claims the request for the caller. Exactly one of any number of
// concurrent callers gets ok=true until the lease lapses or the holder
// releases it.
func (s *ResetTokenStore) Reserve(ctx context.Context, requestID string) (*Reservation, bool, error) {
	now := s.now().UTC()
	r := &Reservation{
		RequestID: requestID,
		Holder:    uuid.NewString(),
		Until:     now.Add(s.lease),
	}

	ok, err := s.repo.Reserve(ctx, r.RequestID, r.Holder, now, r.Until)
	if err != nil {
		return nil, false, fmt.Errorf("reserve reset request: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return r, true, nil
}

// Release gives up a reservation that did not lead to consumption.
func (s *ResetTokenStore) Release(ctx context.Context, r *Reservation) error {
	if r == nil {
		return nil
	}
	if err := s.repo.Release(ctx, r.RequestID, r.Holder); err != nil {
		return fmt.Errorf("release reset request: %w", err)
	}
	return nil
}

// Consume retires the reserved request for good. A request that is already
// gone counts as consumed. If another holder took the lapsed lease over, it
// returns ErrReservationLost.
func (s *ResetTokenStore) Consume(ctx context.Context, r *Reservation) error {
	err := s.repo.Consume(ctx, r.RequestID, r.Holder, s.now().UTC())
	switch {
	case err == nil, errors.Is(err, repository.ErrNotFound):
		return nil
	case errors.Is(err, repository.ErrConflict):
		return ErrReservationLost
	default:
		return fmt.Errorf("consume reset request: %w", err)
	}
}

// Remaining reports how much of r's lease is left.
func (s *ResetTokenStore) Remaining(r *Reservation) time.Duration {
	return r.Until.Sub(s.now())
}

// Purge deletes requests that expired longer than the retention window ago.
func (s *ResetTokenStore) Purge(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now().UTC().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("purge reset requests: %w", err)
	}
	if n > 0 {
		s.logger.Info("purged expired reset requests", zap.Int64("count", n))
	}
	return n, nil
}
