package port

import (
	"context"
	"time"

	"github.com/beridzemate00/codereview/internal/core/domain"
)

// ResetRequestRepository persists password-reset requests.
type ResetRequestRepository interface {
	// Replace removes every request stored for req.Email and inserts req,
	// atomically with respect to other writers for the same email.
	Replace(ctx context.Context, req domain.ResetRequest) error
	FindByFingerprint(ctx context.Context, fingerprint string) (*domain.ResetRequest, error)
	// Reserve claims a live, unreserved request for holder until the given
	// instant. It reports false when another caller holds or used the request.
	Reserve(ctx context.Context, id, holder string, now, until time.Time) (bool, error)
	Release(ctx context.Context, id, holder string) error
	// Consume marks the request used on behalf of holder. It returns
	// repository.ErrConflict when holder no longer owns the reservation.
	// Repeating a consumption by the same holder is a no-op.
	Consume(ctx context.Context, id, holder string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
