package port

import (
	"context"
	"time"

	"github.com/beridzemate00/codereview/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts.
type AccountRepository interface {
	// Create returns repository.ErrConflict when the email is already owned.
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
}
