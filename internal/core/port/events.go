package port

import (
	"context"

	"github.com/beridzemate00/codereview/internal/core/domain"
)

// Notifier delivers account notifications to the outbound notification sender.
type Notifier interface {
	// SendPasswordReset reports delivered=true only once the sender accepted the message.
	SendPasswordReset(ctx context.Context, n domain.PasswordResetNotification) (bool, error)
	SendWelcome(ctx context.Context, n domain.WelcomeNotification) error
	SendPasswordChanged(ctx context.Context, n domain.PasswordChangedNotification) error
	// IsConfigured is false when no outbound channel exists in this deployment.
	IsConfigured() bool
}

// BackgroundRunner executes detached jobs outside of the request lifecycle.
type BackgroundRunner interface {
	// Submit enqueues the job without blocking and reports whether it was accepted.
	Submit(name string, job func(ctx context.Context) error) bool
}
