package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/beridzemate00/codereview/internal/core/domain"
	"github.com/beridzemate00/codereview/internal/core/port"
	"github.com/beridzemate00/codereview/internal/infra/logger"
)

// LogNotifier stands in for the notification sender when no broker is
// configured. Nothing is delivered; events are only logged.
type LogNotifier struct {
	logger  *zap.Logger
	devMode bool
}

// NewLogNotifier builds a LogNotifier. Reset links are only written to the
// log when devMode is set.
func NewLogNotifier(logger *zap.Logger, devMode bool) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger, devMode: devMode}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, msg domain.PasswordResetNotification) (bool, error) {
	fields := []zap.Field{
		zap.String("event_type", domain.EventPasswordResetRequested),
		zap.String("email", logger.MaskEmail(msg.Email)),
		zap.Time("expires_at", msg.ExpiresAt),
	}
	if n.devMode {
		fields = append(fields, zap.String("link", msg.Link))
	}
	logger.WithRequest(ctx, n.logger).Info("notification not delivered: no sender configured", fields...)
	return false, nil
}

func (n *LogNotifier) SendWelcome(ctx context.Context, msg domain.WelcomeNotification) error {
	logger.WithRequest(ctx, n.logger).Info("notification not delivered: no sender configured",
		zap.String("event_type", domain.EventAccountRegistered),
		zap.String("email", logger.MaskEmail(msg.Email)),
	)
	return nil
}

func (n *LogNotifier) SendPasswordChanged(ctx context.Context, msg domain.PasswordChangedNotification) error {
	logger.WithRequest(ctx, n.logger).Info("notification not delivered: no sender configured",
		zap.String("event_type", domain.EventPasswordChanged),
		zap.String("email", logger.MaskEmail(msg.Email)),
		zap.Time("changed_at", msg.ChangedAt),
	)
	return nil
}

// IsConfigured is always false.
func (n *LogNotifier) IsConfigured() bool {
	return false
}

var _ port.Notifier = (*LogNotifier)(nil)
