package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/beridzemate00/codereview/internal/core/domain"
	"github.com/beridzemate00/codereview/internal/core/port"
	"github.com/beridzemate00/codereview/internal/infra/config"
	"github.com/beridzemate00/codereview/internal/infra/logger"
)

const (
	schemaVersion      = "1.0"
	notificationsTopic = "notifications"
)

type sender interface {
	Send(topic, key string, value []byte) error
}

// Notifier hands notifications to the outbound notification sender by
// publishing envelopes on the notifications topic.
type Notifier struct {
	producer sender
	logger   *zap.Logger
	appCfg   config.AppSettings
	now      func() time.Time
}

// NewNotifier builds a Notifier over producer.
func NewNotifier(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *Notifier {
	return newNotifier(producer, appCfg, logger)
}

func newNotifier(producer sender, appCfg config.AppSettings, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{producer: producer, logger: logger, appCfg: appCfg, now: time.Now}
}

type envelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Recipient string            `json:"recipient"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (n *Notifier) publish(ctx context.Context, eventType, recipient string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	metadata := map[string]string{
		"service":     n.appCfg.Name,
		"environment": n.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}
	if id := logger.RequestIDFromContext(ctx); id != "" {
		metadata["request_id"] = id
	}

	body, err := json.Marshal(envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Recipient: recipient,
		Timestamp: n.now().UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal notification envelope: %w", err)
	}

	if err := n.producer.Send(notificationsTopic, recipient, body); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// SendPasswordReset reports delivered once the broker acknowledged the message.
func (n *Notifier) SendPasswordReset(ctx context.Context, msg domain.PasswordResetNotification) (bool, error) {
	payload := struct {
		Link      string    `json:"link"`
		ExpiresAt time.Time `json:"expires_at"`
	}{
		Link:      msg.Link,
		ExpiresAt: msg.ExpiresAt.UTC(),
	}

	if err := n.publish(ctx, domain.EventPasswordResetRequested, msg.Email, payload); err != nil {
		return false, err
	}
	return true, nil
}

func (n *Notifier) SendWelcome(ctx context.Context, msg domain.WelcomeNotification) error {
	payload := struct {
		Name string `json:"name"`
	}{Name: msg.Name}

	return n.publish(ctx, domain.EventAccountRegistered, msg.Email, payload)
}

func (n *Notifier) SendPasswordChanged(ctx context.Context, msg domain.PasswordChangedNotification) error {
	payload := struct {
		ChangedAt time.Time `json:"changed_at"`
	}{ChangedAt: msg.ChangedAt.UTC()}

	return n.publish(ctx, domain.EventPasswordChanged, msg.Email, payload)
}

// IsConfigured is always true: a Notifier only exists when brokers are set.
func (n *Notifier) IsConfigured() bool {
	return true
}

var _ port.Notifier = (*Notifier)(nil)
