package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/beridzemate00/codereview/internal/core/domain"
	"github.com/beridzemate00/codereview/internal/infra/config"
)

func newTestNotifier(t *testing.T) (*Notifier, *mocks.SyncProducer) {
	t.Helper()
	mock := mocks.NewSyncProducer(t, nil)
	producer := NewProducerWithClient(mock, "codereview", zaptest.NewLogger(t))
	t.Cleanup(func() { _ = producer.Close() })

	n := NewNotifier(producer, config.AppSettings{Name: "codereview-auth", Env: "test"}, zaptest.NewLogger(t))
	return n, mock
}

func decodeEnvelope(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return got
}

func TestNotifierSendPasswordReset(t *testing.T) {
	n, mock := newTestNotifier(t)
	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	traceID := trace.TraceID{0xaa, 0xbb, 0xcc, 0xdd, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{0x01},
	}))

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "codereview.notifications" {
			t.Errorf("unexpected topic %q", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "a@x.com" {
			t.Errorf("unexpected key %q", key)
		}
		value, _ := msg.Value.Encode()
		env := decodeEnvelope(t, value)
		if env["event_type"] != domain.EventPasswordResetRequested {
			t.Errorf("unexpected event type %v", env["event_type"])
		}
		if env["recipient"] != "a@x.com" || env["version"] != schemaVersion {
			t.Errorf("unexpected envelope %v", env)
		}
		payload, _ := env["payload"].(map[string]any)
		if payload["link"] != "https://review.example.com/reset-password?token=abc" {
			t.Errorf("unexpected payload %v", payload)
		}
		metadata, _ := env["metadata"].(map[string]any)
		if metadata["trace_id"] != traceID.String() {
			t.Errorf("expected trace id in metadata, got %v", metadata)
		}
		return nil
	})

	delivered, err := n.SendPasswordReset(ctx, domain.PasswordResetNotification{
		Email:     "a@x.com",
		Link:      "https://review.example.com/reset-password?token=abc",
		ExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("SendPasswordReset returned error: %v", err)
	}
	if !delivered {
		t.Fatal("expected delivered=true after broker ack")
	}
}

func TestNotifierSendPasswordResetFailure(t *testing.T) {
	n, mock := newTestNotifier(t)
	mock.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	delivered, err := n.SendPasswordReset(context.Background(), domain.PasswordResetNotification{Email: "a@x.com"})
	if !errors.Is(err, sarama.ErrNotLeaderForPartition) {
		t.Fatalf("expected broker error, got %v", err)
	}
	if delivered {
		t.Fatal("expected delivered=false on failure")
	}
}

func TestNotifierWelcomeAndPasswordChanged(t *testing.T) {
	n, mock := newTestNotifier(t)

	var types []string
	record := func(msg *sarama.ProducerMessage) error {
		value, _ := msg.Value.Encode()
		env := decodeEnvelope(t, value)
		types = append(types, env["event_type"].(string))
		return nil
	}
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(record)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(record)

	if err := n.SendWelcome(context.Background(), domain.WelcomeNotification{Email: "a@x.com", Name: "a"}); err != nil {
		t.Fatalf("SendWelcome returned error: %v", err)
	}
	if err := n.SendPasswordChanged(context.Background(), domain.PasswordChangedNotification{Email: "a@x.com", ChangedAt: time.Now()}); err != nil {
		t.Fatalf("SendPasswordChanged returned error: %v", err)
	}

	if len(types) != 2 || types[0] != domain.EventAccountRegistered || types[1] != domain.EventPasswordChanged {
		t.Fatalf("unexpected event types %v", types)
	}
	if !n.IsConfigured() {
		t.Fatal("expected kafka notifier to report configured")
	}
}

func TestNotifierHonoursCancelledContext(t *testing.T) {
	n, _ := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := n.SendPasswordReset(ctx, domain.PasswordResetNotification{Email: "a@x.com"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestProducerTopicName(t *testing.T) {
	p := NewProducerWithClient(nil, "codereview.", nil)
	if got := p.TopicName("notifications"); got != "codereview.notifications" {
		t.Fatalf("unexpected topic %q", got)
	}
	if got := p.TopicName("codereview.notifications"); got != "codereview.notifications" {
		t.Fatalf("expected prefix not doubled, got %q", got)
	}

	bare := NewProducerWithClient(nil, "", nil)
	if got := bare.TopicName("notifications"); got != "notifications" {
		t.Fatalf("unexpected topic %q", got)
	}
}

func TestSaramaConfigValidates(t *testing.T) {
	sc := SaramaConfig(config.KafkaSettings{ClientID: "codereview-auth", WriteTimeout: 3 * time.Second})
	if err := sc.Validate(); err != nil {
		t.Fatalf("expected valid sarama config, got %v", err)
	}
	if !sc.Producer.Return.Successes {
		t.Fatal("sync producer requires Return.Successes")
	}
}
