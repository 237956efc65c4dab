package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "codereview"

// Login outcomes.
const (
	LoginSucceeded          = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginFailed             = "error"
)

// Reset outcomes.
const (
	ResetSucceeded    = "success"
	ResetInvalidToken = "invalid_token"
	ResetWeakPassword = "weak_password"
	ResetFailed       = "error"
)

// Register registers c, or returns the collector already registered under
// the same descriptor so repeated wiring (tests, restarts) stays idempotent.
func Register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

// AuthMetrics holds the counters the auth flows report into. A nil
// *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	Logins               *prometheus.CounterVec
	Registrations        prometheus.Counter
	ResetRequests        prometheus.Counter
	ResetDeliveries      *prometheus.CounterVec
	Resets               *prometheus.CounterVec
	ConsumeFailures      prometheus.Counter
	NotificationsDropped prometheus.Counter
	ExpiredPurged        prometheus.Counter
}

// NewAuthMetrics builds and registers the auth counters with reg
// (prometheus.DefaultRegisterer when nil).
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var (
		m   AuthMetrics
		err error
	)

	if m.Logins, err = Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts partitioned by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}

	if m.Registrations, err = Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "registrations_total",
		Help:      "Accounts created.",
	})); err != nil {
		return nil, err
	}

	if m.ResetRequests, err = Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "reset_requests_total",
		Help:      "Forgot-password requests received, whether or not the account exists.",
	})); err != nil {
		return nil, err
	}

	if m.ResetDeliveries, err = Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "reset_deliveries_total",
		Help:      "Reset link deliveries partitioned by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}

	if m.Resets, err = Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "resets_total",
		Help:      "Password reset attempts partitioned by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}

	if m.ConsumeFailures, err = Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "reset_consume_failures_total",
		Help:      "Resets whose credential changed but whose token could not be marked consumed.",
	})); err != nil {
		return nil, err
	}

	if m.NotificationsDropped, err = Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "dropped_total",
		Help:      "Background notifications dropped because the queue was full or closed.",
	})); err != nil {
		return nil, err
	}

	if m.ExpiredPurged, err = Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "reset_requests_purged_total",
		Help:      "Expired reset requests removed by the janitor.",
	})); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *AuthMetrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) Registered() {
	if m == nil {
		return
	}
	m.Registrations.Inc()
}

func (m *AuthMetrics) ResetRequested() {
	if m == nil {
		return
	}
	m.ResetRequests.Inc()
}

func (m *AuthMetrics) ResetDelivery(result string) {
	if m == nil {
		return
	}
	m.ResetDeliveries.WithLabelValues(result).Inc()
}

func (m *AuthMetrics) Reset(outcome string) {
	if m == nil {
		return
	}
	m.Resets.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) ConsumeFailed() {
	if m == nil {
		return
	}
	m.ConsumeFailures.Inc()
}

func (m *AuthMetrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

func (m *AuthMetrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ExpiredPurged.Add(float64(n))
}
