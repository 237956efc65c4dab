package domain

import "time"

// Notification event types published to the notification sender.
const (
	EventPasswordResetRequested = "auth.password.reset_requested"
	EventAccountRegistered      = "auth.account.registered"
	EventPasswordChanged        = "auth.password.changed"
)

// PasswordResetNotification carries the link delivered to the account owner.
type PasswordResetNotification struct {
	Email     string
	Link      string
	ExpiresAt time.Time
}

// WelcomeNotification greets a freshly registered account.
type WelcomeNotification struct {
	Email string
	Name  string
}

// PasswordChangedNotification informs the owner that their credential changed.
type PasswordChangedNotification struct {
	Email     string
	ChangedAt time.Time
}
