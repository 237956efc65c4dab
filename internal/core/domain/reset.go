package domain

import "time"

// ResetRequest is a pending or used password-reset request. Only the
// fingerprint of the delivered secret is ever stored.
type ResetRequest struct {
	ID            string
	Email         string
	Fingerprint   string
	ExpiresAt     time.Time
	Consumed      bool
	ConsumedAt    *time.Time
	ReservedBy    string
	ReservedUntil *time.Time
	CreatedAt     time.Time
}

// IsLive reports whether the request can still be redeemed at the given instant.
func (r ResetRequest) IsLive(now time.Time) bool {
	return !r.Consumed && r.ExpiresAt.After(now)
}

// ResetLookup is the outcome of resolving a raw reset secret. The only
// implementations are ResetFound and ResetNotFound; wrong, expired and
// already used secrets all resolve to ResetNotFound.
type ResetLookup interface {
	resetLookup()
}

// ResetFound carries the live request matched by a secret.
type ResetFound struct {
	Request ResetRequest
}

// ResetNotFound is returned for any secret that cannot be redeemed.
type ResetNotFound struct{}

func (ResetFound) resetLookup()    {}
func (ResetNotFound) resetLookup() {}
