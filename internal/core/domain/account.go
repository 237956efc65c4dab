package domain

import (
	"strings"
	"time"
)

// Role enumerates the coarse account roles known to the review platform.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID                string
	Email             string
	Name              string
	Role              Role
	PasswordHash      string
	CreatedAt         time.Time
	PasswordChangedAt *time.Time
}

// PublicAccount is the view of an account that may leave the service.
type PublicAccount struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	CreatedAt time.Time
}

// Public strips credential material from the account.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
	}
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayNameFromEmail derives a fallback display name from the local part of an address.
func DisplayNameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return email
	}
	return local
}
