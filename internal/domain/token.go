package domain

import "time"

// AccessToken is the persisted form of a shareable verification link.
// Only the SHA-256 of the bearer value is kept.
type AccessToken struct {
	TokenHash  string
	ContractID string
	CreatedAt  time.Time
	ExpiresAt  *time.Time
}

func (t AccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
