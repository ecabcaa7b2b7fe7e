package models

import "time"

// RefreshToken is one link of a refresh token rotation chain.
// Revoked only ever moves from false to true.
type RefreshToken struct {
	ID         string
	Token      string
	IdentityID string
	ExpiresAt  time.Time
	Revoked    bool
	CreatedAt  time.Time
}

// Usable reports whether the token may still be exchanged at now.
// A token expiring exactly at now is already unusable.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
