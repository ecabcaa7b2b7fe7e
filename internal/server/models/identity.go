// Package models defines the server-side records persisted by the auth service.
package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ProfileCategory is the closed set of profile kinds an identity can have.
type ProfileCategory string

const (
	ProfileListener ProfileCategory = "LISTENER"
	ProfileArtist   ProfileCategory = "ARTIST"
	ProfileLabel    ProfileCategory = "LABEL"

	DefaultProfileCategory = ProfileListener
)

// RoleUser is granted to every newly registered identity.
const RoleUser = "USER"

// ParseProfileCategory resolves s to a known category. An empty string yields
// the default category.
func ParseProfileCategory(s string) (ProfileCategory, error) {
	if s == "" {
		return DefaultProfileCategory, nil
	}
	c := ProfileCategory(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown profile category %q", s)
	}
	return c, nil
}

// Valid reports whether c is one of the known categories.
func (c ProfileCategory) Valid() bool {
	switch c {
	case ProfileListener, ProfileArtist, ProfileLabel:
		return true
	}
	return false
}

// Identity is the durable credential record of a user.
//
// PasswordHash and VerificationCode never leave the service; the JSON tags
// keep them out of any accidental serialisation.
type Identity struct {
	ID               string
	Email            string
	Name             string
	PasswordHash     string `json:"-"`
	ProfileCategory  ProfileCategory
	Verified         bool
	VerificationCode *string `json:"-"`
	Roles            []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastLoginAt      *time.Time
}

// Clone returns a deep copy so callers can mutate it freely.
func (i *Identity) Clone() *Identity {
	c := *i
	c.Roles = slices.Clone(i.Roles)
	if i.VerificationCode != nil {
		code := *i.VerificationCode
		c.VerificationCode = &code
	}
	if i.LastLoginAt != nil {
		t := *i.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

// NormalizeRoles sorts and de-duplicates a role set, dropping empty tags.
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
