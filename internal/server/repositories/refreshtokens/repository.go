// Package refreshtokens declares the refresh token store contract and its
// PostgreSQL implementation.
package refreshtokens

import (
	"context"
	"time"

	"github.com/sonifoy/authsvc/internal/server/models"
)

// Repository persists refresh token chains.
type Repository interface {
	// Create stores token and returns it with the store-generated ID.
	Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error)

	// FindByToken looks a token up by its opaque value.
	// A missing token is reported as common.ErrorNotFound.
	FindByToken(ctx context.Context, token string) (*models.RefreshToken, error)

	// Revoke atomically flips the token with the given ID to revoked, but only
	// while it is still unrevoked and unexpired at now. It reports whether
	// this call performed the transition; of several concurrent callers at
	// most one observes true.
	Revoke(ctx context.Context, id string, now time.Time) (bool, error)

	// RevokeAllForIdentity revokes every live token of the identity and
	// returns how many were revoked.
	RevokeAllForIdentity(ctx context.Context, identityID string) (int64, error)
}
