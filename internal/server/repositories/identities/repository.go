// Package identities declares the credential store contract and its
// PostgreSQL implementation.
package identities

import (
	"context"
	"time"

	"github.com/sonifoy/authsvc/internal/server/models"
)

// Repository persists identities. Lookups by email are exact and
// case-sensitive.
//
// Implementations report a missing record as common.ErrorNotFound, a
// taken email as common.ErrDuplicateIdentity and any connectivity, timeout
// or cancellation failure as common.ErrStoreUnavailable.
type Repository interface {
	// Create inserts identity and returns it with the store-generated ID.
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)

	// CreateIfAbsent inserts identity unless its email is taken and reports
	// whether a row was written. Used by the local seeder.
	CreateIfAbsent(ctx context.Context, identity *models.Identity) (bool, error)

	FindByID(ctx context.Context, id string) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// Update overwrites the mutable fields of the identity with the same ID.
	Update(ctx context.Context, identity *models.Identity) error

	// MarkVerified sets verified and clears the code, but only while the
	// stored code still equals code. It reports whether the row changed.
	MarkVerified(ctx context.Context, id, code string, at time.Time) (bool, error)

	// TouchLastLogin records a successful login without rewriting the rest
	// of the row.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
