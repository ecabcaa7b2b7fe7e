// Package repomanager selects and wires the identity and refresh token
// stores: PostgreSQL when a DSN is configured, in-memory otherwise.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/sonifoy/authsvc/internal/server/repositories/identities"
	"github.com/sonifoy/authsvc/internal/server/repositories/refreshtokens"
)

// RepositoryManager vends the stores used by the auth service.
type RepositoryManager interface {
	RunMigrations(context.Context) error
	// Conn returns the underlying database handle, or nil for memory stores.
	Conn() *sql.DB
	Identities() identities.Repository
	RefreshTokens() refreshtokens.Repository
	// WithTx runs fn with an identity store bound to a single transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, identities identities.Repository) error) error
	Close() error
}

// New opens a PostgreSQL-backed manager for a non-empty dsn and an
// in-memory one otherwise.
func New(ctx context.Context, dsn string) (RepositoryManager, error) {
	if dsn == "" {
		return NewInMemoryRepositoryManager(), nil
	}
	m, err := NewPostgresRepositoryManager(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return m, nil
}
