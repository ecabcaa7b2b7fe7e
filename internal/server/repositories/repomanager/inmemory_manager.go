package repomanager

import (
	"context"
	"database/sql"

	"github.com/sonifoy/authsvc/internal/server/repositories/identities"
	"github.com/sonifoy/authsvc/internal/server/repositories/memory"
	"github.com/sonifoy/authsvc/internal/server/repositories/refreshtokens"
)

// InMemoryRepositoryManager keeps everything in process memory. Data is lost
// on restart and WithTx gives no atomicity.
type InMemoryRepositoryManager struct {
	identities    *memory.IdentityStore
	refreshTokens *memory.RefreshTokenStore
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		identities:    memory.NewIdentityStore(),
		refreshTokens: memory.NewRefreshTokenStore(),
	}
}

func (m *InMemoryRepositoryManager) Conn() *sql.DB {
	return nil
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) Identities() identities.Repository {
	return m.identities
}

func (m *InMemoryRepositoryManager) RefreshTokens() refreshtokens.Repository {
	return m.refreshTokens
}

func (m *InMemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, identities identities.Repository) error) error {
	return fn(ctx, m.identities)
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}
