// Package seed fills a local database with an admin and a population of
// verified listener accounts.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/sonifoy/authsvc/internal/logging"
	"github.com/sonifoy/authsvc/internal/server/auth"
	"github.com/sonifoy/authsvc/internal/server/models"
	"github.com/sonifoy/authsvc/internal/server/repositories/identities"
)

const (
	AdminEmail      = "admin@sonifoy.local"
	AdminName       = "Local Admin"
	DefaultPassword = "Perros123*"
	RoleAdmin       = "ADMIN"
)

// TxRunner runs fn against an identity store bound to one transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, identities identities.Repository) error) error
}

type Seeder struct {
	tx        TxRunner
	hasher    auth.PasswordHasher
	logger    logging.Logger
	users     int
	batchSize int
	now       func() time.Time
}

func NewSeeder(tx TxRunner, hasher auth.PasswordHasher, l logging.Logger, users, batchSize int) *Seeder {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Seeder{
		tx:        tx,
		hasher:    hasher,
		logger:    l.With("module", "seed"),
		users:     max(users, 0),
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Stats reports how many rows a run actually wrote.
type Stats struct {
	Created int
	Skipped int
}

// Run creates the admin and the listener accounts. Rows whose email already
// exists are left untouched, so repeated runs are harmless.
func (s *Seeder) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	// One hash for every seeded account; bcrypt per row would dominate.
	hash, err := s.hasher.Hash(DefaultPassword)
	if err != nil {
		return stats, err
	}

	s.logger.Info(ctx, "Seeding identities", "users", s.users, "batch_size", s.batchSize)

	admin := s.identity(AdminEmail, AdminName, hash, []string{RoleAdmin, models.RoleUser})
	if err := s.insert(ctx, []*models.Identity{admin}, &stats); err != nil {
		return stats, fmt.Errorf("seed admin: %w", err)
	}

	for start := 1; start <= s.users; start += s.batchSize {
		end := min(start+s.batchSize-1, s.users)

		batch := make([]*models.Identity, 0, end-start+1)
		for i := start; i <= end; i++ {
			batch = append(batch, s.identity(
				fmt.Sprintf("user%d@example.com", i),
				fmt.Sprintf("User %d", i),
				hash,
				[]string{models.RoleUser},
			))
		}

		if err := s.insert(ctx, batch, &stats); err != nil {
			return stats, fmt.Errorf("seed users %d-%d: %w", start, end, err)
		}
		s.logger.Debug(ctx, "Seeding progress", "done", end, "total", s.users)
	}

	s.logger.Info(ctx, "Seeding completed", "created", stats.Created, "skipped", stats.Skipped)
	return stats, nil
}

func (s *Seeder) insert(ctx context.Context, batch []*models.Identity, stats *Stats) error {
	var created, skipped int
	err := s.tx.WithTx(ctx, func(ctx context.Context, repo identities.Repository) error {
		for _, identity := range batch {
			ok, err := repo.CreateIfAbsent(ctx, identity)
			if err != nil {
				return err
			}
			if ok {
				created++
			} else {
				skipped++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	stats.Created += created
	stats.Skipped += skipped
	return nil
}

func (s *Seeder) identity(email, name, hash string, roles []string) *models.Identity {
	now := s.now().UTC()
	return &models.Identity{
		Email:           email,
		Name:            name,
		PasswordHash:    hash,
		ProfileCategory: models.ProfileListener,
		Verified:        true,
		Roles:           roles,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
