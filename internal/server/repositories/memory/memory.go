// Package memory provides mutex-guarded in-memory implementations of the
// identity and refresh token stores. They back local runs without a
// database and the service tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sonifoy/authsvc/internal/common"
	"github.com/sonifoy/authsvc/internal/server/models"
)

// alive maps a done context onto the store-outage error, matching what the
// Postgres repositories report for canceled queries.
func alive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}
	return nil
}

// IdentityStore keeps identities keyed by ID with a unique email index.
type IdentityStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.Identity
	byEmail map[string]string
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		byID:    make(map[string]*models.Identity),
		byEmail: make(map[string]string),
	}
}

func (s *IdentityStore) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[identity.Email]; ok {
		return nil, common.ErrDuplicateIdentity
	}
	identity.ID = uuid.NewString()
	s.put(identity)
	return identity, nil
}

func (s *IdentityStore) CreateIfAbsent(ctx context.Context, identity *models.Identity) (bool, error) {
	_, err := s.Create(ctx, identity)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrDuplicateIdentity):
		return false, nil
	default:
		return false, err
	}
}

func (s *IdentityStore) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return identity.Clone(), nil
}

func (s *IdentityStore) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *IdentityStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if err := alive(ctx); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *IdentityStore) Update(ctx context.Context, identity *models.Identity) error {
	if err := alive(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[identity.ID]
	if !ok {
		return common.ErrorNotFound
	}
	if current.Email != identity.Email {
		if _, taken := s.byEmail[identity.Email]; taken {
			return common.ErrDuplicateIdentity
		}
		delete(s.byEmail, current.Email)
	}
	s.put(identity)
	return nil
}

func (s *IdentityStore) MarkVerified(ctx context.Context, id, code string, at time.Time) (bool, error) {
	if err := alive(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[id]
	if !ok || identity.VerificationCode == nil || *identity.VerificationCode != code {
		return false, nil
	}
	identity.Verified = true
	identity.VerificationCode = nil
	identity.UpdatedAt = at
	return true, nil
}

func (s *IdentityStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if err := alive(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	identity.LastLoginAt = &at
	return nil
}

// put stores a private copy; s.mu must be held for writing.
func (s *IdentityStore) put(identity *models.Identity) {
	c := identity.Clone()
	c.Roles = models.NormalizeRoles(c.Roles)
	s.byID[c.ID] = c
	s.byEmail[c.Email] = c.ID
}

// RefreshTokenStore keeps refresh tokens keyed by ID with a unique token index.
type RefreshTokenStore struct {
	mu      sync.Mutex
	byID    map[string]*models.RefreshToken
	byToken map[string]string
}

func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{
		byID:    make(map[string]*models.RefreshToken),
		byToken: make(map[string]string),
	}
}

func (s *RefreshTokenStore) Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byToken[token.Token]; ok {
		return nil, fmt.Errorf("%w: refresh token collision", common.ErrStoreUnavailable)
	}
	token.ID = uuid.NewString()
	c := *token
	s.byID[c.ID] = &c
	s.byToken[c.Token] = c.ID
	return token, nil
}

func (s *RefreshTokenStore) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *s.byID[id]
	return &c, nil
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	if err := alive(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.byID[id]
	if !ok || !rt.Usable(now) {
		return false, nil
	}
	rt.Revoked = true
	return true, nil
}

func (s *RefreshTokenStore) RevokeAllForIdentity(ctx context.Context, identityID string) (int64, error) {
	if err := alive(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rt := range s.byID {
		if rt.IdentityID == identityID && !rt.Revoked {
			rt.Revoked = true
			n++
		}
	}
	return n, nil
}
