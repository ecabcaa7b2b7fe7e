// Package services contains server-side business logic. This file implements
// AuthService, which registers and verifies identities, logs them in, rotates
// refresh tokens and manages per-session keys.
package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sonifoy/authsvc/internal/common"
	"github.com/sonifoy/authsvc/internal/logging"
	"github.com/sonifoy/authsvc/internal/server/auth"
	"github.com/sonifoy/authsvc/internal/server/events"
	"github.com/sonifoy/authsvc/internal/server/models"
	"github.com/sonifoy/authsvc/internal/server/repositories/identities"
	"github.com/sonifoy/authsvc/internal/server/repositories/refreshtokens"
	"github.com/sonifoy/authsvc/internal/server/repositories/repomanager"
	"github.com/sonifoy/authsvc/internal/server/sessionkeys"
	"golang.org/x/sync/errgroup"
)

// DefaultRefreshTokenValidity is the lifetime of a refresh token chain link.
const DefaultRefreshTokenValidity = 7 * 24 * time.Hour

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	TokenPair
	SessionID string
	Identity  *models.Identity
}

// RefreshResult is returned by a successful refresh. The session id is not
// rotated; the client keeps the one it got at login.
type RefreshResult struct {
	TokenPair
	Identity *models.Identity
}

// RegisterRequest carries the registration input. Name and ProfileCategory
// are optional; an empty category selects the default.
type RegisterRequest struct {
	Email           string
	Password        string
	Name            string
	ProfileCategory string
}

// AuthService holds no mutable state of its own. Every identity, token and
// session lives in one of the stores, so a single instance serves any
// number of concurrent requests.
type AuthService struct {
	identities    identities.Repository
	refreshTokens refreshtokens.Repository
	sessionKeys   sessionkeys.Store
	minter        auth.TokenMinter
	hasher        auth.PasswordHasher
	notifier      events.Notifier
	logger        logging.Logger

	random               io.Reader
	now                  func() time.Time
	refreshTokenValidity time.Duration
}

// Option customises an AuthService.
type Option func(*AuthService)

// WithRandom replaces the secure random source used for codes, tokens,
// session ids and keys. The reader must be safe for concurrent use.
func WithRandom(r io.Reader) Option {
	return func(s *AuthService) { s.random = r }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// WithNotifier sets where identity events are published.
func WithNotifier(n events.Notifier) Option {
	return func(s *AuthService) { s.notifier = n }
}

// WithLogger sets the parent logger; the service adds its own module tag.
func WithLogger(l logging.Logger) Option {
	return func(s *AuthService) { s.logger = l }
}

// WithRefreshTokenValidity overrides DefaultRefreshTokenValidity.
func WithRefreshTokenValidity(d time.Duration) Option {
	return func(s *AuthService) { s.refreshTokenValidity = d }
}

// NewAuthService wires an AuthService to its stores and collaborators.
func NewAuthService(m repomanager.RepositoryManager, keys sessionkeys.Store, minter auth.TokenMinter, hasher auth.PasswordHasher, opts ...Option) *AuthService {
	s := &AuthService{
		identities:           m.Identities(),
		refreshTokens:        m.RefreshTokens(),
		sessionKeys:          keys,
		minter:               minter,
		hasher:               hasher,
		notifier:             events.NopNotifier{},
		logger:               logging.NewNopLogger(),
		random:               rand.Reader,
		now:                  time.Now,
		refreshTokenValidity: DefaultRefreshTokenValidity,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("module", "auth")
	return s
}

// Register creates an unverified identity with a fresh verification code.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.Identity, error) {
	category, err := models.ParseProfileCategory(req.ProfileCategory)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	exists, err := s.identities.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("error checking email: %w", err)
	}
	if exists {
		return nil, common.ErrDuplicateIdentity
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	code, err := common.NewVerificationCode(s.random)
	if err != nil {
		return nil, err
	}

	now := s.now()
	identity := &models.Identity{
		Email:            req.Email,
		Name:             req.Name,
		PasswordHash:     hash,
		ProfileCategory:  category,
		Verified:         false,
		VerificationCode: &code,
		Roles:            []string{models.RoleUser},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	identity, err = s.identities.Create(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("error creating identity: %w", err)
	}

	s.logger.Info(ctx, "identity registered", "identity_id", identity.ID)
	s.publish(ctx, events.TypeIdentityRegistered, identity, code)

	return identity, nil
}

// VerifyEmail marks the identity verified when code matches the stored one.
// The write is conditional on the code still being stored, so a code that
// was used or replaced in the meantime is rejected.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) (*models.Identity, error) {
	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if identity.VerificationCode == nil ||
		subtle.ConstantTimeCompare([]byte(*identity.VerificationCode), []byte(code)) != 1 {
		return nil, common.ErrInvalidCode
	}

	now := s.now()
	ok, err := s.identities.MarkVerified(ctx, identity.ID, code, now)
	if err != nil {
		return nil, fmt.Errorf("error updating identity: %w", err)
	}
	if !ok {
		return nil, common.ErrInvalidCode
	}

	identity.Verified = true
	identity.VerificationCode = nil
	identity.UpdatedAt = now

	s.logger.Info(ctx, "email verified", "identity_id", identity.ID)
	return identity, nil
}

// ResendVerification replaces the verification code of an unverified
// identity. There is no cooldown. A verified identity has nothing to
// verify, so the call succeeds without issuing a code.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if identity.Verified {
		s.logger.Debug(ctx, "resend skipped, already verified", "identity_id", identity.ID)
		return nil
	}

	code, err := common.NewVerificationCode(s.random)
	if err != nil {
		return err
	}
	identity.VerificationCode = &code
	identity.UpdatedAt = s.now()

	if err := s.identities.Update(ctx, identity); err != nil {
		return fmt.Errorf("error updating identity: %w", err)
	}

	s.publish(ctx, events.TypeVerificationCodeIssued, identity, code)
	return nil
}

// Login checks the password and opens a session: an access token, a new
// refresh token chain and a session key. The refresh token and the session
// key are written concurrently and both must succeed; a failure of either
// yields common.ErrSessionSetupFailed and whatever was written stays.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := s.hasher.Verify(identity.PasswordHash, password); err != nil {
		return nil, err
	}

	now := s.now()

	access, err := s.minter.Mint(identity.Email, now)
	if err != nil {
		return nil, err
	}

	refresh, err := s.newRefreshToken(identity.ID, now)
	if err != nil {
		return nil, err
	}

	sessionID, err := uuid.NewRandomFromReader(s.random)
	if err != nil {
		return nil, fmt.Errorf("random source: %w", err)
	}
	key, err := common.GenerateRandByteArray(s.random, common.SessionKeySize)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.refreshTokens.Create(gctx, refresh)
		return err
	})
	g.Go(func() error {
		return s.sessionKeys.Put(gctx, sessionID.String(), key)
	})
	if err := g.Wait(); err != nil {
		s.logger.Error(ctx, "session setup failed", "identity_id", identity.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrSessionSetupFailed, err)
	}

	if err := s.identities.TouchLastLogin(ctx, identity.ID, now); err != nil {
		s.logger.Warn(ctx, "error recording last login", "identity_id", identity.ID, "error", err)
	} else {
		last := now
		identity.LastLoginAt = &last
	}

	s.logger.Info(ctx, "login succeeded", "identity_id", identity.ID, "session_id", sessionID.String())

	return &LoginResult{
		TokenPair: TokenPair{AccessToken: access, RefreshToken: refresh.Token},
		SessionID: sessionID.String(),
		Identity:  identity,
	}, nil
}

// Refresh exchanges a live refresh token for a new access token and the
// next link of the chain. The presented token is revoked with a conditional
// update, so of two racing callers only one proceeds.
func (s *AuthService) Refresh(ctx context.Context, token string) (*RefreshResult, error) {
	current, err := s.refreshTokens.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !current.Usable(now) {
		return nil, common.ErrInvalidOrExpiredToken
	}

	identity, err := s.identities.FindByID(ctx, current.IdentityID)
	if err != nil {
		return nil, err
	}

	revoked, err := s.refreshTokens.Revoke(ctx, current.ID, now)
	if err != nil {
		return nil, fmt.Errorf("error revoking refresh token: %w", err)
	}
	if !revoked {
		s.logger.Warn(ctx, "refresh token already consumed", "identity_id", identity.ID)
		return nil, common.ErrInvalidOrExpiredToken
	}

	access, err := s.minter.Mint(identity.Email, now)
	if err != nil {
		return nil, err
	}

	next, err := s.newRefreshToken(identity.ID, now)
	if err != nil {
		return nil, err
	}
	if _, err := s.refreshTokens.Create(ctx, next); err != nil {
		s.logger.Error(ctx, "refresh token revoked but successor not stored", "identity_id", identity.ID, "error", err)
		return nil, fmt.Errorf("error creating refresh token: %w", err)
	}

	return &RefreshResult{
		TokenPair: TokenPair{AccessToken: access, RefreshToken: next.Token},
		Identity:  identity,
	}, nil
}

// Logout drops the session key of sessionID. An empty or unknown session
// id succeeds. Refresh tokens are left alone.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessionKeys.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info(ctx, "logged out", "session_id", sessionID)
	return nil
}

// RevokeAllSessions revokes every live refresh token of the identity.
// Session keys expire on their own TTL.
func (s *AuthService) RevokeAllSessions(ctx context.Context, identityID string) (int64, error) {
	if _, err := s.identities.FindByID(ctx, identityID); err != nil {
		return 0, err
	}

	n, err := s.refreshTokens.RevokeAllForIdentity(ctx, identityID)
	if err != nil {
		return 0, fmt.Errorf("error revoking refresh tokens: %w", err)
	}

	s.logger.Info(ctx, "refresh tokens revoked", "identity_id", identityID, "count", n)
	return n, nil
}

// SessionKey returns the key of a live session.
func (s *AuthService) SessionKey(ctx context.Context, sessionID string) ([]byte, error) {
	if sessionID == "" {
		return nil, common.ErrorNotFound
	}
	return s.sessionKeys.Get(ctx, sessionID)
}

// Identity returns the identity with the given id.
func (s *AuthService) Identity(ctx context.Context, id string) (*models.Identity, error) {
	return s.identities.FindByID(ctx, id)
}

func (s *AuthService) newRefreshToken(identityID string, now time.Time) (*models.RefreshToken, error) {
	token, err := common.MakeRandHexString(s.random, common.RefreshTokenSize)
	if err != nil {
		return nil, err
	}
	return &models.RefreshToken{
		Token:      token,
		IdentityID: identityID,
		ExpiresAt:  now.Add(s.refreshTokenValidity),
		Revoked:    false,
		CreatedAt:  now,
	}, nil
}

// publish hands an event to the notifier. Failures are logged and never
// reach the caller.
func (s *AuthService) publish(ctx context.Context, eventType string, identity *models.Identity, code string) {
	id, err := uuid.NewRandomFromReader(s.random)
	if err != nil {
		s.logger.Error(ctx, "error generating event id", "error", err)
		return
	}

	ev := events.Event{
		ID:               id.String(),
		Type:             eventType,
		IdentityID:       identity.ID,
		Email:            identity.Email,
		Name:             identity.Name,
		VerificationCode: code,
		OccurredAt:       s.now(),
	}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.logger.Error(ctx, "error publishing event", "type", eventType, "identity_id", identity.ID, "error", err)
	}
}
