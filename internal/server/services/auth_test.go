package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sonifoy/authsvc/internal/common"
	"github.com/sonifoy/authsvc/internal/server/auth"
	"github.com/sonifoy/authsvc/internal/server/events"
	"github.com/sonifoy/authsvc/internal/server/models"
	"github.com/sonifoy/authsvc/internal/server/repositories/identities"
	"github.com/sonifoy/authsvc/internal/server/repositories/memory"
	"github.com/sonifoy/authsvc/internal/server/repositories/refreshtokens"
	"github.com/sonifoy/authsvc/internal/server/repositories/repomanager"
	"github.com/sonifoy/authsvc/internal/server/sessionkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- helpers ---

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubManager lets tests swap single stores for failing fakes.
type stubManager struct {
	repomanager.RepositoryManager
	identities    identities.Repository
	refreshTokens refreshtokens.Repository
}

func (m *stubManager) Identities() identities.Repository       { return m.identities }
func (m *stubManager) RefreshTokens() refreshtokens.Repository { return m.refreshTokens }

type failingRefreshTokens struct {
	refreshtokens.Repository
	createErr error
}

func (f *failingRefreshTokens) Create(ctx context.Context, t *models.RefreshToken) (*models.RefreshToken, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.Repository.Create(ctx, t)
}

type countingKeys struct {
	sessionkeys.Store
	puts   atomic.Int32
	putErr error
}

func (c *countingKeys) Put(ctx context.Context, id string, key []byte) error {
	c.puts.Add(1)
	if c.putErr != nil {
		return c.putErr
	}
	return c.Store.Put(ctx, id, key)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recordingNotifier) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingNotifier) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	svc      *AuthService
	clock    *testClock
	ids      *memory.IdentityStore
	tokens   *failingRefreshTokens
	keys     *countingKeys
	notifier *recordingNotifier
	minter   *auth.JWTMinter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)}
	ids := memory.NewIdentityStore()
	tokens := &failingRefreshTokens{Repository: memory.NewRefreshTokenStore()}
	keys := &countingKeys{Store: sessionkeys.NewMemoryStore(time.Hour, clock.Now)}
	notifier := &recordingNotifier{}
	minter := auth.NewJWTMinter([]byte("test-secret"), "test", 15*time.Minute, auth.WithTimeFunc(clock.Now))

	m := &stubManager{identities: ids, refreshTokens: tokens}
	svc := NewAuthService(m, keys, minter, auth.NewBcryptHasher(bcrypt.MinCost),
		WithClock(clock.Now),
		WithNotifier(notifier),
	)

	return &fixture{svc: svc, clock: clock, ids: ids, tokens: tokens, keys: keys, notifier: notifier, minter: minter}
}

func (f *fixture) register(t *testing.T, email, password string) *models.Identity {
	t.Helper()
	identity, err := f.svc.Register(context.Background(), RegisterRequest{Email: email, Password: password})
	require.NoError(t, err)
	return identity
}

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

// --- register ---

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)

	identity, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: "alice@example.com", Password: "pw", Name: "Alice",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, identity.ID)
	assert.Equal(t, models.ProfileListener, identity.ProfileCategory)
	assert.False(t, identity.Verified)
	assert.Equal(t, []string{models.RoleUser}, identity.Roles)
	assert.NotEqual(t, "pw", identity.PasswordHash)
	assert.Equal(t, f.clock.Now(), identity.CreatedAt)
	assert.Equal(t, f.clock.Now(), identity.UpdatedAt)
	require.NotNil(t, identity.VerificationCode)
	assert.Regexp(t, sixDigits, *identity.VerificationCode)

	ev := f.notifier.last()
	assert.Equal(t, events.TypeIdentityRegistered, ev.Type)
	assert.Equal(t, identity.ID, ev.IdentityID)
	assert.Equal(t, *identity.VerificationCode, ev.VerificationCode)
}

func TestRegister_ExplicitCategory(t *testing.T) {
	f := newFixture(t)

	identity, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: "label@example.com", Password: "pw", ProfileCategory: "label",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProfileLabel, identity.ProfileCategory)

	_, err = f.svc.Register(context.Background(), RegisterRequest{
		Email: "x@example.com", Password: "pw", ProfileCategory: "PODCASTER",
	})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestRegister_Duplicate(t *testing.T) {
	f := newFixture(t)
	first := f.register(t, "alice@example.com", "pw")

	_, err := f.svc.Register(context.Background(), RegisterRequest{Email: "alice@example.com", Password: "other"})
	assert.ErrorIs(t, err, common.ErrDuplicateIdentity)

	stored, err := f.ids.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, first.PasswordHash, stored.PasswordHash)
}

func TestRegister_NotifierFailureIsAbsorbed(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")

	identity, err := f.svc.Register(context.Background(), RegisterRequest{Email: "a@x.com", Password: "pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, identity.ID)
}

func TestRegister_RandomSourceFailure(t *testing.T) {
	f := newFixture(t)
	WithRandom(errReader{})(f.svc)

	_, err := f.svc.Register(context.Background(), RegisterRequest{Email: "a@x.com", Password: "pw"})
	assert.Error(t, err)

	exists, err := f.ids.ExistsByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

// --- verification ---

func TestVerifyEmail_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "a@x.com", "pw")
	code := *identity.VerificationCode

	f.clock.Advance(time.Minute)
	verified, err := f.svc.VerifyEmail(context.Background(), "a@x.com", code)
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.Nil(t, verified.VerificationCode)
	assert.Equal(t, f.clock.Now(), verified.UpdatedAt)

	_, err = f.svc.VerifyEmail(context.Background(), "a@x.com", code)
	assert.ErrorIs(t, err, common.ErrInvalidCode)
}

func TestVerifyEmail_WrongCode(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "a@x.com", "pw")

	wrong := "000000"
	if *identity.VerificationCode == wrong {
		wrong = "000001"
	}
	_, err := f.svc.VerifyEmail(context.Background(), "a@x.com", wrong)
	assert.ErrorIs(t, err, common.ErrInvalidCode)

	_, err = f.svc.VerifyEmail(context.Background(), "a@x.com", " "+*identity.VerificationCode)
	assert.ErrorIs(t, err, common.ErrInvalidCode, "no normalisation")

	_, err = f.svc.VerifyEmail(context.Background(), "nobody@x.com", "123456")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

// codeSwapOnRead replaces the stored code right after a read, as a resend
// landing between VerifyEmail's read and write would.
type codeSwapOnRead struct {
	identities.Repository
	next string
}

func (c *codeSwapOnRead) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	identity, err := c.Repository.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	swapped := identity.Clone()
	swapped.VerificationCode = &c.next
	if err := c.Repository.Update(ctx, swapped); err != nil {
		return nil, err
	}
	return identity, nil
}

func TestVerifyEmail_ReplacedCodeRejected(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "a@x.com", "pw")
	stale := *identity.VerificationCode

	next := "000000"
	if stale == next {
		next = "000001"
	}
	m := &stubManager{identities: &codeSwapOnRead{Repository: f.ids, next: next}, refreshTokens: f.tokens}
	svc := NewAuthService(m, f.keys, f.minter, auth.NewBcryptHasher(bcrypt.MinCost), WithClock(f.clock.Now))

	_, err := svc.VerifyEmail(context.Background(), "a@x.com", stale)
	assert.ErrorIs(t, err, common.ErrInvalidCode)

	stored, err := f.ids.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.False(t, stored.Verified)
	require.NotNil(t, stored.VerificationCode)
	assert.Equal(t, next, *stored.VerificationCode)

	_, err = f.svc.VerifyEmail(context.Background(), "a@x.com", next)
	require.NoError(t, err)
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "pw")

	f.clock.Advance(time.Minute)
	require.NoError(t, f.svc.ResendVerification(context.Background(), "a@x.com"))

	stored, err := f.ids.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, stored.VerificationCode)
	assert.Regexp(t, sixDigits, *stored.VerificationCode)
	assert.Equal(t, f.clock.Now(), stored.UpdatedAt)

	ev := f.notifier.last()
	assert.Equal(t, events.TypeVerificationCodeIssued, ev.Type)
	assert.Equal(t, *stored.VerificationCode, ev.VerificationCode)

	_, err = f.svc.VerifyEmail(context.Background(), "a@x.com", *stored.VerificationCode)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ResendVerification(context.Background(), "nobody@x.com"), common.ErrorNotFound)
}

func TestResendVerification_VerifiedIdentityKeepsNoCode(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "a@x.com", "pw")
	_, err := f.svc.VerifyEmail(context.Background(), "a@x.com", *identity.VerificationCode)
	require.NoError(t, err)

	require.NoError(t, f.svc.ResendVerification(context.Background(), "a@x.com"))

	stored, err := f.ids.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.Nil(t, stored.VerificationCode)
}

// --- login ---

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "a@x.com", "pw")
	issuedAt := f.clock.Now()

	res, err := f.svc.Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)

	assert.Equal(t, identity.ID, res.Identity.ID)
	require.NotNil(t, res.Identity.LastLoginAt)
	assert.Equal(t, issuedAt, *res.Identity.LastLoginAt)

	subject, err := f.minter.Parse(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", subject)

	assert.Len(t, res.RefreshToken, 2*common.RefreshTokenSize)
	rt, err := f.tokens.FindByToken(context.Background(), res.RefreshToken)
	require.NoError(t, err)
	assert.False(t, rt.Revoked)
	assert.Equal(t, identity.ID, rt.IdentityID)
	assert.WithinDuration(t, issuedAt.Add(7*24*time.Hour), rt.ExpiresAt, time.Second)

	key, err := f.svc.SessionKey(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Len(t, key, common.SessionKeySize)
	assert.NotEqual(t, make([]byte, common.SessionKeySize), key, "stored key must not be the wiped buffer")
}

func TestLogin_SessionsAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "pw")

	first, err := f.svc.Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)
	second, err := f.svc.Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestLogin_WrongPasswordWritesNothing(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "a@x.com", "pw")

	_, err := f.svc.Login(context.Background(), "a@x.com", "nope")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	assert.Equal(t, int32(0), f.keys.puts.Load())
	n, err := f.tokens.RevokeAllForIdentity(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "no refresh token rows")

	stored, err := f.ids.FindByID(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastLoginAt)
}

func TestLogin_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), "ghost@x.com", "pw")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.NotErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestLogin_SessionKeyFailure(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "pw")
	f.keys.putErr = common.ErrStoreUnavailable

	_, err := f.svc.Login(context.Background(), "a@x.com", "pw")
	assert.ErrorIs(t, err, common.ErrSessionSetupFailed)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestLogin_RefreshTokenFailure(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "pw")
	f.tokens.createErr = common.ErrStoreUnavailable

	_, err := f.svc.Login(context.Background(), "a@x.com", "pw")
	assert.ErrorIs(t, err, common.ErrSessionSetupFailed)
}

func TestLogin_CanceledContextIsStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "pw")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Login(ctx, "a@x.com", "pw")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

// --- refresh ---

func TestRefresh_Rotates(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "pw")
	login, err := f.svc.Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	res, err := f.svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)
	assert.Equal(t, login.Identity.ID, res.Identity.ID)

	old, err := f.tokens.FindByToken(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.True(t, old.Revoked)

	next, err := f.tokens.FindByToken(context.Background(), res.RefreshToken)
	require.NoError(t, err)
	assert.False(t, next.Revoked)
	assert.Equal(t, f.clock.Now().Add(DefaultRefreshTokenValidity), next.ExpiresAt)

	_, err = f.svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidOrExpiredToken)

	_, err = f.svc.SessionKey(context.Background(), login.SessionID)
	assert.NoError(t, err, "refresh leaves the session alone")
}

func TestRefresh_Expired(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "pw")
	login, err := f.svc.Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)

	f.clock.Advance(DefaultRefreshTokenValidity)
	_, err = f.svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidOrExpiredToken, "expiry at now is expired")

	rt, err := f.tokens.FindByToken(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.False(t, rt.Revoked, "expired tokens are not revoked")
}

func TestRefresh_Unknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Refresh(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRefresh_OwnerGone(t *testing.T) {
	f := newFixture(t)
	_, err := f.tokens.Create(context.Background(), &models.RefreshToken{
		Token: "orphan", IdentityID: "ghost", ExpiresAt: f.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), "orphan")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRefresh_SuccessorFailureLeavesOldRevoked(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "pw")
	login, err := f.svc.Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)

	f.tokens.createErr = common.ErrStoreUnavailable
	_, err = f.svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)

	old, err := f.tokens.FindByToken(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.True(t, old.Revoked)
}

func TestRefresh_ConcurrentCallersOneWinner(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "pw")
	login, err := f.svc.Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)

	const callers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		rejected  atomic.Int32
		start     = make(chan struct{})
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Refresh(context.Background(), login.RefreshToken)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, common.ErrInvalidOrExpiredToken):
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(callers-1), rejected.Load())
}

// --- logout & revoke ---

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "pw")
	login, err := f.svc.Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), login.SessionID))
	_, err = f.svc.SessionKey(context.Background(), login.SessionID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	assert.NoError(t, f.svc.Logout(context.Background(), login.SessionID), "already removed")
	assert.NoError(t, f.svc.Logout(context.Background(), "never-existed"))
	assert.NoError(t, f.svc.Logout(context.Background(), ""))

	_, err = f.svc.Refresh(context.Background(), login.RefreshToken)
	assert.NoError(t, err, "logout keeps refresh tokens valid")
}

func TestRevokeAllSessions(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "a@x.com", "pw")

	first, err := f.svc.Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)
	second, err := f.svc.Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)

	n, err := f.svc.RevokeAllSessions(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, tok := range []string{first.RefreshToken, second.RefreshToken} {
		_, err := f.svc.Refresh(context.Background(), tok)
		assert.ErrorIs(t, err, common.ErrInvalidOrExpiredToken)
	}

	_, err = f.svc.RevokeAllSessions(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestIdentity(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "a@x.com", "pw")

	got, err := f.svc.Identity(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	_, err = f.svc.SessionKey(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
