package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhive/backend/internal/model"
	"github.com/taskhive/backend/internal/token"
)

type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*model.User    // by id
	sessions map[string]*model.Session // by refresh token

	updateUserErr error // injected into UpdateUser when set
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*model.User),
		sessions: make(map[string]*model.Session),
	}
}

func (f *fakeStore) CreateUser(ctx context.Context, email, name, passwordHash string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStore) UpdateUser(ctx context.Context, userID string, name, email *string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateUserErr != nil {
		return nil, f.updateUserErr
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if name != nil {
		u.Name = *name
	}
	if email != nil {
		u.Email = *email
	}
	u.UpdatedAt = time.Now()
	return u, nil
}

func (f *fakeStore) CreateSession(ctx context.Context, userID, refreshToken, userAgent, ipAddress string, expiresAt time.Time) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &model.Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		RefreshToken: refreshToken,
		UserAgent:    userAgent,
		IPAddress:    ipAddress,
		CreatedAt:    time.Now(),
		ExpiresAt:    expiresAt,
	}
	f.sessions[refreshToken] = s
	return s, nil
}

func (f *fakeStore) GetSessionByToken(ctx context.Context, refreshToken string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[refreshToken]; ok {
		return s, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStore) DeleteSession(ctx context.Context, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, refreshToken)
	return nil
}

func (f *fakeStore) DeleteAllUserSessions(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for tok, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, tok)
		}
	}
	return nil
}

func (f *fakeStore) DeleteExpiredSessions(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for tok, s := range f.sessions {
		if s.ExpiresAt.Before(now) {
			delete(f.sessions, tok)
		}
	}
	return nil
}

func newTestService(t *testing.T) (*AuthService, *fakeStore) {
	t.Helper()
	codec, err := token.NewCodec("access-secret", "refresh-secret", "15m", "7d")
	require.NoError(t, err)
	store := newFakeStore()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewAuthService(store, store, codec, log), store
}

func authCode(t *testing.T, err error) string {
	t.Helper()
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	return authErr.Code
}

func TestRegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	user, pair, err := svc.Register(ctx, "a@b.io", "Alice", "password123", "ua", "1.2.3.4")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "a@b.io", user.Email)
	assert.Len(t, store.sessions, 1)

	loggedIn, pair2, err := svc.Login(ctx, "a@b.io", "password123", "ua", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.NotEmpty(t, pair2.RefreshToken)
	assert.Len(t, store.sessions, 2)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, _, err := svc.Register(ctx, "a@b.io", "Alice", "password123", "", "")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "a@b.io", "Other", "password456", "", "")
	assert.Equal(t, model.CodeDuplicateEmail, authCode(t, err))
}

func TestLogin_SameErrorForUnknownEmailAndWrongPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, _, err := svc.Register(ctx, "a@b.io", "Alice", "password123", "", "")
	require.NoError(t, err)

	_, _, errUnknown := svc.Login(ctx, "nobody@b.io", "password123", "", "")
	_, _, errWrongPw := svc.Login(ctx, "a@b.io", "wrong-password", "", "")

	var e1, e2 *AuthError
	require.ErrorAs(t, errUnknown, &e1)
	require.ErrorAs(t, errWrongPw, &e2)
	assert.Equal(t, e1.Code, e2.Code)
	assert.Equal(t, e1.Message, e2.Message)
	assert.Equal(t, e1.Status, e2.Status)
}

func TestRefresh_RotationIsSingleUse(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	_, pair, err := svc.Register(ctx, "a@b.io", "Alice", "password123", "", "")
	require.NoError(t, err)

	newPair, err := svc.Refresh(ctx, pair.RefreshToken, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)
	assert.Len(t, store.sessions, 1)

	// The first refresh deleted the session the old token mapped to.
	_, err = svc.Refresh(ctx, pair.RefreshToken, "", "")
	assert.Equal(t, model.CodeRefreshTokenInvalid, authCode(t, err))
}

func TestRefresh_TamperedToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, pair, err := svc.Register(ctx, "a@b.io", "Alice", "password123", "", "")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.RefreshToken+"x", "", "")
	assert.Equal(t, model.CodeRefreshTokenInvalid, authCode(t, err))
}

func TestRefresh_ExpiredSessionIsDeleted(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	_, pair, err := svc.Register(ctx, "a@b.io", "Alice", "password123", "", "")
	require.NoError(t, err)

	// Force the session past its expiry; the token itself is still valid.
	store.sessions[pair.RefreshToken].ExpiresAt = time.Now().Add(-time.Minute)

	_, err = svc.Refresh(ctx, pair.RefreshToken, "", "")
	assert.Equal(t, model.CodeRefreshTokenExpired, authCode(t, err))
	assert.Empty(t, store.sessions)
}

func TestLogoutAll_InvalidatesEveryRefreshToken(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	user, pair1, err := svc.Register(ctx, "a@b.io", "Alice", "password123", "", "")
	require.NoError(t, err)
	_, pair2, err := svc.Login(ctx, "a@b.io", "password123", "", "")
	require.NoError(t, err)
	require.Len(t, store.sessions, 2)

	require.NoError(t, svc.LogoutAll(ctx, user.ID))
	assert.Empty(t, store.sessions)

	_, err = svc.Refresh(ctx, pair1.RefreshToken, "", "")
	assert.Equal(t, model.CodeRefreshTokenInvalid, authCode(t, err))
	_, err = svc.Refresh(ctx, pair2.RefreshToken, "", "")
	assert.Equal(t, model.CodeRefreshTokenInvalid, authCode(t, err))
}

func TestRevokedSession_RefreshFails(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	_, pair, err := svc.Register(ctx, "a@b.io", "Alice", "password123", "", "")
	require.NoError(t, err)

	// Delete the session directly in storage, simulating revocation.
	delete(store.sessions, pair.RefreshToken)

	_, err = svc.Refresh(ctx, pair.RefreshToken, "", "")
	assert.Equal(t, model.CodeRefreshTokenInvalid, authCode(t, err))
}

func TestAuthenticateAccessToken(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	user, pair, err := svc.Register(ctx, "a@b.io", "Alice", "password123", "", "")
	require.NoError(t, err)

	got, err := svc.AuthenticateAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.AuthenticateAccessToken(ctx, "garbage")
	assert.Equal(t, model.CodeAccessTokenInvalid, authCode(t, err))

	// Subject deleted after issuance.
	delete(store.users, user.ID)
	_, err = svc.AuthenticateAccessToken(ctx, pair.AccessToken)
	assert.Equal(t, model.CodeUserNotFound, authCode(t, err))
}

func TestUpdateProfile_EmailTaken(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	_, _, err := svc.Register(ctx, "a@b.io", "Alice", "password123", "", "")
	require.NoError(t, err)
	bob, _, err := svc.Register(ctx, "b@b.io", "Bob", "password123", "", "")
	require.NoError(t, err)

	taken := "a@b.io"
	_, err = svc.UpdateProfile(ctx, bob.ID, nil, &taken)
	assert.Equal(t, model.CodeEmailTaken, authCode(t, err))

	// Updating to your own current email is allowed, and sessions survive.
	own := "b@b.io"
	name := "Bobby"
	updated, err := svc.UpdateProfile(ctx, bob.ID, &name, &own)
	require.NoError(t, err)
	assert.Equal(t, "Bobby", updated.Name)
	assert.Len(t, store.sessions, 2)
}

func TestUpdateProfile_EmailClaimedBetweenCheckAndWrite(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	bob, _, err := svc.Register(ctx, "b@b.io", "Bob", "password123", "", "")
	require.NoError(t, err)

	// Another account wins the email between the uniqueness check and
	// the write; the store surfaces the column constraint.
	store.updateUserErr = &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}

	email := "a@b.io"
	_, err = svc.UpdateProfile(ctx, bob.ID, nil, &email)
	assert.Equal(t, model.CodeEmailTaken, authCode(t, err))
}
