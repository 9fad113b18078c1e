package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopping-lists/internal/session"
	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage/memory"
)

func newTestManager(t *testing.T) (*Manager, *shopping.User) {
	t.Helper()
	store := memory.New()
	hash, err := HashPassword("pw123")
	require.NoError(t, err)
	u, err := store.CreateUser(context.Background(), shopping.NewUser{Username: "ana", Password: hash})
	require.NoError(t, err)
	return NewManager(store, "test-secret", time.Hour, hclog.NewNullLogger()), u
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("pw123")
	require.NoError(t, err)
	assert.NotEqual(t, "pw123", hash)
	assert.True(t, CheckPassword(hash, "pw123"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("not-a-hash", "pw123"))
}

func TestIssueAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	m, u := newTestManager(t)

	token, sess, err := m.Issue(ctx, u.ID)
	require.NoError(t, err)

	got, gotSess, err := m.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, sess.ID, gotSess.ID)

	require.NoError(t, m.Revoke(ctx, sess.ID))
	_, _, err = m.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateRejects(t *testing.T) {
	ctx := context.Background()
	m, u := newTestManager(t)

	t.Run("Garbage", func(t *testing.T) {
		_, _, err := m.Authenticate(ctx, "not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := NewManager(m.store, "other-secret", time.Hour, hclog.NewNullLogger())
		token, _, err := other.Issue(ctx, u.ID)
		require.NoError(t, err)
		_, _, err = m.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		token, _, err := m.Issue(ctx, u.ID)
		require.NoError(t, err)
		later := NewManager(m.store, "test-secret", time.Hour, hclog.NewNullLogger())
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, _, err = later.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("UnknownSession", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "1",
			ID:        "never-issued",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, _, err = m.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("NoneAlgorithm", func(t *testing.T) {
		claims := jwt.RegisteredClaims{Subject: "1", ID: "x", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, _, err = m.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	m, u := newTestManager(t)

	got, err := m.Login(ctx, "ana", "pw123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	got, err = m.Login(ctx, "ana", "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = m.Login(ctx, "ghost", "pw123")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMiddleware(t *testing.T) {
	ctx := context.Background()
	m, u := newTestManager(t)
	token, _, err := m.Issue(ctx, u.ID)
	require.NoError(t, err)

	var seen *shopping.User
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFrom(r.Context())
	}))

	t.Run("Bearer", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.NotNil(t, seen)
		assert.Equal(t, "ana", seen.Username)
	})

	t.Run("Cookie", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.NotNil(t, seen)
		assert.Equal(t, u.ID, seen.ID)
	})

	t.Run("Anonymous", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Nil(t, seen)
	})

	t.Run("BadToken", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Nil(t, seen)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

// brokenSessions fails every lookup the way a lost database connection does.
type brokenSessions struct {
	session.Store
}

func (brokenSessions) Get(ctx context.Context, id string) (*session.Session, error) {
	return nil, errors.New("disk I/O error")
}

type brokenSessionStore struct {
	*memory.Store
	sessions session.Store
}

func (s brokenSessionStore) Sessions() session.Store {
	return s.sessions
}

func TestMiddlewareSessionStoreFailure(t *testing.T) {
	ctx := context.Background()
	m, u := newTestManager(t)
	token, _, err := m.Issue(ctx, u.ID)
	require.NoError(t, err)

	mem := m.store.(*memory.Store)
	m.store = brokenSessionStore{Store: mem, sessions: brokenSessions{Store: mem.Sessions()}}

	called := false
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, called, "request must not continue without an identity")
}
