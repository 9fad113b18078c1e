// Package auth issues and verifies session tokens and hashes passwords.
//
// A token is an HS256 JWT whose jti names a session in the store's session
// store. Deleting that session revokes the token before it expires.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/crypto/bcrypt"

	"shopping-lists/internal/session"
	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage"
)

// CookieName is the cookie carrying the session token.
const CookieName = "session"

// ErrInvalidToken is returned for malformed, expired or revoked tokens.
var ErrInvalidToken = errors.New("invalid session token")

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Manager issues tokens for users of store.
type Manager struct {
	store  storage.Storage
	secret []byte
	ttl    time.Duration
	logger hclog.Logger
	now    func() time.Time
}

// NewManager creates a Manager signing tokens with secret.
func NewManager(store storage.Storage, secret string, ttl time.Duration, logger hclog.Logger) *Manager {
	return &Manager{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Issue starts a session for userID and returns its signed token.
func (m *Manager) Issue(ctx context.Context, userID int64) (string, *session.Session, error) {
	sess, err := m.store.Sessions().Create(ctx, userID, m.ttl)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ID:        sess.ID,
		IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, sess, nil
}

// Authenticate resolves token to its user and session. It returns
// ErrInvalidToken when the token cannot be trusted.
func (m *Manager) Authenticate(ctx context.Context, token string) (*shopping.User, *session.Session, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || claims.ID == "" {
		return nil, nil, fmt.Errorf("%w: malformed claims", ErrInvalidToken)
	}

	sess, err := m.store.Sessions().Get(ctx, claims.ID)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil || sess.UserID != userID {
		return nil, nil, fmt.Errorf("%w: session revoked", ErrInvalidToken)
	}

	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, fmt.Errorf("%w: user %d no longer exists", ErrInvalidToken, userID)
	}
	return user, sess, nil
}

// Revoke ends the session behind a previously authenticated request.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	return m.store.Sessions().Delete(ctx, sessionID)
}

// Login checks credentials and returns the user, or nil when they do not match.
func (m *Manager) Login(ctx context.Context, username, password string) (*shopping.User, error) {
	user, err := m.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPassword(user.Password, password) {
		return nil, nil
	}
	return user, nil
}

// SetCookie writes token as the session cookie.
func SetCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest reads the bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

type identityKey struct{}

type identity struct {
	user    *shopping.User
	session *session.Session
}

// Middleware attaches the caller's identity to the request context when a
// valid token is present. It never rejects a request itself.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, sess, err := m.Authenticate(r.Context(), token)
		switch {
		case err == nil:
			r = r.WithContext(context.WithValue(r.Context(), identityKey{}, identity{user: user, session: sess}))
		case errors.Is(err, ErrInvalidToken):
			m.logger.Debug("ignoring session token", "error", err)
		default:
			// The token may be fine; the store could not tell.
			m.logger.Error("session lookup failed", "error", err)
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFrom returns the authenticated user, if any.
func UserFrom(ctx context.Context) (*shopping.User, bool) {
	id, ok := ctx.Value(identityKey{}).(identity)
	return id.user, ok
}

// SessionFrom returns the session of the authenticated request, if any.
func SessionFrom(ctx context.Context) (*session.Session, bool) {
	id, ok := ctx.Value(identityKey{}).(identity)
	return id.session, ok
}
