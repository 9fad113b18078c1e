// Package session keeps track of authenticated login sessions. Every storage
// backend exposes one of these stores to the authentication layer.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session represents an active login of a user.
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions. Get returns nil, nil for unknown or expired sessions.
type Store interface {
	Create(ctx context.Context, userID int64, ttl time.Duration) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	CleanupExpired(ctx context.Context) (int, error)
}

func newID() string {
	return uuid.NewString()
}
