package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopping-lists/internal/database"
)

func TestRepository(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "sessions.db"), hclog.NewNullLogger())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.SQL.Exec(`INSERT INTO users (id, username, password) VALUES (1, 'ana', 'x')`)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := NewRepository(db.SQL)
	repo.now = func() time.Time { return now }

	s, err := repo.Create(ctx, 1, time.Hour)
	require.NoError(t, err)

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.UserID)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))

	short, err := repo.Create(ctx, 1, time.Minute)
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	got, err = repo.Get(ctx, short.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := repo.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.Delete(ctx, s.ID))
	got, err = repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
