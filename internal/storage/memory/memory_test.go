package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage"
	"shopping-lists/internal/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return New()
	})
}

func TestIDsNeverReused(t *testing.T) {
	ctx := context.Background()
	s := New()

	u, err := s.CreateUser(ctx, shopping.NewUser{Username: "ana", Password: "x"})
	require.NoError(t, err)

	first, err := s.CreateList(ctx, u.ID, shopping.NewList{Name: "a", Date: shopping.MustParseDate("2024-01-01")})
	require.NoError(t, err)
	require.NoError(t, s.DeleteList(ctx, first.ID))

	second, err := s.CreateList(ctx, u.ID, shopping.NewList{Name: "b", Date: shopping.MustParseDate("2024-01-01")})
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, second.ID)
}

func TestReturnedListIsACopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, err := s.CreateUser(ctx, shopping.NewUser{Username: "ana", Password: "x"})
	require.NoError(t, err)

	desc := "original"
	l, err := s.CreateList(ctx, u.ID, shopping.NewList{Name: "a", Date: shopping.MustParseDate("2024-01-01"), Description: &desc})
	require.NoError(t, err)

	*l.Description = "mutated by caller"
	desc = "mutated input"

	got, err := s.GetList(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", *got.Description)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "snapshot.json")

	src := New()
	u, err := src.CreateUser(ctx, shopping.NewUser{Username: "ana", Password: "hash"})
	require.NoError(t, err)
	l, err := src.CreateList(ctx, u.ID, shopping.NewList{Name: "Mercado", Date: shopping.MustParseDate("2024-01-01")})
	require.NoError(t, err)
	_, err = src.CreateItem(ctx, l.ID, shopping.NewItem{Name: "Arroz", Price: 5.5, Quantity: 2})
	require.NoError(t, err)
	doomed, err := src.CreateItem(ctx, l.ID, shopping.NewItem{Name: "Sal", Price: 1, Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, src.DeleteItem(ctx, doomed.ID))

	require.NoError(t, src.SaveSnapshot(path))
	_, err = os.Stat(path)
	require.NoError(t, err)

	dst := New()
	require.NoError(t, dst.LoadSnapshot(path))

	gotUser, err := dst.GetUserByUsername(ctx, "ana")
	require.NoError(t, err)
	require.NotNil(t, gotUser)
	assert.Equal(t, *u, *gotUser)

	items, err := dst.GetItems(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 11.0, shopping.Total(items))

	// The deleted item's ID must not be handed out again.
	next, err := dst.CreateItem(ctx, l.ID, shopping.NewItem{Name: "Óleo", Price: 8, Quantity: 1})
	require.NoError(t, err)
	assert.Greater(t, next.ID, doomed.ID)
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	s := New()
	require.NoError(t, s.LoadSnapshot(filepath.Join(t.TempDir(), "absent.json")))
}

func TestLoadSnapshotMissingDirectory(t *testing.T) {
	s := New()
	path := filepath.Join(t.TempDir(), "data", "snap.json")
	require.NoError(t, s.LoadSnapshot(path))

	_, err := s.CreateUser(context.Background(), shopping.NewUser{Username: "ana", Password: "x"})
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(path))
	require.NoError(t, New().LoadSnapshot(path))
}
