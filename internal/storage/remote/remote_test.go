package remote

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopping-lists/internal/back4app"
	"shopping-lists/internal/back4app/back4apptest"
	"shopping-lists/internal/config"
	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage"
	"shopping-lists/internal/storage/storagetest"
)

func newUninitializedStore(t *testing.T) (*Store, *back4apptest.Server) {
	t.Helper()
	srv := back4apptest.NewServer(t)
	cfg := &config.Config{
		Back4AppServerURL: srv.URL,
		Back4AppAppID:     back4apptest.AppID,
		Back4AppClientKey: back4apptest.ClientKey,
		Back4AppMasterKey: back4apptest.MasterKey,
		HTTPTimeout:       5 * time.Second,
	}
	logger := hclog.NewNullLogger()
	return New(back4app.NewClient(cfg, logger), logger), srv
}

func newTestStore(t *testing.T) (*Store, *back4apptest.Server) {
	t.Helper()
	s, srv := newUninitializedStore(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s, srv
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		s, _ := newTestStore(t)
		return s
	})
}

func TestCreateWithoutSchema(t *testing.T) {
	ctx := context.Background()
	s, _ := newUninitializedStore(t)

	_, err := s.CreateUser(ctx, shopping.NewUser{Username: "ana", Password: "x"})
	assert.ErrorIs(t, err, storage.ErrSchemaNotInitialized)
}

func TestEnsureSchemaSeedsFromExistingIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := newUninitializedStore(t)

	// Lists written before sequences existed.
	for _, id := range []int64{3, 9, 4} {
		_, err := s.client.Create(ctx, classList, back4app.Object{
			fieldLocalID: id, "userId": 1, "name": "old", "date": "2024-01-01",
		})
		require.NoError(t, err)
	}
	_, err := s.client.SignUp(ctx, "ana", "native", back4app.Object{fieldLocalID: 1, "passwordHash": "h"})
	require.NoError(t, err)

	require.NoError(t, s.EnsureSchema(ctx))
	// A second run must not move the counters.
	require.NoError(t, s.EnsureSchema(ctx))

	l, err := s.CreateList(ctx, 1, shopping.NewList{Name: "new", Date: shopping.MustParseDate("2024-02-01")})
	require.NoError(t, err)
	assert.Equal(t, int64(10), l.ID)

	u, err := s.CreateUser(ctx, shopping.NewUser{Username: "bruno", Password: "h2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.ID)
}

func TestEnsureSchemaAdvancesLaggingSequence(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.client.Create(ctx, classItem, back4app.Object{fieldLocalID: 42, "listId": 1, "name": "x", "price": 1, "quantity": 1})
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))

	u, err := s.CreateUser(ctx, shopping.NewUser{Username: "ana", Password: "h"})
	require.NoError(t, err)
	l, err := s.CreateList(ctx, u.ID, shopping.NewList{Name: "l", Date: shopping.MustParseDate("2024-01-01")})
	require.NoError(t, err)
	it, err := s.CreateItem(ctx, l.ID, shopping.NewItem{Name: "y", Price: 1, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(43), it.ID)
}

func TestPasswordHashIsTheOnlyCredential(t *testing.T) {
	ctx := context.Background()
	s, srv := newTestStore(t)

	_, err := s.CreateUser(ctx, shopping.NewUser{Username: "ana", Password: "$2a$10$hash"})
	require.NoError(t, err)

	users := srv.Objects(back4app.UserClass)
	require.Len(t, users, 1)
	assert.Equal(t, "$2a$10$hash", users[0]["passwordHash"])
	assert.NotEqual(t, "$2a$10$hash", users[0]["password"])
	assert.NotEmpty(t, users[0]["password"])
}

func TestCascadeDeleteRemovesItemObjects(t *testing.T) {
	ctx := context.Background()
	s, srv := newTestStore(t)

	u, err := s.CreateUser(ctx, shopping.NewUser{Username: "ana", Password: "h"})
	require.NoError(t, err)
	keep, err := s.CreateList(ctx, u.ID, shopping.NewList{Name: "keep", Date: shopping.MustParseDate("2024-01-01")})
	require.NoError(t, err)
	drop, err := s.CreateList(ctx, u.ID, shopping.NewList{Name: "drop", Date: shopping.MustParseDate("2024-01-01")})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := s.CreateItem(ctx, drop.ID, shopping.NewItem{Name: "x", Price: 1, Quantity: 1})
		require.NoError(t, err)
	}
	_, err = s.CreateItem(ctx, keep.ID, shopping.NewItem{Name: "y", Price: 1, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, s.DeleteList(ctx, drop.ID))

	items := srv.Objects(classItem)
	require.Len(t, items, 1)
	assert.Equal(t, float64(keep.ID), items[0]["listId"])
	assert.Len(t, srv.Objects(classList), 1)
}

func TestDeleteListSweepsOrphanedItems(t *testing.T) {
	ctx := context.Background()
	s, srv := newTestStore(t)

	// Items left behind by an interrupted cascade.
	for i := 1; i <= 3; i++ {
		_, err := s.client.Create(ctx, classItem, back4app.Object{fieldLocalID: i, "listId": 5, "name": "x", "price": 1, "quantity": 1})
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteList(ctx, 5))
	assert.Empty(t, srv.Objects(classItem))
}

func TestServerDownIsUnavailable(t *testing.T) {
	ctx := context.Background()
	s, srv := newTestStore(t)

	u, err := s.CreateUser(ctx, shopping.NewUser{Username: "ana", Password: "h"})
	require.NoError(t, err)

	srv.Down.Store(true)

	_, err = s.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = s.GetLists(ctx, u.ID)
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = s.CreateList(ctx, u.ID, shopping.NewList{Name: "l", Date: shopping.MustParseDate("2024-01-01")})
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	err = s.DeleteList(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestUpdateSendsOnlyPatchedFields(t *testing.T) {
	ctx := context.Background()
	s, srv := newTestStore(t)

	u, err := s.CreateUser(ctx, shopping.NewUser{Username: "ana", Password: "h"})
	require.NoError(t, err)
	desc := "semanal"
	l, err := s.CreateList(ctx, u.ID, shopping.NewList{Name: "Mercado", Date: shopping.MustParseDate("2024-01-01"), Description: &desc})
	require.NoError(t, err)

	name := "Feira"
	updated, err := s.UpdateList(ctx, l.ID, shopping.ListPatch{Name: &name})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Feira", updated.Name)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "semanal", *updated.Description)

	lists := srv.Objects(classList)
	require.Len(t, lists, 1)
	assert.Equal(t, "Feira", lists[0]["name"])
	assert.Equal(t, "2024-01-01", lists[0]["date"])
	assert.Equal(t, "semanal", lists[0]["description"])
}
