// Package storagetest holds the behavioural tests every storage.Storage
// implementation must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage"
)

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) storage.Storage

// Run executes the contract suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("UserRoundTrip", func(t *testing.T) { testUserRoundTrip(t, newStore(t)) })
	t.Run("DuplicateUsername", func(t *testing.T) { testDuplicateUsername(t, newStore(t)) })
	t.Run("ListRoundTrip", func(t *testing.T) { testListRoundTrip(t, newStore(t)) })
	t.Run("ListsScopedToUser", func(t *testing.T) { testListsScopedToUser(t, newStore(t)) })
	t.Run("ListPatchSemantics", func(t *testing.T) { testListPatch(t, newStore(t)) })
	t.Run("ItemPatchSemantics", func(t *testing.T) { testItemPatch(t, newStore(t)) })
	t.Run("DeleteThenGet", func(t *testing.T) { testDeleteThenGet(t, newStore(t)) })
	t.Run("CascadeDelete", func(t *testing.T) { testCascadeDelete(t, newStore(t)) })
	t.Run("MissingIDs", func(t *testing.T) { testMissingIDs(t, newStore(t)) })
	t.Run("MissingOwner", func(t *testing.T) { testMissingOwner(t, newStore(t)) })
	t.Run("ConcurrentCreateList", func(t *testing.T) { testConcurrentCreateList(t, newStore(t)) })
	t.Run("Scenario", func(t *testing.T) { testScenario(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
}

func strPtr(s string) *string { return &s }

func mustUser(t *testing.T, s storage.Storage, name string) *shopping.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), shopping.NewUser{Username: name, Password: "hash-" + name})
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func mustList(t *testing.T, s storage.Storage, userID int64, name string) *shopping.ShoppingList {
	t.Helper()
	l, err := s.CreateList(context.Background(), userID, shopping.NewList{
		Name: name,
		Date: shopping.MustParseDate("2024-01-01"),
	})
	require.NoError(t, err)
	require.NotNil(t, l)
	return l
}

func mustItem(t *testing.T, s storage.Storage, listID int64, name string, price float64, qty int) *shopping.ListItem {
	t.Helper()
	it, err := s.CreateItem(context.Background(), listID, shopping.NewItem{Name: name, Price: price, Quantity: qty})
	require.NoError(t, err)
	require.NotNil(t, it)
	return it
}

func testUserRoundTrip(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	created := mustUser(t, s, "ana")
	assert.NotZero(t, created.ID)
	assert.Equal(t, "ana", created.Username)
	assert.Equal(t, "hash-ana", created.Password)

	byID, err := s.GetUser(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	if diff := cmp.Diff(created, byID); diff != "" {
		t.Errorf("GetUser mismatch (-created +got):\n%s", diff)
	}

	byName, err := s.GetUserByUsername(ctx, "ana")
	require.NoError(t, err)
	require.NotNil(t, byName)
	if diff := cmp.Diff(created, byName); diff != "" {
		t.Errorf("GetUserByUsername mismatch (-created +got):\n%s", diff)
	}

	missing, err := s.GetUserByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	second := mustUser(t, s, "bia")
	assert.Greater(t, second.ID, created.ID)
}

func testDuplicateUsername(t *testing.T, s storage.Storage) {
	mustUser(t, s, "ana")
	_, err := s.CreateUser(context.Background(), shopping.NewUser{Username: "ana", Password: "other"})
	assert.True(t, errors.Is(err, storage.ErrDuplicateUsername), "got %v", err)
}

func testListRoundTrip(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	u := mustUser(t, s, "ana")

	created, err := s.CreateList(ctx, u.ID, shopping.NewList{
		Name:        "Mercado",
		Date:        shopping.MustParseDate("2024-01-01"),
		Description: strPtr("Compras do mês"),
	})
	require.NoError(t, err)
	assert.Equal(t, u.ID, created.UserID)

	got, err := s.GetList(ctx, created.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("GetList mismatch (-created +got):\n%s", diff)
	}

	noDesc := mustList(t, s, u.ID, "Feira")
	assert.Nil(t, noDesc.Description)
	assert.Greater(t, noDesc.ID, created.ID)

	item := mustItem(t, s, created.ID, "Arroz", 5.5, 2)
	items, err := s.GetItems(ctx, created.ID)
	require.NoError(t, err)
	if diff := cmp.Diff([]shopping.ListItem{*item}, items); diff != "" {
		t.Errorf("GetItems mismatch (-want +got):\n%s", diff)
	}
}

func testListsScopedToUser(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	ana := mustUser(t, s, "ana")
	bia := mustUser(t, s, "bia")
	l1 := mustList(t, s, ana.ID, "a1")
	mustList(t, s, bia.ID, "b1")
	l2 := mustList(t, s, ana.ID, "a2")

	lists, err := s.GetLists(ctx, ana.ID)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, []int64{l1.ID, l2.ID}, []int64{lists[0].ID, lists[1].ID})

	none, err := s.GetLists(ctx, 9999)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testListPatch(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	u := mustUser(t, s, "ana")
	l, err := s.CreateList(ctx, u.ID, shopping.NewList{
		Name:        "Mercado",
		Date:        shopping.MustParseDate("2024-01-01"),
		Description: strPtr("Compras do mês"),
	})
	require.NoError(t, err)

	updated, err := s.UpdateList(ctx, l.ID, shopping.ListPatch{Name: strPtr("Feira")})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Feira", updated.Name)
	assert.Equal(t, l.Date, updated.Date)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "Compras do mês", *updated.Description)
	assert.Equal(t, u.ID, updated.UserID)

	newDate := shopping.MustParseDate("2024-02-10")
	updated, err = s.UpdateList(ctx, l.ID, shopping.ListPatch{Date: &newDate, Description: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, "Feira", updated.Name)
	assert.Equal(t, newDate, updated.Date)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "", *updated.Description)

	got, err := s.GetList(ctx, l.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(updated, got); diff != "" {
		t.Errorf("stored list differs from update result (-updated +got):\n%s", diff)
	}
}

func testItemPatch(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	u := mustUser(t, s, "ana")
	l := mustList(t, s, u.ID, "Mercado")
	it := mustItem(t, s, l.ID, "Arroz", 5.5, 2)

	qty := 3
	updated, err := s.UpdateItem(ctx, it.ID, shopping.ItemPatch{Quantity: &qty})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, shopping.ListItem{ID: it.ID, ListID: l.ID, Name: "Arroz", Price: 5.5, Quantity: 3}, *updated)

	zero := 0.0
	updated, err = s.UpdateItem(ctx, it.ID, shopping.ItemPatch{Price: &zero, Name: strPtr("Arroz integral")})
	require.NoError(t, err)
	assert.Equal(t, shopping.ListItem{ID: it.ID, ListID: l.ID, Name: "Arroz integral", Price: 0, Quantity: 3}, *updated)

	items, err := s.GetItems(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, *updated, items[0])
}

func testDeleteThenGet(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	u := mustUser(t, s, "ana")
	l := mustList(t, s, u.ID, "Mercado")
	keep := mustItem(t, s, l.ID, "Arroz", 5.5, 2)
	gone := mustItem(t, s, l.ID, "Feijão", 7, 1)

	require.NoError(t, s.DeleteItem(ctx, gone.ID))
	items, err := s.GetItems(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []shopping.ListItem{*keep}, items)

	require.NoError(t, s.DeleteList(ctx, l.ID))
	got, err := s.GetList(ctx, l.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testCascadeDelete(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	u := mustUser(t, s, "ana")
	doomed := mustList(t, s, u.ID, "Mercado")
	other := mustList(t, s, u.ID, "Feira")
	for i := 0; i < 3; i++ {
		mustItem(t, s, doomed.ID, "item", 1, 1)
	}
	survivor := mustItem(t, s, other.ID, "Banana", 0.5, 6)

	require.NoError(t, s.DeleteList(ctx, doomed.ID))

	items, err := s.GetItems(ctx, doomed.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = s.GetItems(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, []shopping.ListItem{*survivor}, items)
}

func testMissingIDs(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	u, err := s.GetUser(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, u)

	l, err := s.GetList(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, l)

	ul, err := s.UpdateList(ctx, 404, shopping.ListPatch{Name: strPtr("x")})
	require.NoError(t, err)
	assert.Nil(t, ul)

	ui, err := s.UpdateItem(ctx, 404, shopping.ItemPatch{Name: strPtr("x")})
	require.NoError(t, err)
	assert.Nil(t, ui)

	assert.NoError(t, s.DeleteList(ctx, 404))
	assert.NoError(t, s.DeleteItem(ctx, 404))

	items, err := s.GetItems(ctx, 404)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func testMissingOwner(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_, err := s.CreateList(ctx, 404, shopping.NewList{Name: "x", Date: shopping.MustParseDate("2024-01-01")})
	assert.True(t, errors.Is(err, storage.ErrMissingOwner), "got %v", err)

	_, err = s.CreateItem(ctx, 404, shopping.NewItem{Name: "x", Price: 1, Quantity: 1})
	assert.True(t, errors.Is(err, storage.ErrMissingOwner), "got %v", err)
}

func testConcurrentCreateList(t *testing.T, s storage.Storage) {
	const n = 16
	u := mustUser(t, s, "ana")

	ids := make([]int64, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			l, err := s.CreateList(context.Background(), u.ID, shopping.NewList{
				Name: "parallel",
				Date: shopping.MustParseDate("2024-01-01"),
			})
			if err != nil {
				return err
			}
			ids[i] = l.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[int64]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate list id %d", id)
		seen[id] = true
	}

	lists, err := s.GetLists(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, lists, n)
}

func testScenario(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	u, err := s.CreateUser(ctx, shopping.NewUser{Username: "ana", Password: "pw123"})
	require.NoError(t, err)

	l, err := s.CreateList(ctx, u.ID, shopping.NewList{
		Name:        "Mercado",
		Date:        shopping.MustParseDate("2024-01-01"),
		Description: strPtr("Compras do mês"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), l.ID)

	it, err := s.CreateItem(ctx, 1, shopping.NewItem{Name: "Arroz", Price: 5.50, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), it.ID)
	assert.Equal(t, int64(1), it.ListID)

	items, err := s.GetItems(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 11.00, shopping.Total(items))

	require.NoError(t, s.DeleteList(ctx, 1))

	lists, err := s.GetLists(ctx, u.ID)
	require.NoError(t, err)
	for _, got := range lists {
		assert.NotEqual(t, int64(1), got.ID)
	}

	items, err = s.GetItems(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func testSessions(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	sessions := s.Sessions()
	require.NotNil(t, sessions)

	u := mustUser(t, s, "ana")
	sess, err := sessions.Create(ctx, u.ID, time.Hour)
	require.NoError(t, err)

	got, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.UserID)

	require.NoError(t, sessions.Delete(ctx, sess.ID))
	got, err = sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
