// Package storage defines the persistence contract shared by every backing
// store of the shopping list manager.
//
// Reads and updates signal "not found" by returning a nil entity and a nil
// error. Deletes are idempotent. Every other failure is reported through one
// of the sentinel errors below, wrapped with context.
package storage

import (
	"context"
	"errors"

	"shopping-lists/internal/session"
	"shopping-lists/internal/shopping"
)

var (
	// ErrUnavailable wraps I/O failures of the backing store.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrMissingOwner is returned when creating an entity whose owner does not exist.
	ErrMissingOwner = errors.New("owning entity does not exist")
	// ErrDuplicateUsername is returned by CreateUser when the username is taken.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrSchemaNotInitialized is returned when the backing schema has not been set up.
	ErrSchemaNotInitialized = errors.New("storage schema not initialized")
)

// Storage is implemented by every backing store.
type Storage interface {
	GetUser(ctx context.Context, id int64) (*shopping.User, error)
	GetUserByUsername(ctx context.Context, username string) (*shopping.User, error)
	CreateUser(ctx context.Context, u shopping.NewUser) (*shopping.User, error)

	GetLists(ctx context.Context, userID int64) ([]shopping.ShoppingList, error)
	GetList(ctx context.Context, id int64) (*shopping.ShoppingList, error)
	CreateList(ctx context.Context, userID int64, l shopping.NewList) (*shopping.ShoppingList, error)
	UpdateList(ctx context.Context, id int64, p shopping.ListPatch) (*shopping.ShoppingList, error)
	DeleteList(ctx context.Context, id int64) error

	GetItems(ctx context.Context, listID int64) ([]shopping.ListItem, error)
	CreateItem(ctx context.Context, listID int64, it shopping.NewItem) (*shopping.ListItem, error)
	UpdateItem(ctx context.Context, id int64, p shopping.ItemPatch) (*shopping.ListItem, error)
	DeleteItem(ctx context.Context, id int64) error

	// Sessions exposes the session store used by the authentication layer.
	Sessions() session.Store

	Close() error
}

// Backend names a Storage implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendBack4App Backend = "back4app"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, bool) {
	switch b := Backend(s); b {
	case BackendMemory, BackendSQLite, BackendBack4App:
		return b, true
	}
	return "", false
}
