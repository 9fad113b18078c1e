// Package memory implements storage.Storage on process-local maps.
package memory

import (
	"context"
	"slices"
	"sync"

	"shopping-lists/internal/session"
	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage"
)

// Store keeps users, lists and items in maps keyed by ID. A single lock
// covers the maps and the ID counters so that allocating an ID and inserting
// the entity is one atomic step.
type Store struct {
	mu sync.RWMutex

	users map[int64]shopping.User
	lists map[int64]shopping.ShoppingList
	items map[int64]shopping.ListItem

	nextUserID int64
	nextListID int64
	nextItemID int64

	sessions *session.MemoryStore
}

var _ storage.Storage = (*Store)(nil)

// New creates an empty Store with all counters seeded at 1.
func New() *Store {
	return &Store{
		users:      make(map[int64]shopping.User),
		lists:      make(map[int64]shopping.ShoppingList),
		items:      make(map[int64]shopping.ListItem),
		nextUserID: 1,
		nextListID: 1,
		nextItemID: 1,
		sessions:   session.NewMemoryStore(),
	}
}

func (s *Store) GetUser(_ context.Context, id int64) (*shopping.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*shopping.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateUser(_ context.Context, nu shopping.NewUser) (*shopping.User, error) {
	if err := nu.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == nu.Username {
			return nil, storage.ErrDuplicateUsername
		}
	}

	u := shopping.User{ID: s.nextUserID, Username: nu.Username, Password: nu.Password}
	s.nextUserID++
	s.users[u.ID] = u
	return &u, nil
}

func (s *Store) GetLists(_ context.Context, userID int64) ([]shopping.ShoppingList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lists := []shopping.ShoppingList{}
	for _, l := range s.lists {
		if l.UserID == userID {
			lists = append(lists, cloneList(l))
		}
	}
	slices.SortFunc(lists, func(a, b shopping.ShoppingList) int { return cmpID(a.ID, b.ID) })
	return lists, nil
}

func (s *Store) GetList(_ context.Context, id int64) (*shopping.ShoppingList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lists[id]
	if !ok {
		return nil, nil
	}
	l = cloneList(l)
	return &l, nil
}

func (s *Store) CreateList(_ context.Context, userID int64, nl shopping.NewList) (*shopping.ShoppingList, error) {
	if err := nl.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, storage.ErrMissingOwner
	}

	l := cloneList(shopping.ShoppingList{
		ID:          s.nextListID,
		UserID:      userID,
		Name:        nl.Name,
		Date:        nl.Date,
		Description: nl.Description,
	})
	s.nextListID++
	s.lists[l.ID] = l

	out := cloneList(l)
	return &out, nil
}

func (s *Store) UpdateList(_ context.Context, id int64, p shopping.ListPatch) (*shopping.ShoppingList, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.lists[id]
	if !ok {
		return nil, nil
	}
	updated := p.Apply(existing)
	s.lists[id] = updated

	out := cloneList(updated)
	return &out, nil
}

// DeleteList removes the list and every item that belongs to it under one lock.
func (s *Store) DeleteList(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.lists, id)
	for itemID, it := range s.items {
		if it.ListID == id {
			delete(s.items, itemID)
		}
	}
	return nil
}

func (s *Store) GetItems(_ context.Context, listID int64) ([]shopping.ListItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := []shopping.ListItem{}
	for _, it := range s.items {
		if it.ListID == listID {
			items = append(items, it)
		}
	}
	slices.SortFunc(items, func(a, b shopping.ListItem) int { return cmpID(a.ID, b.ID) })
	return items, nil
}

func (s *Store) CreateItem(_ context.Context, listID int64, ni shopping.NewItem) (*shopping.ListItem, error) {
	if err := ni.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[listID]; !ok {
		return nil, storage.ErrMissingOwner
	}

	it := shopping.ListItem{
		ID:       s.nextItemID,
		ListID:   listID,
		Name:     ni.Name,
		Price:    ni.Price,
		Quantity: ni.Quantity,
	}
	s.nextItemID++
	s.items[it.ID] = it
	return &it, nil
}

func (s *Store) UpdateItem(_ context.Context, id int64, p shopping.ItemPatch) (*shopping.ListItem, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	updated := p.Apply(existing)
	s.items[id] = updated
	return &updated, nil
}

func (s *Store) DeleteItem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *Store) Sessions() session.Store {
	return s.sessions
}

func (s *Store) Close() error {
	return nil
}

func cloneList(l shopping.ShoppingList) shopping.ShoppingList {
	if l.Description != nil {
		d := *l.Description
		l.Description = &d
	}
	return l
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
