package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"shopping-lists/internal/shopping"
)

// snapshotUser mirrors shopping.User but keeps the credential, which the
// API representation omits.
type snapshotUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Snapshot is the serialisable representation of a Store.
type Snapshot struct {
	Users      []snapshotUser          `json:"users"`
	Lists      []shopping.ShoppingList `json:"lists"`
	Items      []shopping.ListItem     `json:"items"`
	NextUserID int64                   `json:"next_user_id"`
	NextListID int64                   `json:"next_list_id"`
	NextItemID int64                   `json:"next_item_id"`
}

// SaveSnapshot writes the store contents to path. Concurrent writers from
// other processes are excluded through a lock file next to path.
func (s *Store) SaveSnapshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock snapshot %s: %w", path, err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(s.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the store contents with the snapshot at path.
// A missing file leaves the store untouched and is not an error.
func (s *Store) LoadSnapshot(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("failed to lock snapshot %s: %w", path, err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	s.restore(snap)
	return nil
}

func (s *Store) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Users:      make([]snapshotUser, 0, len(s.users)),
		Lists:      make([]shopping.ShoppingList, 0, len(s.lists)),
		Items:      make([]shopping.ListItem, 0, len(s.items)),
		NextUserID: s.nextUserID,
		NextListID: s.nextListID,
		NextItemID: s.nextItemID,
	}
	for _, u := range s.users {
		snap.Users = append(snap.Users, snapshotUser{ID: u.ID, Username: u.Username, Password: u.Password})
	}
	for _, l := range s.lists {
		snap.Lists = append(snap.Lists, cloneList(l))
	}
	for _, it := range s.items {
		snap.Items = append(snap.Items, it)
	}
	return snap
}

func (s *Store) restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[int64]shopping.User, len(snap.Users))
	s.lists = make(map[int64]shopping.ShoppingList, len(snap.Lists))
	s.items = make(map[int64]shopping.ListItem, len(snap.Items))
	s.nextUserID, s.nextListID, s.nextItemID = 1, 1, 1

	for _, u := range snap.Users {
		s.users[u.ID] = shopping.User{ID: u.ID, Username: u.Username, Password: u.Password}
		s.nextUserID = max(s.nextUserID, u.ID+1)
	}
	for _, l := range snap.Lists {
		s.lists[l.ID] = l
		s.nextListID = max(s.nextListID, l.ID+1)
	}
	for _, it := range snap.Items {
		s.items[it.ID] = it
		s.nextItemID = max(s.nextItemID, it.ID+1)
	}

	// Counters never move backwards, even if the newest rows were deleted
	// before the snapshot was taken.
	s.nextUserID = max(s.nextUserID, snap.NextUserID)
	s.nextListID = max(s.nextListID, snap.NextListID)
	s.nextItemID = max(s.nextItemID, snap.NextItemID)
}
