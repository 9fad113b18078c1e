// Package sqlstore implements storage.Storage on a migrated SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"shopping-lists/internal/session"
	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage"
)

// Store is a database-backed storage.Storage.
type Store struct {
	db       *sql.DB
	sessions sessionStore
}

var _ storage.Storage = (*Store)(nil)

// New creates a Store on d. The schema must already be migrated.
func New(d *sql.DB) *Store {
	return &Store{
		db:       d,
		sessions: sessionStore{repo: session.NewRepository(d)},
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", storage.ErrUnavailable, op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*shopping.User, error) {
	var u shopping.User
	if err := row.Scan(&u.ID, &u.Username, &u.Password); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanList(row rowScanner) (*shopping.ShoppingList, error) {
	var (
		l    shopping.ShoppingList
		desc sql.NullString
	)
	if err := row.Scan(&l.ID, &l.UserID, &l.Name, &l.Date, &desc); err != nil {
		return nil, err
	}
	if desc.Valid {
		l.Description = &desc.String
	}
	return &l, nil
}

func scanItem(row rowScanner) (*shopping.ListItem, error) {
	var it shopping.ListItem
	if err := row.Scan(&it.ID, &it.ListID, &it.Name, &it.Price, &it.Quantity); err != nil {
		return nil, err
	}
	return &it, nil
}

const (
	selectUser = `SELECT id, username, password FROM users`
	selectList = `SELECT id, user_id, name, date, description FROM shopping_lists`
	selectItem = `SELECT id, list_id, name, price, quantity FROM list_items`
)

func (s *Store) GetUser(ctx context.Context, id int64) (*shopping.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("get user", err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*shopping.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE username = ?`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("get user by username", err)
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, nu shopping.NewUser) (*shopping.User, error) {
	if err := nu.Validate(); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO users (username, password) VALUES (?, ?)`, nu.Username, nu.Password)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrDuplicateUsername
		}
		return nil, unavailable("insert user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, unavailable("read user id", err)
	}
	return &shopping.User{ID: id, Username: nu.Username, Password: nu.Password}, nil
}

func (s *Store) GetLists(ctx context.Context, userID int64) ([]shopping.ShoppingList, error) {
	rows, err := s.db.QueryContext(ctx, selectList+` WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, unavailable("list shopping lists", err)
	}
	defer rows.Close()

	lists := []shopping.ShoppingList{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, unavailable("scan shopping list", err)
		}
		lists = append(lists, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list shopping lists", err)
	}
	return lists, nil
}

func (s *Store) GetList(ctx context.Context, id int64) (*shopping.ShoppingList, error) {
	l, err := scanList(s.db.QueryRowContext(ctx, selectList+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("get shopping list", err)
	}
	return l, nil
}

func (s *Store) CreateList(ctx context.Context, userID int64, nl shopping.NewList) (*shopping.ShoppingList, error) {
	if err := nl.Validate(); err != nil {
		return nil, err
	}

	var created *shopping.ShoppingList
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if ok, err := exists(ctx, tx, `SELECT 1 FROM users WHERE id = ?`, userID); err != nil {
			return err
		} else if !ok {
			return storage.ErrMissingOwner
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO shopping_lists (user_id, name, date, description) VALUES (?, ?, ?, ?)`,
			userID, nl.Name, nl.Date, nullString(nl.Description),
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		created, err = scanList(tx.QueryRowContext(ctx, selectList+` WHERE id = ?`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrMissingOwner) {
			return nil, err
		}
		return nil, unavailable("insert shopping list", err)
	}
	return created, nil
}

func (s *Store) UpdateList(ctx context.Context, id int64, p shopping.ListPatch) (*shopping.ShoppingList, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var updated *shopping.ShoppingList
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanList(tx.QueryRowContext(ctx, selectList+` WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		merged := p.Apply(*existing)
		_, err = tx.ExecContext(ctx,
			`UPDATE shopping_lists SET name = ?, date = ?, description = ? WHERE id = ?`,
			merged.Name, merged.Date, nullString(merged.Description), id,
		)
		if err != nil {
			return err
		}
		updated = &merged
		return nil
	})
	if err != nil {
		return nil, unavailable("update shopping list", err)
	}
	return updated, nil
}

// DeleteList removes the list and its items in one transaction.
func (s *Store) DeleteList(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM list_items WHERE list_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM shopping_lists WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return unavailable("delete shopping list", err)
	}
	return nil
}

func (s *Store) GetItems(ctx context.Context, listID int64) ([]shopping.ListItem, error) {
	rows, err := s.db.QueryContext(ctx, selectItem+` WHERE list_id = ? ORDER BY id`, listID)
	if err != nil {
		return nil, unavailable("list items", err)
	}
	defer rows.Close()

	items := []shopping.ListItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, unavailable("scan item", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list items", err)
	}
	return items, nil
}

func (s *Store) CreateItem(ctx context.Context, listID int64, ni shopping.NewItem) (*shopping.ListItem, error) {
	if err := ni.Validate(); err != nil {
		return nil, err
	}

	var created *shopping.ListItem
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if ok, err := exists(ctx, tx, `SELECT 1 FROM shopping_lists WHERE id = ?`, listID); err != nil {
			return err
		} else if !ok {
			return storage.ErrMissingOwner
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO list_items (list_id, name, price, quantity) VALUES (?, ?, ?, ?)`,
			listID, ni.Name, ni.Price, ni.Quantity,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		created = &shopping.ListItem{ID: id, ListID: listID, Name: ni.Name, Price: ni.Price, Quantity: ni.Quantity}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrMissingOwner) {
			return nil, err
		}
		return nil, unavailable("insert item", err)
	}
	return created, nil
}

func (s *Store) UpdateItem(ctx context.Context, id int64, p shopping.ItemPatch) (*shopping.ListItem, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var updated *shopping.ListItem
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanItem(tx.QueryRowContext(ctx, selectItem+` WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		merged := p.Apply(*existing)
		_, err = tx.ExecContext(ctx,
			`UPDATE list_items SET name = ?, price = ?, quantity = ? WHERE id = ?`,
			merged.Name, merged.Price, merged.Quantity, id,
		)
		if err != nil {
			return err
		}
		updated = &merged
		return nil
	})
	if err != nil {
		return nil, unavailable("update item", err)
	}
	return updated, nil
}

func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM list_items WHERE id = ?`, id); err != nil {
		return unavailable("delete item", err)
	}
	return nil
}

func (s *Store) Sessions() session.Store {
	return s.sessions
}

// sessionStore reports database failures of the session table as
// storage.ErrUnavailable, like every other operation of the store.
type sessionStore struct {
	repo *session.Repository
}

func (ss sessionStore) Create(ctx context.Context, userID int64, ttl time.Duration) (*session.Session, error) {
	sess, err := ss.repo.Create(ctx, userID, ttl)
	if err != nil {
		return nil, unavailable("create session", err)
	}
	return sess, nil
}

func (ss sessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	sess, err := ss.repo.Get(ctx, id)
	if err != nil {
		return nil, unavailable("get session", err)
	}
	return sess, nil
}

func (ss sessionStore) Delete(ctx context.Context, id string) error {
	if err := ss.repo.Delete(ctx, id); err != nil {
		return unavailable("delete session", err)
	}
	return nil
}

func (ss sessionStore) CleanupExpired(ctx context.Context) (int, error) {
	n, err := ss.repo.CleanupExpired(ctx)
	if err != nil {
		return 0, unavailable("clean up sessions", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func exists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
