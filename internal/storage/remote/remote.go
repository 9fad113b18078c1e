// Package remote implements storage.Storage on a Parse server hosted by Back4App.
//
// Every entity carries a numeric localId next to the Parse objectId, and
// localIds are handed out by atomically incrementing one Sequence object per
// class. EnsureSchema must have run once against the application before the
// store can create entities.
package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"shopping-lists/internal/back4app"
	"shopping-lists/internal/session"
	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage"
)

const (
	classList     = "ShoppingList"
	classItem     = "ListItem"
	classSequence = "Sequence"

	fieldLocalID = "localId"

	// deleteParallelism bounds concurrent item deletes during a cascade.
	deleteParallelism = 4
)

// Store is a Parse-backed storage.Storage.
type Store struct {
	client   *back4app.Client
	logger   hclog.Logger
	sessions *session.MemoryStore

	// sequences caches the objectId of each class's Sequence object.
	mu        sync.Mutex
	sequences map[string]string
}

var _ storage.Storage = (*Store)(nil)

// New creates a Store on client. It does not touch the network.
func New(client *back4app.Client, logger hclog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		sessions:  session.NewMemoryStore(),
		sequences: make(map[string]string),
	}
}

func (s *Store) unavailable(op string, err error) error {
	s.logger.Warn("remote store request failed", "op", op, "error", err)
	return fmt.Errorf("%w: failed to %s: %w", storage.ErrUnavailable, op, err)
}

func byLocalID(id int64) back4app.Query {
	return back4app.Query{Where: map[string]any{fieldLocalID: id}}
}

func toUser(o back4app.Object) *shopping.User {
	return &shopping.User{
		ID:       o.Int64(fieldLocalID),
		Username: o.String("username"),
		Password: o.String("passwordHash"),
	}
}

func toList(o back4app.Object) (*shopping.ShoppingList, error) {
	date, err := shopping.ParseDate(o.String("date"))
	if err != nil {
		return nil, fmt.Errorf("list %d has a malformed date: %w", o.Int64(fieldLocalID), err)
	}
	return &shopping.ShoppingList{
		ID:          o.Int64(fieldLocalID),
		UserID:      o.Int64("userId"),
		Name:        o.String("name"),
		Date:        date,
		Description: o.StringPtr("description"),
	}, nil
}

func toItem(o back4app.Object) *shopping.ListItem {
	return &shopping.ListItem{
		ID:       o.Int64(fieldLocalID),
		ListID:   o.Int64("listId"),
		Name:     o.String("name"),
		Price:    o.Float64("price"),
		Quantity: int(o.Int64("quantity")),
	}
}

// nextID atomically allocates the next localId for class.
func (s *Store) nextID(ctx context.Context, class string) (int64, error) {
	s.mu.Lock()
	objectID, ok := s.sequences[class]
	s.mu.Unlock()

	if !ok {
		seq, err := s.client.First(ctx, classSequence, back4app.Query{Where: map[string]any{"name": class}})
		if err != nil {
			if back4app.IsCode(err, back4app.CodeInvalidClass) {
				return 0, storage.ErrSchemaNotInitialized
			}
			return 0, s.unavailable("find "+class+" sequence", err)
		}
		if seq == nil {
			return 0, fmt.Errorf("%w: no sequence for class %s", storage.ErrSchemaNotInitialized, class)
		}
		objectID = seq.ObjectID()

		s.mu.Lock()
		s.sequences[class] = objectID
		s.mu.Unlock()
	}

	id, err := s.client.Increment(ctx, classSequence, objectID, "value", 1)
	if err != nil {
		if back4app.IsCode(err, back4app.CodeObjectNotFound) {
			s.mu.Lock()
			delete(s.sequences, class)
			s.mu.Unlock()
			return 0, fmt.Errorf("%w: sequence for class %s was removed", storage.ErrSchemaNotInitialized, class)
		}
		return 0, s.unavailable("allocate "+class+" id", err)
	}
	return id, nil
}

func (s *Store) findUser(ctx context.Context, where map[string]any) (*shopping.User, error) {
	users, err := s.client.QueryUsers(ctx, back4app.Query{Where: where, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return toUser(users[0]), nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*shopping.User, error) {
	u, err := s.findUser(ctx, map[string]any{fieldLocalID: id})
	if err != nil {
		return nil, s.unavailable("get user", err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*shopping.User, error) {
	u, err := s.findUser(ctx, map[string]any{"username": username})
	if err != nil {
		return nil, s.unavailable("get user by username", err)
	}
	return u, nil
}

// CreateUser signs up a native Parse account. Its own password is a random
// secret; the caller's credential is kept in passwordHash.
func (s *Store) CreateUser(ctx context.Context, nu shopping.NewUser) (*shopping.User, error) {
	if err := nu.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.GetUserByUsername(ctx, nu.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, storage.ErrDuplicateUsername
	}

	id, err := s.nextID(ctx, back4app.UserClass)
	if err != nil {
		return nil, err
	}

	_, err = s.client.SignUp(ctx, nu.Username, uuid.NewString(), back4app.Object{
		fieldLocalID:   id,
		"passwordHash": nu.Password,
	})
	if err != nil {
		if back4app.IsCode(err, back4app.CodeUsernameTaken) {
			return nil, storage.ErrDuplicateUsername
		}
		return nil, s.unavailable("create user", err)
	}
	return &shopping.User{ID: id, Username: nu.Username, Password: nu.Password}, nil
}

func (s *Store) GetLists(ctx context.Context, userID int64) ([]shopping.ShoppingList, error) {
	objs, err := s.client.QueryAll(ctx, classList, back4app.Query{
		Where: map[string]any{"userId": userID},
		Order: fieldLocalID,
	})
	if err != nil {
		return nil, s.unavailable("list shopping lists", err)
	}

	lists := make([]shopping.ShoppingList, 0, len(objs))
	for _, o := range objs {
		l, err := toList(o)
		if err != nil {
			return nil, s.unavailable("decode shopping list", err)
		}
		lists = append(lists, *l)
	}
	return lists, nil
}

func (s *Store) findList(ctx context.Context, id int64) (back4app.Object, error) {
	return s.client.First(ctx, classList, byLocalID(id))
}

func (s *Store) GetList(ctx context.Context, id int64) (*shopping.ShoppingList, error) {
	obj, err := s.findList(ctx, id)
	if err != nil {
		return nil, s.unavailable("get shopping list", err)
	}
	if obj == nil {
		return nil, nil
	}
	l, err := toList(obj)
	if err != nil {
		return nil, s.unavailable("decode shopping list", err)
	}
	return l, nil
}

func (s *Store) CreateList(ctx context.Context, userID int64, nl shopping.NewList) (*shopping.ShoppingList, error) {
	if err := nl.Validate(); err != nil {
		return nil, err
	}

	owner, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, storage.ErrMissingOwner
	}

	id, err := s.nextID(ctx, classList)
	if err != nil {
		return nil, err
	}

	fields := back4app.Object{
		fieldLocalID: id,
		"userId":     userID,
		"name":       nl.Name,
		"date":       nl.Date.String(),
	}
	if nl.Description != nil {
		fields["description"] = *nl.Description
	}
	if _, err := s.client.Create(ctx, classList, fields); err != nil {
		return nil, s.unavailable("create shopping list", err)
	}

	l := &shopping.ShoppingList{ID: id, UserID: userID, Name: nl.Name, Date: nl.Date}
	if nl.Description != nil {
		desc := *nl.Description
		l.Description = &desc
	}
	return l, nil
}

// UpdateList sends only the patched fields.
func (s *Store) UpdateList(ctx context.Context, id int64, p shopping.ListPatch) (*shopping.ShoppingList, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	obj, err := s.findList(ctx, id)
	if err != nil {
		return nil, s.unavailable("get shopping list", err)
	}
	if obj == nil {
		return nil, nil
	}
	existing, err := toList(obj)
	if err != nil {
		return nil, s.unavailable("decode shopping list", err)
	}

	fields := back4app.Object{}
	if p.Name != nil {
		fields["name"] = *p.Name
	}
	if p.Date != nil {
		fields["date"] = p.Date.String()
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if len(fields) > 0 {
		if _, err := s.client.Update(ctx, classList, obj.ObjectID(), fields); err != nil {
			return nil, s.unavailable("update shopping list", err)
		}
	}

	merged := p.Apply(*existing)
	return &merged, nil
}

// DeleteList removes the list and then its items. Item deletes run
// concurrently and every failure is reported.
func (s *Store) DeleteList(ctx context.Context, id int64) error {
	obj, err := s.findList(ctx, id)
	if err != nil {
		return s.unavailable("get shopping list", err)
	}
	if obj != nil {
		if err := s.client.Delete(ctx, classList, obj.ObjectID()); err != nil {
			return s.unavailable("delete shopping list", err)
		}
	}

	// Items are swept even when the list is already gone so that a cascade
	// interrupted earlier is finished by a retry.
	items, err := s.client.QueryAll(ctx, classItem, back4app.Query{
		Where: map[string]any{"listId": id},
		Keys:  []string{fieldLocalID},
	})
	if err != nil {
		return s.unavailable("list items of deleted list", err)
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteParallelism)
	for _, item := range items {
		g.Go(func() error {
			if err := s.client.Delete(gctx, classItem, item.ObjectID()); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("item %d: %w", item.Int64(fieldLocalID), err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if err := result.ErrorOrNil(); err != nil {
		return s.unavailable(fmt.Sprintf("delete items of list %d", id), err)
	}
	if len(items) > 0 {
		s.logger.Debug("cascade deleted items", "list", id, "count", len(items))
	}
	return nil
}

func (s *Store) GetItems(ctx context.Context, listID int64) ([]shopping.ListItem, error) {
	objs, err := s.client.QueryAll(ctx, classItem, back4app.Query{
		Where: map[string]any{"listId": listID},
		Order: fieldLocalID,
	})
	if err != nil {
		return nil, s.unavailable("list items", err)
	}

	items := make([]shopping.ListItem, 0, len(objs))
	for _, o := range objs {
		items = append(items, *toItem(o))
	}
	return items, nil
}

func (s *Store) CreateItem(ctx context.Context, listID int64, ni shopping.NewItem) (*shopping.ListItem, error) {
	if err := ni.Validate(); err != nil {
		return nil, err
	}

	list, err := s.findList(ctx, listID)
	if err != nil {
		return nil, s.unavailable("get shopping list", err)
	}
	if list == nil {
		return nil, storage.ErrMissingOwner
	}

	id, err := s.nextID(ctx, classItem)
	if err != nil {
		return nil, err
	}

	_, err = s.client.Create(ctx, classItem, back4app.Object{
		fieldLocalID: id,
		"listId":     listID,
		"name":       ni.Name,
		"price":      ni.Price,
		"quantity":   ni.Quantity,
	})
	if err != nil {
		return nil, s.unavailable("create item", err)
	}
	return &shopping.ListItem{ID: id, ListID: listID, Name: ni.Name, Price: ni.Price, Quantity: ni.Quantity}, nil
}

func (s *Store) UpdateItem(ctx context.Context, id int64, p shopping.ItemPatch) (*shopping.ListItem, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	obj, err := s.client.First(ctx, classItem, byLocalID(id))
	if err != nil {
		return nil, s.unavailable("get item", err)
	}
	if obj == nil {
		return nil, nil
	}

	fields := back4app.Object{}
	if p.Name != nil {
		fields["name"] = *p.Name
	}
	if p.Price != nil {
		fields["price"] = *p.Price
	}
	if p.Quantity != nil {
		fields["quantity"] = *p.Quantity
	}
	if len(fields) > 0 {
		if _, err := s.client.Update(ctx, classItem, obj.ObjectID(), fields); err != nil {
			return nil, s.unavailable("update item", err)
		}
	}

	merged := p.Apply(*toItem(obj))
	return &merged, nil
}

func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	obj, err := s.client.First(ctx, classItem, byLocalID(id))
	if err != nil {
		return s.unavailable("get item", err)
	}
	if obj == nil {
		return nil
	}
	if err := s.client.Delete(ctx, classItem, obj.ObjectID()); err != nil {
		return s.unavailable("delete item", err)
	}
	return nil
}

func (s *Store) Sessions() session.Store {
	return s.sessions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (s *Store) Close() error {
	return nil
}
