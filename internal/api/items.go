package api

import (
	"net/http"

	"shopping-lists/internal/shopping"
)

func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request) {
	list, ok := s.ownedList(w, r, "id")
	if !ok {
		return
	}
	items, err := s.store.GetItems(r.Context(), list.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	list, ok := s.ownedList(w, r, "id")
	if !ok {
		return
	}
	var ni shopping.NewItem
	if !decodeBody(w, r, &ni) {
		return
	}
	item, err := s.store.CreateItem(r.Context(), list.ID, ni)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// listItem resolves the item in the path, which must belong to the path's list.
func (s *Server) listItem(w http.ResponseWriter, r *http.Request) (*shopping.ListItem, bool) {
	list, ok := s.ownedList(w, r, "listId")
	if !ok {
		return nil, false
	}
	itemID, ok := pathID(w, r, "itemId")
	if !ok {
		return nil, false
	}

	items, err := s.store.GetItems(r.Context(), list.ID)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	for i := range items {
		if items[i].ID == itemID {
			return &items[i], true
		}
	}
	writeStatus(w, http.StatusNotFound)
	return nil, false
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.listItem(w, r)
	if !ok {
		return
	}
	var p shopping.ItemPatch
	if !decodeBody(w, r, &p) {
		return
	}
	updated, err := s.store.UpdateItem(r.Context(), item.ID, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if updated == nil {
		writeStatus(w, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.listItem(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteItem(r.Context(), item.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeStatus(w, http.StatusOK)
}
