package api

import (
	"net/http"

	"shopping-lists/internal/shopping"
)

func (s *Server) handleGetLists(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	lists, err := s.store.GetLists(r.Context(), user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var nl shopping.NewList
	if !decodeBody(w, r, &nl) {
		return
	}
	list, err := s.store.CreateList(r.Context(), user.ID, nl)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (s *Server) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	list, ok := s.ownedList(w, r, "id")
	if !ok {
		return
	}
	var p shopping.ListPatch
	if !decodeBody(w, r, &p) {
		return
	}
	updated, err := s.store.UpdateList(r.Context(), list.ID, p)
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

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	list, ok := s.ownedList(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteList(r.Context(), list.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeStatus(w, http.StatusOK)
}
