// Package api serves the shopping list HTTP interface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"

	"shopping-lists/internal/auth"
	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server routes API requests to the active store. Ownership checks live
// here; stores know nothing about who is calling.
type Server struct {
	store    storage.Storage
	auth     *auth.Manager
	logger   hclog.Logger
	backend  storage.Backend
	dataPath string
}

// Option configures a Server.
type Option func(*Server)

// WithHealthInfo sets what the health endpoint reports about the store.
func WithHealthInfo(backend storage.Backend, dataPath string) Option {
	return func(s *Server) {
		s.backend = backend
		s.dataPath = dataPath
	}
}

// NewServer creates a Server.
func NewServer(store storage.Storage, authMgr *auth.Manager, logger hclog.Logger, opts ...Option) *Server {
	s := &Server{
		store:  store,
		auth:   authMgr,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with identity and logging middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.logRequests(s.auth.Middleware(mux))
}

// RegisterRoutes adds every API route to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/user", s.handleUser)

	mux.HandleFunc("GET /api/lists", s.handleGetLists)
	mux.HandleFunc("POST /api/lists", s.handleCreateList)
	mux.HandleFunc("PATCH /api/lists/{id}", s.handleUpdateList)
	mux.HandleFunc("DELETE /api/lists/{id}", s.handleDeleteList)

	mux.HandleFunc("GET /api/lists/{id}/items", s.handleGetItems)
	mux.HandleFunc("POST /api/lists/{id}/items", s.handleCreateItem)
	mux.HandleFunc("PATCH /api/lists/{listId}/items/{itemId}", s.handleUpdateItem)
	mux.HandleFunc("DELETE /api/lists/{listId}/items/{itemId}", s.handleDeleteItem)

	mux.HandleFunc("GET /api/health", s.handleHealth)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// fail maps a store or validation error to a response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *shopping.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrMissingOwner):
		writeStatus(w, http.StatusNotFound)
	case errors.Is(err, storage.ErrDuplicateUsername):
		http.Error(w, "Username already exists", http.StatusBadRequest)
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, storage.ErrSchemaNotInitialized):
		s.logger.Error("store failure", "method", r.Method, "path", r.URL.Path, "error", err)
		writeStatus(w, http.StatusServiceUnavailable)
	default:
		s.logger.Error("unexpected failure", "method", r.Method, "path", r.URL.Path, "error", err)
		writeStatus(w, http.StatusInternalServerError)
	}
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (*shopping.User, bool) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
		return nil, false
	}
	return user, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// ownedList authenticates the caller and loads the list named by the path
// parameter, answering 401, 400, 404 or 403 itself when it cannot.
func (s *Server) ownedList(w http.ResponseWriter, r *http.Request, param string) (*shopping.ShoppingList, bool) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return nil, false
	}
	id, ok := pathID(w, r, param)
	if !ok {
		return nil, false
	}

	list, err := s.store.GetList(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if list == nil {
		writeStatus(w, http.StatusNotFound)
		return nil, false
	}
	if list.UserID != user.ID {
		writeStatus(w, http.StatusForbidden)
		return nil, false
	}
	return list, true
}
