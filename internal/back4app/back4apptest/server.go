// Package back4apptest provides an in-memory Parse server for tests.
package back4apptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	AppID     = "test-app"
	ClientKey = "test-client"
	MasterKey = "test-master"
)

// Server is a fake Parse server supporting the subset of the REST API the
// back4app client uses: class CRUD, equality queries, atomic increments,
// user signup and schemas.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	classes map[string]map[string]map[string]any
	schemas map[string]map[string]string
	nextID  int

	// Down makes every request fail with 503 when set.
	Down atomic.Bool
	// Requests counts handled requests.
	Requests atomic.Int64
}

// NewServer starts a fake server. It is closed when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		classes: make(map[string]map[string]map[string]any),
		schemas: map[string]map[string]string{
			"_User": {"username": "String", "password": "String"},
		},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Objects returns a copy of every stored object of class.
func (s *Server) Objects(class string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, obj := range s.classes[class] {
		out = append(out, copyObject(obj))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, map[string]any{"code": code, "error": msg})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.Requests.Add(1)
	if s.Down.Load() {
		writeError(w, http.StatusServiceUnavailable, 1, "service unavailable")
		return
	}
	if r.Header.Get("X-Parse-Application-Id") != AppID || r.Header.Get("X-Parse-Master-Key") != MasterKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case parts[0] == "schemas" && len(parts) == 2:
		s.handleSchema(w, r, parts[1])
	case parts[0] == "users":
		s.handleClass(w, r, "_User", parts[1:])
	case parts[0] == "classes" && len(parts) >= 2:
		s.handleClass(w, r, parts[1], parts[2:])
	default:
		writeError(w, http.StatusNotFound, 100, "unknown route "+r.URL.Path)
	}
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request, class string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var body struct {
		Fields map[string]struct {
			Type string `json:"type"`
		} `json:"fields"`
	}
	if r.Method != http.MethodGet {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, 107, "invalid JSON")
			return
		}
	}

	fields, ok := s.schemas[class]
	switch r.Method {
	case http.MethodGet:
		if !ok {
			writeError(w, http.StatusBadRequest, 103, fmt.Sprintf("Class %s does not exist.", class))
			return
		}
		writeJSON(w, http.StatusOK, schemaBody(class, fields))
	case http.MethodPost:
		if ok {
			writeError(w, http.StatusBadRequest, 103, fmt.Sprintf("Class %s already exists.", class))
			return
		}
		fields = make(map[string]string)
		for name, f := range body.Fields {
			fields[name] = f.Type
		}
		s.schemas[class] = fields
		writeJSON(w, http.StatusOK, schemaBody(class, fields))
	case http.MethodPut:
		if !ok {
			writeError(w, http.StatusBadRequest, 103, fmt.Sprintf("Class %s does not exist.", class))
			return
		}
		for name, f := range body.Fields {
			if _, exists := fields[name]; exists {
				writeError(w, http.StatusBadRequest, 255, fmt.Sprintf("Field %s exists, cannot update.", name))
				return
			}
			fields[name] = f.Type
		}
		writeJSON(w, http.StatusOK, schemaBody(class, fields))
	default:
		writeError(w, http.StatusMethodNotAllowed, 100, "method not allowed")
	}
}

func schemaBody(class string, fields map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for name, typ := range fields {
		out[name] = map[string]string{"type": typ}
	}
	return map[string]any{"className": class, "fields": out}
}

func (s *Server) handleClass(w http.ResponseWriter, r *http.Request, class string, rest []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	objects := s.classes[class]
	if objects == nil {
		objects = make(map[string]map[string]any)
		s.classes[class] = objects
	}

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			s.query(w, r, objects)
		case http.MethodPost:
			s.create(w, r, class, objects)
		default:
			writeError(w, http.StatusMethodNotAllowed, 100, "method not allowed")
		}
		return
	}

	id := rest[0]
	obj, ok := objects[id]
	if !ok {
		writeError(w, http.StatusNotFound, 101, "Object not found.")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, publicObject(obj))
	case http.MethodPut:
		s.update(w, r, obj)
	case http.MethodDelete:
		delete(objects, id)
		writeJSON(w, http.StatusOK, map[string]any{})
	default:
		writeError(w, http.StatusMethodNotAllowed, 100, "method not allowed")
	}
}

func (s *Server) query(w http.ResponseWriter, r *http.Request, objects map[string]map[string]any) {
	q := r.URL.Query()

	var where map[string]any
	if raw := q.Get("where"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &where); err != nil {
			writeError(w, http.StatusBadRequest, 102, "invalid where")
			return
		}
	}

	var results []map[string]any
	for _, obj := range objects {
		if matches(obj, where) {
			results = append(results, obj)
		}
	}

	order := q.Get("order")
	desc := strings.HasPrefix(order, "-")
	field := strings.TrimPrefix(order, "-")
	if field == "" {
		field = "createdAt"
	}
	sort.SliceStable(results, func(i, j int) bool {
		c := compare(results[i][field], results[j][field])
		if desc {
			return c > 0
		}
		return c < 0
	})

	skip, _ := strconv.Atoi(q.Get("skip"))
	limit := 100
	if v := q.Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	if skip > len(results) {
		skip = len(results)
	}
	results = results[skip:]
	if limit < len(results) {
		results = results[:limit]
	}

	out := make([]map[string]any, 0, len(results))
	for _, obj := range results {
		out = append(out, publicObject(obj))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, class string, objects map[string]map[string]any) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, 107, "invalid JSON")
		return
	}

	if class == "_User" {
		username, _ := fields["username"].(string)
		if username == "" {
			writeError(w, http.StatusBadRequest, 200, "bad or missing username")
			return
		}
		for _, existing := range objects {
			if existing["username"] == username {
				writeError(w, http.StatusBadRequest, 202, "Account already exists for this username.")
				return
			}
		}
	}

	s.nextID++
	id := fmt.Sprintf("obj%06d", s.nextID)
	fields["objectId"] = id
	fields["createdAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	objects[id] = fields
	writeJSON(w, http.StatusCreated, map[string]any{"objectId": id, "createdAt": fields["createdAt"]})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, obj map[string]any) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, 107, "invalid JSON")
		return
	}

	resp := map[string]any{"updatedAt": time.Now().UTC().Format(time.RFC3339Nano)}
	for name, v := range fields {
		op, isOp := v.(map[string]any)
		if isOp && op["__op"] == "Increment" {
			current, _ := obj[name].(float64)
			amount, _ := op["amount"].(float64)
			obj[name] = current + amount
			resp[name] = obj[name]
			continue
		}
		if isOp && op["__op"] == "Delete" {
			delete(obj, name)
			continue
		}
		obj[name] = v
	}
	writeJSON(w, http.StatusOK, resp)
}

func matches(obj, where map[string]any) bool {
	for k, want := range where {
		if compare(obj[k], want) != 0 {
			return false
		}
	}
	return true
}

func compare(a, b any) int {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return -1
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv, ok := b.(string)
		if !ok {
			return -1
		}
		return strings.Compare(av, bv)
	case nil:
		if b == nil {
			return 0
		}
		return -1
	}
	if fmt.Sprint(a) == fmt.Sprint(b) {
		return 0
	}
	return 1
}

func publicObject(obj map[string]any) map[string]any {
	out := copyObject(obj)
	delete(out, "password")
	return out
}

func copyObject(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}
