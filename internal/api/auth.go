package api

import (
	"net/http"

	"shopping-lists/internal/auth"
	"shopping-lists/internal/shopping"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	*shopping.User
	Token string `json:"token"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, status int, user *shopping.User) {
	token, sess, err := s.auth.Issue(r.Context(), user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	auth.SetCookie(w, r, token, sess.ExpiresAt)
	writeJSON(w, status, authResponse{User: user, Token: token})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !decodeBody(w, r, &c) {
		return
	}
	nu := shopping.NewUser{Username: c.Username, Password: c.Password}
	if err := nu.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}

	hash, err := auth.HashPassword(c.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.store.CreateUser(r.Context(), shopping.NewUser{Username: c.Username, Password: hash})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("user registered", "user", user.ID)
	s.startSession(w, r, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !decodeBody(w, r, &c) {
		return
	}
	user, err := s.auth.Login(r.Context(), c.Username, c.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if user == nil {
		writeStatus(w, http.StatusUnauthorized)
		return
	}
	s.startSession(w, r, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := auth.SessionFrom(r.Context()); ok {
		if err := s.auth.Revoke(r.Context(), sess.ID); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	auth.ClearCookie(w)
	writeStatus(w, http.StatusOK)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}
