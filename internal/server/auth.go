package server

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/record"
	"github.com/roach88/lifeline/internal/store"
)

const tokenType = "bearer"

var errUnauthenticated = errors.New("not authenticated")

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "Password is required")
		return
	}
	role := api.RolePatient
	if req.UserType != "" {
		var err error
		if role, err = api.ParseRole(string(req.UserType)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Password cannot be used")
		return
	}
	id, err := uuid.NewV7()
	if err != nil {
		s.internalError(w, "register", err)
		return
	}
	u := store.User{
		ID:           id.String(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		FirstName:    record.Clean(req.FirstName),
		LastName:     record.Clean(req.LastName),
		Phone:        record.Clean(req.Phone),
		CreatedAt:    s.clock.Now(),
	}
	if role == api.RolePatient {
		u.Profile = &record.Profile{SubjectID: u.ID, Name: strings.TrimSpace(u.FirstName + " " + u.LastName)}
	}
	u, err = s.store.CreateUser(r.Context(), u)
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, http.StatusBadRequest, "Email already registered")
		return
	}
	if err != nil {
		s.internalError(w, "register", err)
		return
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("user_type", string(u.Role)))
	s.respondWithToken(w, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.store.UserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.internalError(w, "login", err)
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	s.respondWithToken(w, u)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.authenticate(r)
	if err != nil {
		s.authError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u.API())
}

func (s *Server) respondWithToken(w http.ResponseWriter, u store.User) {
	tok, err := uuid.NewV7()
	if err != nil {
		s.internalError(w, "issue token", err)
		return
	}
	s.mu.Lock()
	s.tokens[tok.String()] = u.ID
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, api.AuthResponse{
		AccessToken: tok.String(),
		TokenType:   tokenType,
		User:        u.API(),
	})
}

// bearer returns the token from the Authorization header, or "".
func bearer(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// authenticate resolves the request's bearer token to a user.
func (s *Server) authenticate(r *http.Request) (store.User, error) {
	tok := bearer(r)
	if tok == "" {
		return store.User{}, errUnauthenticated
	}
	s.mu.Lock()
	id, ok := s.tokens[tok]
	s.mu.Unlock()
	if !ok {
		return store.User{}, errUnauthenticated
	}
	u, err := s.store.UserByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, errUnauthenticated
	}
	return u, err
}

// optionalUser is authenticate for routes that also serve anonymous
// callers. A present but unknown token is still an error.
func (s *Server) optionalUser(r *http.Request) (*store.User, error) {
	if bearer(r) == "" {
		return nil, nil
	}
	u, err := s.authenticate(r)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Server) authError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUnauthenticated) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	s.internalError(w, "authenticate", err)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
