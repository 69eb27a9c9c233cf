package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/fault"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fakeAuth(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Email != "demo@patient.com" || req.Password != "demo123" {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Detail: "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, api.AuthResponse{
			AccessToken: "tok-1",
			TokenType:   "bearer",
			User: api.User{
				UserID:    "demo-patient-1",
				Email:     req.Email,
				UserType:  api.RolePatient,
				FirstName: "Alex",
				LastName:  "Patient",
			},
		})
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Detail: "Email already registered"})
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Detail: "Not authenticated"})
			return
		}
		writeJSON(w, http.StatusOK, api.User{UserID: "demo-patient-1", UserType: api.RolePatient})
	})
	mux.HandleFunc("GET /auth/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Detail: "down"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLogin(t *testing.T) {
	srv := fakeAuth(t)
	c := New(Options{BaseURL: srv.URL})

	resp, err := c.Login(context.Background(), "demo@patient.com", "demo123")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", resp.AccessToken)
	assert.Equal(t, api.RolePatient, resp.UserType)
	assert.Equal(t, "Alex Patient", resp.DisplayName())
}

func TestLoginRejected(t *testing.T) {
	srv := fakeAuth(t)
	c := New(Options{BaseURL: srv.URL})

	_, err := c.Login(context.Background(), "demo@patient.com", "wrong")
	require.Error(t, err)
	assert.True(t, fault.IsAuthRejected(err))
	assert.Contains(t, err.Error(), "Invalid credentials")
	assert.False(t, fault.IsNetworkUnreachable(err))
}

func TestRegisterDuplicate(t *testing.T) {
	srv := fakeAuth(t)
	c := New(Options{BaseURL: srv.URL})

	_, err := c.Register(context.Background(), api.RegisterRequest{Email: "demo@patient.com"})
	assert.True(t, fault.IsAuthRejected(err))
	assert.Contains(t, err.Error(), "Email already registered")
}

func TestMe(t *testing.T) {
	srv := fakeAuth(t)
	c := New(Options{BaseURL: srv.URL})

	u, err := c.Me(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "demo-patient-1", u.UserID)

	_, err = c.Me(context.Background(), "other")
	assert.True(t, fault.IsAuthRejected(err))
}

func TestServerErrorIsUnreachable(t *testing.T) {
	srv := fakeAuth(t)
	c := New(Options{BaseURL: srv.URL})

	err := c.Health(context.Background())
	assert.True(t, fault.IsNetworkUnreachable(err))
}

func TestTransportErrorIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Options{BaseURL: url, Timeout: time.Second})
	_, err := c.Login(context.Background(), "a", "b")
	require.Error(t, err)
	assert.True(t, fault.IsNetworkUnreachable(err))
	assert.True(t, fault.Recoverable(fault.KindNetworkUnreachable))
}

func TestCancelledContext(t *testing.T) {
	srv := fakeAuth(t)
	c := New(Options{BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Login(ctx, "demo@patient.com", "demo123")
	assert.ErrorIs(t, err, context.Canceled)
}
