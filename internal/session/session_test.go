package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/testutil"
)

type fakeAuth struct {
	resp *api.AuthResponse
	err  error
}

func (f fakeAuth) Login(context.Context, string, string) (*api.AuthResponse, error) {
	return f.resp, f.err
}

var unreachable = fault.New(fault.KindNetworkUnreachable, "login", "down")

func TestLoginLogout(t *testing.T) {
	clk := testutil.NewManualClock(time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC))
	u, _ := api.DemoAccount(api.DemoPatientEmail)
	m := NewManager(Options{
		Auth:  fakeAuth{resp: &api.AuthResponse{AccessToken: "tok", TokenType: "bearer", User: u}},
		Clock: clk,
	})

	s, notice, err := m.Login(context.Background(), u.Email, "demo123")
	require.NoError(t, err)
	assert.Empty(t, notice)
	assert.Equal(t, "tok", s.Token)
	assert.Equal(t, api.RolePatient, s.Role)
	assert.Equal(t, clk.Now(), s.OpenedAt)
	assert.Equal(t, "demo-patient-1", s.SubjectID())
	assert.False(t, s.Demo)
	assert.Len(t, s.ID, 36)

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Same(t, s, cur)

	closed, err := m.Logout()
	require.NoError(t, err)
	assert.Same(t, s, closed)
	_, ok = m.Current()
	assert.False(t, ok)

	_, err = m.Logout()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRejectedNeverFallsBack(t *testing.T) {
	m := NewManager(Options{
		Auth:         fakeAuth{err: fault.New(fault.KindAuthRejected, "login", "Invalid credentials")},
		DemoFallback: true,
	})
	_, _, err := m.Login(context.Background(), api.DemoPatientEmail, "demo123")
	assert.True(t, fault.IsAuthRejected(err))
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestDemoFallback(t *testing.T) {
	m := NewManager(Options{Auth: fakeAuth{err: unreachable}, DemoFallback: true})

	s, notice, err := m.Login(context.Background(), api.DemoResponderEmail, api.DemoPassword)
	require.NoError(t, err)
	assert.Equal(t, NoticeDemoLogin, notice)
	assert.True(t, s.Demo)
	assert.Equal(t, api.RoleResponder, s.Role)

	_, _, err = m.Login(context.Background(), api.DemoResponderEmail, "nope")
	assert.True(t, fault.IsNetworkUnreachable(err))

	_, _, err = m.Login(context.Background(), "someone@example.com", api.DemoPassword)
	assert.True(t, fault.IsNetworkUnreachable(err))
}

func TestDemoFallbackDisabled(t *testing.T) {
	m := NewManager(Options{Auth: fakeAuth{err: unreachable}})
	_, _, err := m.Login(context.Background(), api.DemoPatientEmail, api.DemoPassword)
	assert.True(t, fault.IsNetworkUnreachable(err))
}

func TestContextHelpers(t *testing.T) {
	_, err := Require(context.Background())
	assert.True(t, errors.Is(err, ErrNoSession))

	s := &Session{ID: "s1"}
	ctx := WithSession(context.Background(), s)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)

	got, err = Require(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}
