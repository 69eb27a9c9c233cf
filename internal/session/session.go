package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/clock"
	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/record"
)

// ErrNoSession is returned when an operation needs a session and none is
// open.
var ErrNoSession = errors.New("session: not logged in")

// NoticeDemoLogin is reported when a demo session stands in for the
// unreachable service.
const NoticeDemoLogin = "Authentication service unreachable. Signed in with demo data."

// Session is one logged-in user.
type Session struct {
	ID       string
	Token    string
	User     api.User
	Role     api.Role
	Profile  *record.Profile
	OpenedAt time.Time
	// Demo marks a session opened without the authentication service.
	Demo bool
}

// SubjectID is the patient reference used in records and chat.
func (s *Session) SubjectID() string {
	if s.Profile != nil && s.Profile.SubjectID != "" {
		return s.Profile.SubjectID
	}
	return s.User.UserID
}

// Authenticator is the subset of the auth client a Manager needs.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*api.AuthResponse, error)
}

// Options configures a Manager.
type Options struct {
	Auth         Authenticator
	Clock        clock.Clock
	DemoFallback bool
	Logger       *zap.Logger
}

// Manager holds at most one open session. Safe for concurrent use.
type Manager struct {
	auth         Authenticator
	clock        clock.Clock
	demoFallback bool
	logger       *zap.Logger

	mu      sync.Mutex
	current *Session
}

// NewManager creates a manager with no open session.
func NewManager(opts Options) *Manager {
	m := &Manager{
		auth:         opts.Auth,
		clock:        opts.Clock,
		demoFallback: opts.DemoFallback,
		logger:       opts.Logger,
	}
	if m.clock == nil {
		m.clock = clock.System{}
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Login authenticates and opens a session, replacing any open one. When the
// service is unreachable and demo fallback is on, the demo accounts still
// log in; the returned notice says so.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, string, error) {
	if m.auth == nil {
		return nil, "", fault.New(fault.KindNetworkUnreachable, "login", "no authentication service configured")
	}

	resp, err := m.auth.Login(ctx, email, password)
	if err != nil {
		if !fault.IsNetworkUnreachable(err) || !m.demoFallback {
			return nil, "", err
		}
		s, ok := m.demoSession(email, password)
		if !ok {
			return nil, "", err
		}
		m.logger.Warn("auth unreachable, opened demo session", zap.String("email", email), zap.Error(err))
		m.open(s)
		return s, NoticeDemoLogin, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, "", err
	}
	s := &Session{
		ID:       id.String(),
		Token:    resp.AccessToken,
		User:     resp.User,
		Role:     resp.UserType,
		Profile:  resp.MedicalInfo,
		OpenedAt: m.clock.Now(),
	}
	m.open(s)
	m.logger.Info("session opened",
		zap.String("session_id", s.ID),
		zap.String("user_id", s.User.UserID),
		zap.String("role", string(s.Role)),
	)
	return s, "", nil
}

func (m *Manager) demoSession(email, password string) (*Session, bool) {
	u, ok := api.DemoAccount(email)
	if !ok || password != api.DemoPassword {
		return nil, false
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, false
	}
	return &Session{
		ID:       id.String(),
		Token:    "demo-" + id.String(),
		User:     u,
		Role:     u.UserType,
		Profile:  u.MedicalInfo,
		OpenedAt: m.clock.Now(),
		Demo:     true,
	}, true
}

func (m *Manager) open(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s
}

// Current returns the open session.
func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

// Logout closes the open session and returns it.
func (m *Manager) Logout() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoSession
	}
	s := m.current
	m.current = nil
	m.logger.Info("session closed", zap.String("session_id", s.ID))
	return s, nil
}

type ctxKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session carried by ctx.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// Require returns the session carried by ctx or ErrNoSession.
func Require(ctx context.Context) (*Session, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}
