package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/builder"
	"github.com/roach88/lifeline/internal/clock"
	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/inference"
	"github.com/roach88/lifeline/internal/profile"
	"github.com/roach88/lifeline/internal/qrimage"
	"github.com/roach88/lifeline/internal/record"
	"github.com/roach88/lifeline/internal/store"
)

// Defaults for zero Options fields.
const (
	DefaultShutdownTimeout = 5 * time.Second
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 90 * time.Second
)

// Options configures a Server.
type Options struct {
	Store    *store.Store
	Provider inference.Provider
	Encoder  *codec.Encoder
	Decoder  *codec.Decoder
	Profiles *profile.Validator

	// Build is the template for per-request builders. Its Locator is
	// replaced with the coordinates sent by the client.
	Build builder.Options

	QRScale    int
	BcryptCost int

	Clock  clock.Clock
	Logger *zap.Logger
}

// Server handles the HTTP API. Safe for concurrent use.
type Server struct {
	store    *store.Store
	provider inference.Provider
	encoder  *codec.Encoder
	decoder  *codec.Decoder
	profiles *profile.Validator
	build    builder.Options
	qrScale  int
	cost     int
	clock    clock.Clock
	logger   *zap.Logger

	mu     sync.Mutex
	tokens map[string]string // token -> user id
	chats  *chatLog
}

// New creates a Server. Store is required.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("server: store is required")
	}
	s := &Server{
		store:    opts.Store,
		provider: opts.Provider,
		encoder:  opts.Encoder,
		decoder:  opts.Decoder,
		profiles: opts.Profiles,
		build:    opts.Build,
		qrScale:  opts.QRScale,
		cost:     opts.BcryptCost,
		clock:    opts.Clock,
		logger:   opts.Logger,
		tokens:   make(map[string]string),
		chats:    newChatLog(),
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.provider == nil {
		s.provider = inference.Offline{}
	}
	if s.encoder == nil {
		s.encoder = codec.NewEncoder(codec.EncoderOptions{})
	}
	if s.decoder == nil {
		s.decoder = codec.NewDecoder(codec.DecoderOptions{Clock: s.clock})
	}
	if s.profiles == nil {
		v, err := profile.NewValidator()
		if err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
		s.profiles = v
	}
	if s.qrScale <= 0 {
		s.qrScale = qrimage.DefaultScale
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.build.Clock == nil {
		s.build.Clock = s.clock
	}
	if s.build.Registry == nil {
		s.build.Registry = record.NewRegistry()
	}
	if s.build.Logger == nil {
		s.build.Logger = s.logger
	}
	return s, nil
}

// Router returns the HTTP handler with every route registered.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/auth/health", s.handleAuthHealth).Methods("GET")
	r.HandleFunc("/auth/register", s.handleRegister).Methods("POST")
	r.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/auth/me", s.handleMe).Methods("GET")
	r.HandleFunc("/auth/me/profile", s.handleUpdateProfile).Methods("PUT")
	r.HandleFunc("/qr/generate-emergency", s.handleGenerate).Methods("POST")
	r.HandleFunc("/qr/scan", s.handleScan).Methods("POST")
	r.HandleFunc("/incidents/{id}/resolve", s.handleResolve).Methods("POST")
	r.HandleFunc("/nlp/chat", s.handleChat).Methods("POST")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.Use(s.logRequests)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// SeedDemo creates the demo accounts that do not exist yet.
func (s *Server) SeedDemo(ctx context.Context) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(api.DemoPassword), s.cost)
	if err != nil {
		return fmt.Errorf("seed demo: %w", err)
	}
	for _, u := range api.DemoAccounts() {
		_, err := s.store.CreateUser(ctx, store.User{
			ID:           u.UserID,
			Email:        u.Email,
			PasswordHash: string(hash),
			Role:         u.UserType,
			FirstName:    u.FirstName,
			LastName:     u.LastName,
			Phone:        u.Phone,
			BadgeNumber:  u.BadgeNumber,
			Organization: u.Organization,
			Profile:      u.MedicalInfo,
			CreatedAt:    s.clock.Now(),
		})
		if err != nil && !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("seed demo %s: %w", u.Email, err)
		}
	}
	s.logger.Info("demo accounts ready",
		zap.String("patient", api.DemoPatientEmail),
		zap.String("responder", api.DemoResponderEmail),
	)
	return nil
}

// RunOptions configures Run.
type RunOptions struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// Listener, when set, is served instead of listening on Addr.
	Listener net.Listener
}

// Run serves until ctx is done, then shuts down gracefully. It returns nil
// after a clean shutdown.
func (s *Server) Run(ctx context.Context, opts RunOptions) error {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	ln := opts.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", opts.Addr)
		if err != nil {
			return fmt.Errorf("server: listen %s: %w", opts.Addr, err)
		}
	}
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("http server shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Message: "Emergency Healthcare API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "unhealthy", Message: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "healthy", Message: "emergency-healthcare"})
}

func (s *Server) handleAuthHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Message: "Auth service is running"})
}
