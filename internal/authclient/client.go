package authclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/fault"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 10 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
	// HTTPClient overrides the transport; tests pass httptest clients.
	HTTPClient *http.Client
}

// Client is an authentication service client. Safe for concurrent use.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// New creates a client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: rc, logger: logger}
}

// Login exchanges credentials for a bearer token and the user record.
func (c *Client) Login(ctx context.Context, email, password string) (*api.AuthResponse, error) {
	var out api.AuthResponse
	err := c.post(ctx, "login", "/auth/login", api.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and returns its first token.
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error) {
	var out api.AuthResponse
	if err := c.post(ctx, "register", "/auth/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the user a token belongs to.
func (c *Client) Me(ctx context.Context, token string) (*api.User, error) {
	var out api.User
	var apiErr api.ErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		SetError(&apiErr).
		Get("/auth/me")
	if err := c.classify(ctx, "me", resp, err, apiErr); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports whether the service answers.
func (c *Client) Health(ctx context.Context) error {
	var apiErr api.ErrorResponse
	resp, err := c.http.R().SetContext(ctx).SetError(&apiErr).Get("/auth/health")
	return c.classify(ctx, "health", resp, err, apiErr)
}

func (c *Client) post(ctx context.Context, op, path string, body, result any) error {
	var apiErr api.ErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&apiErr).
		Post(path)
	return c.classify(ctx, op, resp, err, apiErr)
}

func (c *Client) classify(ctx context.Context, op string, resp *resty.Response, err error, apiErr api.ErrorResponse) error {
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("auth service unreachable", zap.String("op", op), zap.Error(err))
		return fault.Wrap(fault.KindNetworkUnreachable, op, "authentication service unreachable", err)
	}

	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 500 || code == http.StatusNotFound:
		c.logger.Warn("auth service error", zap.String("op", op), zap.Int("status", code))
		return fault.New(fault.KindNetworkUnreachable, op, fmt.Sprintf("authentication service returned %d", code)).
			WithDetail("status", fmt.Sprint(code))
	default:
		msg := apiErr.Detail
		if msg == "" {
			msg = http.StatusText(code)
		}
		return fault.New(fault.KindAuthRejected, op, msg).WithDetail("status", fmt.Sprint(code))
	}
}
