package assistant

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

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// Client calls the chat endpoint. The server keeps the history, so the
// history argument to Reply is ignored.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
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

// Chat sends one message for subjectID.
func (c *Client) Chat(ctx context.Context, subjectID, message string) (*api.ChatResponse, error) {
	var out api.ChatResponse
	var apiErr api.ErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(api.ChatRequest{UserID: subjectID, Message: message}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/nlp/chat")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("assistant unreachable", zap.Error(err))
		return nil, fault.Wrap(fault.KindNetworkUnreachable, "chat", "assistant service unreachable", err)
	}
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return &out, nil
	case code >= 500 || code == http.StatusNotFound:
		return nil, fault.New(fault.KindNetworkUnreachable, "chat", fmt.Sprintf("assistant service returned %d", code))
	default:
		msg := apiErr.Detail
		if msg == "" {
			msg = http.StatusText(code)
		}
		return nil, fault.New(fault.KindMalformedPayload, "chat", msg)
	}
}

// Reply implements Replier.
func (c *Client) Reply(ctx context.Context, subjectID string, _ []api.ChatMessage, message string) (string, error) {
	resp, err := c.Chat(ctx, subjectID, message)
	if err != nil {
		return "", err
	}
	return resp.Reply, nil
}
