package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/fault"
)

// Defaults for the OpenAI-compatible provider.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-3.5-turbo"
)

// OpenAIOptions configures an OpenAI-compatible provider.
type OpenAIOptions struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Logger      *zap.Logger
	HTTPClient  *http.Client
}

// OpenAI calls a /chat/completions endpoint.
type OpenAI struct {
	http        *resty.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

type completionRequest struct {
	Model       string            `json:"model"`
	Messages    []api.ChatMessage `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Stream      bool              `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message api.ChatMessage `json:"message"`
	} `json:"choices"`
}

type completionError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAI creates the provider. An API key is required.
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai provider: api key is required")
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultOpenAIBaseURL
	}
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	temp := opts.Temperature
	if temp == 0 {
		temp = 0.6
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
	rc.SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(opts.Timeout).
		SetAuthToken(opts.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &OpenAI{
		http:        rc,
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: temp,
		logger:      logger,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Reply(ctx context.Context, history []api.ChatMessage, message string) (string, error) {
	var out completionResponse
	var apiErr completionError
	resp, err := o.http.R().
		SetContext(ctx).
		SetBody(completionRequest{
			Model:       o.model,
			Messages:    BuildMessages(history, message),
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fault.Wrap(fault.KindNetworkUnreachable, "openai", "completion request failed", err)
	}
	if resp.IsError() {
		o.logger.Warn("completion rejected",
			zap.Int("status", resp.StatusCode()),
			zap.String("message", apiErr.Error.Message),
		)
		return "", fault.New(fault.KindNetworkUnreachable, "openai",
			fmt.Sprintf("completion endpoint returned %d", resp.StatusCode())).
			WithDetail("status", fmt.Sprint(resp.StatusCode()))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fault.New(fault.KindMalformedPayload, "openai", "completion had no content")
	}
	return WithDisclaimer(out.Choices[0].Message.Content), nil
}
