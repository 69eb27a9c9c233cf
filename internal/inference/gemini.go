package inference

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/fault"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiOptions configures a Gemini provider.
type GeminiOptions struct {
	// BaseURL overrides the API endpoint; tests point it at httptest.
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Logger    *zap.Logger
}

// Gemini replies through the Gemini API.
type Gemini struct {
	client    *genai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewGemini creates the provider. An API key is required.
func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini provider: api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gemini{client: client, model: model, maxTokens: opts.MaxTokens, logger: logger}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Reply(ctx context.Context, history []api.ChatMessage, message string) (string, error) {
	msgs := BuildMessages(history, message)

	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs[1:] {
		role := genai.Role(genai.RoleUser)
		if m.Role == api.ChatRoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(msgs[0].Content, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.6),
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.maxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		g.logger.Warn("gemini request failed", zap.Error(err))
		return "", fault.Wrap(fault.KindNetworkUnreachable, "gemini", "generate content failed", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fault.New(fault.KindMalformedPayload, "gemini", "response had no text")
	}
	return WithDisclaimer(text), nil
}
