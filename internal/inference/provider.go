package inference

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/config"
	"github.com/roach88/lifeline/internal/fault"
)

// Provider generates one assistant reply.
type Provider interface {
	Name() string
	Reply(ctx context.Context, history []api.ChatMessage, message string) (string, error)
}

// ErrorReply is the text shown in place of a reply the provider could not
// produce.
func ErrorReply(err error) string {
	return WithDisclaimer("Sorry, I could not generate a response right now (" + fault.Notice(err) + "). " +
		"If this is an emergency, call your local emergency number.")
}

// New builds the provider named in cfg.
func New(ctx context.Context, cfg config.InferenceConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	switch cfg.Provider {
	case "", config.ProviderOffline:
		return Offline{}, nil
	case config.ProviderOpenAI:
		return NewOpenAI(OpenAIOptions{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   timeout,
			Logger:    logger,
		})
	case config.ProviderGemini:
		return NewGemini(ctx, GeminiOptions{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Logger:    logger,
		})
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}
