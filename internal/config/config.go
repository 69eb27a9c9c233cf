package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/logging"
)

// Inference providers.
const (
	ProviderOffline = "offline"
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
)

// Config is the full configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Assistant AssistantConfig `yaml:"assistant"`
	Inference InferenceConfig `yaml:"inference"`
	Codec     CodecConfig     `yaml:"codec"`
	Builder   BuilderConfig   `yaml:"builder"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// SeedDemo creates the demo patient and responder accounts at startup.
	SeedDemo bool `yaml:"seed_demo"`
}

// AuthConfig points the client at the authentication service.
type AuthConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// DemoFallback opens a demo session for the demo accounts when the
	// service is unreachable.
	DemoFallback bool `yaml:"demo_fallback"`
}

// AssistantConfig points the chat client at the assistant endpoint.
type AssistantConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// InferenceConfig selects the server-side reply provider.
type InferenceConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

// CodecConfig configures QR encoding.
type CodecConfig struct {
	Level string `yaml:"level"`
	// MaxBytes lowers the payload limit below the level's capacity. Zero
	// keeps the capacity.
	MaxBytes   int    `yaml:"max_bytes"`
	Passphrase string `yaml:"passphrase"`
	QRScale    int    `yaml:"qr_scale"`
}

// BuilderConfig configures record building.
type BuilderConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	LocateTimeout time.Duration `yaml:"locate_timeout"`
}

// StoreConfig configures the incident ledger.
type StoreConfig struct {
	// Path is a SQLite file path, or ":memory:".
	Path string `yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Service string `yaml:"service"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			SeedDemo:        true,
		},
		Auth: AuthConfig{
			BaseURL:      "http://localhost:8000",
			Timeout:      10 * time.Second,
			DemoFallback: true,
		},
		Assistant: AssistantConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 60 * time.Second,
		},
		Inference: InferenceConfig{
			Provider:  ProviderOffline,
			Timeout:   60 * time.Second,
			MaxTokens: 1024,
		},
		Codec: CodecConfig{
			Level:   string(codec.DefaultLevel),
			QRScale: 5,
		},
		Builder: BuilderConfig{
			TTL:           2 * time.Hour,
			LocateTimeout: 10 * time.Second,
		},
		Store: StoreConfig{Path: ":memory:"},
		Log: LogConfig{
			Level:   "info",
			Format:  logging.FormatConsole,
			Service: "lifeline",
		},
	}
}

// Load reads path over the defaults and applies the process environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// envBinding maps one variable onto a field.
type envBinding struct {
	name string
	set  func(c *Config, v string) error
}

var envBindings = []envBinding{
	{"LIFELINE_SERVER_ADDR", func(c *Config, v string) error { c.Server.Addr = v; return nil }},
	{"LIFELINE_SERVER_SEED_DEMO", func(c *Config, v string) error { return setBool(&c.Server.SeedDemo, v) }},
	{"LIFELINE_AUTH_URL", func(c *Config, v string) error { c.Auth.BaseURL = v; return nil }},
	{"LIFELINE_AUTH_DEMO_FALLBACK", func(c *Config, v string) error { return setBool(&c.Auth.DemoFallback, v) }},
	{"LIFELINE_ASSISTANT_URL", func(c *Config, v string) error { c.Assistant.BaseURL = v; return nil }},
	{"LIFELINE_INFERENCE_PROVIDER", func(c *Config, v string) error { c.Inference.Provider = v; return nil }},
	{"LIFELINE_INFERENCE_BASE_URL", func(c *Config, v string) error { c.Inference.BaseURL = v; return nil }},
	{"LIFELINE_INFERENCE_API_KEY", func(c *Config, v string) error { c.Inference.APIKey = v; return nil }},
	{"LIFELINE_INFERENCE_MODEL", func(c *Config, v string) error { c.Inference.Model = v; return nil }},
	{"LIFELINE_CODEC_LEVEL", func(c *Config, v string) error { c.Codec.Level = v; return nil }},
	{"LIFELINE_CODEC_MAX_BYTES", func(c *Config, v string) error { return setInt(&c.Codec.MaxBytes, v) }},
	{"LIFELINE_CODEC_PASSPHRASE", func(c *Config, v string) error { c.Codec.Passphrase = v; return nil }},
	{"LIFELINE_BUILDER_TTL", func(c *Config, v string) error { return setDuration(&c.Builder.TTL, v) }},
	{"LIFELINE_BUILDER_LOCATE_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Builder.LocateTimeout, v) }},
	{"LIFELINE_STORE_PATH", func(c *Config, v string) error { c.Store.Path = v; return nil }},
	{"LIFELINE_LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LIFELINE_LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	for _, b := range envBindings {
		v := getenv(b.name)
		if v == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
	}
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if _, err := codec.ParseLevel(c.Codec.Level); err != nil {
		errs = append(errs, fmt.Errorf("codec.level: %w", err))
	}
	if c.Codec.MaxBytes < 0 {
		errs = append(errs, errors.New("codec.max_bytes must not be negative"))
	}
	if c.Codec.QRScale <= 0 {
		errs = append(errs, errors.New("codec.qr_scale must be positive"))
	}
	if c.Builder.TTL <= 0 {
		errs = append(errs, errors.New("builder.ttl must be positive"))
	}
	if c.Builder.LocateTimeout <= 0 {
		errs = append(errs, errors.New("builder.locate_timeout must be positive"))
	}
	switch c.Inference.Provider {
	case ProviderOffline, ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("inference.provider %q: must be offline, openai or gemini", c.Inference.Provider))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	return errors.Join(errs...)
}
