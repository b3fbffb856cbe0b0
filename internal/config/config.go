// Package config loads service configuration from defaults, an optional
// YAML file, an optional .env file and environment variables, in that
// order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// maxConfigFileSize bounds the YAML file read by Load.
const maxConfigFileSize = 1 << 20

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	LLM       LLMConfig       `yaml:"llm"`
	Grounding GroundingConfig `yaml:"grounding"`
	Upload    UploadConfig    `yaml:"upload"`
	History   HistoryConfig   `yaml:"history"`
	Chat      ChatConfig      `yaml:"chat"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"FINCONTEXT_SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"FINCONTEXT_CORS_ORIGINS" envSeparator:","`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level       string `yaml:"level" env:"FINCONTEXT_LOG_LEVEL"`
	Format      string `yaml:"format" env:"FINCONTEXT_LOG_FORMAT"` // console or json
	ServiceName string `yaml:"service_name" env:"FINCONTEXT_SERVICE_NAME"`
	Environment string `yaml:"environment" env:"FINCONTEXT_ENVIRONMENT"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider     string        `yaml:"provider" env:"FINCONTEXT_LLM_PROVIDER"`
	Model        string        `yaml:"model" env:"FINCONTEXT_LLM_MODEL"`
	Temperature  float64       `yaml:"temperature" env:"FINCONTEXT_LLM_TEMPERATURE"`
	MaxTokens    int           `yaml:"max_tokens" env:"FINCONTEXT_LLM_MAX_TOKENS"`
	Timeout      time.Duration `yaml:"timeout" env:"FINCONTEXT_LLM_TIMEOUT"`
	MaxRetries   int           `yaml:"max_retries" env:"FINCONTEXT_LLM_MAX_RETRIES"`
	BaseURL      string        `yaml:"base_url" env:"FINCONTEXT_LLM_BASE_URL"`
	OpenAIKey    string        `yaml:"openai_key" env:"OPENAI_API_KEY"`
	GeminiKey    string        `yaml:"gemini_key" env:"GEMINI_API_KEY"`
	MockResponse string        `yaml:"mock_response" env:"FINCONTEXT_LLM_MOCK_RESPONSE"`
}

// APIKey returns the key for the configured provider.
func (c LLMConfig) APIKey() string {
	switch c.Provider {
	case "openai":
		return c.OpenAIKey
	case "gemini":
		return c.GeminiKey
	default:
		return ""
	}
}

// GroundingConfig configures dataset injection.
type GroundingConfig struct {
	MaxDatasetTokens int    `yaml:"max_dataset_tokens" env:"FINCONTEXT_MAX_DATASET_TOKENS"`
	PreviewRows      int    `yaml:"preview_rows" env:"FINCONTEXT_PREVIEW_ROWS"`
	Encoding         string `yaml:"encoding" env:"FINCONTEXT_TOKEN_ENCODING"`
}

// UploadConfig bounds uploads.
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes" env:"FINCONTEXT_UPLOAD_MAX_BYTES"`
	MaxRows  int   `yaml:"max_rows" env:"FINCONTEXT_UPLOAD_MAX_ROWS"`
}

// HistoryConfig bounds history reads.
type HistoryConfig struct {
	DefaultLimit int `yaml:"default_limit" env:"FINCONTEXT_HISTORY_DEFAULT_LIMIT"`
	MaxLimit     int `yaml:"max_limit" env:"FINCONTEXT_HISTORY_MAX_LIMIT"`
}

// ChatConfig configures turn handling.
type ChatConfig struct {
	// AutoInit starts a conversation on the first chat turn instead of
	// rejecting identities that never uploaded data.
	AutoInit bool `yaml:"auto_init" env:"FINCONTEXT_CHAT_AUTO_INIT"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Exporter string `yaml:"exporter" env:"FINCONTEXT_TRACING_EXPORTER"` // otlp, stdout or none
	Endpoint string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure bool   `yaml:"insecure" env:"FINCONTEXT_TRACING_INSECURE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "fincontext",
			Environment: "development",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4",
			Temperature: 0.7,
			MaxTokens:   1000,
			Timeout:     120 * time.Second,
			MaxRetries:  2,
		},
		Grounding: GroundingConfig{
			MaxDatasetTokens: 6000,
			PreviewRows:      20,
			Encoding:         "cl100k_base",
		},
		Upload: UploadConfig{
			MaxBytes: 10 << 20,
			MaxRows:  10000,
		},
		History: HistoryConfig{
			DefaultLimit: 20,
			MaxLimit:     500,
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
	}
}

// Load builds the configuration. path names an optional YAML file; an
// empty path skips it. A .env file in the working directory is loaded into
// the process environment when present, without overriding variables that
// are already set.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	if c.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.provider is required"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %g", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, errors.New("llm.max_tokens must not be negative"))
	}
	if c.Grounding.MaxDatasetTokens <= 0 {
		errs = append(errs, errors.New("grounding.max_dataset_tokens must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if c.History.DefaultLimit <= 0 || c.History.DefaultLimit > c.History.MaxLimit {
		errs = append(errs, fmt.Errorf("history.default_limit must be between 1 and history.max_limit (%d)", c.History.MaxLimit))
	}
	switch c.Tracing.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter must be otlp, stdout or none, got %q", c.Tracing.Exporter))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
