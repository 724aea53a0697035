// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Model       ModelConfig
	Chat        ChatConfig
	Docs        DocsConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
}

// ModelConfig selects and configures the generative model.
type ModelConfig struct {
	APIKey  string
	Name    string
	BaseURL string // empty = public Gemini endpoint
	UseMock bool
}

// ChatConfig controls interactive chat behavior.
type ChatConfig struct {
	HistoryLimit       int
	ChunkDelay         time.Duration
	MaxRequestBodySize int64
}

// DocsConfig controls documentation generation.
type DocsConfig struct {
	TopicsFile  string // empty = embedded catalog
	Concurrency int    // 0 = unbounded
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	JWTSecret string
}

// RateLimitConfig bounds model calls per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/foundersync.db"),
		Model: ModelConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Name:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			BaseURL: getEnv("GEMINI_BASE_URL", ""),
			UseMock: getEnvBool("FOUNDERSYNC_USE_MOCK_LLM", false),
		},
		Chat: ChatConfig{
			HistoryLimit:       getEnvInt("HISTORY_LIMIT", 15),
			ChunkDelay:         getEnvDuration("CHUNK_DELAY", 100*time.Millisecond),
			MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		},
		Docs: DocsConfig{
			TopicsFile:  getEnv("DOCS_TOPICS_FILE", ""),
			Concurrency: getEnvInt("DOCS_CONCURRENCY", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if !c.Model.UseMock && c.Model.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY must be set (or FOUNDERSYNC_USE_MOCK_LLM=1)")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("GEMINI_MODEL cannot be empty")
	}
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be > 0")
	}
	if c.Chat.ChunkDelay < 0 {
		return fmt.Errorf("CHUNK_DELAY cannot be negative")
	}
	if c.Chat.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.Docs.Concurrency < 0 {
		return fmt.Errorf("DOCS_CONCURRENCY cannot be negative")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if !c.IsDevelopment() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET must be set outside development")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
