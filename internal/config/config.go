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
	GenAI       GenAIConfig
	Scoping     ScopingConfig
	RateLimit   RateLimitConfig
	SSE         SSEConfig
}

// GenAIConfig configures the generative AI backend client.
type GenAIConfig struct {
	BaseURL       string
	APIKey        string
	ModelStandard string
	ModelPro      string
	Timeout       time.Duration
	MaxRetries    int
}

// ScopingConfig controls the scoping conversation.
type ScopingConfig struct {
	MinUserTurns       int
	TranscriptMaxRunes int
}

// RateLimitConfig controls the per-user request limiter.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// SSEConfig controls server-sent event streaming behavior.
type SSEConfig struct {
	KeepaliveInterval time.Duration
	RetryDelay        time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/lumina.db"),
		GenAI: GenAIConfig{
			BaseURL:       getEnv("GENAI_BASE_URL", "https://generativelanguage.googleapis.com"),
			APIKey:        getEnv("GENAI_API_KEY", ""),
			ModelStandard: getEnv("GENAI_MODEL_STANDARD", "gemini-2.5-flash"),
			ModelPro:      getEnv("GENAI_MODEL_PRO", "gemini-2.5-pro"),
			Timeout:       time.Duration(getEnvInt("GENAI_TIMEOUT_SECONDS", 120)) * time.Second,
			MaxRetries:    getEnvInt("GENAI_MAX_RETRIES", 3),
		},
		Scoping: ScopingConfig{
			MinUserTurns:       getEnvInt("SCOPING_MIN_USER_TURNS", 2),
			TranscriptMaxRunes: getEnvInt("SCOPING_TRANSCRIPT_MAX_RUNES", 8000),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			Window:   time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		},
		SSE: SSEConfig{
			KeepaliveInterval: time.Duration(getEnvInt("SSE_KEEPALIVE_SECONDS", 15)) * time.Second,
			RetryDelay:        time.Duration(getEnvInt("SSE_RETRY_DELAY_MS", 2000)) * time.Millisecond,
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
	if c.GenAI.BaseURL == "" {
		return fmt.Errorf("GENAI_BASE_URL cannot be empty")
	}
	if c.GenAI.ModelStandard == "" || c.GenAI.ModelPro == "" {
		return fmt.Errorf("GENAI model names cannot be empty")
	}
	if c.GenAI.MaxRetries < 0 {
		return fmt.Errorf("GENAI_MAX_RETRIES must be >= 0")
	}
	if c.Scoping.MinUserTurns < 1 {
		return fmt.Errorf("SCOPING_MIN_USER_TURNS must be >= 1")
	}
	if c.Scoping.TranscriptMaxRunes < 1 {
		return fmt.Errorf("SCOPING_TRANSCRIPT_MAX_RUNES must be >= 1")
	}
	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be >= 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
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
