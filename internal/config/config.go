// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM provider names accepted by PLAYDO_LLM_PROVIDER.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderStatic    = "static"
)

// Config holds all application configuration.
type Config struct {
	Port               string
	FrontendURL        string
	CORSAllowedOrigins []string
	DBPath             string
	Debug              bool
	Testing            bool // never call an upstream LLM
	SendRatePerMinute  int  // per-user send_message budget; 0 disables the limiter
	LLM                LLMConfig
	Auth               AuthConfig
}

// LLMConfig selects and configures the response bridge.
type LLMConfig struct {
	Provider         string
	AnthropicModel   string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	OpenAIModel      string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	SystemPromptFile string
	MaxTokens        int
	Timeout          time.Duration
}

// AuthConfig configures access tokens.
type AuthConfig struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	frontendURL := getEnv("FRONTEND_URL", "")

	cfg := &Config{
		Port:               getEnv("PORT", "5000"),
		FrontendURL:        frontendURL,
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", defaultOrigins(frontendURL)),
		DBPath:             getEnv("PLAYDO_DATABASE_PATH", "./data/playdo.db"),
		Debug:              getEnvBool("PLAYDO_DEBUG", false),
		Testing:            getEnvBool("PLAYDO_TESTING", false),
		SendRatePerMinute:  getEnvInt("SEND_RATE_PER_MINUTE", 20),
		LLM: LLMConfig{
			Provider:         strings.ToLower(getEnv("PLAYDO_LLM_PROVIDER", ProviderAnthropic)),
			AnthropicModel:   getEnv("PLAYDO_ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
			AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			OpenAIModel:      getEnv("PLAYDO_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			SystemPromptFile: getEnv("PLAYDO_SYSTEM_PROMPT_FILE", ""),
			MaxTokens:        getEnvInt("PLAYDO_MAX_TOKENS", 2000),
			Timeout:          getEnvDuration("PLAYDO_BRIDGE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET_KEY", ""),
			AccessTokenTTL: getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
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
		return fmt.Errorf("PLAYDO_DATABASE_PATH cannot be empty")
	}
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderStatic:
	default:
		return fmt.Errorf("PLAYDO_LLM_PROVIDER must be one of %s, %s, %s; got %q",
			ProviderAnthropic, ProviderOpenAI, ProviderStatic, c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("PLAYDO_MAX_TOKENS must be > 0")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("PLAYDO_BRIDGE_TIMEOUT must be > 0")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TOKEN_TTL must be > 0")
	}
	if c.SendRatePerMinute < 0 {
		return fmt.Errorf("SEND_RATE_PER_MINUTE must be >= 0")
	}
	return nil
}

// ValidateServer checks settings only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY cannot be empty")
	}
	if len(c.Auth.JWTSecret) < 32 && !c.IsDevelopment() {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes outside development")
	}
	return nil
}

// EffectiveProvider is the configured provider, or static in testing mode.
func (c *Config) EffectiveProvider() string {
	if c.Testing {
		return ProviderStatic
	}
	return c.LLM.Provider
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func defaultOrigins(frontendURL string) []string {
	if frontendURL == "" {
		return []string{"*"}
	}
	return []string{frontendURL}
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

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
