// ABOUTME: Centralized configuration for the interview assistant
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Interview and history limits
const (
	HistoryLimitGlobal        = 15
	HistoryLimitExtractTarget = 5
	HistoryLimitInterview     = 8
	MaxTurnsPerLeaf           = 3
	MaxLoopSteps              = 10
	MaxAreaRecursion          = 2*(MaxLoopSteps+1) + 1
	MaxSubtreeDepth           = 5
	ConfirmTokenTTL           = 60 * time.Second
	ContextTokenBudget        = 6000
)

// APIKeyPrefix is the prefix every OpenRouter key carries
const APIKeyPrefix = "sk-or-v1-"

// DefaultDataDir is $XDG_DATA_HOME/interview, falling back to the platform
// data directory reported by xdg (~/.local/share on Linux)
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = xdg.DataHome
	}
	return filepath.Join(dataHome, "interview")
}

// DefaultDBPath returns the default database file path
func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), "interview.db")
}

// Config holds all configuration for the assistant
type Config struct {
	// OpenRouter settings
	APIKey              string
	BaseURL             string
	ChatModel           string
	EmbeddingModel      string
	TranscriptionModel  string
	EmbeddingDimensions int
	LLMTimeout          time.Duration

	// Retry settings for LLM calls
	RetryMaxAttempts int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration

	// Store
	DBPath string

	// Runtime
	PollTimeout           time.Duration
	ShutdownCheckInterval time.Duration
	InterviewPoolSize     int
	ExtractPoolSize       int
	AuthPoolSize          int
	ChannelCapacity       int

	// Telegram
	TelegramToken         string
	TelegramMode          string
	TelegramWebhookHost   string
	TelegramWebhookPort   int
	TelegramWebhookPath   string
	TelegramWebhookURL    string
	TelegramWebhookSecret string

	// MCP server
	MCPAddr string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		APIKey:              os.Getenv("OPENROUTER_API_KEY"),
		BaseURL:             getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		ChatModel:           getEnv("INTERVIEW_MODEL", "openai/gpt-4o-mini"),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "openai/text-embedding-3-small"),
		TranscriptionModel:  getEnv("TRANSCRIPTION_MODEL", "openai/whisper-1"),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),
		LLMTimeout:          getEnvDuration("LLM_TIMEOUT", 60*time.Second),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialWait: getEnvSeconds("RETRY_INITIAL_WAIT", time.Second),
		RetryMaxWait:     getEnvSeconds("RETRY_MAX_WAIT", 10*time.Second),

		DBPath: getEnv("INTERVIEW_DB_PATH", DefaultDBPath()),

		PollTimeout:           getEnvSeconds("WORKER_POLL_TIMEOUT", 500*time.Millisecond),
		ShutdownCheckInterval: getEnvSeconds("WORKER_SHUTDOWN_CHECK_INTERVAL", 500*time.Millisecond),
		InterviewPoolSize:     getEnvInt("INTERVIEW_POOL_SIZE", 2),
		ExtractPoolSize:       getEnvInt("EXTRACT_POOL_SIZE", 2),
		AuthPoolSize:          getEnvInt("AUTH_POOL_SIZE", 1),
		ChannelCapacity:       getEnvInt("CHANNEL_CAPACITY", 100),

		TelegramToken:         os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramMode:          getEnv("TELEGRAM_MODE", "polling"),
		TelegramWebhookHost:   getEnv("TELEGRAM_WEBHOOK_HOST", "0.0.0.0"),
		TelegramWebhookPort:   getEnvInt("TELEGRAM_WEBHOOK_PORT", 8443),
		TelegramWebhookPath:   getEnv("TELEGRAM_WEBHOOK_PATH", "/webhook"),
		TelegramWebhookURL:    os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramWebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),

		MCPAddr: getEnv("MCP_ADDR", ":8080"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY is required")
	}
	if !strings.HasPrefix(c.APIKey, APIKeyPrefix) || len(c.APIKey) < 20 {
		return fmt.Errorf("OPENROUTER_API_KEY must start with %q and be at least 20 characters", APIKeyPrefix)
	}
	if c.RetryMaxAttempts < 1 || c.RetryMaxAttempts > 10 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be 1-10, got %d", c.RetryMaxAttempts)
	}
	if c.RetryInitialWait > c.RetryMaxWait {
		return fmt.Errorf("RETRY_INITIAL_WAIT (%v) exceeds RETRY_MAX_WAIT (%v)", c.RetryInitialWait, c.RetryMaxWait)
	}
	if c.PollTimeout <= 0 || c.ShutdownCheckInterval <= 0 {
		return fmt.Errorf("worker intervals must be positive")
	}
	if c.PollTimeout > c.ShutdownCheckInterval {
		return fmt.Errorf("WORKER_POLL_TIMEOUT must not exceed WORKER_SHUTDOWN_CHECK_INTERVAL")
	}
	if c.InterviewPoolSize < 1 || c.ExtractPoolSize < 1 || c.AuthPoolSize < 1 {
		return fmt.Errorf("pool sizes must be at least 1")
	}
	if c.ChannelCapacity < 1 {
		return fmt.Errorf("CHANNEL_CAPACITY must be at least 1, got %d", c.ChannelCapacity)
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	switch c.TelegramMode {
	case "polling", "webhook":
	default:
		return fmt.Errorf("TELEGRAM_MODE must be polling or webhook, got %q", c.TelegramMode)
	}
	return nil
}

// ValidateTelegram checks the settings only the bot transport needs
func (c *Config) ValidateTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.TelegramMode == "webhook" && c.TelegramWebhookURL == "" {
		return fmt.Errorf("TELEGRAM_WEBHOOK_URL is required in webhook mode")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvSeconds reads a float number of seconds, e.g. "0.5"
func getEnvSeconds(key string, defaultVal time.Duration) time.Duration {
	secs := getEnvFloat(key, -1)
	if secs < 0 {
		return defaultVal
	}
	return time.Duration(secs * float64(time.Second))
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
