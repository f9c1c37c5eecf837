package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM provider names.
const (
	ProviderNone      = "none"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Encryption
	MasterKey   string        `yaml:"master_key"` // base64, 32 bytes decoded
	KeyID       string        `yaml:"key_id"`
	DEKCacheTTL time.Duration `yaml:"dek_cache_ttl"`

	// Summarization
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OllamaHost      string `yaml:"ollama_host"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// Context assembly
	ContextMaxTokens  int `yaml:"context_max_tokens"`
	ContextAlwaysLast int `yaml:"context_always_last"`
	ContextMaxMoments int `yaml:"context_max_moments"`

	// Moment building
	MomentThresholdTokens int `yaml:"moment_threshold_tokens"`

	// Logging
	LogFile      string `yaml:"log_file"`
	LogLevelName string `yaml:"log_level"`

	LogLevel slog.Level `yaml:"-"`
}

// Load builds the configuration from defaults, an optional YAML file
// named by MNEMO_CONFIG, and environment variable overrides, in that
// order.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("MNEMO_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	return cfg, nil
}

func defaults() Config {
	return Config{
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "mnemo",
		SurrealDBDatabase:  "memory",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		KeyID:       "local",
		DEKCacheTTL: 10 * time.Minute,

		LLMProvider: ProviderNone,
		LLMModel:    "llama3.2",
		OllamaHost:  "http://localhost:11434",

		ContextMaxTokens:  8000,
		ContextAlwaysLast: 5,
		ContextMaxMoments: 3,

		MomentThresholdTokens: 500,

		LogFile:      "/tmp/mnemo.log",
		LogLevelName: "INFO",
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.SurrealDBURL, "SURREALDB_URL")
	setString(&cfg.SurrealDBNamespace, "SURREALDB_NAMESPACE")
	setString(&cfg.SurrealDBDatabase, "SURREALDB_DATABASE")
	setString(&cfg.SurrealDBUser, "SURREALDB_USER")
	setString(&cfg.SurrealDBPass, "SURREALDB_PASS")
	setString(&cfg.SurrealDBAuthLevel, "SURREALDB_AUTH_LEVEL")

	setString(&cfg.MasterKey, "MNEMO_MASTER_KEY")
	setString(&cfg.KeyID, "MNEMO_KEY_ID")
	setDuration(&cfg.DEKCacheTTL, "MNEMO_DEK_CACHE_TTL")

	setString(&cfg.LLMProvider, "MNEMO_LLM_PROVIDER")
	setString(&cfg.LLMModel, "MNEMO_LLM_MODEL")
	setString(&cfg.OllamaHost, "OLLAMA_HOST")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")

	setInt(&cfg.ContextMaxTokens, "MNEMO_CONTEXT_MAX_TOKENS")
	setInt(&cfg.ContextAlwaysLast, "MNEMO_CONTEXT_ALWAYS_LAST")
	setInt(&cfg.ContextMaxMoments, "MNEMO_CONTEXT_MAX_MOMENTS")
	setInt(&cfg.MomentThresholdTokens, "MNEMO_MOMENT_THRESHOLD")

	setString(&cfg.LogFile, "MNEMO_LOG_FILE")
	setString(&cfg.LogLevelName, "MNEMO_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
