// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest):
//  1. Environment variables (runtime override)
//  2. Config file (~/.formpilot/config.yaml)
//  3. Default values
//
// Categories:
//   - AI: provider models, embedder, API key presence flags
//   - Storage: PostgreSQL connection (storage.go)
//   - Cache: response/embedding TTLs, research staleness window
//   - Retrieval: match counts and similarity thresholds
//   - Observability: OTLP trace export
//
// Sensitive values are masked in MarshalJSON/String and never logged.
// Validation fails fast with sentinel errors usable via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultPrimaryModel is the Gemini model used by the primary
	// provider when a Gemini key is present.
	DefaultPrimaryModel = "gemini-2.5-flash"

	// DefaultSecondaryModel is the OpenAI model used by the secondary
	// provider when an OpenAI key is present.
	DefaultSecondaryModel = "gpt-4o-mini"

	// DefaultEmbedderModel produces the vectors stored alongside
	// knowledge chunks and research records.
	DefaultEmbedderModel = "gemini-embedding-001"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI provider configuration. The API keys double as availability
	// flags: an empty key removes that provider from the dispatch chain.
	GeminiAPIKey   string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked
	OpenAIAPIKey   string `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked
	PrimaryModel   string `mapstructure:"primary_model" json:"primary_model"`
	SecondaryModel string `mapstructure:"secondary_model" json:"secondary_model"`
	EmbedderModel  string `mapstructure:"embedder_model" json:"embedder_model"`

	// ProviderTimeout bounds a single generation call.
	ProviderTimeout time.Duration `mapstructure:"provider_timeout" json:"provider_timeout"`
	// ProviderRPS rate-limits outgoing generation calls per provider.
	ProviderRPS float64 `mapstructure:"provider_rps" json:"provider_rps"`

	// Storage configuration (see storage.go).
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Cache configuration.
	ResponseCacheSize     int           `mapstructure:"response_cache_size" json:"response_cache_size"`
	ResponseCacheTTL      time.Duration `mapstructure:"response_cache_ttl" json:"response_cache_ttl"`
	EmbeddingCacheTTL     time.Duration `mapstructure:"embedding_cache_ttl" json:"embedding_cache_ttl"`
	ResearchStalenessDays int           `mapstructure:"research_staleness_days" json:"research_staleness_days"`

	// Retrieval configuration.
	MatchCount          int     `mapstructure:"match_count" json:"match_count"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	ResearchMatchCount  int     `mapstructure:"research_match_count" json:"research_match_count"`
	ResearchThreshold   float64 `mapstructure:"research_threshold" json:"research_threshold"`

	// Observability configuration. Empty OTLPEndpoint disables export.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `mapstructure:"environment" json:"environment"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".formpilot")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("primary_model", DefaultPrimaryModel)
	v.SetDefault("secondary_model", DefaultSecondaryModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("provider_timeout", 30*time.Second)
	v.SetDefault("provider_rps", 2.0)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "formpilot")
	v.SetDefault("postgres_password", "formpilot_dev_password")
	v.SetDefault("postgres_db_name", "formpilot")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Cache defaults
	v.SetDefault("response_cache_size", 100)
	v.SetDefault("response_cache_ttl", 5*time.Minute)
	v.SetDefault("embedding_cache_ttl", 24*time.Hour)
	v.SetDefault("research_staleness_days", 30)

	// Retrieval defaults
	v.SetDefault("match_count", 5)
	v.SetDefault("similarity_threshold", 0.7)
	v.SetDefault("research_match_count", 2)
	v.SetDefault("research_threshold", 0.5)

	// Observability defaults
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("environment", "dev")
	v.SetDefault("service_name", "formpilot")
}

// bindEnvVariables binds environment variables explicitly. API keys are
// the provider availability flags, so they are always read from env.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("primary_model", "FORMPILOT_PRIMARY_MODEL")
	mustBind("secondary_model", "FORMPILOT_SECONDARY_MODEL")
	mustBind("embedder_model", "FORMPILOT_EMBEDDER_MODEL")
	mustBind("otlp_endpoint", "FORMPILOT_OTLP_ENDPOINT")
	mustBind("environment", "FORMPILOT_ENV")
}

// HasPrimaryProvider reports whether the primary (Gemini) backend is
// configured. Determines the head of the dispatch chain.
func (c *Config) HasPrimaryProvider() bool { return c.GeminiAPIKey != "" }

// HasSecondaryProvider reports whether the secondary (OpenAI) backend is
// configured.
func (c *Config) HasSecondaryProvider() bool { return c.OpenAIAPIKey != "" }

// ResearchStalenessWindow returns the research cache staleness window as
// a duration.
func (c *Config) ResearchStalenessWindow() time.Duration {
	return time.Duration(c.ResearchStalenessDays) * 24 * time.Hour
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid substring matches against real secret characters.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep two characters on each side for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
