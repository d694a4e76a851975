package config

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates a model name is empty or invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidProviderTimeout indicates the provider timeout is out of range.
	ErrInvalidProviderTimeout = errors.New("invalid provider timeout")

	// ErrInvalidProviderRPS indicates the provider rate limit is out of range.
	ErrInvalidProviderRPS = errors.New("invalid provider rate limit")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidCacheConfig indicates a cache size or TTL is out of range.
	ErrInvalidCacheConfig = errors.New("invalid cache configuration")

	// ErrInvalidRetrievalConfig indicates a retrieval threshold or count
	// is out of range.
	ErrInvalidRetrievalConfig = errors.New("invalid retrieval configuration")
)

// Validate validates configuration values.
// Returns sentinel errors checkable with errors.Is().
//
// Note: absence of both provider API keys is NOT an error — the dispatch
// chain then collapses to the synthetic fallback, which never fails.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Model configuration
	if c.HasPrimaryProvider() && c.PrimaryModel == "" {
		return fmt.Errorf("%w: primary_model cannot be empty", ErrInvalidModelName)
	}
	if c.HasSecondaryProvider() && c.SecondaryModel == "" {
		return fmt.Errorf("%w: secondary_model cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}
	if !c.HasPrimaryProvider() && !c.HasSecondaryProvider() {
		slog.Warn("no provider API key configured; all requests will use the synthetic fallback")
	}

	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("%w: must be positive, got %s", ErrInvalidProviderTimeout, c.ProviderTimeout)
	}
	if c.ProviderRPS <= 0 || c.ProviderRPS > 100 {
		return fmt.Errorf("%w: must be in (0, 100], got %g", ErrInvalidProviderRPS, c.ProviderRPS)
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "formpilot_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"warning", "change postgres_password for production deployments")
	}

	// Cache configuration
	if c.ResponseCacheSize < 1 || c.ResponseCacheSize > 100000 {
		return fmt.Errorf("%w: response_cache_size must be between 1 and 100000, got %d",
			ErrInvalidCacheConfig, c.ResponseCacheSize)
	}
	if c.ResponseCacheTTL <= 0 {
		return fmt.Errorf("%w: response_cache_ttl must be positive, got %s",
			ErrInvalidCacheConfig, c.ResponseCacheTTL)
	}
	if c.EmbeddingCacheTTL <= 0 {
		return fmt.Errorf("%w: embedding_cache_ttl must be positive, got %s",
			ErrInvalidCacheConfig, c.EmbeddingCacheTTL)
	}
	if c.ResearchStalenessDays < 1 || c.ResearchStalenessDays > 365 {
		return fmt.Errorf("%w: research_staleness_days must be between 1 and 365, got %d",
			ErrInvalidCacheConfig, c.ResearchStalenessDays)
	}

	// Retrieval configuration
	if c.MatchCount < 1 || c.MatchCount > 50 {
		return fmt.Errorf("%w: match_count must be between 1 and 50, got %d",
			ErrInvalidRetrievalConfig, c.MatchCount)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold must be in [0, 1], got %g",
			ErrInvalidRetrievalConfig, c.SimilarityThreshold)
	}
	if c.ResearchMatchCount < 1 || c.ResearchMatchCount > 10 {
		return fmt.Errorf("%w: research_match_count must be between 1 and 10, got %d",
			ErrInvalidRetrievalConfig, c.ResearchMatchCount)
	}
	if c.ResearchThreshold < 0 || c.ResearchThreshold > 1 {
		return fmt.Errorf("%w: research_threshold must be in [0, 1], got %g",
			ErrInvalidRetrievalConfig, c.ResearchThreshold)
	}

	return nil
}
