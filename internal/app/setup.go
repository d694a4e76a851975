package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formpilot/formpilot/db"
	"github.com/formpilot/formpilot/internal/agent"
	"github.com/formpilot/formpilot/internal/cache"
	"github.com/formpilot/formpilot/internal/clock"
	"github.com/formpilot/formpilot/internal/config"
	"github.com/formpilot/formpilot/internal/knowledge"
	"github.com/formpilot/formpilot/internal/log"
	"github.com/formpilot/formpilot/internal/normalize"
	"github.com/formpilot/formpilot/internal/observability"
	"github.com/formpilot/formpilot/internal/provider"
	"github.com/formpilot/formpilot/internal/research"
	"github.com/formpilot/formpilot/internal/retrieval"
	"github.com/formpilot/formpilot/internal/task"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	clk := clock.System{}
	a.Registry = task.NewRegistry()
	a.Usage = provider.NewUsageRecorder()
	a.ResponseCache = cache.NewResponseCache[agent.Response](cfg.ResponseCacheSize, cfg.ResponseCacheTTL, clk)
	a.EmbeddingCache = cache.NewEmbeddingCache(cfg.EmbeddingCacheTTL, clk)

	// Retrieval needs an embedder; without one the agent degrades to
	// generation without context.
	var engine *retrieval.Engine
	if embedder := provideEmbedder(g, cfg); embedder != nil {
		a.Embedder = embedder
		cached := retrieval.NewCachedEmbedder(embedder, a.EmbeddingCache)

		a.Knowledge = knowledge.New(knowledge.NewQueries(pool), cached, clk, logger)
		a.Research = research.New(research.NewQueries(pool), cached, clk,
			cfg.ResearchStalenessWindow(), logger)

		engine = retrieval.NewEngine(a.Knowledge, a.Research, retrieval.Config{
			MatchCount:          cfg.MatchCount,
			SimilarityThreshold: cfg.SimilarityThreshold,
			ResearchMatchCount:  cfg.ResearchMatchCount,
			ResearchThreshold:   cfg.ResearchThreshold,
		}, logger)
	} else {
		logger.Warn("no embedder available, retrieval and research caching disabled")
	}

	dispatcher := provider.NewDispatcher(provideProviderRegistry(g, cfg, logger), a.Usage, logger)

	// The Engine and Store pointers must stay typed nil when unset;
	// passing them through typed variables would defeat the agent's
	// nil checks.
	var retriever agent.Retriever
	if engine != nil {
		retriever = engine
	}
	var researchStore agent.ResearchStore
	if a.Research != nil {
		researchStore = a.Research
	}

	a.Agent = agent.New(
		a.Registry,
		retriever,
		dispatcher,
		normalize.New(logger),
		researchStore,
		a.ResponseCache,
		clk,
		logger,
	)

	return a, nil
}

// provideOtelShutdown sets up trace export before anything that
// creates spans.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	shutdown := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	}, logger)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL connection
// pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideGenkit initializes Genkit with a plugin per configured
// provider. A deployment with no API keys still initializes: the
// dispatch chain is then empty and every request is served
// synthetically.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var plugins []api.Plugin
	if cfg.HasPrimaryProvider() {
		plugins = append(plugins, &googlegenai.GoogleAI{})
	}
	if cfg.HasSecondaryProvider() {
		plugins = append(plugins, &openai.OpenAI{})
	}

	g := genkit.Init(ctx, genkit.WithPlugins(plugins...))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}

	logger.Info("initialized genkit",
		"gemini", cfg.HasPrimaryProvider(),
		"openai", cfg.HasSecondaryProvider())
	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider
// plugins, preferring Gemini. Returns nil when no provider is
// configured.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch {
	case cfg.HasPrimaryProvider():
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	case cfg.HasSecondaryProvider():
		return genkit.LookupEmbedder(g, api.NewName("openai", "text-embedding-3-small"))
	default:
		return nil
	}
}

// provideProviderRegistry resolves the dispatch chain once at
// startup: Gemini first, OpenAI second, with an entry only per
// configured key.
func provideProviderRegistry(g *genkit.Genkit, cfg *config.Config, logger log.Logger) *provider.Registry {
	var primary, secondary provider.Generator
	if cfg.HasPrimaryProvider() {
		primary = provider.NewGenkitProvider(g, provider.NamePrimary,
			"googleai/"+cfg.PrimaryModel, cfg.ProviderTimeout, cfg.ProviderRPS, logger)
	}
	if cfg.HasSecondaryProvider() {
		secondary = provider.NewGenkitProvider(g, provider.NameSecondary,
			"openai/"+cfg.SecondaryModel, cfg.ProviderTimeout, cfg.ProviderRPS, logger)
	}

	registry := provider.NewRegistry(primary, secondary)
	logger.Info("resolved provider chain", "order", registry.Names())
	return registry
}
