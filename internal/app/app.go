// Package app provides application initialization and dependency
// wiring.
//
// App is the container that Setup assembles: configuration, logging,
// tracing, the database pool, the embedding and response caches, both
// stores, the provider chain, and the agent on top of them all. Call
// Close to release everything in reverse order.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formpilot/formpilot/internal/agent"
	"github.com/formpilot/formpilot/internal/cache"
	"github.com/formpilot/formpilot/internal/config"
	"github.com/formpilot/formpilot/internal/knowledge"
	"github.com/formpilot/formpilot/internal/log"
	"github.com/formpilot/formpilot/internal/provider"
	"github.com/formpilot/formpilot/internal/research"
	"github.com/formpilot/formpilot/internal/task"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	// Domain components
	Registry  *task.Registry
	Knowledge *knowledge.Store
	Research  *research.Store
	Usage     *provider.UsageRecorder
	Agent     *agent.Agent

	// Caches, exposed for the stats command.
	ResponseCache  *cache.ResponseCache[agent.Response]
	EmbeddingCache *cache.EmbeddingCache

	otelCleanup func()
	dbCleanup   func()
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	a.logger().Info("shutting down application")

	if a.dbCleanup != nil {
		a.dbCleanup()
		a.logger().Info("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

func (a *App) logger() log.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return log.NewNop()
}
