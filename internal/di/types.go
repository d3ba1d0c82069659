// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/warden/internal/clientdata"
	"github.com/aristath/warden/internal/clients/coingecko"
	"github.com/aristath/warden/internal/clients/jupiter"
	"github.com/aristath/warden/internal/clients/solana"
	"github.com/aristath/warden/internal/database"
	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/internal/modules/advisor"
	"github.com/aristath/warden/internal/modules/holdings"
	"github.com/aristath/warden/internal/modules/market"
	"github.com/aristath/warden/internal/modules/rebalancing"
	"github.com/aristath/warden/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire() and passed to the server.
type Container struct {
	// Databases
	CacheDB *database.DB // Price, history and token metadata cache

	// Repositories
	CacheRepo *clientdata.Repository

	// Clients - External API integrations
	SolanaClient    *solana.Client            // Holdings source
	JupiterClient   *jupiter.Client           // Price resolver
	CoinGeckoClient *coingecko.Client         // Daily closes for trends and volatility
	MarketSources   []domain.MarketDataSource // HTTP feeds plus the EMA trend source

	// Services
	HoldingsBuilder  *holdings.Builder
	MarketAggregator *market.Aggregator
	Planner          *rebalancing.Planner
	AdvisorService   *advisor.Service

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// JobInstances holds registered jobs for manual triggering
type JobInstances struct {
	CacheCleanup scheduler.Job
}

// Close releases resources held by the container
func (c *Container) Close() error {
	if c.CacheDB == nil {
		return nil
	}
	return c.CacheDB.Close()
}
