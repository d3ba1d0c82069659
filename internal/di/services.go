package di

import (
	"fmt"

	"github.com/aristath/warden/internal/clients/coingecko"
	"github.com/aristath/warden/internal/clients/jupiter"
	"github.com/aristath/warden/internal/clients/marketfeed"
	"github.com/aristath/warden/internal/clients/solana"
	"github.com/aristath/warden/internal/config"
	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/internal/modules/advisor"
	"github.com/aristath/warden/internal/modules/holdings"
	"github.com/aristath/warden/internal/modules/market"
	"github.com/aristath/warden/internal/modules/rebalancing"
	"github.com/aristath/warden/internal/modules/risk"
	"github.com/rs/zerolog"
)

// defaultTopOpportunities caps the opportunities listed in an analysis
const defaultTopOpportunities = 5

// InitializeServices creates clients and services on top of the databases
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.CacheRepo == nil {
		return fmt.Errorf("container must have databases initialized")
	}

	// Clients
	container.SolanaClient = solana.NewClient(cfg.SolanaRPCURL, container.CacheRepo, log)
	container.JupiterClient = jupiter.NewClient(cfg.JupiterPriceURL, container.CacheRepo, log)
	container.CoinGeckoClient = coingecko.NewClient(cfg.CoinGeckoURL, nil, container.CacheRepo, log)
	container.MarketSources = buildMarketSources(container, cfg, log)

	// Services
	container.HoldingsBuilder = holdings.NewBuilder(container.SolanaClient, container.JupiterClient, log)

	container.MarketAggregator = market.NewAggregator(container.MarketSources, market.Config{
		SourceTimeout:  cfg.MarketSourceTimeout,
		SuggestionStep: cfg.SuggestionStep,
		MinConfidence:  cfg.SuggestionMinConfidence,
	}, log)

	container.Planner = rebalancing.NewPlanner(rebalancing.Options{
		Fees: feeModel(cfg),
	}, log)

	settings := advisor.Settings{
		MinNativeBalance: cfg.MinNativeBalance,
		RequestTimeout:   cfg.RequestTimeout,
		TopOpportunities: defaultTopOpportunities,
		FeePerTrade:      cfg.FeePerTrade,
		FeePercent:       cfg.FeePercent,
		MaxFeeRatio:      cfg.MaxFeeRatio,
	}
	if cfg.HistoricalVolatility {
		settings.VolatilityDays = cfg.VolatilityDays
	}

	container.AdvisorService = advisor.NewService(
		container.HoldingsBuilder,
		container.MarketAggregator,
		container.Planner,
		settings,
		log,
		advisor.WithPriceLookup(container.JupiterClient),
		advisor.WithPriceHistory(container.CoinGeckoClient),
		advisor.WithRiskOptions(riskOptions(cfg)...),
	)

	log.Info().
		Int("market_sources", len(container.MarketSources)).
		Bool("historical_volatility", settings.VolatilityDays > 0).
		Msg("Services initialized")

	return nil
}

// buildMarketSources creates one HTTP feed per configured URL plus the EMA
// trend source over CoinGecko closes when trend assets are configured
func buildMarketSources(container *Container, cfg *config.Config, log zerolog.Logger) []domain.MarketDataSource {
	sources := make([]domain.MarketDataSource, 0, len(cfg.MarketFeeds)+1)

	for _, feed := range cfg.MarketFeeds {
		sources = append(sources, marketfeed.NewClient(feed.Name, feed.URL, log))
	}

	if len(cfg.TrendAssets) > 0 {
		assets := make([]domain.Asset, len(cfg.TrendAssets))
		for i, mint := range cfg.TrendAssets {
			assets[i] = domain.TokenAsset(mint, solana.KnownSymbols[mint])
		}
		sources = append(sources, market.NewEMATrendSource(
			container.CoinGeckoClient,
			assets,
			market.DefaultEMATrendConfig(),
			log,
		))
	}

	return sources
}

func feeModel(cfg *config.Config) rebalancing.FeeModel {
	if cfg.FeePercent > 0 {
		return rebalancing.FixedPlusPercentFee{Fixed: cfg.FeePerTrade, Percent: cfg.FeePercent}
	}
	return rebalancing.FlatFee{PerTrade: cfg.FeePerTrade}
}

func riskOptions(cfg *config.Config) []risk.Option {
	if len(cfg.LiquidAssets) == 0 {
		return nil
	}

	listed := make(risk.ListedLiquid, len(cfg.LiquidAssets))
	for _, mint := range cfg.LiquidAssets {
		listed[mint] = true
	}
	return []risk.Option{risk.WithLiquidityClassifier(listed)}
}
