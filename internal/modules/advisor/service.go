package advisor

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/internal/modules/allocation"
	"github.com/aristath/warden/internal/modules/holdings"
	"github.com/aristath/warden/internal/modules/market"
	"github.com/aristath/warden/internal/modules/rebalancing"
	"github.com/aristath/warden/internal/modules/risk"
	"github.com/aristath/warden/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Service orchestrates holdings, risk, market signals and rebalancing.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	builder    *holdings.Builder
	aggregator *market.Aggregator
	planner    *rebalancing.Planner
	riskOpts   []risk.Option
	prices     domain.BatchPriceResolver
	history    market.PriceHistory
	settings   Settings
	newID      func() string
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures optional collaborators of the Service
type Option func(*Service)

// WithPriceLookup sets the lookup used for target assets that are not held
func WithPriceLookup(p domain.BatchPriceResolver) Option {
	return func(s *Service) {
		s.prices = p
	}
}

// WithPriceHistory enables historical volatility when Settings.VolatilityDays > 0
func WithPriceHistory(h market.PriceHistory) Option {
	return func(s *Service) {
		s.history = h
	}
}

// WithRiskOptions sets the estimators used by every risk calculation
func WithRiskOptions(opts ...risk.Option) Option {
	return func(s *Service) {
		s.riskOpts = opts
	}
}

// NewService creates a new advisor service
func NewService(
	builder *holdings.Builder,
	aggregator *market.Aggregator,
	planner *rebalancing.Planner,
	settings Settings,
	log zerolog.Logger,
	opts ...Option,
) *Service {
	if settings.RequestTimeout <= 0 {
		settings.RequestTimeout = DefaultSettings().RequestTimeout
	}

	s := &Service{
		builder:    builder,
		aggregator: aggregator,
		planner:    planner,
		settings:   settings,
		newID:      func() string { return uuid.New().String() },
		now:        time.Now,
		log:        log.With().Str("service", "advisor").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze builds the full analysis of a wallet. Holdings and market data are
// fetched concurrently under one deadline. Only invalid input or an
// unreachable holdings source fail the call.
func (s *Service) Analyze(ctx context.Context, wallet string) (*Analysis, error) {
	defer utils.OperationTimer("analyze", s.log)()

	if err := holdings.ValidateWallet(wallet); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.settings.RequestTimeout)
	defer cancel()

	snapshot, set, err := s.fetch(ctx, wallet, true)
	if err != nil {
		s.log.Error().Err(err).Str("wallet", wallet).Msg("Failed to build holdings")
		return nil, err
	}

	metrics := s.calculator(ctx, snapshot).Calculate(snapshot)
	order := s.aggregator.SourceNames()

	analysis := &Analysis{
		ID:          s.newID(),
		Wallet:      wallet,
		GeneratedAt: s.now().UTC(),
		Holdings: HoldingsSummary{
			NativeBalance:  snapshot.NativeBalance.InexactFloat64(),
			TotalValue:     snapshot.TotalValue(),
			DistinctAssets: snapshot.DistinctAssets(),
			Holdings:       snapshot.Holdings,
			Allocation:     allocation.CurrentAllocation(snapshot),
			Unpriced:       snapshot.UnpricedAssets(),
		},
		Risk:            metrics,
		Insights:        s.insights(*set, order),
		Recommendations: Recommend(snapshot, metrics, set, order, s.settings),
	}

	s.log.Info().
		Str("wallet", wallet).
		Int("holdings", analysis.Holdings.DistinctAssets).
		Bool("partial", analysis.Insights.Partial).
		Int("recommendations", len(analysis.Recommendations)).
		Msg("Wallet analyzed")

	return analysis, nil
}

// GetRiskMetrics returns the risk vector of a wallet
func (s *Service) GetRiskMetrics(ctx context.Context, wallet string) (domain.RiskMetrics, error) {
	defer utils.OperationTimer("get_risk_metrics", s.log)()

	ctx, cancel := context.WithTimeout(ctx, s.settings.RequestTimeout)
	defer cancel()

	snapshot, err := s.builder.Build(ctx, wallet)
	if err != nil {
		return domain.RiskMetrics{}, err
	}

	return s.calculator(ctx, snapshot).Calculate(snapshot), nil
}

// GetRebalancePlan plans the trades moving a wallet toward a strategy or a
// custom target. The "other" bucket is spread over held assets the target
// does not name. With BiasWithSignals the target is nudged toward bullish
// trends before planning.
func (s *Service) GetRebalancePlan(ctx context.Context, wallet string, req PlanRequest) (*domain.RebalancePlan, error) {
	defer utils.OperationTimer("get_rebalance_plan", s.log)()

	if err := holdings.ValidateWallet(wallet); err != nil {
		return nil, err
	}

	target, err := resolveTarget(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.settings.RequestTimeout)
	defer cancel()

	snapshot, set, err := s.fetch(ctx, wallet, req.BiasWithSignals)
	if err != nil {
		s.log.Error().Err(err).Str("wallet", wallet).Msg("Failed to build holdings")
		return nil, err
	}

	metrics := s.calculator(ctx, snapshot).Calculate(snapshot)
	current := allocation.CurrentAllocation(snapshot)

	target = allocation.ExpandOther(target, current)
	if set != nil && len(target) > 0 {
		target = allocation.ApplySuggestions(target, set.SuggestedAllocations)
	}

	prices := s.unitPrices(ctx, snapshot, target)

	return s.planner.Plan(rebalancing.Input{
		Current:       current,
		Target:        target,
		TotalValue:    snapshot.TotalValue(),
		UnitPrices:    prices,
		CurrentRisk:   &metrics,
		MinTradeValue: s.minTradeValue(prices),
		Unallocated:   unallocated(snapshot, current),
	})
}

// unallocated lists held assets without a share in the current allocation
func unallocated(snapshot domain.HoldingsSnapshot, current domain.Allocation) []domain.Asset {
	var out []domain.Asset
	for _, h := range snapshot.Holdings {
		if pct, _ := current.Get(h.Asset.ID); pct <= 0 {
			out = append(out, h.Asset)
		}
	}
	return out
}

// GetMarketInsights aggregates the selected market sources. It never fails;
// unavailable sources are flagged in the result.
func (s *Service) GetMarketInsights(ctx context.Context, sourceFilter ...string) domain.MarketSignalSet {
	defer utils.OperationTimer("get_market_insights", s.log)()

	ctx, cancel := context.WithTimeout(ctx, s.settings.RequestTimeout)
	defer cancel()

	return s.aggregator.Aggregate(ctx, sourceFilter...)
}

// resolveTarget validates a custom target before anything is fetched
func resolveTarget(req PlanRequest) (domain.Allocation, error) {
	if req.CustomTarget != nil {
		if err := req.CustomTarget.Validate(); err != nil {
			return nil, err
		}
		return req.CustomTarget, nil
	}

	_, target := allocation.ResolveStrategy(req.Strategy)
	return target, nil
}

// fetch builds the snapshot and, optionally, aggregates market data at the
// same time. Market data is abandoned as soon as the holdings fail.
func (s *Service) fetch(ctx context.Context, wallet string, withMarket bool) (domain.HoldingsSnapshot, *domain.MarketSignalSet, error) {
	g, gctx := errgroup.WithContext(ctx)

	var set *domain.MarketSignalSet
	if withMarket {
		g.Go(func() error {
			result := s.aggregator.Aggregate(gctx)
			set = &result
			return nil
		})
	}

	var snapshot domain.HoldingsSnapshot
	g.Go(func() error {
		var err error
		snapshot, err = s.builder.Build(gctx, wallet)
		return err
	})

	if err := g.Wait(); err != nil {
		return domain.HoldingsSnapshot{}, nil, err
	}
	return snapshot, set, nil
}

// calculator returns the risk calculator for one request. With a price
// history wired, volatility comes from the daily closes of priced holdings.
func (s *Service) calculator(ctx context.Context, snapshot domain.HoldingsSnapshot) *risk.Calculator {
	if s.history == nil || s.settings.VolatilityDays <= 0 {
		return risk.NewCalculator(s.riskOpts...)
	}

	series := s.priceSeries(ctx, snapshot)
	opts := make([]risk.Option, 0, len(s.riskOpts)+1)
	opts = append(opts, s.riskOpts...)
	opts = append(opts, risk.WithVolatilityEstimator(risk.HistoricalVolatility{
		Series:   series,
		Fallback: risk.DefaultVolatility,
	}))
	return risk.NewCalculator(opts...)
}

func (s *Service) priceSeries(ctx context.Context, snapshot domain.HoldingsSnapshot) map[string][]float64 {
	series := make(map[string][]float64)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, h := range snapshot.Holdings {
		if !h.Priced() {
			continue
		}
		wg.Add(1)
		go func(asset domain.Asset) {
			defer wg.Done()
			closes, err := s.history.DailyCloses(ctx, asset, s.settings.VolatilityDays)
			if err != nil {
				s.log.Debug().Err(err).Str("asset", asset.ID).Msg("No price history for volatility")
				return
			}
			mu.Lock()
			series[asset.ID] = closes
			mu.Unlock()
		}(h.Asset)
	}
	wg.Wait()

	return series
}

// unitPrices collects USD unit prices from the snapshot and looks up the
// rest of the target plus the native asset, which prices the fees.
func (s *Service) unitPrices(ctx context.Context, snapshot domain.HoldingsSnapshot, target domain.Allocation) map[string]float64 {
	prices := make(map[string]float64)
	for _, h := range snapshot.Holdings {
		if p, ok := h.UnitPrice(); ok {
			prices[h.Asset.ID] = p
		}
	}
	if s.prices == nil {
		return prices
	}

	wanted := make(map[string]domain.Asset)
	for _, e := range target {
		if _, ok := prices[e.Asset.ID]; !ok && !e.Asset.IsOther() {
			wanted[e.Asset.ID] = e.Asset
		}
	}
	if _, ok := prices[domain.NativeMint]; !ok {
		wanted[domain.NativeMint] = domain.NativeAsset()
	}
	if len(wanted) == 0 {
		return prices
	}

	ids := make([]string, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	missing := make([]domain.Asset, len(ids))
	for i, id := range ids {
		missing[i] = wanted[id]
	}

	for id, p := range s.prices.UnitPrices(ctx, missing) {
		if p > 0 {
			prices[id] = p
		}
	}
	return prices
}

// minTradeValue is the USD size below which fees exceed MaxFeeRatio.
// Zero disables the check.
func (s *Service) minTradeValue(prices map[string]float64) float64 {
	if s.settings.MaxFeeRatio <= 0 {
		return 0
	}
	nativePrice := prices[domain.NativeMint]
	if nativePrice <= 0 {
		return 0
	}

	v := rebalancing.CalculateMinTradeValue(s.settings.FeePerTrade*nativePrice, s.settings.FeePercent, s.settings.MaxFeeRatio)
	if math.IsInf(v, 1) {
		s.log.Warn().
			Float64("fee_percent", s.settings.FeePercent).
			Float64("max_fee_ratio", s.settings.MaxFeeRatio).
			Msg("Fee percent exceeds max fee ratio, ignoring minimum trade value")
		return 0
	}
	return v
}

func (s *Service) insights(set domain.MarketSignalSet, order []string) Insights {
	sources := make([]SourceStatus, 0, len(order))
	for _, name := range order {
		src, ok := set.Sources[name]
		if !ok {
			continue
		}
		sources = append(sources, SourceStatus{
			Name:      name,
			Available: src.Available,
			Error:     src.Error,
			Signals:   len(src.Signals),
		})
	}

	return Insights{
		Sources:              sources,
		Partial:              set.Partial(),
		UnavailableSources:   set.UnavailableSources(order),
		TopOpportunities:     market.TopOpportunities(set, s.settings.TopOpportunities),
		SuggestedAllocations: set.SuggestedAllocations,
	}
}
