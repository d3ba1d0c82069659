// Package market merges external market-data sources into a signal set.
package market

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aristath/warden/internal/domain"
	"github.com/rs/zerolog"
)

const (
	// DefaultSourceTimeout bounds each source independently
	DefaultSourceTimeout = 5 * time.Second
	// DefaultSuggestionStep is the allocation increase suggested per bullish trend
	DefaultSuggestionStep = 0.05
	// DefaultMinConfidence is the exclusive confidence floor for a suggestion
	DefaultMinConfidence = 0.6
)

// Config holds aggregator settings
type Config struct {
	SourceTimeout  time.Duration
	SuggestionStep float64
	MinConfidence  float64
}

// DefaultConfig returns the reference settings
func DefaultConfig() Config {
	return Config{
		SourceTimeout:  DefaultSourceTimeout,
		SuggestionStep: DefaultSuggestionStep,
		MinConfidence:  DefaultMinConfidence,
	}
}

// Aggregator fans out to every configured source and merges the results.
// It never fails as a whole: a failing source is reported as unavailable.
type Aggregator struct {
	sources []domain.MarketDataSource
	cfg     Config
	log     zerolog.Logger
}

// NewAggregator creates an aggregator. Sources with duplicate names are dropped
// (the first one wins) since the name is the merge key.
func NewAggregator(sources []domain.MarketDataSource, cfg Config, log zerolog.Logger) *Aggregator {
	l := log.With().Str("service", "market").Logger()

	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = DefaultSourceTimeout
	}
	if cfg.SuggestionStep <= 0 {
		cfg.SuggestionStep = DefaultSuggestionStep
	}

	seen := make(map[string]bool, len(sources))
	unique := make([]domain.MarketDataSource, 0, len(sources))
	for _, src := range sources {
		if src == nil {
			continue
		}
		if seen[src.Name()] {
			l.Warn().Str("source", src.Name()).Msg("Ignoring duplicate market source")
			continue
		}
		seen[src.Name()] = true
		unique = append(unique, src)
	}

	return &Aggregator{
		sources: unique,
		cfg:     cfg,
		log:     l,
	}
}

// SourceNames returns the configured source tags in sorted order
func (a *Aggregator) SourceNames() []string {
	names := make([]string, len(a.sources))
	for i, src := range a.sources {
		names[i] = src.Name()
	}
	sort.Strings(names)
	return names
}

type sourceResult struct {
	name    string
	signals domain.SourceSignals
}

// Aggregate fetches from the selected sources concurrently. An empty filter
// selects every source; unknown names in the filter are ignored.
func (a *Aggregator) Aggregate(ctx context.Context, filter ...string) domain.MarketSignalSet {
	selected := a.selectSources(filter)

	results := make([]sourceResult, len(selected))
	var wg sync.WaitGroup
	for i, src := range selected {
		wg.Add(1)
		go func(i int, src domain.MarketDataSource) {
			defer wg.Done()
			results[i] = sourceResult{name: src.Name(), signals: a.fetchSource(ctx, src)}
		}(i, src)
	}
	wg.Wait()

	set := domain.MarketSignalSet{
		Sources:              make(map[string]domain.SourceSignals, len(results)),
		SuggestedAllocations: []domain.SuggestedAllocation{},
	}
	for _, r := range results {
		set.Sources[r.name] = r.signals
	}
	set.SuggestedAllocations = a.suggest(set)

	a.log.Debug().
		Int("sources", len(selected)).
		Bool("partial", set.Partial()).
		Int("suggestions", len(set.SuggestedAllocations)).
		Msg("Aggregated market signals")

	return set
}

func (a *Aggregator) selectSources(filter []string) []domain.MarketDataSource {
	if len(filter) == 0 {
		return a.sources
	}

	wanted := make(map[string]bool, len(filter))
	for _, name := range filter {
		wanted[name] = true
	}

	var selected []domain.MarketDataSource
	for _, src := range a.sources {
		if wanted[src.Name()] {
			selected = append(selected, src)
		}
	}
	return selected
}

type fetchOutcome struct {
	opportunities []domain.Opportunity
	trends        []domain.Trend
	err           error
}

// fetchSource runs both fetches of one source under its own timeout. If the
// deadline passes first the fetch is abandoned and the source is reported
// unavailable, even if the adapter ignores its context.
func (a *Aggregator) fetchSource(parent context.Context, src domain.MarketDataSource) domain.SourceSignals {
	ctx, cancel := context.WithTimeout(parent, a.cfg.SourceTimeout)
	defer cancel()

	done := make(chan fetchOutcome, 1)
	go func() {
		var out fetchOutcome
		var oppErr, trendErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			out.opportunities, oppErr = src.FetchOpportunities(ctx)
		}()
		go func() {
			defer wg.Done()
			out.trends, trendErr = src.FetchTrends(ctx)
		}()
		wg.Wait()

		switch {
		case oppErr != nil:
			out.err = fmt.Errorf("fetch opportunities: %w", oppErr)
		case trendErr != nil:
			out.err = fmt.Errorf("fetch trends: %w", trendErr)
		}
		done <- out
	}()

	var out fetchOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = fetchOutcome{err: ctx.Err()}
	}

	if out.err != nil {
		a.log.Warn().
			Err(out.err).
			Str("source", src.Name()).
			Msg("Market source unavailable")
		return domain.SourceSignals{
			Available: false,
			Error:     out.err.Error(),
			Signals:   []domain.MarketSignal{},
		}
	}

	return domain.SourceSignals{
		Available: true,
		Signals:   a.normalize(src.Name(), out.opportunities, out.trends),
	}
}

// normalize validates raw source data and converts it to signals.
// Opportunities come first, then trends, each in source order.
func (a *Aggregator) normalize(source string, opportunities []domain.Opportunity, trends []domain.Trend) []domain.MarketSignal {
	signals := make([]domain.MarketSignal, 0, len(opportunities)+len(trends))

	for _, o := range opportunities {
		if o.Route == "" || math.IsNaN(o.APR) || math.IsInf(o.APR, 0) || o.Liquidity < 0 {
			a.log.Warn().Str("source", source).Str("route", o.Route).Msg("Dropping malformed opportunity")
			continue
		}
		signals = append(signals, domain.MarketSignal{
			Source: source,
			Asset:  o.Asset,
			Kind:   domain.SignalKindOpportunity,
			Opportunity: &domain.OpportunityPayload{
				Route:     o.Route,
				APR:       o.APR,
				Liquidity: o.Liquidity,
				RiskTier:  o.RiskTier,
			},
		})
	}

	for _, t := range trends {
		direction, ok := domain.ParseTrendDirection(string(t.Direction))
		if !ok || t.Asset.ID == "" || math.IsNaN(t.Confidence) || t.Confidence < 0 || t.Confidence > 1 {
			a.log.Warn().Str("source", source).Str("asset", t.Asset.ID).Msg("Dropping malformed trend")
			continue
		}
		signals = append(signals, domain.MarketSignal{
			Source: source,
			Asset:  t.Asset,
			Kind:   domain.SignalKindTrend,
			Trend: &domain.TrendPayload{
				Direction:  direction,
				Confidence: t.Confidence,
			},
		})
	}

	return signals
}

// suggest emits one fixed-step increase per bullish trend above the confidence
// floor. Sources are visited by sorted tag, trends in their input order.
func (a *Aggregator) suggest(set domain.MarketSignalSet) []domain.SuggestedAllocation {
	names := make([]string, 0, len(set.Sources))
	for name := range set.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	suggestions := []domain.SuggestedAllocation{}
	for _, name := range names {
		src := set.Sources[name]
		if !src.Available {
			continue
		}
		for _, sig := range src.Signals {
			if sig.Kind != domain.SignalKindTrend || sig.Trend == nil {
				continue
			}
			if sig.Trend.Direction != domain.TrendBullish || sig.Trend.Confidence <= a.cfg.MinConfidence {
				continue
			}
			suggestions = append(suggestions, domain.SuggestedAllocation{
				Source:     name,
				Asset:      sig.Asset,
				Increase:   a.cfg.SuggestionStep,
				Confidence: sig.Trend.Confidence,
			})
		}
	}

	return suggestions
}

// TopOpportunities returns up to n opportunities from available sources,
// ordered by APR descending, then source tag, then route.
func TopOpportunities(set domain.MarketSignalSet, n int) []domain.MarketSignal {
	var all []domain.MarketSignal
	for _, src := range set.Sources {
		if !src.Available {
			continue
		}
		for _, sig := range src.Signals {
			if sig.Kind == domain.SignalKindOpportunity && sig.Opportunity != nil {
				all = append(all, sig)
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Opportunity.APR != all[j].Opportunity.APR {
			return all[i].Opportunity.APR > all[j].Opportunity.APR
		}
		if all[i].Source != all[j].Source {
			return all[i].Source < all[j].Source
		}
		return all[i].Opportunity.Route < all[j].Opportunity.Route
	})

	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}
