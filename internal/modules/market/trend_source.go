package market

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/pkg/formulas"
	"github.com/rs/zerolog"
)

// EMATrendSourceName is the source tag of the EMA crossover feed
const EMATrendSourceName = "ema-trend"

// PriceHistory provides daily closing prices for an asset, oldest first
type PriceHistory interface {
	DailyCloses(ctx context.Context, asset domain.Asset, days int) ([]float64, error)
}

// EMATrendConfig tunes the crossover
type EMATrendConfig struct {
	ShortPeriod int
	LongPeriod  int
	Days        int
	// Threshold is the minimum relative spread for a non-neutral direction
	Threshold float64
	// Saturation is the spread at which confidence reaches 1.0
	Saturation float64
}

// DefaultEMATrendConfig returns the 12/26 crossover over 60 days
func DefaultEMATrendConfig() EMATrendConfig {
	return EMATrendConfig{
		ShortPeriod: 12,
		LongPeriod:  26,
		Days:        60,
		Threshold:   0.005,
		Saturation:  0.05,
	}
}

// EMATrendSource derives trends from an EMA(short)/EMA(long) crossover of
// price history. It reports no opportunities.
type EMATrendSource struct {
	history PriceHistory
	assets  []domain.Asset
	cfg     EMATrendConfig
	log     zerolog.Logger
}

// NewEMATrendSource creates a trend source over a fixed asset list
func NewEMATrendSource(history PriceHistory, assets []domain.Asset, cfg EMATrendConfig, log zerolog.Logger) *EMATrendSource {
	return &EMATrendSource{
		history: history,
		assets:  assets,
		cfg:     cfg,
		log:     log.With().Str("source", EMATrendSourceName).Logger(),
	}
}

// Name implements domain.MarketDataSource
func (s *EMATrendSource) Name() string {
	return EMATrendSourceName
}

// FetchOpportunities implements domain.MarketDataSource
func (s *EMATrendSource) FetchOpportunities(context.Context) ([]domain.Opportunity, error) {
	return nil, nil
}

// FetchTrends implements domain.MarketDataSource. Assets whose history cannot
// be fetched are skipped; the call fails only when every asset fails.
func (s *EMATrendSource) FetchTrends(ctx context.Context) ([]domain.Trend, error) {
	trends := make([]domain.Trend, 0, len(s.assets))
	var lastErr error

	for _, asset := range s.assets {
		closes, err := s.history.DailyCloses(ctx, asset, s.cfg.Days)
		if err != nil {
			lastErr = err
			s.log.Warn().Err(err).Str("asset", asset.ID).Msg("Failed to fetch price history")
			continue
		}

		spread, ok := formulas.EMASpread(closes, s.cfg.ShortPeriod, s.cfg.LongPeriod)
		if !ok {
			s.log.Debug().Str("asset", asset.ID).Int("points", len(closes)).Msg("Not enough history for trend")
			continue
		}

		trends = append(trends, s.classify(asset, spread))
	}

	if len(trends) == 0 && lastErr != nil {
		return nil, fmt.Errorf("price history unavailable: %w", lastErr)
	}
	return trends, nil
}

func (s *EMATrendSource) classify(asset domain.Asset, spread float64) domain.Trend {
	direction := domain.TrendNeutral
	switch {
	case spread > s.cfg.Threshold:
		direction = domain.TrendBullish
	case spread < -s.cfg.Threshold:
		direction = domain.TrendBearish
	}

	confidence := 0.0
	if s.cfg.Saturation > 0 {
		confidence = domain.Clamp01(math.Abs(spread) / s.cfg.Saturation)
	}

	return domain.Trend{
		Asset:      asset,
		Direction:  direction,
		Confidence: confidence,
	}
}
