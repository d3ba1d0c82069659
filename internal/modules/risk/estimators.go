package risk

import (
	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/pkg/formulas"
)

// DefaultVolatility is the reference volatility placeholder
const DefaultVolatility = 0.5

// VolatilityEstimator estimates portfolio volatility in [0,1]
type VolatilityEstimator interface {
	EstimateVolatility(snapshot domain.HoldingsSnapshot) float64
}

// LiquidityClassifier tags assets as liquid or not
type LiquidityClassifier interface {
	IsLiquid(asset domain.Asset) bool
}

// ConstantVolatility returns the same estimate for every snapshot
type ConstantVolatility struct {
	Value float64
}

// EstimateVolatility implements VolatilityEstimator
func (c ConstantVolatility) EstimateVolatility(domain.HoldingsSnapshot) float64 {
	return c.Value
}

// HistoricalVolatility is the value-weighted annualized volatility of daily
// closes, keyed by asset id. Price series must be fetched before the request
// reaches the calculator. Holdings without a series or a value are skipped;
// if nothing remains, Fallback is returned.
type HistoricalVolatility struct {
	Series   map[string][]float64
	Fallback float64
}

// EstimateVolatility implements VolatilityEstimator
func (h HistoricalVolatility) EstimateVolatility(snapshot domain.HoldingsSnapshot) float64 {
	var vols, weights []float64

	for _, holding := range snapshot.Holdings {
		if holding.Value == nil || *holding.Value <= 0 {
			continue
		}
		prices, ok := h.Series[holding.Asset.ID]
		if !ok || len(prices) < 3 {
			continue
		}
		returns := formulas.CalculateReturns(prices)
		vols = append(vols, formulas.AnnualizedVolatility(returns))
		weights = append(weights, *holding.Value)
	}

	if len(vols) == 0 {
		return h.Fallback
	}

	return domain.Clamp01(formulas.WeightedMean(vols, weights))
}

// AllLiquid treats every asset as liquid
type AllLiquid struct{}

// IsLiquid implements LiquidityClassifier
func (AllLiquid) IsLiquid(domain.Asset) bool { return true }

// ListedLiquid treats the native asset and the listed mints as liquid
type ListedLiquid map[string]bool

// IsLiquid implements LiquidityClassifier
func (l ListedLiquid) IsLiquid(asset domain.Asset) bool {
	return asset.Native || l[asset.ID]
}
