// Package risk computes the risk-metric vector of a holdings snapshot.
//
// The calculator is a pure function of its input: no I/O, no errors. Missing
// data degrades to documented defaults.
package risk

import (
	"github.com/aristath/warden/internal/domain"
)

// presenceEpsilon is the smallest allocation share counted as a position
const presenceEpsilon = 1e-9

// ConcentrationRisk maps the number of distinct assets to a risk score.
// Non-increasing in n; breakpoints are part of the public contract.
func ConcentrationRisk(n int) float64 {
	switch {
	case n >= 5:
		return 0.2
	case n >= 3:
		return 0.4
	case n >= 2:
		return 0.6
	default:
		// 0 or 1 asset: no diversification at all
		return 1.0
	}
}

// DiversificationScore maps the number of distinct assets to a score.
// Non-decreasing in n; breakpoints are part of the public contract.
func DiversificationScore(n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n >= 10:
		return 1.0
	case n >= 5:
		return 0.8
	case n >= 3:
		return 0.6
	case n >= 2:
		return 0.4
	default:
		return 0.2
	}
}

// Calculator produces RiskMetrics. Estimators are injected at construction;
// the calculator holds no per-request state and is safe for concurrent use.
type Calculator struct {
	volatility VolatilityEstimator
	liquidity  LiquidityClassifier
}

// Option configures a Calculator
type Option func(*Calculator)

// WithVolatilityEstimator replaces the default constant volatility
func WithVolatilityEstimator(v VolatilityEstimator) Option {
	return func(c *Calculator) {
		if v != nil {
			c.volatility = v
		}
	}
}

// WithLiquidityClassifier replaces the default all-liquid classifier
func WithLiquidityClassifier(l LiquidityClassifier) Option {
	return func(c *Calculator) {
		if l != nil {
			c.liquidity = l
		}
	}
}

// NewCalculator creates a calculator with the reference estimators
// (constant 0.5 volatility, everything liquid) unless overridden.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		volatility: ConstantVolatility{Value: DefaultVolatility},
		liquidity:  AllLiquid{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate computes the metrics of a snapshot.
// Count-based metrics include unpriced holdings; value-weighted ones exclude them.
func (c *Calculator) Calculate(snapshot domain.HoldingsSnapshot) domain.RiskMetrics {
	n := snapshot.DistinctAssets()

	return domain.RiskMetrics{
		ConcentrationRisk:    ConcentrationRisk(n),
		DiversificationScore: DiversificationScore(n),
		VolatilityEstimate:   domain.Clamp01(c.volatility.EstimateVolatility(snapshot)),
		NativeAssetExposure:  NativeAssetExposure(snapshot),
		LiquidAssetsRatio:    c.liquidAssetsRatio(snapshot),
	}
}

// ProjectedConcentration is the concentration risk of an allocation, counting
// every entry with a non-negligible share as a distinct position. held lists
// assets that stay in the wallet without a share in alloc, such as unpriced
// holdings; each one without a position in alloc counts once more.
func (c *Calculator) ProjectedConcentration(alloc domain.Allocation, held ...domain.Asset) float64 {
	n := countPositions(alloc)

	seen := make(map[string]bool, len(held))
	for _, asset := range held {
		if seen[asset.ID] {
			continue
		}
		seen[asset.ID] = true
		if pct, _ := alloc.Get(asset.ID); pct <= presenceEpsilon {
			n++
		}
	}

	return ConcentrationRisk(n)
}

// NativeAssetExposure is native value divided by total resolved value, 0 when
// the total is 0.
func NativeAssetExposure(snapshot domain.HoldingsSnapshot) float64 {
	total := snapshot.TotalValue()
	if total <= 0 {
		return 0
	}
	return domain.Clamp01(snapshot.NativeValue() / total)
}

func (c *Calculator) liquidAssetsRatio(snapshot domain.HoldingsSnapshot) float64 {
	if len(snapshot.Holdings) == 0 {
		return 1.0
	}

	total := snapshot.TotalValue()
	if total <= 0 {
		// nothing priced: fall back to the share of liquid positions by count
		liquid := 0
		for _, h := range snapshot.Holdings {
			if c.liquidity.IsLiquid(h.Asset) {
				liquid++
			}
		}
		return float64(liquid) / float64(len(snapshot.Holdings))
	}

	liquidValue := 0.0
	for _, h := range snapshot.Holdings {
		if h.Value != nil && c.liquidity.IsLiquid(h.Asset) {
			liquidValue += *h.Value
		}
	}
	return domain.Clamp01(liquidValue / total)
}

func countPositions(alloc domain.Allocation) int {
	n := 0
	for _, e := range alloc {
		if e.Percentage > presenceEpsilon {
			n++
		}
	}
	return n
}
