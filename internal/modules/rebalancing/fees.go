package rebalancing

import (
	"math"

	"github.com/aristath/warden/internal/domain"
)

// DefaultFeePerTrade is the flat per-trade fee estimate, in SOL
const DefaultFeePerTrade = 0.00001

// FeeModel estimates the cost of executing one trade in native-asset units.
// nativePrice is the USD price of one native unit, 0 when unknown.
type FeeModel interface {
	EstimateFee(trade domain.Trade, nativePrice float64) float64
}

// FlatFee charges the same amount for every trade
type FlatFee struct {
	PerTrade float64
}

// EstimateFee implements FeeModel
func (f FlatFee) EstimateFee(domain.Trade, float64) float64 {
	return f.PerTrade
}

// FixedPlusPercentFee charges a fixed native amount plus a fraction of the
// traded value, e.g. 0.00001 SOL + 0.3% for a swap route with a protocol fee.
// The percentage part needs the native price and is skipped without it.
type FixedPlusPercentFee struct {
	Fixed   float64
	Percent float64
}

// EstimateFee implements FeeModel
func (f FixedPlusPercentFee) EstimateFee(trade domain.Trade, nativePrice float64) float64 {
	if nativePrice <= 0 {
		return f.Fixed
	}
	return f.Fixed + math.Abs(trade.ValueDelta)*f.Percent/nativePrice
}

// CalculateMinTradeValue returns the trade value below which fees exceed
// maxCostRatio of the trade. fixed and the result share one unit.
//
// With 0.01 fixed + 0.3% and a 1% ceiling:
// - 1.0 trade: 1.3% drag, not worthwhile
// - 10.0 trade: 0.4% drag, acceptable
func CalculateMinTradeValue(fixed, percent, maxCostRatio float64) float64 {
	// (fixed + v*percent) / v = maxCostRatio  =>  v = fixed / (maxCostRatio - percent)
	denominator := maxCostRatio - percent
	if denominator <= 0 {
		// variable cost alone exceeds the ceiling
		return math.Inf(1)
	}
	return fixed / denominator
}
