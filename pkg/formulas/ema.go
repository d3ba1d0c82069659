package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateEMA calculates the Exponential Moving Average
//
// EMA Formula:
//
//	EMA_today = (Price_today × multiplier) + (EMA_yesterday × (1 - multiplier))
//	where multiplier = 2 / (period + 1)
//
// Returns nil if closes is empty. Falls back to the SMA of all closes
// when there are fewer points than the period.
func CalculateEMA(closes []float64, length int) *float64 {
	if len(closes) == 0 || length <= 0 {
		return nil
	}

	if len(closes) < length {
		sma := Mean(closes)
		return &sma
	}

	ema := talib.Ema(closes, length)
	if len(ema) > 0 && !math.IsNaN(ema[len(ema)-1]) {
		result := ema[len(ema)-1]
		return &result
	}

	sma := Mean(closes[len(closes)-length:])
	return &sma
}

// EMASpread returns (EMA(short) - EMA(long)) / EMA(long).
// Positive values mean the short-term average is above the long-term one.
func EMASpread(closes []float64, short, long int) (float64, bool) {
	fast := CalculateEMA(closes, short)
	slow := CalculateEMA(closes, long)
	if fast == nil || slow == nil || *slow == 0 {
		return 0, false
	}
	return (*fast - *slow) / *slow, true
}
