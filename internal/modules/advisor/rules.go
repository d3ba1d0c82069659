package advisor

import (
	"fmt"
	"strings"

	"github.com/aristath/warden/internal/domain"
	"github.com/shopspring/decimal"
)

// Recommend evaluates the advisory rules in a fixed order. Every matching
// rule fires. set may be nil when no market data was requested.
func Recommend(
	snapshot domain.HoldingsSnapshot,
	metrics domain.RiskMetrics,
	set *domain.MarketSignalSet,
	sourceOrder []string,
	settings Settings,
) []Recommendation {
	recs := make([]Recommendation, 0)

	minNative := decimal.NewFromFloat(settings.MinNativeBalance)
	if snapshot.NativeBalance.LessThan(minNative) {
		recs = append(recs, Recommendation{
			Code:     "low_native_balance",
			Severity: SeverityWarning,
			Message: fmt.Sprintf("SOL balance %s is below the %s SOL kept for transaction fees; top up before rebalancing",
				snapshot.NativeBalance.String(), minNative.String()),
		})
	}

	if n := snapshot.DistinctAssets(); n < MinDistinctAssets {
		recs = append(recs, Recommendation{
			Code:     "few_assets",
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("Wallet holds %d distinct assets; consider spreading value over at least %d", n, MinDistinctAssets),
		})
	}

	if metrics.ConcentrationRisk > MaxConcentrationRisk {
		recs = append(recs, Recommendation{
			Code:     "high_concentration",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Concentration risk is %.2f; value is held in too few assets", metrics.ConcentrationRisk),
		})
	}

	if metrics.DiversificationScore < MinDiversificationScore {
		recs = append(recs, Recommendation{
			Code:     "low_diversification",
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("Diversification score is %.2f; adding uncorrelated assets would improve it", metrics.DiversificationScore),
		})
	}

	if metrics.NativeAssetExposure > MaxNativeAssetExposure {
		recs = append(recs, Recommendation{
			Code:     "high_native_exposure",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%.0f%% of portfolio value is in SOL; consider moving part of it into stable assets", metrics.NativeAssetExposure*100),
		})
	}

	if unpriced := snapshot.UnpricedAssets(); len(unpriced) > 0 {
		labels := make([]string, len(unpriced))
		for i, a := range unpriced {
			labels[i] = a.Label()
		}
		recs = append(recs, Recommendation{
			Code:     "unpriced_assets",
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("No price found for %s; metrics exclude their value", strings.Join(labels, ", ")),
		})
	}

	if set != nil && set.Partial() {
		recs = append(recs, Recommendation{
			Code:     "partial_market_data",
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("Market data unavailable from %s; insights are incomplete", strings.Join(set.UnavailableSources(sourceOrder), ", ")),
		})
	}

	return recs
}
