// Package advisor composes holdings, risk metrics, market signals and
// rebalancing plans into wallet-level analyses.
package advisor

import (
	"time"

	"github.com/aristath/warden/internal/domain"
)

// Settings is the per-request configuration. It is built once from config
// and passed by value; the service never mutates it.
type Settings struct {
	// MinNativeBalance is the SOL balance kept for transaction fees
	MinNativeBalance float64
	// RequestTimeout bounds one whole operation, including every fetch
	RequestTimeout time.Duration
	// TopOpportunities caps Insights.TopOpportunities
	TopOpportunities int

	// Fee inputs for the minimum worthwhile trade value. FeePerTrade is in SOL.
	FeePerTrade float64
	FeePercent  float64
	MaxFeeRatio float64

	// VolatilityDays > 0 enables historical volatility when a price history is wired
	VolatilityDays int
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		MinNativeBalance: 0.05,
		RequestTimeout:   15 * time.Second,
		TopOpportunities: 5,
	}
}

// Thresholds for the advisory rules
const (
	MinDistinctAssets       = 3
	MaxConcentrationRisk    = 0.7
	MinDiversificationScore = 0.5
	MaxNativeAssetExposure  = 0.7
)

// Severity grades a recommendation
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Recommendation is one advisory note produced by a threshold rule
type Recommendation struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// HoldingsSummary is the holdings part of an analysis
type HoldingsSummary struct {
	NativeBalance  float64           `json:"native_balance"`
	TotalValue     float64           `json:"total_value_usd"`
	DistinctAssets int               `json:"distinct_assets"`
	Holdings       []domain.Holding  `json:"holdings"`
	Allocation     domain.Allocation `json:"allocation"`
	Unpriced       []domain.Asset    `json:"unpriced,omitempty"`
}

// SourceStatus summarizes what one market source contributed
type SourceStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
	Signals   int    `json:"signals"`
}

// Insights is the market-signal projection included in an analysis
type Insights struct {
	Sources              []SourceStatus               `json:"sources"`
	Partial              bool                         `json:"partial"`
	UnavailableSources   []string                     `json:"unavailable_sources,omitempty"`
	TopOpportunities     []domain.MarketSignal        `json:"top_opportunities"`
	SuggestedAllocations []domain.SuggestedAllocation `json:"suggested_allocations"`
}

// Analysis is the full result for one wallet
type Analysis struct {
	ID              string             `json:"id"`
	Wallet          string             `json:"wallet"`
	GeneratedAt     time.Time          `json:"generated_at"`
	Holdings        HoldingsSummary    `json:"holdings"`
	Risk            domain.RiskMetrics `json:"risk"`
	Insights        Insights           `json:"insights"`
	Recommendations []Recommendation   `json:"recommendations"`
}

// PlanRequest selects the target allocation for GetRebalancePlan.
// A non-nil CustomTarget takes precedence over Strategy.
type PlanRequest struct {
	Strategy        string
	CustomTarget    domain.Allocation
	BiasWithSignals bool
}
