package domain

// SignalKind distinguishes trend signals from opportunity signals
type SignalKind string

const (
	SignalKindTrend       SignalKind = "trend"
	SignalKindOpportunity SignalKind = "opportunity"
)

// TrendDirection is the direction reported by a price-trend feed
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendNeutral TrendDirection = "neutral"
)

// ParseTrendDirection validates a raw direction string
func ParseTrendDirection(s string) (TrendDirection, bool) {
	switch TrendDirection(s) {
	case TrendBullish, TrendBearish, TrendNeutral:
		return TrendDirection(s), true
	}
	return "", false
}

// TrendPayload is the body of a trend signal
type TrendPayload struct {
	Direction  TrendDirection `json:"direction"`
	Confidence float64        `json:"confidence"`
}

// OpportunityPayload is the body of a liquidity/yield opportunity signal
type OpportunityPayload struct {
	Route     string  `json:"route"`
	APR       float64 `json:"apr"`
	Liquidity float64 `json:"liquidity"`
	RiskTier  string  `json:"risk_tier,omitempty"`
}

// Trend is a price-trend observation for one asset as returned by a source
type Trend struct {
	Asset      Asset
	Direction  TrendDirection
	Confidence float64
}

// Opportunity is a yield/liquidity opportunity as returned by a source
type Opportunity struct {
	Asset     Asset
	Route     string
	APR       float64
	Liquidity float64
	RiskTier  string
}

// MarketSignal is a single normalized observation from one source
type MarketSignal struct {
	Source      string              `json:"source"`
	Asset       Asset               `json:"asset"`
	Kind        SignalKind          `json:"kind"`
	Trend       *TrendPayload       `json:"trend,omitempty"`
	Opportunity *OpportunityPayload `json:"opportunity,omitempty"`
}

// SourceSignals holds everything one source contributed to a request
type SourceSignals struct {
	Available bool           `json:"available"`
	Error     string         `json:"error,omitempty"`
	Signals   []MarketSignal `json:"signals"`
}

// SuggestedAllocation is an incremental allocation increase derived from a trend
type SuggestedAllocation struct {
	Source     string  `json:"source"`
	Asset      Asset   `json:"asset"`
	Increase   float64 `json:"increase"`
	Confidence float64 `json:"confidence"`
}

// MarketSignalSet is the merged output of all configured sources.
// Sources with Available=false contributed nothing; the set is still valid.
type MarketSignalSet struct {
	Sources              map[string]SourceSignals `json:"sources"`
	SuggestedAllocations []SuggestedAllocation    `json:"suggested_allocations"`
}

// Partial reports whether at least one source was unavailable
func (s MarketSignalSet) Partial() bool {
	for _, src := range s.Sources {
		if !src.Available {
			return true
		}
	}
	return false
}

// UnavailableSources returns the tags of sources that failed, in the given order
func (s MarketSignalSet) UnavailableSources(order []string) []string {
	var out []string
	for _, name := range order {
		if src, ok := s.Sources[name]; ok && !src.Available {
			out = append(out, name)
		}
	}
	return out
}
