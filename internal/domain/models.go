// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Well-known Solana mints used by the strategy table and the native asset.
const (
	NativeMint = "So11111111111111111111111111111111111111112"
	USDCMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	JLPMint    = "27G8MtK7VtTcCHkpASjSDdkWWYfoqT6ggEuKidVJidD4"

	// OtherAssetID is the bucket identifier for "everything not named" in a target allocation
	OtherAssetID = "other"

	// NativeDecimals is the number of decimals of the native asset (lamports per SOL)
	NativeDecimals = 9
)

// AllocationTolerance is the maximum distance from 1.0 a target allocation may sum to
const AllocationTolerance = 1e-6

// Asset identifies a fungible holding
type Asset struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol,omitempty"`
	Native bool   `json:"native,omitempty"`
}

// NativeAsset returns the chain's base currency
func NativeAsset() Asset {
	return Asset{ID: NativeMint, Symbol: "SOL", Native: true}
}

// TokenAsset returns a token asset identified by its mint
func TokenAsset(mint, symbol string) Asset {
	if mint == NativeMint {
		return NativeAsset()
	}
	return Asset{ID: mint, Symbol: symbol}
}

// OtherAsset returns the "other" bucket pseudo-asset
func OtherAsset() Asset {
	return Asset{ID: OtherAssetID, Symbol: "OTHER"}
}

// IsOther reports whether the asset is the "other" bucket
func (a Asset) IsOther() bool {
	return a.ID == OtherAssetID
}

// Label returns the symbol when known, otherwise the identifier
func (a Asset) Label() string {
	if a.Symbol != "" {
		return a.Symbol
	}
	return a.ID
}

// Holding is a position in a single asset.
// Value is nil when no price source resolved it.
type Holding struct {
	Asset    Asset           `json:"asset"`
	Quantity decimal.Decimal `json:"quantity"`
	Value    *float64        `json:"value_usd,omitempty"`
}

// Priced reports whether the holding has a resolved value
func (h Holding) Priced() bool {
	return h.Value != nil
}

// UnitPrice returns the value per unit, or false when unpriced or empty
func (h Holding) UnitPrice() (float64, bool) {
	if h.Value == nil || h.Quantity.Sign() <= 0 {
		return 0, false
	}
	return *h.Value / h.Quantity.InexactFloat64(), true
}

// HoldingsSnapshot is the normalized state of one wallet at a point in time
type HoldingsSnapshot struct {
	CapturedAt    time.Time       `json:"captured_at"`
	Wallet        string          `json:"wallet"`
	NativeBalance decimal.Decimal `json:"native_balance"`
	Holdings      []Holding       `json:"holdings"`
}

// TotalValue is the sum of resolved values only
func (s HoldingsSnapshot) TotalValue() float64 {
	total := 0.0
	for _, h := range s.Holdings {
		if h.Value != nil {
			total += *h.Value
		}
	}
	return total
}

// NativeValue returns the resolved value of the native holding (0 if absent or unpriced)
func (s HoldingsSnapshot) NativeValue() float64 {
	for _, h := range s.Holdings {
		if h.Asset.Native && h.Value != nil {
			return *h.Value
		}
	}
	return 0
}

// DistinctAssets returns the number of holdings, priced or not
func (s HoldingsSnapshot) DistinctAssets() int {
	return len(s.Holdings)
}

// UnpricedAssets lists assets whose value could not be resolved, in discovery order
func (s HoldingsSnapshot) UnpricedAssets() []Asset {
	var out []Asset
	for _, h := range s.Holdings {
		if h.Value == nil {
			out = append(out, h.Asset)
		}
	}
	return out
}

// AllocationEntry is the share of portfolio value held in one asset
type AllocationEntry struct {
	Asset      Asset   `json:"asset"`
	Percentage float64 `json:"percentage"`
}

// Allocation is an ordered-by-significance list of entries
type Allocation []AllocationEntry

// Sum returns the total of all percentages
func (a Allocation) Sum() float64 {
	total := 0.0
	for _, e := range a {
		total += e.Percentage
	}
	return total
}

// Get returns the percentage for an asset (0 if absent)
func (a Allocation) Get(assetID string) (float64, bool) {
	for _, e := range a {
		if e.Asset.ID == assetID {
			return e.Percentage, true
		}
	}
	return 0, false
}

// SortBySignificance orders entries by descending percentage, then by asset id
func (a Allocation) SortBySignificance() Allocation {
	out := make(Allocation, len(a))
	copy(out, a)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Percentage != out[j].Percentage {
			return out[i].Percentage > out[j].Percentage
		}
		return out[i].Asset.ID < out[j].Asset.ID
	})
	return out
}

// Validate checks the target-allocation invariant: entries in [0,1],
// no duplicate assets and a sum of 1.0 within AllocationTolerance.
// An empty allocation is valid (nothing to do).
func (a Allocation) Validate() error {
	if len(a) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(a))
	for _, e := range a {
		if e.Asset.ID == "" {
			return fmt.Errorf("%w: entry without asset", ErrInvalidTarget)
		}
		if seen[e.Asset.ID] {
			return fmt.Errorf("%w: duplicate asset %s", ErrInvalidTarget, e.Asset.ID)
		}
		seen[e.Asset.ID] = true

		if math.IsNaN(e.Percentage) || e.Percentage < 0 || e.Percentage > 1 {
			return fmt.Errorf("%w: percentage %v for %s outside [0,1]", ErrInvalidTarget, e.Percentage, e.Asset.ID)
		}
	}

	if sum := a.Sum(); math.Abs(sum-1.0) > AllocationTolerance {
		return fmt.Errorf("%w: percentages sum to %.6f, expected 1.0", ErrInvalidTarget, sum)
	}

	return nil
}

// RiskMetrics is the per-request risk vector. All fields lie in [0,1].
type RiskMetrics struct {
	ConcentrationRisk    float64 `json:"concentration_risk"`
	VolatilityEstimate   float64 `json:"volatility_estimate"`
	DiversificationScore float64 `json:"diversification_score"`
	NativeAssetExposure  float64 `json:"native_asset_exposure"`
	LiquidAssetsRatio    float64 `json:"liquid_assets_ratio"`
}

// TradeAction is the side of a rebalancing trade
type TradeAction string

const (
	TradeActionBuy  TradeAction = "buy"
	TradeActionSell TradeAction = "sell"
)

// Trade is a single rebalancing step. Amount is positive, in asset units.
type Trade struct {
	Action        TradeAction     `json:"action"`
	Asset         Asset           `json:"asset"`
	Amount        decimal.Decimal `json:"amount"`
	Delta         float64         `json:"delta"`
	ValueDelta    float64         `json:"value_delta_usd"`
	EstimatedCost float64         `json:"estimated_cost"`
}

// RebalancePlan is the diff between current and target allocation.
//
// UnpricedTrades are gaps that could not be converted to an amount because
// the asset has no unit price or the wallet has no resolved value. Their
// Amount is zero, they carry a fee estimate, and they are left out of
// TotalEstimatedCost, which covers Trades only.
type RebalancePlan struct {
	CurrentAllocation      Allocation `json:"current_allocation"`
	TargetAllocation       Allocation `json:"target_allocation"`
	Trades                 []Trade    `json:"trades"`
	UnpricedTrades         []Trade    `json:"unpriced_trades"`
	TotalEstimatedCost     float64    `json:"total_estimated_cost"`
	EstimatedRiskReduction float64    `json:"estimated_risk_reduction"`
}

// Strategy names a fixed target allocation
type Strategy string

const (
	StrategyConservative Strategy = "conservative"
	StrategyModerate     Strategy = "moderate"
	StrategyAggressive   Strategy = "aggressive"
)

// Clamp01 bounds v to [0,1], mapping NaN to 0
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
