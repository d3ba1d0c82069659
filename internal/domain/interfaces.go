package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// RawTokenAccount is a token balance as read from chain, before normalization
type RawTokenAccount struct {
	Mint     string
	Symbol   string
	Amount   uint64
	Decimals uint8
}

// RawHoldings is what a holdings source returns for one wallet.
// Token accounts may repeat a mint; the builder merges them.
type RawHoldings struct {
	NativeLamports uint64
	TokenAccounts  []RawTokenAccount
}

// HoldingsSource reads balances for a wallet.
// Implementations return an error wrapping ErrSourceUnavailable when unreachable.
type HoldingsSource interface {
	FetchHoldings(ctx context.Context, wallet string) (RawHoldings, error)
}

// PriceResolver converts a quantity of an asset into a USD value.
// ok=false means "unresolved" and is not an error.
type PriceResolver interface {
	ResolveValue(ctx context.Context, asset Asset, quantity decimal.Decimal) (value float64, ok bool)
}

// BatchPriceResolver is an optional extension of PriceResolver for sources
// that price many assets in one request. Missing assets are absent from the
// result.
type BatchPriceResolver interface {
	UnitPrices(ctx context.Context, assets []Asset) map[string]float64
}

// MarketDataSource is one external market-data feed
type MarketDataSource interface {
	// Name is the stable source tag used as the merge key
	Name() string
	FetchOpportunities(ctx context.Context) ([]Opportunity, error)
	FetchTrends(ctx context.Context) ([]Trend, error)
}
