package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestAllocationValidate(t *testing.T) {
	tests := []struct {
		name    string
		alloc   Allocation
		wantErr bool
	}{
		{
			name:  "empty allocation is valid",
			alloc: nil,
		},
		{
			name: "sums to one",
			alloc: Allocation{
				{Asset: NativeAsset(), Percentage: 0.3},
				{Asset: TokenAsset("A", "A"), Percentage: 0.35},
				{Asset: TokenAsset("B", "B"), Percentage: 0.35},
			},
		},
		{
			name: "within tolerance",
			alloc: Allocation{
				{Asset: TokenAsset("A", "A"), Percentage: 0.5},
				{Asset: TokenAsset("B", "B"), Percentage: 0.5000005},
			},
		},
		{
			name: "sums to 0.9",
			alloc: Allocation{
				{Asset: TokenAsset("A", "A"), Percentage: 0.5},
				{Asset: TokenAsset("B", "B"), Percentage: 0.4},
			},
			wantErr: true,
		},
		{
			name: "sums to 1.2",
			alloc: Allocation{
				{Asset: TokenAsset("A", "A"), Percentage: 0.6},
				{Asset: TokenAsset("B", "B"), Percentage: 0.6},
			},
			wantErr: true,
		},
		{
			name: "negative entry",
			alloc: Allocation{
				{Asset: TokenAsset("A", "A"), Percentage: 1.2},
				{Asset: TokenAsset("B", "B"), Percentage: -0.2},
			},
			wantErr: true,
		},
		{
			name: "duplicate asset",
			alloc: Allocation{
				{Asset: TokenAsset("A", "A"), Percentage: 0.5},
				{Asset: TokenAsset("A", "A"), Percentage: 0.5},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.alloc.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTarget))
				assert.True(t, IsCallerError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAllocationSortBySignificance(t *testing.T) {
	alloc := Allocation{
		{Asset: TokenAsset("B", "B"), Percentage: 0.2},
		{Asset: TokenAsset("C", "C"), Percentage: 0.4},
		{Asset: TokenAsset("A", "A"), Percentage: 0.2},
	}

	sorted := alloc.SortBySignificance()

	assert.Equal(t, []string{"C", "A", "B"}, assetIDs(sorted))
	// original untouched
	assert.Equal(t, []string{"B", "C", "A"}, assetIDs(alloc))
}

func assetIDs(alloc Allocation) []string {
	ids := make([]string, len(alloc))
	for i, e := range alloc {
		ids[i] = e.Asset.ID
	}
	return ids
}

func TestHoldingsSnapshotValues(t *testing.T) {
	snap := HoldingsSnapshot{
		Wallet:        "w",
		NativeBalance: decimal.NewFromInt(2),
		Holdings: []Holding{
			{Asset: NativeAsset(), Quantity: decimal.NewFromInt(2), Value: ptr(300)},
			{Asset: TokenAsset("A", "A"), Quantity: decimal.NewFromInt(10), Value: ptr(400)},
			{Asset: TokenAsset("X", "X"), Quantity: decimal.NewFromInt(5)},
		},
	}

	assert.InDelta(t, 700, snap.TotalValue(), 1e-9)
	assert.InDelta(t, 300, snap.NativeValue(), 1e-9)
	assert.Equal(t, 3, snap.DistinctAssets())
	require.Len(t, snap.UnpricedAssets(), 1)
	assert.Equal(t, "X", snap.UnpricedAssets()[0].ID)

	price, ok := snap.Holdings[1].UnitPrice()
	require.True(t, ok)
	assert.InDelta(t, 40, price, 1e-9)

	_, ok = snap.Holdings[2].UnitPrice()
	assert.False(t, ok)
}

func TestTokenAssetNativeMint(t *testing.T) {
	a := TokenAsset(NativeMint, "wSOL")
	assert.True(t, a.Native)
	assert.Equal(t, "SOL", a.Label())
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 1.0, Clamp01(3))
	assert.Equal(t, 0.4, Clamp01(0.4))
}

func TestMarketSignalSetPartial(t *testing.T) {
	set := MarketSignalSet{Sources: map[string]SourceSignals{
		"a": {Available: true},
		"b": {Available: false, Error: "timeout"},
	}}

	assert.True(t, set.Partial())
	assert.Equal(t, []string{"b"}, set.UnavailableSources([]string{"a", "b"}))
}

func TestParseTrendDirection(t *testing.T) {
	d, ok := ParseTrendDirection("bullish")
	assert.True(t, ok)
	assert.Equal(t, TrendBullish, d)

	_, ok = ParseTrendDirection("sideways")
	assert.False(t, ok)
}
