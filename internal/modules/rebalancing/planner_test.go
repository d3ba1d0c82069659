package rebalancing

import (
	"errors"
	"math"
	"testing"

	"github.com/aristath/warden/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	native = domain.NativeAsset()
	tokenA = domain.TokenAsset("TokenA", "A")
	tokenB = domain.TokenAsset("TokenB", "B")
)

func newTestPlanner(opts Options) *Planner {
	return NewPlanner(opts, zerolog.Nop())
}

func TestPlan_ConcreteScenario(t *testing.T) {
	planner := newTestPlanner(Options{Fees: FlatFee{PerTrade: 0.01}})

	plan, err := planner.Plan(Input{
		Current: domain.Allocation{
			{Asset: tokenA, Percentage: 0.4},
			{Asset: tokenB, Percentage: 0.6},
		},
		Target: domain.Allocation{
			{Asset: native, Percentage: 0.30},
			{Asset: tokenA, Percentage: 0.35},
			{Asset: tokenB, Percentage: 0.35},
		},
		TotalValue: 1000,
		UnitPrices: map[string]float64{
			native.ID: 100,
			tokenA.ID: 10,
			tokenB.ID: 10,
		},
	})
	require.NoError(t, err)

	require.Len(t, plan.Trades, 3)
	assert.Empty(t, plan.UnpricedTrades)

	// sells first, larger delta first
	assert.Equal(t, domain.TradeActionSell, plan.Trades[0].Action)
	assert.Equal(t, tokenB.ID, plan.Trades[0].Asset.ID)
	assert.True(t, plan.Trades[0].Amount.Equal(decimal.NewFromInt(25)), plan.Trades[0].Amount.String())
	assert.InDelta(t, -250, plan.Trades[0].ValueDelta, 1e-9)

	assert.Equal(t, domain.TradeActionSell, plan.Trades[1].Action)
	assert.Equal(t, tokenA.ID, plan.Trades[1].Asset.ID)
	assert.True(t, plan.Trades[1].Amount.Equal(decimal.NewFromInt(5)), plan.Trades[1].Amount.String())

	assert.Equal(t, domain.TradeActionBuy, plan.Trades[2].Action)
	assert.Equal(t, native.ID, plan.Trades[2].Asset.ID)
	assert.True(t, plan.Trades[2].Amount.Equal(decimal.NewFromInt(3)), plan.Trades[2].Amount.String())

	assert.InDelta(t, 0.03, plan.TotalEstimatedCost, 1e-12)
	// 2 assets -> 3 assets
	assert.InDelta(t, 0.2, plan.EstimatedRiskReduction, 1e-9)
}

func TestPlan_UnpricedGapsAreSeparated(t *testing.T) {
	planner := newTestPlanner(Options{Fees: FlatFee{PerTrade: 0.01}})

	plan, err := planner.Plan(Input{
		Current: domain.Allocation{
			{Asset: tokenA, Percentage: 0.4},
			{Asset: tokenB, Percentage: 0.6},
		},
		Target: domain.Allocation{
			{Asset: native, Percentage: 0.30},
			{Asset: tokenA, Percentage: 0.35},
			{Asset: tokenB, Percentage: 0.35},
		},
		TotalValue: 1000,
		UnitPrices: map[string]float64{tokenA.ID: 10, tokenB.ID: 10},
	})
	require.NoError(t, err)

	require.Len(t, plan.Trades, 2)
	for _, trade := range plan.Trades {
		assert.True(t, trade.Amount.IsPositive())
	}

	require.Len(t, plan.UnpricedTrades, 1)
	gap := plan.UnpricedTrades[0]
	assert.Equal(t, native.ID, gap.Asset.ID)
	assert.Equal(t, domain.TradeActionBuy, gap.Action)
	assert.True(t, gap.Amount.IsZero())
	assert.InDelta(t, 300, gap.ValueDelta, 1e-9)
	assert.Equal(t, 0.01, gap.EstimatedCost)

	// only sized trades are costed
	assert.InDelta(t, 0.02, plan.TotalEstimatedCost, 1e-12)
	// the gap still counts toward the projected positions
	assert.InDelta(t, 0.2, plan.EstimatedRiskReduction, 1e-9)
}

func TestPlan_SkipsAmountsBelowPrecision(t *testing.T) {
	plan, err := newTestPlanner(Options{}).Plan(Input{
		Current:    domain.Allocation{{Asset: tokenA, Percentage: 0.5}, {Asset: tokenB, Percentage: 0.5}},
		Target:     domain.Allocation{{Asset: tokenA, Percentage: 0.5 - 1e-6}, {Asset: tokenB, Percentage: 0.5 + 1e-6}},
		TotalValue: 1,
		UnitPrices: map[string]float64{tokenA.ID: 1e6, tokenB.ID: 1e6},
	})
	require.NoError(t, err)

	assert.Empty(t, plan.Trades)
	assert.Empty(t, plan.UnpricedTrades)
}

func TestPlan_CurrentEqualsTarget(t *testing.T) {
	alloc := domain.Allocation{
		{Asset: native, Percentage: 0.3},
		{Asset: tokenA, Percentage: 0.35},
		{Asset: tokenB, Percentage: 0.35},
	}

	plan, err := newTestPlanner(Options{}).Plan(Input{
		Current:    alloc,
		Target:     alloc,
		TotalValue: 1000,
	})
	require.NoError(t, err)

	assert.Empty(t, plan.Trades)
	assert.Zero(t, plan.TotalEstimatedCost)
	assert.Zero(t, plan.EstimatedRiskReduction)
}

func TestPlan_InvalidTarget(t *testing.T) {
	for _, sum := range []float64{0.9, 1.2} {
		_, err := newTestPlanner(Options{}).Plan(Input{
			Target: domain.Allocation{
				{Asset: tokenA, Percentage: sum / 2},
				{Asset: tokenB, Percentage: sum / 2},
			},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidTarget))
	}
}

func TestPlan_EmptyTarget(t *testing.T) {
	plan, err := newTestPlanner(Options{}).Plan(Input{
		Current:    domain.Allocation{{Asset: tokenA, Percentage: 1}},
		TotalValue: 100,
	})
	require.NoError(t, err)

	assert.Empty(t, plan.Trades)
	assert.Zero(t, plan.TotalEstimatedCost)
}

func TestPlan_NewWalletAllBuys(t *testing.T) {
	plan, err := newTestPlanner(Options{}).Plan(Input{
		Target: domain.Allocation{
			{Asset: native, Percentage: 0.5},
			{Asset: tokenA, Percentage: 0.5},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, plan.Trades)
	require.Len(t, plan.UnpricedTrades, 2)
	for _, trade := range plan.UnpricedTrades {
		assert.Equal(t, domain.TradeActionBuy, trade.Action)
		assert.True(t, trade.Amount.IsZero())
		assert.Equal(t, DefaultFeePerTrade, trade.EstimatedCost)
	}
	// equal deltas tie-break on asset id
	assert.Equal(t, native.ID, plan.UnpricedTrades[0].Asset.ID)
	assert.Zero(t, plan.TotalEstimatedCost)
}

func TestPlan_SellOnlyInCurrent(t *testing.T) {
	plan, err := newTestPlanner(Options{}).Plan(Input{
		Current: domain.Allocation{
			{Asset: tokenA, Percentage: 0.5},
			{Asset: tokenB, Percentage: 0.5},
		},
		Target:     domain.Allocation{{Asset: tokenA, Percentage: 1}},
		TotalValue: 200,
		UnitPrices: map[string]float64{tokenA.ID: 2, tokenB.ID: 4},
	})
	require.NoError(t, err)

	require.Len(t, plan.Trades, 2)
	assert.Equal(t, domain.TradeActionSell, plan.Trades[0].Action)
	assert.Equal(t, tokenB.ID, plan.Trades[0].Asset.ID)
	assert.True(t, plan.Trades[0].Amount.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, domain.TradeActionBuy, plan.Trades[1].Action)
	assert.True(t, plan.Trades[1].Amount.Equal(decimal.NewFromInt(50)))
	// concentration goes up, reduction is clamped
	assert.Zero(t, plan.EstimatedRiskReduction)
}

func TestPlan_FeeModel(t *testing.T) {
	planner := newTestPlanner(Options{Fees: FixedPlusPercentFee{Fixed: 0.01, Percent: 0.01}})

	plan, err := planner.Plan(Input{
		Current:    domain.Allocation{{Asset: tokenA, Percentage: 1}},
		Target:     domain.Allocation{{Asset: tokenA, Percentage: 0.5}, {Asset: tokenB, Percentage: 0.5}},
		TotalValue: 1000,
		UnitPrices: map[string]float64{tokenA.ID: 1, tokenB.ID: 1, native.ID: 100},
	})
	require.NoError(t, err)

	// two $500 trades at $100/SOL: 2 * (0.01 + 5/100)
	assert.InDelta(t, 0.12, plan.TotalEstimatedCost, 1e-9)
}

func TestPlan_MinTradeValue(t *testing.T) {
	planner := newTestPlanner(Options{MinTradeValue: 50})

	plan, err := planner.Plan(Input{
		Current:    domain.Allocation{{Asset: tokenA, Percentage: 0.52}, {Asset: tokenB, Percentage: 0.48}},
		Target:     domain.Allocation{{Asset: tokenA, Percentage: 0.5}, {Asset: tokenB, Percentage: 0.5}},
		TotalValue: 1000,
		UnitPrices: map[string]float64{tokenA.ID: 1, tokenB.ID: 1},
	})
	require.NoError(t, err)

	assert.Empty(t, plan.Trades)
}

func TestPlan_MinTradeValueOverride(t *testing.T) {
	planner := newTestPlanner(Options{MinTradeValue: 1})

	plan, err := planner.Plan(Input{
		Current:       domain.Allocation{{Asset: tokenA, Percentage: 0.52}, {Asset: tokenB, Percentage: 0.48}},
		Target:        domain.Allocation{{Asset: tokenA, Percentage: 0.5}, {Asset: tokenB, Percentage: 0.5}},
		TotalValue:    1000,
		UnitPrices:    map[string]float64{tokenA.ID: 1, tokenB.ID: 1},
		MinTradeValue: 25,
	})
	require.NoError(t, err)

	assert.Empty(t, plan.Trades)
}

func TestPlan_UsesSnapshotConcentration(t *testing.T) {
	plan, err := newTestPlanner(Options{}).Plan(Input{
		Current:     domain.Allocation{{Asset: tokenA, Percentage: 1}},
		Target:      domain.Allocation{{Asset: tokenA, Percentage: 0.5}, {Asset: tokenB, Percentage: 0.5}},
		TotalValue:  10,
		UnitPrices:  map[string]float64{tokenA.ID: 1, tokenB.ID: 1},
		CurrentRisk: &domain.RiskMetrics{ConcentrationRisk: 0.4},
	})
	require.NoError(t, err)

	// projected 2 assets = 0.6, worse than 0.4
	assert.Zero(t, plan.EstimatedRiskReduction)
}

func TestPlan_UnallocatedHoldingsStayHeld(t *testing.T) {
	tokenX := domain.TokenAsset("TokenX", "")
	tokenY := domain.TokenAsset("TokenY", "")
	prices := map[string]float64{native.ID: 100, tokenA.ID: 1, tokenB.ID: 1}

	tests := []struct {
		name        string
		target      domain.Allocation
		currentRisk *domain.RiskMetrics
		expected    float64
	}{
		{
			// native + X + Y = 3 held (0.4); native, A, B, X, Y = 5 after (0.2)
			name: "untouched unpriced holdings",
			target: domain.Allocation{
				{Asset: native, Percentage: 0.4},
				{Asset: tokenA, Percentage: 0.3},
				{Asset: tokenB, Percentage: 0.3},
			},
			currentRisk: &domain.RiskMetrics{ConcentrationRisk: 0.4},
			expected:    0.2,
		},
		{
			name: "derived from current when no snapshot risk",
			target: domain.Allocation{
				{Asset: native, Percentage: 0.4},
				{Asset: tokenA, Percentage: 0.3},
				{Asset: tokenB, Percentage: 0.3},
			},
			expected: 0.2,
		},
		{
			// X is targeted, so it is counted once: native, A, X, Y = 4 (0.4)
			name: "unallocated asset also in target",
			target: domain.Allocation{
				{Asset: native, Percentage: 0.5},
				{Asset: tokenA, Percentage: 0.25},
				{Asset: tokenX, Percentage: 0.25},
			},
			currentRisk: &domain.RiskMetrics{ConcentrationRisk: 0.4},
			expected:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := newTestPlanner(Options{}).Plan(Input{
				Current:     domain.Allocation{{Asset: native, Percentage: 1}},
				Target:      tt.target,
				TotalValue:  1000,
				UnitPrices:  prices,
				CurrentRisk: tt.currentRisk,
				Unallocated: []domain.Asset{tokenX, tokenY},
			})
			require.NoError(t, err)

			assert.InDelta(t, tt.expected, plan.EstimatedRiskReduction, 1e-9)
		})
	}
}

func TestFixedPlusPercentFee(t *testing.T) {
	fee := FixedPlusPercentFee{Fixed: 0.01, Percent: 0.003}
	assert.InDelta(t, 0.013, fee.EstimateFee(domain.Trade{ValueDelta: -1}, 1), 1e-12)
	assert.InDelta(t, 0.04, fee.EstimateFee(domain.Trade{ValueDelta: 10}, 1), 1e-12)
	assert.InDelta(t, 0.013, fee.EstimateFee(domain.Trade{ValueDelta: 10}, 10), 1e-12)
	// unknown native price: fixed part only
	assert.Equal(t, 0.01, fee.EstimateFee(domain.Trade{ValueDelta: 10}, 0))
}

func TestCalculateMinTradeValue(t *testing.T) {
	tests := []struct {
		name     string
		fixed    float64
		percent  float64
		maxRatio float64
		expected float64
	}{
		{name: "typical swap", fixed: 0.01, percent: 0.003, maxRatio: 0.01, expected: 0.01 / 0.007},
		{name: "no variable cost", fixed: 1, percent: 0, maxRatio: 0.01, expected: 100},
		{name: "variable cost exceeds ceiling", fixed: 1, percent: 0.02, maxRatio: 0.01, expected: math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateMinTradeValue(tt.fixed, tt.percent, tt.maxRatio)
			if math.IsInf(tt.expected, 1) {
				assert.True(t, math.IsInf(got, 1))
				return
			}
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}
