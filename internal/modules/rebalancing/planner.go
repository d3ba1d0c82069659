// Package rebalancing diffs a current allocation against a target and plans
// the trades that close the gap.
package rebalancing

import (
	"math"
	"sort"

	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/internal/modules/risk"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultMinDelta is the smallest share difference that produces a trade
const DefaultMinDelta = 1e-9

// amountPrecision is the number of decimal places kept on trade amounts
const amountPrecision = 9

// Options configures a Planner
type Options struct {
	// Fees estimates per-trade cost in native units. Defaults to FlatFee{DefaultFeePerTrade}.
	Fees FeeModel
	// MinDelta is the drift band; smaller deltas are not traded
	MinDelta float64
	// MinTradeValue drops priced trades worth less than this many USD (0 disables)
	MinTradeValue float64
	// Risk is used for the projected concentration. Defaults to NewCalculator().
	Risk *risk.Calculator
}

// Input is everything the planner needs for one plan
type Input struct {
	Current    domain.Allocation
	Target     domain.Allocation
	TotalValue float64
	// UnitPrices maps asset id to USD price per unit
	UnitPrices map[string]float64
	// CurrentRisk, when set, supplies the concentration risk of the live
	// snapshot; otherwise it is derived from Current.
	CurrentRisk *domain.RiskMetrics
	// MinTradeValue overrides Options.MinTradeValue when positive
	MinTradeValue float64
	// Unallocated lists held assets without a share in Current, e.g.
	// unpriced holdings. They stay in the wallet unless the plan trades them.
	Unallocated []domain.Asset
}

// Planner produces rebalance plans. It is stateless and safe for concurrent use.
type Planner struct {
	fees          FeeModel
	minDelta      float64
	minTradeValue float64
	risk          *risk.Calculator
	log           zerolog.Logger
}

// NewPlanner creates a planner
func NewPlanner(opts Options, log zerolog.Logger) *Planner {
	if opts.Fees == nil {
		opts.Fees = FlatFee{PerTrade: DefaultFeePerTrade}
	}
	if opts.MinDelta <= 0 {
		opts.MinDelta = DefaultMinDelta
	}
	if opts.Risk == nil {
		opts.Risk = risk.NewCalculator()
	}

	return &Planner{
		fees:          opts.Fees,
		minDelta:      opts.MinDelta,
		minTradeValue: opts.MinTradeValue,
		risk:          opts.Risk,
		log:           log.With().Str("service", "rebalancing").Logger(),
	}
}

// Plan computes the trades moving Current toward Target.
//
// Assets only in the target are bought, assets only in the current allocation
// are sold. Sells come before buys, then larger deltas first, then asset id.
// Gaps that cannot be sized go to UnpricedTrades in the same order.
// Returns an error wrapping domain.ErrInvalidTarget when the target does not
// sum to 1.0; an empty target yields an empty plan.
func (p *Planner) Plan(in Input) (*domain.RebalancePlan, error) {
	if err := in.Target.Validate(); err != nil {
		return nil, err
	}

	plan := &domain.RebalancePlan{
		CurrentAllocation: in.Current.SortBySignificance(),
		TargetAllocation:  in.Target.SortBySignificance(),
		Trades:            []domain.Trade{},
		UnpricedTrades:    []domain.Trade{},
	}
	if len(in.Target) == 0 {
		return plan, nil
	}

	minTradeValue := p.minTradeValue
	if in.MinTradeValue > 0 {
		minTradeValue = in.MinTradeValue
	}

	assets, order := p.union(in.Current, in.Target)
	traded := make(map[string]bool, len(order))

	for _, id := range order {
		currentPct, _ := in.Current.Get(id)
		targetPct, _ := in.Target.Get(id)
		delta := targetPct - currentPct
		if math.Abs(delta) <= p.minDelta {
			continue
		}

		trade := domain.Trade{
			Action:     domain.TradeActionBuy,
			Asset:      assets[id],
			Delta:      delta,
			ValueDelta: delta * in.TotalValue,
		}
		if delta < 0 {
			trade.Action = domain.TradeActionSell
		}

		price := in.UnitPrices[id]
		nativePrice := in.UnitPrices[domain.NativeMint]
		if in.TotalValue <= 0 || price <= 0 {
			trade.Amount = decimal.Zero
			trade.EstimatedCost = p.fees.EstimateFee(trade, nativePrice)
			plan.UnpricedTrades = append(plan.UnpricedTrades, trade)
			traded[id] = true
			continue
		}

		if minTradeValue > 0 && math.Abs(trade.ValueDelta) < minTradeValue {
			p.log.Debug().
				Str("asset", id).
				Float64("value", trade.ValueDelta).
				Msg("Skipping trade below minimum value")
			continue
		}

		trade.Amount = decimal.NewFromFloat(math.Abs(trade.ValueDelta) / price).Round(amountPrecision)
		if !trade.Amount.IsPositive() {
			p.log.Debug().Str("asset", id).Msg("Skipping trade below amount precision")
			continue
		}

		trade.EstimatedCost = p.fees.EstimateFee(trade, nativePrice)
		plan.Trades = append(plan.Trades, trade)
		plan.TotalEstimatedCost += trade.EstimatedCost
		traded[id] = true
	}

	sortTrades(plan.Trades)
	sortTrades(plan.UnpricedTrades)

	plan.EstimatedRiskReduction = p.riskReduction(in, order, traded)

	p.log.Debug().
		Int("trades", len(plan.Trades)).
		Int("unpriced_trades", len(plan.UnpricedTrades)).
		Float64("cost", plan.TotalEstimatedCost).
		Float64("risk_reduction", plan.EstimatedRiskReduction).
		Msg("Rebalance plan computed")

	return plan, nil
}

// union returns asset metadata and a stable id order over both allocations.
// Target metadata wins so symbols supplied by the caller are kept.
func (p *Planner) union(current, target domain.Allocation) (map[string]domain.Asset, []string) {
	assets := make(map[string]domain.Asset, len(current)+len(target))
	var order []string
	for _, e := range current {
		if _, ok := assets[e.Asset.ID]; !ok {
			order = append(order, e.Asset.ID)
		}
		assets[e.Asset.ID] = e.Asset
	}
	for _, e := range target {
		if _, ok := assets[e.Asset.ID]; !ok {
			order = append(order, e.Asset.ID)
		}
		assets[e.Asset.ID] = e.Asset
	}
	sort.Strings(order)
	return assets, order
}

// riskReduction is the absolute drop in concentration risk between the current
// state and the projected post-trade allocation, clamped to [0,1]. Unallocated
// assets the plan does not touch are still held afterwards.
func (p *Planner) riskReduction(in Input, order []string, traded map[string]bool) float64 {
	current := p.risk.ProjectedConcentration(in.Current, in.Unallocated...)
	if in.CurrentRisk != nil {
		current = in.CurrentRisk.ConcentrationRisk
	}

	projected := make(domain.Allocation, 0, len(order))
	for _, id := range order {
		pct, _ := in.Current.Get(id)
		if traded[id] {
			pct, _ = in.Target.Get(id)
		}
		projected = append(projected, domain.AllocationEntry{Asset: domain.Asset{ID: id}, Percentage: pct})
	}

	untouched := make([]domain.Asset, 0, len(in.Unallocated))
	for _, asset := range in.Unallocated {
		if !traded[asset.ID] {
			untouched = append(untouched, asset)
		}
	}

	return domain.Clamp01(current - p.risk.ProjectedConcentration(projected, untouched...))
}

func sortTrades(trades []domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if a.Action != b.Action {
			return a.Action == domain.TradeActionSell
		}
		if da, db := math.Abs(a.Delta), math.Abs(b.Delta); da != db {
			return da > db
		}
		return a.Asset.ID < b.Asset.ID
	})
}
