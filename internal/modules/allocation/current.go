package allocation

import (
	"github.com/aristath/warden/internal/domain"
	"github.com/shopspring/decimal"
)

// CurrentAllocation derives the value share of each priced holding.
// Unpriced holdings carry no value and are left out. When nothing in the
// snapshot is priced, shares fall back to raw quantities so a wallet with
// balances but no prices still has a shape to diff against.
func CurrentAllocation(snapshot domain.HoldingsSnapshot) domain.Allocation {
	alloc := domain.Allocation{}

	total := snapshot.TotalValue()
	if total > 0 {
		for _, h := range snapshot.Holdings {
			if h.Value == nil || *h.Value <= 0 {
				continue
			}
			alloc = append(alloc, domain.AllocationEntry{
				Asset:      h.Asset,
				Percentage: *h.Value / total,
			})
		}
		return alloc.SortBySignificance()
	}

	totalQty := decimal.Zero
	for _, h := range snapshot.Holdings {
		if h.Quantity.Sign() > 0 {
			totalQty = totalQty.Add(h.Quantity)
		}
	}
	if totalQty.Sign() <= 0 {
		return alloc
	}

	for _, h := range snapshot.Holdings {
		if h.Quantity.Sign() <= 0 {
			continue
		}
		alloc = append(alloc, domain.AllocationEntry{
			Asset:      h.Asset,
			Percentage: h.Quantity.Div(totalQty).InexactFloat64(),
		})
	}
	return alloc.SortBySignificance()
}

// ExpandOther replaces the "other" bucket of a target with concrete entries.
// Its share is spread over currently held assets the target does not name,
// proportionally to their current share. If there are none, the share is
// spread over the named entries instead, keeping the sum unchanged.
func ExpandOther(target, current domain.Allocation) domain.Allocation {
	otherPct, hasOther := target.Get(domain.OtherAssetID)
	if !hasOther {
		out := make(domain.Allocation, len(target))
		copy(out, target)
		return out
	}

	named := make(map[string]bool, len(target))
	out := make(domain.Allocation, 0, len(target)+len(current))
	namedSum := 0.0
	for _, e := range target {
		if e.Asset.IsOther() {
			continue
		}
		named[e.Asset.ID] = true
		namedSum += e.Percentage
		out = append(out, e)
	}

	var unnamed domain.Allocation
	unnamedSum := 0.0
	for _, e := range current {
		if named[e.Asset.ID] || e.Asset.IsOther() || e.Percentage <= 0 {
			continue
		}
		unnamed = append(unnamed, e)
		unnamedSum += e.Percentage
	}

	switch {
	case otherPct <= 0:
	case unnamedSum > 0:
		for _, e := range unnamed {
			out = append(out, domain.AllocationEntry{
				Asset:      e.Asset,
				Percentage: otherPct * e.Percentage / unnamedSum,
			})
		}
	case namedSum > 0:
		for i := range out {
			out[i].Percentage += otherPct * out[i].Percentage / namedSum
		}
	default:
		// target is only "other" and nothing unnamed is held
		return domain.Allocation{}
	}

	return out.SortBySignificance()
}

// ApplySuggestions biases a target toward suggested increases. Each asset is
// boosted at most once (first suggestion wins), boosted entries are capped at
// 1.0 and the untouched entries are scaled down so the sum stays 1.0.
// The result depends only on the order of suggestions, never on timing.
func ApplySuggestions(target domain.Allocation, suggestions []domain.SuggestedAllocation) domain.Allocation {
	out := make(domain.Allocation, len(target))
	copy(out, target)
	if len(out) == 0 || len(suggestions) == 0 {
		return out
	}

	boosted := make(map[string]bool)
	for _, s := range suggestions {
		if s.Increase <= 0 || s.Asset.ID == "" || boosted[s.Asset.ID] {
			continue
		}
		boosted[s.Asset.ID] = true

		found := false
		for i := range out {
			if out[i].Asset.ID == s.Asset.ID {
				out[i].Percentage = domain.Clamp01(out[i].Percentage + s.Increase)
				found = true
				break
			}
		}
		if !found {
			out = append(out, domain.AllocationEntry{Asset: s.Asset, Percentage: domain.Clamp01(s.Increase)})
		}
	}
	if len(boosted) == 0 {
		return out
	}

	boostedSum, restSum := 0.0, 0.0
	for _, e := range out {
		if boosted[e.Asset.ID] {
			boostedSum += e.Percentage
		} else {
			restSum += e.Percentage
		}
	}

	if boostedSum >= 1 || restSum <= 0 {
		// boosts alone fill the portfolio: normalize everything
		total := boostedSum + restSum
		for i := range out {
			out[i].Percentage /= total
		}
		return out.SortBySignificance()
	}

	scale := (1 - boostedSum) / restSum
	for i := range out {
		if !boosted[out[i].Asset.ID] {
			out[i].Percentage *= scale
		}
	}
	return out.SortBySignificance()
}
