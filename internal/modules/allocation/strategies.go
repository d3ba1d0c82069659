// Package allocation derives current allocations from snapshots and resolves
// target allocations from named strategies.
package allocation

import (
	"strings"

	"github.com/aristath/warden/internal/domain"
)

// DefaultStrategy is used when a requested strategy name is unknown
const DefaultStrategy = domain.StrategyModerate

var (
	sol  = domain.NativeAsset()
	usdc = domain.TokenAsset(domain.USDCMint, "USDC")
	jlp  = domain.TokenAsset(domain.JLPMint, "JLP")
)

// Strategies is the fixed strategy table. It is read-only after init;
// use ResolveStrategy to get a private copy.
var Strategies = map[domain.Strategy]domain.Allocation{
	domain.StrategyConservative: {
		{Asset: usdc, Percentage: 0.50},
		{Asset: sol, Percentage: 0.30},
		{Asset: jlp, Percentage: 0.10},
		{Asset: domain.OtherAsset(), Percentage: 0.10},
	},
	domain.StrategyModerate: {
		{Asset: sol, Percentage: 0.35},
		{Asset: usdc, Percentage: 0.25},
		{Asset: jlp, Percentage: 0.20},
		{Asset: domain.OtherAsset(), Percentage: 0.20},
	},
	domain.StrategyAggressive: {
		{Asset: sol, Percentage: 0.45},
		{Asset: jlp, Percentage: 0.30},
		{Asset: domain.OtherAsset(), Percentage: 0.15},
		{Asset: usdc, Percentage: 0.10},
	},
}

// ResolveStrategy returns the allocation of a named strategy. Names are
// matched case-insensitively; unknown or empty names fall back to
// DefaultStrategy rather than failing.
func ResolveStrategy(name string) (domain.Strategy, domain.Allocation) {
	strategy := domain.Strategy(strings.ToLower(strings.TrimSpace(name)))

	target, ok := Strategies[strategy]
	if !ok {
		strategy = DefaultStrategy
		target = Strategies[strategy]
	}

	out := make(domain.Allocation, len(target))
	copy(out, target)
	return strategy, out
}
