// Package holdings normalizes raw wallet balances into typed holdings snapshots.
package holdings

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/aristath/warden/internal/domain"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// publicKeyLength is the size of a decoded Solana address
const publicKeyLength = 32

// maxTokenDecimals guards against garbage mint metadata
const maxTokenDecimals = 18

// ValidateWallet checks that wallet is a base58-encoded 32-byte public key
func ValidateWallet(wallet string) error {
	trimmed := strings.TrimSpace(wallet)
	if trimmed == "" {
		return fmt.Errorf("%w: empty identifier", domain.ErrInvalidWallet)
	}
	if trimmed != wallet {
		return fmt.Errorf("%w: surrounding whitespace", domain.ErrInvalidWallet)
	}

	decoded, err := base58.Decode(wallet)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidWallet, err)
	}
	if len(decoded) != publicKeyLength {
		return fmt.Errorf("%w: decoded length %d, expected %d", domain.ErrInvalidWallet, len(decoded), publicKeyLength)
	}

	return nil
}

// Builder turns a wallet identifier into a HoldingsSnapshot
type Builder struct {
	source   domain.HoldingsSource
	resolver domain.PriceResolver
	now      func() time.Time
	log      zerolog.Logger
}

// NewBuilder creates a snapshot builder. resolver may be nil, in which case
// every holding stays unpriced.
func NewBuilder(source domain.HoldingsSource, resolver domain.PriceResolver, log zerolog.Logger) *Builder {
	return &Builder{
		source:   source,
		resolver: resolver,
		now:      time.Now,
		log:      log.With().Str("service", "holdings").Logger(),
	}
}

// Build fetches, normalizes and prices the holdings of wallet.
// Fails with ErrInvalidWallet or ErrSourceUnavailable; unpriced holdings are not errors.
func (b *Builder) Build(ctx context.Context, wallet string) (domain.HoldingsSnapshot, error) {
	if err := ValidateWallet(wallet); err != nil {
		return domain.HoldingsSnapshot{}, err
	}

	raw, err := b.source.FetchHoldings(ctx, wallet)
	if err != nil {
		if errors.Is(err, domain.ErrSourceUnavailable) {
			return domain.HoldingsSnapshot{}, err
		}
		return domain.HoldingsSnapshot{}, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}

	snapshot := Normalize(wallet, raw, b.log)
	snapshot.CapturedAt = b.now().UTC()

	b.resolveValues(ctx, snapshot.Holdings)

	unpriced := snapshot.UnpricedAssets()
	b.log.Debug().
		Str("wallet", wallet).
		Int("holdings", len(snapshot.Holdings)).
		Int("unpriced", len(unpriced)).
		Float64("total_value", snapshot.TotalValue()).
		Msg("Built holdings snapshot")

	return snapshot, nil
}

// Normalize merges raw balances into one holding per asset, in discovery order.
// The native balance comes first; wrapped native token accounts merge into it.
// Zero balances and malformed token accounts are dropped.
func Normalize(wallet string, raw domain.RawHoldings, log zerolog.Logger) domain.HoldingsSnapshot {
	nativeBalance := scaleAmount(raw.NativeLamports, domain.NativeDecimals)

	snapshot := domain.HoldingsSnapshot{
		Wallet:        wallet,
		NativeBalance: nativeBalance,
		Holdings:      make([]domain.Holding, 0, len(raw.TokenAccounts)+1),
	}

	index := make(map[string]int)
	add := func(asset domain.Asset, qty decimal.Decimal) {
		if i, ok := index[asset.ID]; ok {
			snapshot.Holdings[i].Quantity = snapshot.Holdings[i].Quantity.Add(qty)
			if snapshot.Holdings[i].Asset.Symbol == "" {
				snapshot.Holdings[i].Asset.Symbol = asset.Symbol
			}
			return
		}
		index[asset.ID] = len(snapshot.Holdings)
		snapshot.Holdings = append(snapshot.Holdings, domain.Holding{Asset: asset, Quantity: qty})
	}

	if raw.NativeLamports > 0 {
		add(domain.NativeAsset(), nativeBalance)
	}

	for _, acc := range raw.TokenAccounts {
		mint := strings.TrimSpace(acc.Mint)
		if mint == "" {
			log.Warn().Str("wallet", wallet).Msg("Skipping token account without mint")
			continue
		}
		if acc.Decimals > maxTokenDecimals {
			log.Warn().
				Str("wallet", wallet).
				Str("mint", mint).
				Uint8("decimals", acc.Decimals).
				Msg("Skipping token account with implausible decimals")
			continue
		}
		if acc.Amount == 0 {
			continue
		}
		add(domain.TokenAsset(mint, acc.Symbol), scaleAmount(acc.Amount, acc.Decimals))
	}

	return snapshot
}

// resolveValues prices every holding. Resolvers that support batching get a
// single request; otherwise holdings are priced concurrently and results land
// by index so the discovery order is preserved.
func (b *Builder) resolveValues(ctx context.Context, holdings []domain.Holding) {
	if b.resolver == nil || len(holdings) == 0 {
		return
	}

	if batch, ok := b.resolver.(domain.BatchPriceResolver); ok {
		b.resolveBatch(ctx, batch, holdings)
		return
	}

	var wg sync.WaitGroup
	for i := range holdings {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, ok := b.resolver.ResolveValue(ctx, holdings[i].Asset, holdings[i].Quantity)
			if !ok {
				b.log.Warn().
					Str("asset", holdings[i].Asset.ID).
					Msg("No price resolved for holding")
				return
			}
			v := value
			holdings[i].Value = &v
		}(i)
	}
	wg.Wait()
}

func (b *Builder) resolveBatch(ctx context.Context, batch domain.BatchPriceResolver, holdings []domain.Holding) {
	assets := make([]domain.Asset, len(holdings))
	for i, h := range holdings {
		assets[i] = h.Asset
	}

	prices := batch.UnitPrices(ctx, assets)
	for i := range holdings {
		price, ok := prices[holdings[i].Asset.ID]
		if !ok || price <= 0 {
			b.log.Warn().
				Str("asset", holdings[i].Asset.ID).
				Msg("No price resolved for holding")
			continue
		}
		v := price * holdings[i].Quantity.InexactFloat64()
		holdings[i].Value = &v
	}
}

func scaleAmount(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}
