// Package solana reads wallet balances from a Solana JSON-RPC node.
package solana

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/warden/internal/clientdata"
	"github.com/aristath/warden/internal/domain"
	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/rs/zerolog"
)

// DefaultRPCURL is the public mainnet endpoint
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

const metadataTable = "token_metadata"

// KnownSymbols labels mints the UI cares about
var KnownSymbols = map[string]string{
	domain.NativeMint: "wSOL",
	domain.USDCMint:   "USDC",
	domain.JLPMint:    "JLP",
}

// rpc is the subset of the SDK client used here
type rpc interface {
	GetBalance(ctx context.Context, base58Addr string) (uint64, error)
	GetTokenAccountsByOwnerByProgram(ctx context.Context, owner, program string) ([]client.TokenAccount, error)
	GetAccountInfo(ctx context.Context, base58Addr string) (client.AccountInfo, error)
}

type cachedMint struct {
	Decimals uint8 `msgpack:"decimals"`
}

// Client implements domain.HoldingsSource over JSON-RPC
type Client struct {
	rpc       rpc
	cacheRepo *clientdata.Repository
	log       zerolog.Logger

	mu       sync.RWMutex
	decimals map[string]uint8
}

// NewClient creates a holdings source for rpcURL. cacheRepo is optional.
func NewClient(rpcURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if rpcURL == "" {
		rpcURL = DefaultRPCURL
	}
	return newClient(client.NewClient(rpcURL), cacheRepo, log)
}

func newClient(r rpc, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		rpc:       r,
		cacheRepo: cacheRepo,
		log:       log.With().Str("client", "solana").Logger(),
		decimals:  make(map[string]uint8),
	}
}

// FetchHoldings implements domain.HoldingsSource. Any RPC failure is
// reported as domain.ErrSourceUnavailable.
func (c *Client) FetchHoldings(ctx context.Context, wallet string) (domain.RawHoldings, error) {
	lamports, err := c.rpc.GetBalance(ctx, wallet)
	if err != nil {
		return domain.RawHoldings{}, fmt.Errorf("%w: get balance: %v", domain.ErrSourceUnavailable, err)
	}

	accounts, err := c.rpc.GetTokenAccountsByOwnerByProgram(ctx, wallet, common.TokenProgramID.ToBase58())
	if err != nil {
		return domain.RawHoldings{}, fmt.Errorf("%w: get token accounts: %v", domain.ErrSourceUnavailable, err)
	}

	raw := domain.RawHoldings{
		NativeLamports: lamports,
		TokenAccounts:  make([]domain.RawTokenAccount, 0, len(accounts)),
	}

	for _, acc := range accounts {
		if acc.Amount == 0 {
			continue
		}

		mint := acc.Mint.ToBase58()
		decimals, err := c.mintDecimals(ctx, mint)
		if err != nil {
			return domain.RawHoldings{}, fmt.Errorf("%w: mint %s: %v", domain.ErrSourceUnavailable, mint, err)
		}

		raw.TokenAccounts = append(raw.TokenAccounts, domain.RawTokenAccount{
			Mint:     mint,
			Symbol:   KnownSymbols[mint],
			Amount:   acc.Amount,
			Decimals: decimals,
		})
	}

	c.log.Debug().
		Str("wallet", wallet).
		Uint64("lamports", lamports).
		Int("token_accounts", len(raw.TokenAccounts)).
		Msg("Fetched holdings")

	return raw, nil
}

// mintDecimals reads the decimals of a mint. Decimals are immutable, so they
// are memoized in process and in the persistent cache.
func (c *Client) mintDecimals(ctx context.Context, mint string) (uint8, error) {
	c.mu.RLock()
	d, ok := c.decimals[mint]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}

	if c.cacheRepo != nil {
		var cached cachedMint
		if found, err := c.cacheRepo.GetIfFresh(metadataTable, mint, &cached); err == nil && found {
			c.remember(mint, cached.Decimals)
			return cached.Decimals, nil
		}
	}

	info, err := c.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("get mint account: %w", err)
	}

	mintAccount, err := token.MintAccountFromData(info.Data)
	if err != nil {
		return 0, fmt.Errorf("decode mint account: %w", err)
	}

	c.remember(mint, mintAccount.Decimals)

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(metadataTable, mint, cachedMint{Decimals: mintAccount.Decimals}, clientdata.TTLTokenMetadata); err != nil {
			c.log.Warn().Err(err).Str("mint", mint).Msg("Failed to cache mint decimals")
		}
	}

	return mintAccount.Decimals, nil
}

func (c *Client) remember(mint string, decimals uint8) {
	c.mu.Lock()
	c.decimals[mint] = decimals
	c.mu.Unlock()
}
