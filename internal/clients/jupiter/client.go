// Package jupiter resolves USD spot prices for Solana mints through the
// Jupiter price API, with a persistent cache in front of it.
package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/warden/internal/clientdata"
	"github.com/aristath/warden/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the public price endpoint
const DefaultBaseURL = "https://api.jup.ag/price/v2"

const cacheTable = "current_prices"

var _ domain.BatchPriceResolver = (*Client)(nil)

// Client for the Jupiter price API
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new Jupiter price client.
// cacheRepo is optional - if nil, caching is disabled
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "jupiter").Logger(),
		cacheRepo: cacheRepo,
	}
}

// cachedPrice is the structure stored in the cache
type cachedPrice struct {
	Price float64 `msgpack:"price"`
}

type priceResponse struct {
	Data map[string]*struct {
		Price string `json:"price"`
	} `json:"data"`
}

// ResolveValue implements domain.PriceResolver
func (c *Client) ResolveValue(ctx context.Context, asset domain.Asset, quantity decimal.Decimal) (float64, bool) {
	price, ok := c.UnitPrice(ctx, asset)
	if !ok {
		return 0, false
	}
	return price * quantity.InexactFloat64(), true
}

// UnitPrice returns the USD price of one unit of asset
func (c *Client) UnitPrice(ctx context.Context, asset domain.Asset) (float64, bool) {
	prices := c.UnitPrices(ctx, []domain.Asset{asset})
	price, ok := prices[asset.ID]
	return price, ok
}

// UnitPrices resolves several assets with at most one API request.
// Assets without a price are absent from the result.
// If the API fails, returns stale cached prices where available (stale data > no data).
func (c *Client) UnitPrices(ctx context.Context, assets []domain.Asset) map[string]float64 {
	prices := make(map[string]float64, len(assets))

	var missing []string
	seen := make(map[string]bool, len(assets))
	for _, asset := range assets {
		if asset.ID == "" || asset.IsOther() || seen[asset.ID] {
			continue
		}
		seen[asset.ID] = true

		if price, ok := c.getFromCache(asset.ID, true); ok {
			prices[asset.ID] = price
			continue
		}
		missing = append(missing, asset.ID)
	}

	if len(missing) == 0 {
		return prices
	}

	fetched, err := c.fetchPrices(ctx, missing)
	if err != nil {
		for _, id := range missing {
			if stale, ok := c.getFromCache(id, false); ok {
				c.log.Warn().
					Err(err).
					Str("mint", id).
					Float64("price", stale).
					Msg("API failed, using stale cached price")
				prices[id] = stale
			}
		}
		if len(prices) == 0 {
			c.log.Warn().Err(err).Int("mints", len(missing)).Msg("Price lookup failed")
		}
		return prices
	}

	for id, price := range fetched {
		prices[id] = price
		if c.cacheRepo != nil {
			if err := c.cacheRepo.Store(cacheTable, id, cachedPrice{Price: price}, clientdata.TTLCurrentPrice); err != nil {
				c.log.Warn().Err(err).Str("mint", id).Msg("Failed to cache price")
			}
		}
	}

	c.log.Debug().
		Int("requested", len(missing)).
		Int("resolved", len(fetched)).
		Msg("Fetched prices")

	return prices
}

func (c *Client) fetchPrices(ctx context.Context, ids []string) (map[string]float64, error) {
	reqURL := c.baseURL + "?ids=" + url.QueryEscape(strings.Join(ids, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	prices := make(map[string]float64, len(result.Data))
	for id, entry := range result.Data {
		if entry == nil {
			continue
		}
		price, err := strconv.ParseFloat(entry.Price, 64)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			c.log.Warn().Str("mint", id).Str("price", entry.Price).Msg("Ignoring invalid price")
			continue
		}
		prices[id] = price
	}

	return prices, nil
}

// getFromCache reads a cached price. With fresh=false expired entries are
// returned too; use that only as a fallback when API calls fail.
func (c *Client) getFromCache(mint string, fresh bool) (float64, bool) {
	if c.cacheRepo == nil {
		return 0, false
	}

	var cached cachedPrice
	var ok bool
	var err error
	if fresh {
		ok, err = c.cacheRepo.GetIfFresh(cacheTable, mint, &cached)
	} else {
		ok, err = c.cacheRepo.Get(cacheTable, mint, &cached)
	}
	if err != nil || !ok {
		return 0, false
	}

	return cached.Price, true
}
