// Package coingecko fetches daily price history used by the trend and
// volatility estimators.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/warden/internal/clientdata"
	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/pkg/retrier"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public API root
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

const cacheTable = "price_history"

// DefaultCoinIDs maps well-known mints to CoinGecko coin ids
var DefaultCoinIDs = map[string]string{
	domain.NativeMint: "solana",
	domain.USDCMint:   "usd-coin",
	domain.JLPMint:    "jupiter-perpetuals-liquidity-provider-token",
}

// ErrUnknownAsset is returned for assets without a coin id mapping
var ErrUnknownAsset = errors.New("no coin id for asset")

// StatusError is a non-200 API response
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d", e.Code)
}

// Client for the CoinGecko market chart API
type Client struct {
	baseURL   string
	coinIDs   map[string]string
	client    *http.Client
	retrier   *retrier.Retrier
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new CoinGecko client. coinIDs maps asset id to coin id;
// nil uses DefaultCoinIDs. cacheRepo is optional.
func NewClient(baseURL string, coinIDs map[string]string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if coinIDs == nil {
		coinIDs = DefaultCoinIDs
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		coinIDs: coinIDs,
		client:  &http.Client{Timeout: 15 * time.Second},
		retrier: retrier.New(
			retrier.WithInitialInterval(500*time.Millisecond),
			retrier.WithRetryIf(retryable),
		),
		log:       log.With().Str("client", "coingecko").Logger(),
		cacheRepo: cacheRepo,
	}
}

// retryable reports whether a failed request is worth repeating.
// Rate limits and server errors are; other statuses and unknown assets are not.
func retryable(err error) bool {
	if errors.Is(err, ErrUnknownAsset) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	return true
}

// DailyCloses returns up to days daily closing USD prices, oldest first.
// Implements market.PriceHistory.
func (c *Client) DailyCloses(ctx context.Context, asset domain.Asset, days int) ([]float64, error) {
	coinID, ok := c.coinIDs[asset.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.ID)
	}

	cacheKey := coinID + ":" + strconv.Itoa(days)

	if c.cacheRepo != nil {
		var cached []float64
		if ok, err := c.cacheRepo.GetIfFresh(cacheTable, cacheKey, &cached); err == nil && ok {
			c.log.Debug().Str("coin", coinID).Int("points", len(cached)).Msg("Cache hit")
			return cached, nil
		}
	}

	closes, err := retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) ([]float64, error) {
		return c.fetchMarketChart(ctx, coinID, days)
	})
	if err != nil {
		if c.cacheRepo != nil {
			var stale []float64
			if ok, cacheErr := c.cacheRepo.Get(cacheTable, cacheKey, &stale); cacheErr == nil && ok {
				c.log.Warn().
					Err(err).
					Str("coin", coinID).
					Msg("API failed, using stale cached history")
				return stale, nil
			}
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(cacheTable, cacheKey, closes, clientdata.TTLPriceHistory); err != nil {
			c.log.Warn().Err(err).Str("coin", coinID).Msg("Failed to cache history")
		}
	}

	return closes, nil
}

func (c *Client) fetchMarketChart(ctx context.Context, coinID string, days int) ([]float64, error) {
	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("days", strconv.Itoa(days))
	query.Set("interval", "daily")
	reqURL := fmt.Sprintf("%s/coins/%s/market_chart?%s", c.baseURL, url.PathEscape(coinID), query.Encode())

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
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var result struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	closes := make([]float64, 0, len(result.Prices))
	for _, point := range result.Prices {
		if point[1] > 0 {
			closes = append(closes, point[1])
		}
	}

	return closes, nil
}
