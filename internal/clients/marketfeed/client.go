// Package marketfeed adapts an HTTP market-data feed to domain.MarketDataSource.
//
// A feed serves two JSON arrays:
//
//	GET {base}/opportunities  [{"route","asset","symbol","apr","liquidity","risk_tier"}]
//	GET {base}/trends         [{"asset","symbol","direction","confidence"}]
package marketfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/pkg/retrier"
	"github.com/rs/zerolog"
)

// StatusError is a non-200 feed response
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed returned status %d", e.Code)
}

// Client reads one market-data feed
type Client struct {
	name    string
	baseURL string
	client  *http.Client
	retrier *retrier.Retrier
	log     zerolog.Logger
}

// NewClient creates a feed client tagged with name
func NewClient(name, baseURL string, log zerolog.Logger, opts ...retrier.Option) *Client {
	opts = append([]retrier.Option{retrier.WithRetryIf(retryable)}, opts...)
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		retrier: retrier.New(opts...),
		log:     log.With().Str("client", "marketfeed").Str("source", name).Logger(),
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	var syntax *json.SyntaxError
	return !errors.As(err, &syntax)
}

// Name implements domain.MarketDataSource
func (c *Client) Name() string {
	return c.name
}

type opportunityDTO struct {
	Route     string   `json:"route"`
	Asset     string   `json:"asset"`
	Symbol    string   `json:"symbol"`
	APR       *float64 `json:"apr"`
	Liquidity float64  `json:"liquidity"`
	RiskTier  string   `json:"risk_tier"`
}

type trendDTO struct {
	Asset      string   `json:"asset"`
	Symbol     string   `json:"symbol"`
	Direction  string   `json:"direction"`
	Confidence *float64 `json:"confidence"`
}

// FetchOpportunities implements domain.MarketDataSource.
// Malformed entries are dropped; the rest are returned in feed order.
func (c *Client) FetchOpportunities(ctx context.Context) ([]domain.Opportunity, error) {
	var raw []opportunityDTO
	if err := c.get(ctx, "/opportunities", &raw); err != nil {
		return nil, err
	}

	out := make([]domain.Opportunity, 0, len(raw))
	for _, o := range raw {
		if o.Route == "" || o.APR == nil || math.IsNaN(*o.APR) || o.Liquidity < 0 {
			c.log.Warn().Str("route", o.Route).Msg("Dropping invalid opportunity")
			continue
		}
		out = append(out, domain.Opportunity{
			Asset:     assetFor(o.Asset, o.Symbol),
			Route:     o.Route,
			APR:       *o.APR,
			Liquidity: o.Liquidity,
			RiskTier:  o.RiskTier,
		})
	}

	return out, nil
}

// FetchTrends implements domain.MarketDataSource.
// Entries with an unknown direction or a confidence outside [0,1] are dropped.
func (c *Client) FetchTrends(ctx context.Context) ([]domain.Trend, error) {
	var raw []trendDTO
	if err := c.get(ctx, "/trends", &raw); err != nil {
		return nil, err
	}

	out := make([]domain.Trend, 0, len(raw))
	for _, t := range raw {
		direction, ok := domain.ParseTrendDirection(strings.ToLower(t.Direction))
		if !ok || t.Asset == "" || t.Confidence == nil || *t.Confidence < 0 || *t.Confidence > 1 {
			c.log.Warn().Str("asset", t.Asset).Str("direction", t.Direction).Msg("Dropping invalid trend")
			continue
		}
		out = append(out, domain.Trend{
			Asset:      assetFor(t.Asset, t.Symbol),
			Direction:  direction,
			Confidence: *t.Confidence,
		})
	}

	return out, nil
}

// assetFor maps a feed asset identifier to a domain asset.
// Feeds may name the native asset by mint or as "SOL".
func assetFor(id, symbol string) domain.Asset {
	if strings.EqualFold(id, "sol") || strings.EqualFold(id, "native") {
		return domain.NativeAsset()
	}
	return domain.TokenAsset(id, symbol)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &StatusError{Code: resp.StatusCode}
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s%s: %w", c.name, path, err)
	}
	return nil
}
