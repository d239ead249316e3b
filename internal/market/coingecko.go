// Package market talks to the external price provider. All calls go
// through a rate limiter and a circuit breaker.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/portfolio-sentinel/internal/circuitbreaker"
	"github.com/portfolio-sentinel/internal/config"
	apperrors "github.com/portfolio-sentinel/internal/errors"
	"github.com/portfolio-sentinel/internal/logging"
	"github.com/portfolio-sentinel/internal/models"
	"github.com/portfolio-sentinel/internal/types"
	"golang.org/x/time/rate"
)

const providerName = "coingecko"

// knownIDs maps common symbols to provider asset ids. Config overrides
// take precedence; unknown symbols fall back to the lowercased symbol.
var knownIDs = map[string]string{
	"ETH":  "ethereum",
	"WETH": "ethereum",
	"BTC":  "bitcoin",
	"WBTC": "wrapped-bitcoin",
	"USDC": "usd-coin",
	"USDT": "tether",
	"DAI":  "dai",
}

// Client is a CoinGecko API client
type Client struct {
	base    string
	http    *http.Client
	ids     map[string]string
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	logger  *logging.Logger
}

// NewClient creates a provider client from config
func NewClient(cfg *config.OracleConfig) *Client {
	return &Client{
		base:    cfg.APIBase,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		ids:     cfg.PriceIDs,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig(providerName)),
		logger:  logging.WithField("provider", providerName),
	}
}

// AssetID resolves a symbol to the provider's asset id
func (c *Client) AssetID(symbol string) string {
	symbol = types.NormalizeSymbol(symbol)
	if id, ok := c.ids[symbol]; ok {
		return id
	}
	if id, ok := knownIDs[symbol]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

// GetPrice fetches the current USD price for a symbol
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	id := c.AssetID(symbol)
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.base, url.QueryEscape(id))

	var payload map[string]map[string]float64
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return 0, err
	}

	quote, ok := payload[id]
	if !ok {
		return 0, apperrors.NewDataInvalid(fmt.Sprintf("provider response missing asset %s", id), nil)
	}
	price, ok := quote["usd"]
	if !ok {
		return 0, apperrors.NewDataInvalid(fmt.Sprintf("provider response missing usd quote for %s", id), nil)
	}
	if price <= 0 {
		return 0, apperrors.NewNonPositivePrice(symbol, price)
	}

	return price, nil
}

// MarketChart fetches hourly USD prices for the trailing number of days
func (c *Client) MarketChart(ctx context.Context, symbol string, days int) ([]models.PricePoint, error) {
	id := c.AssetID(symbol)
	endpoint := fmt.Sprintf(
		"%s/coins/%s/market_chart?vs_currency=usd&days=%d&interval=hourly",
		c.base, url.PathEscape(id), days,
	)

	var payload struct {
		Prices [][]float64 `json:"prices"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	points := make([]models.PricePoint, 0, len(payload.Prices))
	for _, pair := range payload.Prices {
		if len(pair) < 2 || pair[1] <= 0 {
			continue
		}
		points = append(points, models.PricePoint{
			Timestamp: time.UnixMilli(int64(pair[0])).UTC(),
			Price:     pair[1],
		})
	}

	if len(points) == 0 {
		return nil, apperrors.NewDataInvalid(fmt.Sprintf("provider returned no usable prices for %s", id), nil)
	}

	return points, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.NewTransient("RATE_WAIT", "rate limiter wait aborted", err)
	}

	return c.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return apperrors.NewDataInvalid("failed to build provider request", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return apperrors.NewProviderError(providerName, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return apperrors.NewProviderRateLimit(providerName)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return apperrors.NewProviderError(providerName,
				fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.NewDataInvalid("failed to decode provider response", err)
		}

		return nil
	})
}
