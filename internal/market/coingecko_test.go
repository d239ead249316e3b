package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/portfolio-sentinel/internal/config"
	apperrors "github.com/portfolio-sentinel/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(&config.OracleConfig{
		APIBase:         server.URL,
		RequestTimeout:  time.Second,
		RateLimitPerSec: 1000,
		PriceIDs:        map[string]string{"MYTOKEN": "my-token"},
	})
}

func TestAssetID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		symbol string
		want   string
	}{
		{"ETH", "ethereum"},
		{"weth", "ethereum"},
		{"WBTC", "wrapped-bitcoin"},
		{"USDC", "usd-coin"},
		{"MYTOKEN", "my-token"}, // config override
		{"LINK", "link"},        // unknown falls back to lowercase
	}

	for _, tt := range tests {
		if got := client.AssetID(tt.symbol); got != tt.want {
			t.Errorf("AssetID(%q) = %v, want %v", tt.symbol, got, tt.want)
		}
	}
}

func TestGetPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "ethereum" {
			t.Errorf("ids = %v, want ethereum", got)
		}
		w.Write([]byte(`{"ethereum":{"usd":3123.45}}`))
	})

	price, err := client.GetPrice(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("GetPrice() error = %v", err)
	}
	if price != 3123.45 {
		t.Errorf("price = %v, want 3123.45", price)
	}
}

func TestGetPriceRejectsNonPositive(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ethereum":{"usd":0}}`))
	})

	_, err := client.GetPrice(context.Background(), "ETH")
	if !apperrors.IsDataInvalid(err) {
		t.Errorf("zero price should be data invalid, got %v", apperrors.CategoryOf(err))
	}
}

func TestGetPriceMissingAsset(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := client.GetPrice(context.Background(), "ETH")
	if !apperrors.IsDataInvalid(err) {
		t.Errorf("missing asset should be data invalid, got %v", apperrors.CategoryOf(err))
	}
}

func TestGetPriceRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetPrice(context.Background(), "ETH")
	if !apperrors.IsTransient(err) {
		t.Errorf("429 should be transient, got %v", apperrors.CategoryOf(err))
	}
}

func TestGetPriceServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetPrice(context.Background(), "ETH")
	if !apperrors.IsTransient(err) {
		t.Errorf("5xx should be transient, got %v", apperrors.CategoryOf(err))
	}
}

func TestMarketChart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/ethereum/market_chart" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("days"); got != "7" {
			t.Errorf("days = %v, want 7", got)
		}
		// Second pair has a zero price and must be dropped
		w.Write([]byte(`{"prices":[[1700000000000,3000.5],[1700003600000,0],[1700007200000,3010.25]]}`))
	})

	points, err := client.MarketChart(context.Background(), "ETH", 7)
	if err != nil {
		t.Fatalf("MarketChart() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("len(points) = %d, want 2", len(points))
	}
	if points[0].Price != 3000.5 {
		t.Errorf("points[0].Price = %v, want 3000.5", points[0].Price)
	}
	if points[0].Timestamp != time.UnixMilli(1700000000000).UTC() {
		t.Errorf("points[0].Timestamp = %v", points[0].Timestamp)
	}
}

func TestMarketChartEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":[]}`))
	})

	_, err := client.MarketChart(context.Background(), "ETH", 7)
	if !apperrors.IsDataInvalid(err) {
		t.Errorf("empty chart should be data invalid, got %v", apperrors.CategoryOf(err))
	}
}
