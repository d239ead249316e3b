package config

import (
	"os"
	"testing"
	"time"

	"github.com/portfolio-sentinel/internal/types"
)

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Sync.Interval != 15*time.Minute {
		t.Errorf("Sync.Interval = %v, want 15m", cfg.Sync.Interval)
	}
	if cfg.Sync.MaxConcurrency != 4 {
		t.Errorf("Sync.MaxConcurrency = %d, want 4", cfg.Sync.MaxConcurrency)
	}
	if cfg.Sync.MaxRetries != 3 {
		t.Errorf("Sync.MaxRetries = %d, want 3", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.TxLookbackBlocks != 500 {
		t.Errorf("Sync.TxLookbackBlocks = %d, want 500", cfg.Sync.TxLookbackBlocks)
	}
	if !cfg.Sync.WSTriggerEnabled {
		t.Error("Sync.WSTriggerEnabled should default to true")
	}
	if cfg.Chains.RequestTimeout != 10*time.Second {
		t.Errorf("Chains.RequestTimeout = %v, want 10s", cfg.Chains.RequestTimeout)
	}
	if cfg.Oracle.CacheTTL != time.Minute {
		t.Errorf("Oracle.CacheTTL = %v, want 1m", cfg.Oracle.CacheTTL)
	}
	if cfg.Oracle.HistoryStaleness != 5*time.Minute {
		t.Errorf("Oracle.HistoryStaleness = %v, want 5m", cfg.Oracle.HistoryStaleness)
	}
	if cfg.Oracle.APIBase != "https://api.coingecko.com/api/v3" {
		t.Errorf("Oracle.APIBase = %v", cfg.Oracle.APIBase)
	}
	if cfg.RoleCache.DefaultTTL != 5*time.Minute {
		t.Errorf("RoleCache.DefaultTTL = %v, want 5m", cfg.RoleCache.DefaultTTL)
	}
	if !cfg.Alert.Enabled {
		t.Error("Alert.Enabled should default to true")
	}
	if cfg.Alert.ApprovalLookbackBlocks != 2000 {
		t.Errorf("Alert.ApprovalLookbackBlocks = %d, want 2000", cfg.Alert.ApprovalLookbackBlocks)
	}
	if cfg.Alert.FlowWindow != 24*time.Hour {
		t.Errorf("Alert.FlowWindow = %v, want 24h", cfg.Alert.FlowWindow)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv("PORTFOLIO_SYNC_INTERVAL_SECS", "60")
	os.Setenv("PORTFOLIO_MAX_CONCURRENCY", "8")
	os.Setenv("PORTFOLIO_WS_TRIGGER", "false")
	os.Setenv("PRICE_CACHE_TTL_SECS", "30")
	os.Setenv("COINGECKO_API_BASE", "http://localhost:9000/api/v3/")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Sync.Interval != time.Minute {
		t.Errorf("Sync.Interval = %v, want 1m", cfg.Sync.Interval)
	}
	if cfg.Sync.MaxConcurrency != 8 {
		t.Errorf("Sync.MaxConcurrency = %d, want 8", cfg.Sync.MaxConcurrency)
	}
	if cfg.Sync.WSTriggerEnabled {
		t.Error("Sync.WSTriggerEnabled should be false")
	}
	if cfg.Oracle.CacheTTL != 30*time.Second {
		t.Errorf("Oracle.CacheTTL = %v, want 30s", cfg.Oracle.CacheTTL)
	}
	if cfg.Oracle.APIBase != "http://localhost:9000/api/v3" {
		t.Errorf("Oracle.APIBase = %v, trailing slash should be trimmed", cfg.Oracle.APIBase)
	}
}

func TestParseChainURLs(t *testing.T) {
	urls := parseChainURLs("1=https://eth.example,137=wss://polygon.example, bad, 56=")
	if len(urls) != 2 {
		t.Fatalf("parseChainURLs() returned %d entries, want 2", len(urls))
	}
	if urls[types.ChainEthereum] != "https://eth.example" {
		t.Errorf("chain 1 url = %v", urls[types.ChainEthereum])
	}
	if urls[types.ChainPolygon] != "wss://polygon.example" {
		t.Errorf("chain 137 url = %v", urls[types.ChainPolygon])
	}
}

func TestParseChainTTLs(t *testing.T) {
	ttls := parseChainTTLs("1=600,137=120,56=-5,junk")
	if len(ttls) != 2 {
		t.Fatalf("parseChainTTLs() returned %d entries, want 2", len(ttls))
	}
	if ttls[types.ChainEthereum] != 10*time.Minute {
		t.Errorf("chain 1 ttl = %v, want 10m", ttls[types.ChainEthereum])
	}
	if ttls[types.ChainPolygon] != 2*time.Minute {
		t.Errorf("chain 137 ttl = %v, want 2m", ttls[types.ChainPolygon])
	}
}

func TestParseERC20Tokens(t *testing.T) {
	tokens := parseERC20Tokens("USDC:0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48:6:1,WETH:0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2:18")
	if len(tokens) != 2 {
		t.Fatalf("parseERC20Tokens() returned %d tokens, want 2", len(tokens))
	}

	usdc := tokens[0]
	if usdc.Symbol != "USDC" || usdc.Decimals != 6 || usdc.ChainID != types.ChainEthereum {
		t.Errorf("unexpected USDC token: %+v", usdc)
	}
	if usdc.Address != "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48" {
		t.Errorf("token address should be lowercased, got %v", usdc.Address)
	}

	// chain defaults to Ethereum, decimals taken from the entry
	weth := tokens[1]
	if weth.Decimals != 18 || weth.ChainID != types.ChainEthereum {
		t.Errorf("unexpected WETH token: %+v", weth)
	}
}

func TestParseTokenPrices(t *testing.T) {
	prices := parseTokenPrices("eth=3000,BNB=600,USDC=1,broken")
	if len(prices) != 3 {
		t.Fatalf("parseTokenPrices() returned %d entries, want 3", len(prices))
	}
	if prices["ETH"] != 3000 {
		t.Errorf("ETH price = %v, want 3000", prices["ETH"])
	}
	if prices["USDC"] != 1 {
		t.Errorf("USDC price = %v, want 1", prices["USDC"])
	}
}

func TestParsePriceIDs(t *testing.T) {
	ids := parsePriceIDs("WETH:ethereum,wbtc:wrapped-bitcoin")
	if len(ids) != 2 {
		t.Fatalf("parsePriceIDs() returned %d entries, want 2", len(ids))
	}
	if ids["WETH"] != "ethereum" {
		t.Errorf("WETH id = %v, want ethereum", ids["WETH"])
	}
	if ids["WBTC"] != "wrapped-bitcoin" {
		t.Errorf("WBTC id = %v, want wrapped-bitcoin", ids["WBTC"])
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORTFOLIO_SYNC_INTERVAL_SECS", "PORTFOLIO_MAX_CONCURRENCY",
		"PORTFOLIO_SYNC_RETRIES", "PORTFOLIO_WS_TRIGGER",
		"PRICE_CACHE_TTL_SECS", "PRICE_HISTORY_STALENESS_SECS",
		"COINGECKO_API_BASE", "TOKEN_PRICES", "TOKEN_PRICE_IDS",
		"ERC20_TOKENS", "CHAIN_RPC_URLS", "CHAIN_WS_URLS",
		"ROLE_CACHE_TTL_SECS", "ROLE_CACHE_TTL_OVERRIDES",
		"ENABLE_ALERT_WORKER", "ALERT_APPROVAL_LOOKBACK_BLOCKS",
	}
	for _, key := range keys {
		os.Unsetenv(key)
		key := key
		t.Cleanup(func() { os.Unsetenv(key) })
	}
}
