// Package config provides configuration management for the portfolio tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/portfolio-sentinel/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Chains    ChainsConfig
	Tokens    []ERC20Token
	Sync      SyncConfig
	Oracle    OracleConfig
	RoleCache RoleCacheConfig
	Alert     AlertConfig
	Logging   LoggingConfig
}

// ServerConfig holds the health/status server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the connection URL used by the migration tooling
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ChainsConfig holds per-chain endpoint configuration
type ChainsConfig struct {
	RPCURLs            map[types.ChainID]string
	WSURLs             map[types.ChainID]string
	RoleManagerAddress string
	RequestTimeout     time.Duration // applied to every RPC call individually
}

// ERC20Token describes a tracked token contract
type ERC20Token struct {
	Symbol   string
	Address  string
	Decimals uint8
	ChainID  types.ChainID
}

// SyncConfig holds portfolio sync engine configuration
type SyncConfig struct {
	Interval          time.Duration // full pass interval; also the per-wallet due threshold
	MaxConcurrency    int
	MaxRetries        int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64
	TxLookbackBlocks  uint64 // initial transfer-log window for wallets with no cursor
	WSTriggerEnabled  bool
}

// OracleConfig holds price oracle configuration
type OracleConfig struct {
	APIBase            string
	CacheTTL           time.Duration
	HistoryStaleness   time.Duration // max age of a history point served in place of a live fetch
	RefreshInterval    time.Duration
	MinPersistInterval time.Duration // min gap between history points recorded per symbol
	StaticPrices       map[string]float64
	PriceIDs           map[string]string // symbol -> provider id overrides
	RequestTimeout     time.Duration
	RateLimitPerSec    float64
}

// RoleCacheConfig holds role cache configuration
type RoleCacheConfig struct {
	DefaultTTL   time.Duration
	TTLOverrides map[types.ChainID]time.Duration
}

// AlertConfig holds alert evaluation configuration
type AlertConfig struct {
	Enabled                bool
	TickInterval           time.Duration
	DefaultCooldown        time.Duration
	ApprovalLookbackBlocks uint64
	FlowWindow             time.Duration // trailing window for net-outflow rules
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8081"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "portfolio_sentinel"),
				User:           getEnv("POSTGRES_USER", "sentinel"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "portfolio_sentinel"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Chains: ChainsConfig{
			RPCURLs:            parseChainURLs(getEnv("CHAIN_RPC_URLS", "")),
			WSURLs:             parseChainURLs(getEnv("CHAIN_WS_URLS", "")),
			RoleManagerAddress: getEnv("ROLE_MANAGER_ADDRESS", ""),
			RequestTimeout:     getEnvAsSeconds("CHAIN_RPC_TIMEOUT_SECS", 10),
		},
		Tokens: parseERC20Tokens(getEnv("ERC20_TOKENS", "")),
		Sync: SyncConfig{
			Interval:          getEnvAsSeconds("PORTFOLIO_SYNC_INTERVAL_SECS", 900),
			MaxConcurrency:    getEnvAsPositiveInt("PORTFOLIO_MAX_CONCURRENCY", 4),
			MaxRetries:        getEnvAsPositiveInt("PORTFOLIO_SYNC_RETRIES", 3),
			RetryInitialDelay: getEnvAsSeconds("PORTFOLIO_RETRY_INITIAL_DELAY_SECS", 1),
			RetryMaxDelay:     getEnvAsSeconds("PORTFOLIO_RETRY_MAX_DELAY_SECS", 30),
			RetryMultiplier:   getEnvAsFloat("PORTFOLIO_RETRY_MULTIPLIER", 2.0),
			TxLookbackBlocks:  uint64(getEnvAsInt("PORTFOLIO_TX_LOOKBACK_BLOCKS", 500)),
			WSTriggerEnabled:  getEnvAsBool("PORTFOLIO_WS_TRIGGER", true),
		},
		Oracle: OracleConfig{
			APIBase:            strings.TrimRight(getEnv("COINGECKO_API_BASE", "https://api.coingecko.com/api/v3"), "/"),
			CacheTTL:           getEnvAsSeconds("PRICE_CACHE_TTL_SECS", 60),
			HistoryStaleness:   getEnvAsSeconds("PRICE_HISTORY_STALENESS_SECS", 300),
			RefreshInterval:    getEnvAsSeconds("PRICE_REFRESH_INTERVAL_SECS", 60),
			MinPersistInterval: getEnvAsSeconds("PRICE_HISTORY_MIN_PERSIST_SECS", 60),
			StaticPrices:       parseTokenPrices(getEnv("TOKEN_PRICES", "")),
			PriceIDs:           parsePriceIDs(getEnv("TOKEN_PRICE_IDS", "")),
			RequestTimeout:     getEnvAsSeconds("PRICE_REQUEST_TIMEOUT_SECS", 10),
			RateLimitPerSec:    getEnvAsFloat("PRICE_RATE_LIMIT_PER_SEC", 2.0),
		},
		RoleCache: RoleCacheConfig{
			DefaultTTL:   getEnvAsSeconds("ROLE_CACHE_TTL_SECS", 300),
			TTLOverrides: parseChainTTLs(getEnv("ROLE_CACHE_TTL_OVERRIDES", "")),
		},
		Alert: AlertConfig{
			Enabled:                getEnvAsBool("ENABLE_ALERT_WORKER", true),
			TickInterval:           getEnvAsSeconds("ALERT_TICK_INTERVAL_SECS", 60),
			DefaultCooldown:        getEnvAsSeconds("ALERT_DEFAULT_COOLDOWN_SECS", 300),
			ApprovalLookbackBlocks: uint64(getEnvAsInt("ALERT_APPROVAL_LOOKBACK_BLOCKS", 2000)),
			FlowWindow:             getEnvAsSeconds("ALERT_FLOW_WINDOW_SECS", 24*3600),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
	}

	return config, nil
}

// parseChainURLs parses a "chainID=url,chainID=url" list
func parseChainURLs(raw string) map[types.ChainID]string {
	urls := make(map[types.ChainID]string)
	for _, item := range strings.Split(raw, ",") {
		chain, url, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			continue
		}
		chainID, err := strconv.ParseUint(strings.TrimSpace(chain), 10, 64)
		if err != nil {
			continue
		}
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		urls[types.ChainID(chainID)] = url
	}
	return urls
}

// parseChainTTLs parses a "chainID=seconds,chainID=seconds" list
func parseChainTTLs(raw string) map[types.ChainID]time.Duration {
	ttls := make(map[types.ChainID]time.Duration)
	for _, item := range strings.Split(raw, ",") {
		chain, secs, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			continue
		}
		chainID, err := strconv.ParseUint(strings.TrimSpace(chain), 10, 64)
		if err != nil {
			continue
		}
		seconds, err := strconv.ParseInt(strings.TrimSpace(secs), 10, 64)
		if err != nil || seconds <= 0 {
			continue
		}
		ttls[types.ChainID(chainID)] = time.Duration(seconds) * time.Second
	}
	return ttls
}

// parseERC20Tokens parses a "SYMBOL:address:decimals:chainID" list
func parseERC20Tokens(raw string) []ERC20Token {
	var tokens []ERC20Token
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) < 3 {
			continue
		}
		symbol := types.NormalizeSymbol(parts[0])
		address := types.NormalizeAddress(parts[1])
		if symbol == "" || address == "" {
			continue
		}
		decimals := uint8(18)
		if d, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 8); err == nil {
			decimals = uint8(d)
		}
		chainID := types.ChainEthereum
		if len(parts) > 3 {
			if c, err := strconv.ParseUint(strings.TrimSpace(parts[3]), 10, 64); err == nil {
				chainID = types.ChainID(c)
			}
		}
		tokens = append(tokens, ERC20Token{
			Symbol:   symbol,
			Address:  address,
			Decimals: decimals,
			ChainID:  chainID,
		})
	}
	return tokens
}

// parseTokenPrices parses a "SYMBOL=price" list
func parseTokenPrices(raw string) map[string]float64 {
	prices := make(map[string]float64)
	for _, item := range strings.Split(raw, ",") {
		symbol, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		symbol = types.NormalizeSymbol(symbol)
		if symbol == "" {
			continue
		}
		prices[symbol] = price
	}
	return prices
}

// parsePriceIDs parses a "SYMBOL:provider-id" list
func parsePriceIDs(raw string) map[string]string {
	ids := make(map[string]string)
	for _, item := range strings.Split(raw, ",") {
		symbol, id, ok := strings.Cut(strings.TrimSpace(item), ":")
		if !ok {
			continue
		}
		symbol = types.NormalizeSymbol(symbol)
		id = strings.ToLower(strings.TrimSpace(id))
		if symbol == "" || id == "" {
			continue
		}
		ids[symbol] = id
	}
	return ids
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsPositiveInt gets an environment variable as a strictly positive integer
func getEnvAsPositiveInt(key string, defaultValue int) int {
	value := getEnvAsInt(key, defaultValue)
	if value <= 0 {
		return defaultValue
	}
	return value
}

// getEnvAsSeconds gets an environment variable holding whole seconds as a duration
func getEnvAsSeconds(key string, defaultSeconds int64) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return time.Duration(defaultSeconds) * time.Second
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil || value < 0 {
		return time.Duration(defaultSeconds) * time.Second
	}
	return time.Duration(value) * time.Second
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	switch strings.ToLower(valueStr) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}
