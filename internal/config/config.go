// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/warden/internal/utils"
	"github.com/joho/godotenv"
)

// MarketFeed is one configured HTTP market-data source
type MarketFeed struct {
	Name string
	URL  string
}

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the cache database (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool

	// External collaborators
	SolanaRPCURL    string
	JupiterPriceURL string
	CoinGeckoURL    string
	MarketFeeds     []MarketFeed
	TrendAssets     []string // mints scored by the EMA trend source; empty disables it
	LiquidAssets    []string // mints counted as liquid; empty treats every asset as liquid

	// Request timing
	MarketSourceTimeout time.Duration
	RequestTimeout      time.Duration

	// FeePerTrade is in SOL. FeePercent is a fraction of trade value (0.003 = 0.3%).
	FeePerTrade float64
	FeePercent  float64
	MaxFeeRatio float64 // skip trades whose fee exceeds this share of their value (0 disables)

	MinNativeBalance        float64 // in SOL, kept for transaction fees
	SuggestionStep          float64
	SuggestionMinConfidence float64
	HistoricalVolatility    bool
	VolatilityDays          int

	CacheCleanupSchedule string // cron schedule with seconds
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("WARDEN_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	feeds, err := utils.ParseKeyValueCSV(getEnv("MARKET_FEED_URLS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid MARKET_FEED_URLS: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		Port:      getEnvAsInt("GO_PORT", 8080),
		DevMode:   getEnvAsBool("DEV_MODE", false),

		SolanaRPCURL:    getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		JupiterPriceURL: getEnv("JUPITER_PRICE_URL", "https://api.jup.ag/price/v2"),
		CoinGeckoURL:    getEnv("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		TrendAssets: getEnvAsList("TREND_ASSETS", []string{
			"So11111111111111111111111111111111111111112",
			"27G8MtK7VtTcCHkpASjSDdkWWYfoqT6ggEuKidVJidD4",
		}),
		LiquidAssets: getEnvAsList("LIQUID_ASSETS", nil),

		MarketSourceTimeout: getEnvAsDuration("MARKET_SOURCE_TIMEOUT", 5*time.Second),
		RequestTimeout:      getEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),

		FeePerTrade: getEnvAsFloat("FEE_PER_TRADE", 0.00001),
		FeePercent:  getEnvAsFloat("FEE_PERCENT", 0),
		MaxFeeRatio: getEnvAsFloat("MAX_FEE_RATIO", 0),

		MinNativeBalance:        getEnvAsFloat("MIN_NATIVE_BALANCE", 0.05),
		SuggestionStep:          getEnvAsFloat("SUGGESTION_STEP", 0.05),
		SuggestionMinConfidence: getEnvAsFloat("SUGGESTION_MIN_CONFIDENCE", 0.6),
		HistoricalVolatility:    getEnvAsBool("HISTORICAL_VOLATILITY", false),
		VolatilityDays:          getEnvAsInt("VOLATILITY_DAYS", 30),

		CacheCleanupSchedule: getEnv("CACHE_CLEANUP_SCHEDULE", "0 0 3 * * *"), // Daily at 3 AM
	}

	for _, kv := range feeds {
		cfg.MarketFeeds = append(cfg.MarketFeeds, MarketFeed{Name: kv.Key, URL: kv.Value})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that numeric settings are in range
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT %d out of range", c.Port)
	}
	if c.MarketSourceTimeout <= 0 {
		return fmt.Errorf("MARKET_SOURCE_TIMEOUT must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.FeePerTrade < 0 || c.FeePercent < 0 || c.MaxFeeRatio < 0 {
		return fmt.Errorf("fees must not be negative")
	}
	if c.MinNativeBalance < 0 {
		return fmt.Errorf("MIN_NATIVE_BALANCE must not be negative")
	}
	if c.SuggestionStep <= 0 || c.SuggestionStep > 1 {
		return fmt.Errorf("SUGGESTION_STEP must be in (0,1]")
	}
	if c.SuggestionMinConfidence < 0 || c.SuggestionMinConfidence > 1 {
		return fmt.Errorf("SUGGESTION_MIN_CONFIDENCE must be in [0,1]")
	}
	if c.HistoricalVolatility && c.VolatilityDays < 3 {
		return fmt.Errorf("VOLATILITY_DAYS must be at least 3")
	}
	return nil
}

// CacheDBPath returns the cache database location under DataDir
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("750ms", "5s") or plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if values := utils.ParseCSV(os.Getenv(key)); values != nil {
		return values
	}
	return defaultValue
}
