// Package config loads LiqWatch settings from LIQ_* environment variables
// and an optional YAML file.
package config

import (
	"LiqWatch/internal/chain"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Chain
	RPCURL              string
	PoolAddress         string
	DataProviderAddress string
	OracleAddress       string
	PriceFeedAddress    string
	RPCRateLimit        float64 // requests per second, 0 = unlimited
	RPCBurst            int
	RPCConcurrency      int
	PriceMaxAge         time.Duration

	// Explorer
	EtherscanURL    string
	EtherscanAPIKey string
	ExplorerTimeout time.Duration

	// Postgres
	PostgresURL   string
	MigrationsDir string

	// NATS
	NATSURL string

	// gRPC/HTTP/Metrics
	GRPCAddr    string
	HTTPAddr    string
	MetricsAddr string
	CORSOrigins []string

	// Monitor
	RefreshInterval   time.Duration
	DetailedBreakdown bool
	AlertThreshold    float64

	// Channels and workers
	PersistChanSize     int
	PersistBatchSize    int
	PersistFlushTimeout time.Duration
	HistoryRetention    time.Duration
	PublishChanSize     int
	AlertLRUCapacity    int

	// From the config file
	Reserves      []chain.Reserve
	SeedAddresses []SeedAddress
}

// SeedAddress is a watch-list entry loaded at startup.
type SeedAddress struct {
	Address string `yaml:"address"`
	Label   string `yaml:"label"`
}

// fileConfig is the YAML layout. Scalar fields override the environment
// when set.
type fileConfig struct {
	RefreshInterval string          `yaml:"refresh_interval"`
	AlertThreshold  float64         `yaml:"alert_threshold"`
	Detailed        *bool           `yaml:"detailed_breakdown"`
	Reserves        []chain.Reserve `yaml:"reserves"`
	Addresses       []SeedAddress   `yaml:"addresses"`
}

// ValidationError names the first invalid field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

func DefaultConfig() Config {
	return Config{
		RPCURL:              envOrDefault("LIQ_RPC_URL", "https://eth.llamarpc.com"),
		PoolAddress:         envOrDefault("LIQ_POOL_ADDRESS", chain.DefaultPoolAddress),
		DataProviderAddress: envOrDefault("LIQ_DATA_PROVIDER_ADDRESS", chain.DefaultDataProviderAddress),
		OracleAddress:       envOrDefault("LIQ_ORACLE_ADDRESS", chain.DefaultOracleAddress),
		PriceFeedAddress:    envOrDefault("LIQ_PRICE_FEED_ADDRESS", chain.DefaultETHUSDFeed),
		RPCRateLimit:        envFloatOrDefault("LIQ_RPC_RATE_LIMIT", 25),
		RPCBurst:            envIntOrDefault("LIQ_RPC_BURST", 10),
		RPCConcurrency:      envIntOrDefault("LIQ_RPC_CONCURRENCY", 8),
		PriceMaxAge:         envDurationOrDefault("LIQ_PRICE_MAX_AGE", 2*time.Hour),
		EtherscanURL:        envOrDefault("LIQ_ETHERSCAN_URL", "https://api.etherscan.io/api"),
		EtherscanAPIKey:     os.Getenv("LIQ_ETHERSCAN_API_KEY"),
		ExplorerTimeout:     envDurationOrDefault("LIQ_EXPLORER_TIMEOUT", 10*time.Second),
		PostgresURL:         os.Getenv("LIQ_POSTGRES_DSN"),
		MigrationsDir:       envOrDefault("LIQ_MIGRATIONS_DIR", "migrations"),
		NATSURL:             os.Getenv("LIQ_NATS_URL"),
		GRPCAddr:            envOrDefault("LIQ_GRPC_ADDR", ":9090"),
		HTTPAddr:            envOrDefault("LIQ_HTTP_ADDR", ":8080"),
		MetricsAddr:         envOrDefault("LIQ_METRICS_ADDR", ":9091"),
		CORSOrigins:         envList("LIQ_CORS_ORIGINS"),
		RefreshInterval:     envDurationOrDefault("LIQ_REFRESH_INTERVAL", 30*time.Second),
		DetailedBreakdown:   envBoolOrDefault("LIQ_DETAILED_BREAKDOWN", true),
		AlertThreshold:      envFloatOrDefault("LIQ_ALERT_THRESHOLD", 1.5),
		PersistChanSize:     envIntOrDefault("LIQ_PERSIST_CHAN_SIZE", 64),
		PersistBatchSize:    envIntOrDefault("LIQ_PERSIST_BATCH_SIZE", 10),
		PersistFlushTimeout: envDurationOrDefault("LIQ_PERSIST_FLUSH_TIMEOUT", time.Second),
		HistoryRetention:    envDurationOrDefault("LIQ_HISTORY_RETENTION", 30*24*time.Hour),
		PublishChanSize:     envIntOrDefault("LIQ_PUBLISH_CHAN_SIZE", 64),
		AlertLRUCapacity:    envIntOrDefault("LIQ_ALERT_LRU_CAPACITY", 10_000),
		Reserves:            chain.DefaultReserves(),
	}
}

// Load builds the configuration from the environment, applies
// LIQ_CONFIG_FILE if set, and validates the result.
func Load() (Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("LIQ_CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyFile merges a YAML file into cfg. ${VAR} references are expanded
// from the environment before parsing.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return c.ApplyYAML(data)
}

// ApplyYAML merges YAML content into cfg.
func (c *Config) ApplyYAML(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if fc.RefreshInterval != "" {
		d, err := time.ParseDuration(fc.RefreshInterval)
		if err != nil {
			return ValidationError{Field: "refresh_interval", Value: fc.RefreshInterval, Message: err.Error()}
		}
		c.RefreshInterval = d
	}
	if fc.AlertThreshold != 0 {
		c.AlertThreshold = fc.AlertThreshold
	}
	if fc.Detailed != nil {
		c.DetailedBreakdown = *fc.Detailed
	}
	if len(fc.Reserves) > 0 {
		c.Reserves = fc.Reserves
	}
	c.SeedAddresses = append(c.SeedAddresses, fc.Addresses...)
	return nil
}

// Validate returns the first invalid field.
func (c *Config) Validate() error {
	addrs := []struct {
		field, value string
	}{
		{"pool_address", c.PoolAddress},
		{"data_provider_address", c.DataProviderAddress},
		{"oracle_address", c.OracleAddress},
		{"price_feed_address", c.PriceFeedAddress},
	}
	for _, a := range addrs {
		if _, err := chain.ParseAddress(a.value); err != nil {
			return ValidationError{Field: a.field, Value: a.value, Message: "must be a 0x-prefixed 20-byte hex address"}
		}
	}

	if strings.TrimSpace(c.RPCURL) == "" {
		return ValidationError{Field: "rpc_url", Value: c.RPCURL, Message: "required"}
	}
	if c.RefreshInterval < time.Second {
		return ValidationError{Field: "refresh_interval", Value: c.RefreshInterval, Message: "must be at least 1s"}
	}
	if c.RPCRateLimit < 0 {
		return ValidationError{Field: "rpc_rate_limit", Value: c.RPCRateLimit, Message: "must not be negative"}
	}
	if c.AlertThreshold <= 0 {
		return ValidationError{Field: "alert_threshold", Value: c.AlertThreshold, Message: "must be positive"}
	}
	if c.PersistBatchSize <= 0 {
		return ValidationError{Field: "persist_batch_size", Value: c.PersistBatchSize, Message: "must be positive"}
	}
	if c.AlertLRUCapacity <= 0 {
		return ValidationError{Field: "alert_lru_capacity", Value: c.AlertLRUCapacity, Message: "must be positive"}
	}

	seen := make(map[string]bool, len(c.Reserves))
	for i, r := range c.Reserves {
		if r.Symbol == "" {
			return ValidationError{Field: fmt.Sprintf("reserves[%d].symbol", i), Message: "required"}
		}
		if _, err := chain.ParseAddress(r.Address); err != nil {
			return ValidationError{Field: fmt.Sprintf("reserves[%d].address", i), Value: r.Address, Message: "invalid address"}
		}
		key := strings.ToLower(r.Address)
		if seen[key] {
			return ValidationError{Field: fmt.Sprintf("reserves[%d].address", i), Value: r.Address, Message: "duplicate reserve"}
		}
		seen[key] = true
	}

	for i, s := range c.SeedAddresses {
		if _, err := chain.ParseAddress(s.Address); err != nil {
			return ValidationError{Field: fmt.Sprintf("addresses[%d].address", i), Value: s.Address, Message: "invalid address"}
		}
	}
	return nil
}

// String renders the configuration with secrets masked.
func (c Config) String() string {
	masked := c
	masked.EtherscanAPIKey = maskString(c.EtherscanAPIKey)
	masked.PostgresURL = maskString(c.PostgresURL)
	masked.RPCURL = maskString(c.RPCURL)
	return fmt.Sprintf("rpc=%s pool=%s feed=%s refresh=%s detailed=%t grpc=%s http=%s metrics=%s postgres=%s nats=%s reserves=%d seeds=%d etherscan_key=%s",
		masked.RPCURL, masked.PoolAddress, masked.PriceFeedAddress, masked.RefreshInterval, masked.DetailedBreakdown,
		masked.GRPCAddr, masked.HTTPAddr, masked.MetricsAddr, masked.PostgresURL, masked.NATSURL,
		len(masked.Reserves), len(masked.SeedAddresses), masked.EtherscanAPIKey)
}

// --- Helpers ---

func maskString(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloatOrDefault(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envBoolOrDefault(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
