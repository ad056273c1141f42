// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbd888/tokensafe/internal/validation"
)

// Chain is one RPC endpoint the chain source may read from.
type Chain struct {
	ID     int64
	Name   string
	RPCURL string
}

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Reputation source
	HoneypotAPIURL     string
	HoneypotAPIKey     string // optional
	HoneypotTimeout    time.Duration
	HoneypotMaxRetries int
	HoneypotRetryDelay time.Duration

	// Chain source
	Chains         []Chain
	RPCCallTimeout time.Duration // per interface probe
	RPCTimeout     time.Duration // per bytecode fetch attempt

	// Aggregation weights; normalized by the aggregator
	WeightReputation float64
	WeightChain      float64

	// Security
	RateLimitRPM int
	AdminSecret  string

	// Tracing
	OTLPEndpoint string

	// Payment gate (disabled unless PaymentRecipient is set)
	PaymentRecipient string
	PaymentPrice     string // USDC, e.g. "0.01"
	PaymentChainID   int64
	PaymentRPCURL    string
	USDCContract     string
}

const (
	DefaultPort      = "8080"
	DefaultEnv       = "development"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultRateLimit = 60

	DefaultHoneypotAPIURL     = "https://api.honeypot.is/v2/IsHoneypot"
	DefaultHoneypotTimeout    = 10 * time.Second
	DefaultHoneypotMaxRetries = 2
	DefaultHoneypotRetryDelay = time.Second

	DefaultRPCCallTimeout = 5 * time.Second
	DefaultRPCTimeout     = 10 * time.Second

	DefaultWeightReputation = 0.6
	DefaultWeightChain      = 0.4

	// Base mainnet USDC
	DefaultPaymentChainID = 8453
	DefaultPaymentRPCURL  = "https://mainnet.base.org"
	DefaultUSDCContract   = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	DefaultPaymentPrice   = "0.01"
)

// DefaultChainRPCURLs is used when CHAIN_RPC_URLS is not set.
const DefaultChainRPCURLs = "1=https://eth.llamarpc.com,56=https://bsc-dataseed.binance.org,8453=https://mainnet.base.org"

var chainNames = map[int64]string{
	1:     "ethereum",
	10:    "optimism",
	56:    "bsc",
	137:   "polygon",
	8453:  "base",
	42161: "arbitrum",
	43114: "avalanche",
}

// ChainName returns a human-readable name for a known chain id.
func ChainName(id int64) string {
	if name, ok := chainNames[id]; ok {
		return name
	}
	return fmt.Sprintf("chain-%d", id)
}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	chains, err := ParseChains(getEnv("CHAIN_RPC_URLS", DefaultChainRPCURLs))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		HoneypotAPIURL:     getEnv("HONEYPOT_API_URL", DefaultHoneypotAPIURL),
		HoneypotAPIKey:     os.Getenv("HONEYPOT_API_KEY"),
		HoneypotTimeout:    getEnvDuration("HONEYPOT_TIMEOUT", DefaultHoneypotTimeout),
		HoneypotMaxRetries: int(getEnvInt64("HONEYPOT_MAX_RETRIES", DefaultHoneypotMaxRetries)),
		HoneypotRetryDelay: getEnvDuration("HONEYPOT_RETRY_DELAY", DefaultHoneypotRetryDelay),
		Chains:             chains,
		RPCCallTimeout:     getEnvDuration("RPC_CALL_TIMEOUT", DefaultRPCCallTimeout),
		RPCTimeout:         getEnvDuration("RPC_TIMEOUT", DefaultRPCTimeout),
		WeightReputation:   getEnvFloat("WEIGHT_REPUTATION", DefaultWeightReputation),
		WeightChain:        getEnvFloat("WEIGHT_CHAIN", DefaultWeightChain),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		AdminSecret:        os.Getenv("ADMIN_SECRET"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PaymentRecipient:   os.Getenv("PAYMENT_RECIPIENT"),
		PaymentPrice:       getEnv("PAYMENT_PRICE", DefaultPaymentPrice),
		PaymentChainID:     getEnvInt64("PAYMENT_CHAIN_ID", DefaultPaymentChainID),
		PaymentRPCURL:      getEnv("PAYMENT_RPC_URL", DefaultPaymentRPCURL),
		USDCContract:       getEnv("USDC_CONTRACT", DefaultUSDCContract),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("CHAIN_RPC_URLS must configure at least one chain")
	}
	if c.HoneypotAPIURL == "" {
		return fmt.Errorf("HONEYPOT_API_URL is required")
	}
	if c.HoneypotMaxRetries < 0 {
		return fmt.Errorf("HONEYPOT_MAX_RETRIES must not be negative")
	}
	if c.WeightReputation < 0 || c.WeightChain < 0 {
		return fmt.Errorf("WEIGHT_REPUTATION and WEIGHT_CHAIN must not be negative")
	}
	if c.WeightReputation+c.WeightChain <= 0 {
		return fmt.Errorf("WEIGHT_REPUTATION and WEIGHT_CHAIN must not both be zero")
	}

	if c.PaymentsEnabled() {
		if !validation.IsValidEthAddress(c.PaymentRecipient) {
			return fmt.Errorf("PAYMENT_RECIPIENT must be a 0x-prefixed 20-byte address")
		}
		if !validation.IsValidEthAddress(c.USDCContract) {
			return fmt.Errorf("USDC_CONTRACT must be a 0x-prefixed 20-byte address")
		}
		if verr := validation.ValidAmount("PAYMENT_PRICE", c.PaymentPrice)(); verr != nil || c.PaymentPrice == "" {
			return fmt.Errorf("PAYMENT_PRICE must be a positive USDC amount, got %q", c.PaymentPrice)
		}
		if c.PaymentRPCURL == "" {
			return fmt.Errorf("PAYMENT_RPC_URL is required when payments are enabled")
		}
	}

	return nil
}

// PaymentsEnabled reports whether the analysis routes are paywalled.
func (c *Config) PaymentsEnabled() bool {
	return c.PaymentRecipient != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ParseChains parses "1=https://a,56=https://b" into chains ordered by id.
// Known chain ids get their common name.
func ParseChains(raw string) ([]Chain, error) {
	seen := make(map[int64]bool)
	var chains []Chain
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, url, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("CHAIN_RPC_URLS: entry %q must be <chainID>=<url>", part)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("CHAIN_RPC_URLS: invalid chain id %q", idStr)
		}
		url = strings.TrimSpace(url)
		if url == "" {
			return nil, fmt.Errorf("CHAIN_RPC_URLS: empty url for chain %d", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("CHAIN_RPC_URLS: chain %d configured twice", id)
		}
		seen[id] = true
		chains = append(chains, Chain{ID: id, Name: ChainName(id), RPCURL: url})
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].ID < chains[j].ID })
	return chains, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("750ms") or plain seconds ("10").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
