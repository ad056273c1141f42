package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "CHAIN_RPC_URLS", "")
	setEnv(t, "PAYMENT_RECIPIENT", "")
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultHoneypotAPIURL, cfg.HoneypotAPIURL)
	assert.Equal(t, DefaultHoneypotTimeout, cfg.HoneypotTimeout)
	assert.Equal(t, DefaultHoneypotMaxRetries, cfg.HoneypotMaxRetries)
	assert.Equal(t, DefaultRPCCallTimeout, cfg.RPCCallTimeout)
	assert.InDelta(t, 0.6, cfg.WeightReputation, 1e-9)
	assert.InDelta(t, 0.4, cfg.WeightChain, 1e-9)
	assert.False(t, cfg.PaymentsEnabled())

	require.Len(t, cfg.Chains, 3)
	assert.Equal(t, int64(1), cfg.Chains[0].ID)
	assert.Equal(t, "ethereum", cfg.Chains[0].Name)
	assert.Equal(t, int64(56), cfg.Chains[1].ID)
	assert.Equal(t, int64(8453), cfg.Chains[2].ID)
	assert.Equal(t, "base", cfg.Chains[2].Name)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "CHAIN_RPC_URLS", "137=https://polygon-rpc.com")
	setEnv(t, "HONEYPOT_TIMEOUT", "2500ms")
	setEnv(t, "HONEYPOT_RETRY_DELAY", "3")
	setEnv(t, "HONEYPOT_MAX_RETRIES", "5")
	setEnv(t, "WEIGHT_REPUTATION", "1")
	setEnv(t, "WEIGHT_CHAIN", "1")
	setEnv(t, "PAYMENT_RECIPIENT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2500*time.Millisecond, cfg.HoneypotTimeout)
	assert.Equal(t, 3*time.Second, cfg.HoneypotRetryDelay)
	assert.Equal(t, 5, cfg.HoneypotMaxRetries)
	assert.InDelta(t, 1.0, cfg.WeightReputation, 1e-9)
	assert.Equal(t, []Chain{{ID: 137, Name: "polygon", RPCURL: "https://polygon-rpc.com"}}, cfg.Chains)
}

func TestLoad_BadChainList(t *testing.T) {
	setEnv(t, "CHAIN_RPC_URLS", "ethereum=https://eth.llamarpc.com")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid chain id")
}

func TestLoad_PaymentsRequireValidRecipient(t *testing.T) {
	setEnv(t, "CHAIN_RPC_URLS", "")
	setEnv(t, "PAYMENT_RECIPIENT", "not-an-address")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "PAYMENT_RECIPIENT")
}

func TestParseChains(t *testing.T) {
	chains, err := ParseChains(" 56=https://bsc , 1=https://eth,,")
	require.NoError(t, err)
	assert.Equal(t, []Chain{
		{ID: 1, Name: "ethereum", RPCURL: "https://eth"},
		{ID: 56, Name: "bsc", RPCURL: "https://bsc"},
	}, chains)

	chains, err = ParseChains("")
	require.NoError(t, err)
	assert.Empty(t, chains)

	tests := []struct {
		raw     string
		wantErr string
	}{
		{"1", "must be <chainID>=<url>"},
		{"0=https://x", "invalid chain id"},
		{"-5=https://x", "invalid chain id"},
		{"1=", "empty url"},
		{"1=https://a,1=https://b", "configured twice"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := ParseChains(tt.raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			HoneypotAPIURL:   DefaultHoneypotAPIURL,
			Chains:           []Chain{{ID: 1, Name: "ethereum", RPCURL: "https://eth"}},
			WeightReputation: 0.6,
			WeightChain:      0.4,
			USDCContract:     DefaultUSDCContract,
			PaymentRPCURL:    DefaultPaymentRPCURL,
			PaymentPrice:     DefaultPaymentPrice,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"no chains", func(c *Config) { c.Chains = nil }, "at least one chain"},
		{"missing honeypot url", func(c *Config) { c.HoneypotAPIURL = "" }, "HONEYPOT_API_URL is required"},
		{"negative retries", func(c *Config) { c.HoneypotMaxRetries = -1 }, "HONEYPOT_MAX_RETRIES"},
		{"negative weight", func(c *Config) { c.WeightChain = -0.1 }, "must not be negative"},
		{"zero weights", func(c *Config) { c.WeightReputation, c.WeightChain = 0, 0 }, "both be zero"},
		{"payments with valid recipient", func(c *Config) {
			c.PaymentRecipient = "0x1234567890123456789012345678901234567890"
		}, ""},
		{"payments with bad usdc contract", func(c *Config) {
			c.PaymentRecipient = "0x1234567890123456789012345678901234567890"
			c.USDCContract = "0x123"
		}, "USDC_CONTRACT"},
		{"payments with zero price", func(c *Config) {
			c.PaymentRecipient = "0x1234567890123456789012345678901234567890"
			c.PaymentPrice = "0.00"
		}, "PAYMENT_PRICE"},
		{"payments with malformed price", func(c *Config) {
			c.PaymentRecipient = "0x1234567890123456789012345678901234567890"
			c.PaymentPrice = "$1"
		}, "PAYMENT_PRICE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestChainName(t *testing.T) {
	assert.Equal(t, "bsc", ChainName(56))
	assert.Equal(t, "chain-999", ChainName(999))
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvFloatAndDuration(t *testing.T) {
	setEnv(t, "TEST_FLOAT", "0.75")
	setEnv(t, "TEST_NAN", "NaN")
	setEnv(t, "TEST_DUR_BAD", "soon")
	setEnv(t, "TEST_DUR_NEG", "-1s")

	assert.InDelta(t, 0.75, getEnvFloat("TEST_FLOAT", 0), 1e-9)
	assert.InDelta(t, 0.5, getEnvFloat("TEST_NAN", 0.5), 1e-9)
	assert.Equal(t, time.Second, getEnvDuration("TEST_DUR_BAD", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_DUR_NEG", time.Second))
}
