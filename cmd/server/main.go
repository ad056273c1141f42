// TokenSafe - ERC-20 token safety analysis API
package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mbd888/tokensafe/internal/analysis"
	"github.com/mbd888/tokensafe/internal/circuitbreaker"
	"github.com/mbd888/tokensafe/internal/config"
	"github.com/mbd888/tokensafe/internal/health"
	"github.com/mbd888/tokensafe/internal/honeypot"
	"github.com/mbd888/tokensafe/internal/logging"
	"github.com/mbd888/tokensafe/internal/metrics"
	"github.com/mbd888/tokensafe/internal/onchain"
	"github.com/mbd888/tokensafe/internal/paywall"
	"github.com/mbd888/tokensafe/internal/realtime"
	"github.com/mbd888/tokensafe/internal/risk"
	"github.com/mbd888/tokensafe/internal/server"
	"github.com/mbd888/tokensafe/internal/traces"
	"github.com/mbd888/tokensafe/internal/wallet"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting tokensafe",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
		"chains", len(cfg.Chains),
		"payments", cfg.PaymentsEnabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, Version, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	go metrics.StartRuntimeCollector(ctx, 15*time.Second)

	breaker := circuitbreaker.New(breakerThreshold, breakerCooldown)
	breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker transition", "key", key, "from", from.String(), "to", to.String())
	})

	// Reputation source
	reputation := honeypot.New(honeypot.Config{
		BaseURL:    cfg.HoneypotAPIURL,
		APIKey:     cfg.HoneypotAPIKey,
		Timeout:    cfg.HoneypotTimeout,
		MaxRetries: cfg.HoneypotMaxRetries,
		RetryDelay: cfg.HoneypotRetryDelay,
	}, honeypot.WithBreaker(breaker))

	// Chain source
	endpoints := make([]onchain.Endpoint, 0, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		endpoints = append(endpoints, onchain.Endpoint{ChainID: ch.ID, Name: ch.Name, URL: ch.RPCURL})
	}
	registry, err := onchain.Dial(ctx, endpoints, logger)
	if err != nil {
		logger.Error("failed to connect to rpc endpoints", "error", err)
		os.Exit(1)
	}
	chain := onchain.NewSource(registry, onchain.Config{
		ProbeTimeout: cfg.RPCCallTimeout,
		CodeTimeout:  cfg.RPCTimeout,
		MaxRetries:   onchain.DefaultMaxRetries,
	}, onchain.WithBreaker(breaker))

	hub := realtime.NewHub(logger)

	svc := analysis.NewService(reputation, chain,
		risk.NewAggregator(risk.Weights{Reputation: cfg.WeightReputation, Chain: cfg.WeightChain}),
		analysis.WithObserver(server.PublishVerdicts(hub)),
	)

	// Health checks
	checks := health.NewRegistry()
	for _, ch := range registry.Chains() {
		id := ch.ChainID
		name := "rpc:" + strconv.FormatInt(id, 10)
		checks.Register(name, health.PingChecker(name, func(ctx context.Context) error {
			return registry.PingChain(ctx, id)
		}))
	}
	checks.RegisterOptional("reputation", health.HTTPChecker("reputation",
		&http.Client{Timeout: health.DefaultCheckTimeout}, cfg.HoneypotAPIURL))
	checks.RegisterOptional("circuits", health.BreakerChecker("circuits", breaker))

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithHealth(checks),
		server.WithHub(hub),
		server.WithBreaker(breaker),
		server.WithCloser("rpc", func() error { registry.Close(); return nil }),
		server.WithCloser("tracing", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdownTraces(ctx)
		}),
	}

	// Payment gate
	if cfg.PaymentsEnabled() {
		verifier, err := wallet.Dial(ctx, cfg.PaymentRPCURL, cfg.PaymentRecipient, cfg.USDCContract)
		if err != nil {
			logger.Error("failed to connect payment verifier", "error", err)
			os.Exit(1)
		}
		gate := paywall.New(paywall.Config{
			Verifier:     verifier,
			DefaultPrice: cfg.PaymentPrice,
			Chain:        config.ChainName(cfg.PaymentChainID),
			ChainID:      cfg.PaymentChainID,
			Contract:     cfg.USDCContract,
		})
		opts = append(opts,
			server.WithPaywall(gate),
			server.WithCloser("wallet", verifier.Close),
		)
		logger.Info("payment gate enabled",
			"price", cfg.PaymentPrice,
			"recipient", verifier.Address(),
			"chain_id", cfg.PaymentChainID,
		)
	}

	// Create and run server
	srv, err := server.New(cfg, svc, opts...)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
