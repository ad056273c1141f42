package onchain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/tokensafe/internal/circuitbreaker"
	"github.com/mbd888/tokensafe/internal/logging"
	"github.com/mbd888/tokensafe/internal/metrics"
	"github.com/mbd888/tokensafe/internal/retry"
	"github.com/mbd888/tokensafe/internal/risk"
	"github.com/mbd888/tokensafe/internal/traces"
	"github.com/mbd888/tokensafe/internal/validation"
)

// Defaults for Config fields left at zero.
const (
	DefaultProbeTimeout = 5 * time.Second
	DefaultCodeTimeout  = 10 * time.Second
	DefaultMaxRetries   = 2
	DefaultRetryDelay   = 500 * time.Millisecond
)

// Config for the chain source.
type Config struct {
	// ProbeTimeout bounds each interface call.
	ProbeTimeout time.Duration
	// CodeTimeout bounds one bytecode fetch attempt.
	CodeTimeout time.Duration
	// MaxRetries is the number of extra bytecode fetch attempts.
	MaxRetries int
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.CodeTimeout <= 0 {
		c.CodeTimeout = DefaultCodeTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// BreakerKey is the circuit breaker key for a chain's RPC endpoint.
func BreakerKey(chainID int64) string {
	return "rpc:" + strconv.FormatInt(chainID, 10)
}

// Source produces chain records. It is safe for concurrent use.
type Source struct {
	registry *Registry
	cfg      Config
	breaker  *circuitbreaker.Breaker
}

// Option configures the source
type Option func(*Source)

// WithBreaker guards each chain's endpoint with a circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(s *Source) {
		s.breaker = b
	}
}

// NewSource creates a chain source backed by registry.
func NewSource(registry *Registry, cfg Config, opts ...Option) *Source {
	s := &Source{
		registry: registry,
		cfg:      cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Supports reports whether chainID has a registered endpoint.
func (s *Source) Supports(chainID int64) bool {
	return s.registry.Supports(chainID)
}

// Chains lists the chains the source can read.
func (s *Source) Chains() []ChainInfo {
	return s.registry.Chains()
}

// Fetch reads the token contract at address on chainID.
//
// The only errors returned are ErrUnsupportedChain and ErrInvalidAddress,
// both checked before any RPC call. Every RPC problem is reported inside the
// returned record.
func (s *Source) Fetch(ctx context.Context, address string, chainID int64) (risk.ChainRecord, error) {
	rd, err := s.registry.Reader(chainID)
	if err != nil {
		return risk.ChainRecord{}, err
	}
	addr, ok := validation.NormalizeAddress(address)
	if !ok {
		return risk.ChainRecord{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	token := common.HexToAddress(addr)
	ctx = logging.WithToken(ctx, addr, chainID)

	ctx, span := traces.StartSpan(ctx, "onchain.Fetch",
		traces.Source(string(risk.SourceChain)),
		traces.TokenAddr(addr),
		traces.ChainID(chainID),
	)
	defer span.End()

	start := time.Now()
	rec, ferr := s.read(ctx, rd, token, chainID)
	metrics.SourceDuration.WithLabelValues(string(risk.SourceChain)).Observe(time.Since(start).Seconds())

	if ferr != nil {
		traces.Fail(span, ferr)
		metrics.SourceResultsTotal.WithLabelValues(string(risk.SourceChain), string(risk.StatusError)).Inc()
		logging.L(ctx).Warn("chain source unavailable", "error", ferr)
		msg := fmt.Sprintf("chain read failed: %v", ferr)
		if errors.Is(ferr, circuitbreaker.ErrOpen) {
			msg = "chain read skipped: " + ferr.Error()
		}
		return risk.ChainFailure(msg), nil
	}

	metrics.SourceResultsTotal.WithLabelValues(string(risk.SourceChain), string(risk.StatusOK)).Inc()
	return rec, nil
}

func (s *Source) read(ctx context.Context, rd ContractReader, token common.Address, chainID int64) (risk.ChainRecord, error) {
	code, err := s.codeAt(ctx, rd, token, chainID)
	if err != nil {
		return risk.ChainRecord{}, err
	}

	if len(code) == 0 {
		return risk.ChainRecord{
			Outcome: risk.Outcome{
				Source:     risk.SourceChain,
				Status:     risk.StatusOK,
				RiskScore:  100,
				IsHoneypot: risk.Unknown,
			},
			IsContract:  false,
			ProbeErrors: map[string]string{},
		}, nil
	}

	p := s.probe(ctx, rd, token)
	for i, perr := range p.errs {
		if perr != nil {
			metrics.ProbeFailuresTotal.WithLabelValues(probeNames[i]).Inc()
		}
	}

	return buildRecord(len(code), p), nil
}

// codeAt fetches deployed bytecode with per-attempt timeouts and retries,
// behind the chain's circuit breaker.
func (s *Source) codeAt(ctx context.Context, rd ContractReader, token common.Address, chainID int64) ([]byte, error) {
	policy := retry.Policy{
		MaxAttempts: s.cfg.MaxRetries + 1,
		BaseDelay:   s.cfg.RetryDelay,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			metrics.UpstreamRetriesTotal.WithLabelValues(string(risk.SourceChain)).Inc()
			logging.L(ctx).Info("retrying bytecode fetch",
				"attempt", attempt+1,
				"wait_ms", wait.Milliseconds(),
				"error", err,
			)
		},
	}

	var code []byte
	fetch := func() error {
		return policy.Do(ctx, func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, s.cfg.CodeTimeout)
			defer cancel()
			c, err := rd.CodeAt(cctx, token, nil)
			if err != nil {
				return err
			}
			code = c
			return nil
		})
	}

	if s.breaker == nil {
		return code, fetch()
	}
	err := s.breaker.ExecuteCtx(ctx, BreakerKey(chainID), fetch)
	return code, err
}

// probe runs the five interface calls concurrently. A failing or slow call
// never cancels the others; each is bounded by ProbeTimeout.
func (s *Source) probe(ctx context.Context, rd ContractReader, token common.Address) *probeResults {
	p := &probeResults{}
	var g errgroup.Group

	run := func(idx int, fn func(ctx context.Context) error) {
		g.Go(func() error {
			pctx, span := traces.StartSpan(ctx, "onchain.probe", traces.Probe(probeNames[idx]))
			defer span.End()
			pctx, cancel := context.WithTimeout(pctx, s.cfg.ProbeTimeout)
			defer cancel()
			if err := fn(pctx); err != nil {
				traces.Fail(span, err)
				p.errs[idx] = err
			}
			return nil
		})
	}

	run(idxName, func(ctx context.Context) (err error) {
		p.name, err = readString(ctx, rd, token, ProbeName)
		return err
	})
	run(idxSymbol, func(ctx context.Context) (err error) {
		p.symbol, err = readString(ctx, rd, token, ProbeSymbol)
		return err
	})
	run(idxDecimals, func(ctx context.Context) (err error) {
		p.decimals, err = readUint(ctx, rd, token, ProbeDecimals)
		return err
	})
	run(idxTotalSupply, func(ctx context.Context) (err error) {
		p.totalSupply, err = readUint(ctx, rd, token, ProbeTotalSupply)
		return err
	})
	run(idxBalanceOf, func(ctx context.Context) (err error) {
		p.balance, err = readUint(ctx, rd, token, ProbeBalanceOf, balanceProbeHolder)
		return err
	})

	_ = g.Wait()
	return p
}

// buildRecord derives the checks and technical score from the probes.
func buildRecord(codeSize int, p *probeResults) risk.ChainRecord {
	rec := risk.ChainRecord{
		Outcome: risk.Outcome{
			Source:     risk.SourceChain,
			Status:     risk.StatusOK,
			IsHoneypot: risk.Unknown,
		},
		IsContract:  true,
		CodeSize:    codeSize,
		Name:        p.name,
		Symbol:      p.symbol,
		ProbeErrors: p.errorMap(),
	}

	if p.decimals != nil && p.decimals.IsInt64() {
		d := int(p.decimals.Int64())
		rec.Decimals = &d
	}
	if p.totalSupply != nil {
		rec.TotalSupply = p.totalSupply.String()
	}

	rec.Checks = risk.ChainChecks{
		HasName:            p.errs[idxName] == nil && p.name != "",
		HasSymbol:          p.errs[idxSymbol] == nil && p.symbol != "",
		ValidDecimals:      rec.Decimals != nil && *rec.Decimals >= 0 && *rec.Decimals <= MaxDecimals,
		HasSupply:          p.totalSupply != nil && p.totalSupply.Sign() > 0,
		BalanceCallOK:      p.errs[idxBalanceOf] == nil,
		ReasonableCodeSize: codeSize >= risk.MinReasonableCodeSize && codeSize <= risk.MaxReasonableCodeSize,
	}
	rec.IsERC20 = Compliant(rec.Checks)
	rec.RiskScore = TechnicalScore(rec.Checks, rec.IsERC20, codeSize)
	return rec
}
