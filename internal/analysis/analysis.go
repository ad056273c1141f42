// Package analysis runs one token safety analysis: it dispatches the
// reputation and chain sources concurrently, waits for both, and aggregates
// their records into a verdict.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/tokensafe/internal/idgen"
	"github.com/mbd888/tokensafe/internal/logging"
	"github.com/mbd888/tokensafe/internal/metrics"
	"github.com/mbd888/tokensafe/internal/onchain"
	"github.com/mbd888/tokensafe/internal/risk"
	"github.com/mbd888/tokensafe/internal/traces"
	"github.com/mbd888/tokensafe/internal/units"
	"github.com/mbd888/tokensafe/internal/validation"
)

var (
	ErrUnsupportedChain = errors.New("analysis: unsupported chain")
	ErrInvalidAddress   = errors.New("analysis: invalid token address")
	ErrEmptyBatch       = errors.New("analysis: batch is empty")
	ErrBatchTooLarge    = errors.New("analysis: batch too large")
)

const (
	// MaxBatchSize caps tokens per batch request.
	MaxBatchSize = 20
	// batchConcurrency bounds analyses in flight for one batch.
	batchConcurrency = 4
	// DefaultBatchTimeout bounds a whole batch. Analyses still running when
	// it passes finish with degraded sources instead of holding the response.
	DefaultBatchTimeout = 60 * time.Second
)

// ReputationSource fetches the reputation record. It never fails; problems
// are reported inside the record.
type ReputationSource interface {
	Fetch(ctx context.Context, address string, chainID int64) risk.ReputationRecord
}

// ChainSource fetches the chain record. Fetch returns an error only for
// precondition violations.
type ChainSource interface {
	Fetch(ctx context.Context, address string, chainID int64) (risk.ChainRecord, error)
	Supports(chainID int64) bool
	Chains() []onchain.ChainInfo
}

// TokenInfo is the best-known identity of the token.
type TokenInfo struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    *int   `json:"decimals"`
	TotalSupply string `json:"total_supply"`
	// TotalSupplyFormatted is TotalSupply scaled by Decimals, when both
	// are known.
	TotalSupplyFormatted string `json:"total_supply_formatted,omitempty"`
}

// Sources carries both input records as they were aggregated.
type Sources struct {
	Reputation risk.ReputationRecord `json:"reputation"`
	Chain      risk.ChainRecord      `json:"chain"`
}

// Report is the response for one analysis. The verdict fields are inlined
// at the top level.
type Report struct {
	ID           string `json:"id"`
	TokenAddress string `json:"token_address"`
	ChainID      int64  `json:"chain_id"`
	ChainName    string `json:"chain_name"`

	risk.Verdict

	Token      TokenInfo `json:"token"`
	Sources    Sources   `json:"sources"`
	AnalyzedAt time.Time `json:"analyzed_at"`
	DurationMs int64     `json:"duration_ms"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Service runs analyses. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	reputation ReputationSource
	chain      ChainSource
	aggregator *risk.Aggregator
	observers  []func(*Report)
	now        func() time.Time

	batchTimeout time.Duration
}

// Option configures the service
type Option func(*Service)

// WithObserver registers a callback run after every completed analysis,
// e.g. to publish the verdict on the live feed.
func WithObserver(fn func(*Report)) Option {
	return func(s *Service) {
		s.observers = append(s.observers, fn)
	}
}

// WithBatchTimeout overrides DefaultBatchTimeout.
func WithBatchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.batchTimeout = d
		}
	}
}

// NewService creates an analysis service.
func NewService(reputation ReputationSource, chain ChainSource, aggregator *risk.Aggregator, opts ...Option) *Service {
	if aggregator == nil {
		aggregator = risk.NewAggregator(risk.DefaultWeights)
	}
	s := &Service{
		reputation: reputation,
		chain:      chain,
		aggregator: aggregator,
		now:        time.Now,

		batchTimeout: DefaultBatchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SupportedChains lists the chains analyses can run on.
func (s *Service) SupportedChains() []onchain.ChainInfo {
	return s.chain.Chains()
}

// Validate checks the request preconditions and returns the normalized
// address. Nothing is fetched.
func (s *Service) Validate(address string, chainID int64) (string, error) {
	if chainID <= 0 || !s.chain.Supports(chainID) {
		metrics.RejectedAnalysesTotal.WithLabelValues("unsupported_chain").Inc()
		return "", fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	addr, ok := validation.NormalizeAddress(address)
	if !ok {
		metrics.RejectedAnalysesTotal.WithLabelValues("invalid_address").Inc()
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return addr, nil
}

// Analyze produces the report for one token. The only errors are
// ErrUnsupportedChain and ErrInvalidAddress; source failures degrade the
// verdict instead.
func (s *Service) Analyze(ctx context.Context, address string, chainID int64) (*Report, error) {
	addr, err := s.Validate(address, chainID)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithToken(ctx, addr, chainID)
	ctx, span := traces.StartSpan(ctx, "analysis.Analyze",
		traces.TokenAddr(addr),
		traces.ChainID(chainID),
	)
	defer span.End()

	start := s.now()

	var (
		rep      risk.ReputationRecord
		chainRec risk.ChainRecord
		chainErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		rep = s.reputation.Fetch(ctx, addr, chainID)
		return nil
	})
	g.Go(func() error {
		chainRec, chainErr = s.chain.Fetch(ctx, addr, chainID)
		return nil
	})
	_ = g.Wait()

	if chainErr != nil {
		switch {
		case errors.Is(chainErr, onchain.ErrUnsupportedChain):
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
		case errors.Is(chainErr, onchain.ErrInvalidAddress):
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		default:
			chainRec = risk.ChainFailure(chainErr.Error())
		}
	}

	verdict := s.aggregator.Aggregate(rep, chainRec)
	elapsed := s.now().Sub(start)

	report := &Report{
		ID:           idgen.WithPrefix("rpt_"),
		TokenAddress: addr,
		ChainID:      chainID,
		ChainName:    chainName(s.chain.Chains(), chainID),
		Verdict:      *verdict,
		Token:        tokenInfo(rep, chainRec),
		Sources:      Sources{Reputation: rep, Chain: chainRec},
		AnalyzedAt:   start.UTC(),
		DurationMs:   elapsed.Milliseconds(),
		RequestID:    logging.RequestID(ctx),
	}

	span.SetAttributes(
		traces.SafetyScore(verdict.SafetyScore),
		traces.RiskLevel(string(verdict.RiskLevel)),
	)
	metrics.AnalysesTotal.WithLabelValues(strconv.FormatInt(chainID, 10), string(verdict.RiskLevel)).Inc()
	metrics.SafetyScores.Observe(float64(verdict.SafetyScore))
	if verdict.IsHoneypot {
		metrics.HoneypotsDetectedTotal.Inc()
	}

	logging.L(ctx).Info("token analyzed",
		"safety_score", verdict.SafetyScore,
		"risk_level", verdict.RiskLevel,
		"confidence", verdict.Confidence,
		"reputation_status", rep.Status,
		"chain_status", chainRec.Status,
		"duration_ms", report.DurationMs,
	)

	for _, fn := range s.observers {
		fn(report)
	}
	return report, nil
}

// TokenRequest names one token to analyze.
type TokenRequest struct {
	TokenAddress string `json:"token_address"`
	ChainID      int64  `json:"chain_id"`
}

// BatchItem is one entry of a batch result, in request order. Exactly one
// of Report and Error is set.
type BatchItem struct {
	TokenAddress string  `json:"token_address"`
	ChainID      int64   `json:"chain_id"`
	Report       *Report `json:"report,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// AnalyzeBatch analyzes up to MaxBatchSize tokens with bounded concurrency.
// A rejected token does not fail the batch; its error is reported in place.
// The whole batch shares one deadline of the service's batch timeout.
func (s *Service) AnalyzeBatch(ctx context.Context, tokens []TokenRequest) ([]BatchItem, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(tokens) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d tokens, maximum is %d", ErrBatchTooLarge, len(tokens), MaxBatchSize)
	}

	ctx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	defer cancel()

	items := make([]BatchItem, len(tokens))
	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, tok := range tokens {
		items[i] = BatchItem{TokenAddress: tok.TokenAddress, ChainID: tok.ChainID}
		g.Go(func() error {
			report, err := s.Analyze(ctx, tok.TokenAddress, tok.ChainID)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			items[i].Report = report
			return nil
		})
	}
	_ = g.Wait()
	return items, nil
}

func chainName(chains []onchain.ChainInfo, id int64) string {
	for _, c := range chains {
		if c.ChainID == id {
			return c.Name
		}
	}
	return ""
}

// tokenInfo prefers what the contract itself reports and falls back to the
// reputation source's token metadata.
func tokenInfo(rep risk.ReputationRecord, chain risk.ChainRecord) TokenInfo {
	info := TokenInfo{
		Name:        chain.Name,
		Symbol:      chain.Symbol,
		Decimals:    chain.Decimals,
		TotalSupply: chain.TotalSupply,
	}
	if info.TotalSupply != "" && info.Decimals != nil {
		info.TotalSupplyFormatted = units.Human(info.TotalSupply, *info.Decimals)
	}
	if info.Name == "" && rep.OK() {
		info.Name = rep.TokenName
	}
	if info.Symbol == "" && rep.OK() {
		info.Symbol = rep.TokenSymbol
	}
	return info
}
