// Package onchain is the chain source: it reads a token contract directly
// over JSON-RPC and turns the result into a risk.ChainRecord.
package onchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnsupportedChain is returned when no RPC endpoint is registered
	// for the requested chain id. It is a caller error, not a source failure.
	ErrUnsupportedChain = errors.New("onchain: unsupported chain")

	// ErrInvalidAddress is returned for a token address that is not 20 bytes of hex.
	ErrInvalidAddress = errors.New("onchain: invalid token address")

	// ErrChainMismatch is returned by Dial when the endpoint reports a
	// different chain id than the one it was configured for.
	ErrChainMismatch = errors.New("onchain: endpoint chain id mismatch")
)

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// ContractReader is the read-only subset of the go-ethereum client used by
// the chain source. *ethclient.Client satisfies it.
type ContractReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

var _ ContractReader = (*ethclient.Client)(nil)

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Endpoint configures one chain.
type Endpoint struct {
	ChainID int64
	Name    string
	URL     string
}

// ChainInfo describes a registered chain.
type ChainInfo struct {
	ChainID int64  `json:"chain_id"`
	Name    string `json:"name"`
}

// Registry owns one long-lived reader per chain id. It is built once at
// startup and shared by every request.
type Registry struct {
	mu      sync.RWMutex
	readers map[int64]ContractReader
	names   map[int64]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		readers: make(map[int64]ContractReader),
		names:   make(map[int64]string),
	}
}

// Register adds or replaces the reader for a chain.
func (r *Registry) Register(chainID int64, name string, reader ContractReader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.readers[chainID]; ok && old != reader {
		old.Close()
	}
	if name == "" {
		name = fmt.Sprintf("chain-%d", chainID)
	}
	r.readers[chainID] = reader
	r.names[chainID] = name
}

// Reader returns the reader for chainID or ErrUnsupportedChain.
func (r *Registry) Reader(chainID int64) (ContractReader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rd, ok := r.readers[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	return rd, nil
}

// Supports reports whether chainID has a registered reader.
func (r *Registry) Supports(chainID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.readers[chainID]
	return ok
}

// Chains lists registered chains ordered by id.
func (r *Registry) Chains() []ChainInfo {
	r.mu.RLock()
	out := make([]ChainInfo, 0, len(r.readers))
	for id := range r.readers {
		out = append(out, ChainInfo{ChainID: id, Name: r.names[id]})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// PingChain asks the chain's endpoint for its latest block.
func (r *Registry) PingChain(ctx context.Context, chainID int64) error {
	rd, err := r.Reader(chainID)
	if err != nil {
		return err
	}
	if _, err := rd.BlockNumber(ctx); err != nil {
		return fmt.Errorf("%s (%d): %w", r.name(chainID), chainID, err)
	}
	return nil
}

func (r *Registry) name(chainID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[chainID]
}

// Close closes every reader.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rd := range r.readers {
		rd.Close()
		delete(r.readers, id)
		delete(r.names, id)
	}
}

// StartupCheckTimeout bounds the chain id check Dial makes per endpoint.
const StartupCheckTimeout = 10 * time.Second

// Dial connects to every endpoint and registers it. An endpoint whose
// reported chain id differs from its configured one is a hard error; an
// endpoint that cannot be reached yet is registered anyway and logged.
func Dial(ctx context.Context, endpoints []Endpoint, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()
	for _, ep := range endpoints {
		client, err := ethclient.DialContext(ctx, ep.URL)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("onchain: dial chain %d: %w", ep.ChainID, err)
		}

		if err := verifyChainID(ctx, client, ep.ChainID, StartupCheckTimeout); err != nil {
			if errors.Is(err, ErrChainMismatch) {
				client.Close()
				reg.Close()
				return nil, err
			}
			logger.Warn("rpc endpoint not reachable at startup",
				"chain_id", ep.ChainID,
				"chain", ep.Name,
				"error", err,
			)
		}

		reg.Register(ep.ChainID, ep.Name, client)
		logger.Info("rpc endpoint registered", "chain_id", ep.ChainID, "chain", ep.Name)
	}
	return reg, nil
}

func verifyChainID(ctx context.Context, rd ContractReader, want int64, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	got, err := rd.ChainID(ctx)
	if err != nil {
		return err
	}
	if !got.IsInt64() || got.Int64() != want {
		return fmt.Errorf("%w: configured %d, endpoint reports %s", ErrChainMismatch, want, got)
	}
	return nil
}
