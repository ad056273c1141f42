// Package wallet verifies USDC payments made to the service's receiving
// address. It never holds a key and never sends transactions.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/tokensafe/internal/units"
)

// -----------------------------------------------------------------------------
// Errors - typed errors for programmatic handling
// -----------------------------------------------------------------------------

var (
	ErrInvalidAddress = errors.New("wallet: invalid address")
	ErrInvalidAmount  = errors.New("wallet: invalid amount")
	ErrInvalidTxHash  = errors.New("wallet: invalid transaction hash")
	ErrTimeout        = errors.New("wallet: operation timed out")
	ErrRPCConnection  = errors.New("wallet: RPC connection failed")
)

// VerifyError wraps verification failures with context
type VerifyError struct {
	Op     string // Operation that failed
	TxHash string // Transaction hash if available
	Err    error  // Underlying error
}

func (e *VerifyError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("wallet: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("wallet: %s failed: %v", e.Op, e.Err)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Interfaces - for testability and flexibility
// -----------------------------------------------------------------------------

// PaymentVerifier verifies on-chain payments
type PaymentVerifier interface {
	Address() string
	VerifyPayment(ctx context.Context, from string, minAmount string, txHash string) (bool, time.Time, error)
}

// EthClient abstracts go-ethereum client for testing
type EthClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	Close()
}

var _ EthClient = (*ethclient.Client)(nil)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const transferEventABI = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

const (
	// DefaultConfirmationTimeout bounds the wait for a receipt.
	DefaultConfirmationTimeout = 30 * time.Second

	// DefaultPollInterval between receipt checks
	DefaultPollInterval = 2 * time.Second
)

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = func() common.Hash {
	parsed, err := abi.JSON(strings.NewReader(transferEventABI))
	if err != nil {
		panic(fmt.Sprintf("wallet: parse transfer event ABI: %v", err))
	}
	return parsed.Events["Transfer"].ID
}()

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Option configures the verifier
type Option func(*Verifier)

// WithConfirmationTimeout sets how long VerifyPayment waits for a receipt.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithPollInterval sets the delay between receipt lookups.
func WithPollInterval(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.poll = d
		}
	}
}

// Verifier checks USDC transfers into one receiving address.
type Verifier struct {
	client    EthClient
	recipient common.Address
	token     common.Address
	timeout   time.Duration
	poll      time.Duration
}

// Compile-time interface check
var _ PaymentVerifier = (*Verifier)(nil)

// NewVerifier creates a verifier for transfers of token into recipient.
func NewVerifier(client EthClient, recipient, token string, opts ...Option) (*Verifier, error) {
	if !common.IsHexAddress(recipient) {
		return nil, fmt.Errorf("%w: recipient %q", ErrInvalidAddress, recipient)
	}
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("%w: token contract %q", ErrInvalidAddress, token)
	}
	v := &Verifier{
		client:    client,
		recipient: common.HexToAddress(recipient),
		token:     common.HexToAddress(token),
		timeout:   DefaultConfirmationTimeout,
		poll:      DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Dial connects to rpcURL and creates a verifier.
func Dial(ctx context.Context, rpcURL, recipient, token string, opts ...Option) (*Verifier, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
	}
	v, err := NewVerifier(client, recipient, token, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	return v, nil
}

// Address returns the receiving address
func (v *Verifier) Address() string {
	return v.recipient.Hex()
}

// VerifyPayment reports whether txHash moved at least minAmount USDC from
// from to the receiving address, and when the including block was mined.
// Transfers to the recipient inside one transaction are summed. A reverted
// transaction verifies false.
func (v *Verifier) VerifyPayment(ctx context.Context, from string, minAmount string, txHash string) (bool, time.Time, error) {
	if !common.IsHexAddress(from) {
		return false, time.Time{}, fmt.Errorf("%w: payer %q", ErrInvalidAddress, from)
	}
	minRaw, ok := units.ParseUSDC(minAmount)
	if !ok || minRaw.Sign() <= 0 {
		return false, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidAmount, minAmount)
	}
	hash, err := parseTxHash(txHash)
	if err != nil {
		return false, time.Time{}, err
	}

	receipt, err := v.waitForReceipt(ctx, hash)
	if err != nil {
		return false, time.Time{}, &VerifyError{Op: "receipt", TxHash: txHash, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return false, time.Time{}, nil
	}

	paid := v.received(receipt.Logs, common.HexToAddress(from))
	if paid.Cmp(minRaw) < 0 {
		return false, time.Time{}, nil
	}

	header, err := v.client.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return false, time.Time{}, &VerifyError{Op: "header", TxHash: txHash, Err: err}
	}
	return true, time.Unix(int64(header.Time), 0), nil
}

// received sums the token transfers from payer to the recipient.
func (v *Verifier) received(logs []*types.Log, payer common.Address) *big.Int {
	total := new(big.Int)
	for _, lg := range logs {
		if lg == nil || lg.Address != v.token || lg.Removed {
			continue
		}
		if len(lg.Topics) < 3 || lg.Topics[0] != transferTopic {
			continue
		}
		eventFrom := common.BytesToAddress(lg.Topics[1].Bytes())
		eventTo := common.BytesToAddress(lg.Topics[2].Bytes())
		if eventFrom != payer || eventTo != v.recipient {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(lg.Data))
	}
	return total
}

// waitForReceipt polls until the transaction is mined or the confirmation
// timeout passes.
func (v *Verifier) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	ticker := time.NewTicker(v.poll)
	defer ticker.Stop()

	for {
		// Not yet mined (ethereum.NotFound) and transient RPC errors both
		// mean poll again.
		receipt, err := v.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: waiting for tx %s", ErrTimeout, hash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes the client connection
func (v *Verifier) Close() error {
	if v.client != nil {
		v.client.Close()
	}
	return nil
}

func parseTxHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %q", ErrInvalidTxHash, s)
	}
	return common.BytesToHash(b), nil
}
