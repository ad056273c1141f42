package onchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Probe names, also used as keys of ChainRecord.ProbeErrors.
const (
	ProbeName        = "name"
	ProbeSymbol      = "symbol"
	ProbeDecimals    = "decimals"
	ProbeTotalSupply = "totalSupply"
	ProbeBalanceOf   = "balanceOf"
)

// MaxDecimals is the largest decimals value treated as valid.
const MaxDecimals = 18

// balanceProbeHolder is queried by the balanceOf probe. Any address works;
// the burn address keeps the call free of user data.
var balanceProbeHolder = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// errEmptyReturn is reported when a call succeeds but returns no data, which
// is what a contract without the function (and without a fallback) does.
var errEmptyReturn = errors.New("empty return data")

// decimals is read as uint256 so that out-of-range values decode and fail
// the range check instead of the call.
const erc20ReadABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var erc20 = mustParseABI(erc20ReadABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("onchain: parse ERC-20 ABI: %v", err))
	}
	return parsed
}

// call packs method, runs it against token and returns the raw output.
func call(ctx context.Context, rd ContractReader, token common.Address, method string, args ...interface{}) ([]byte, error) {
	data, err := erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := rd.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errEmptyReturn
	}
	return out, nil
}

// readString calls a string getter. Some older tokens return bytes32
// instead of string; that form is decoded as well.
func readString(ctx context.Context, rd ContractReader, token common.Address, method string) (string, error) {
	out, err := call(ctx, rd, token, method)
	if err != nil {
		return "", err
	}

	vals, err := erc20.Unpack(method, out)
	if err == nil && len(vals) == 1 {
		if s, ok := vals[0].(string); ok {
			return strings.TrimSpace(s), nil
		}
	}

	if len(out) == 32 {
		trimmed := bytes.TrimRight(out, "\x00")
		if utf8.Valid(trimmed) {
			return strings.TrimSpace(string(trimmed)), nil
		}
	}
	if err == nil {
		err = errors.New("unexpected return type")
	}
	return "", fmt.Errorf("decode %s: %w", method, err)
}

// readUint calls a uint256 getter.
func readUint(ctx context.Context, rd ContractReader, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	out, err := call(ctx, rd, token, method, args...)
	if err != nil {
		return nil, err
	}
	vals, err := erc20.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("decode %s: got %d values", method, len(vals))
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected return type %T", method, vals[0])
	}
	return n, nil
}

// probeResults holds the outcome of the five interface calls. Each probe
// writes only its own fields.
type probeResults struct {
	name        string
	symbol      string
	decimals    *big.Int
	totalSupply *big.Int
	balance     *big.Int

	errs [5]error
}

const (
	idxName = iota
	idxSymbol
	idxDecimals
	idxTotalSupply
	idxBalanceOf
)

var probeNames = [5]string{ProbeName, ProbeSymbol, ProbeDecimals, ProbeTotalSupply, ProbeBalanceOf}

// errorMap returns failed probes keyed by probe name.
func (p *probeResults) errorMap() map[string]string {
	m := make(map[string]string)
	for i, err := range p.errs {
		if err != nil {
			m[probeNames[i]] = err.Error()
		}
	}
	return m
}
