// Package chain reads lending-pool account data and reference prices from an
// Ethereum node.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidAddress is returned for strings that are not 20-byte hex
	// addresses.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrStalePrice is returned when the reference price is older than the
	// configured maximum age.
	ErrStalePrice = errors.New("stale price")
)

// Dial opens an RPC client for the given endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// ParseAddress validates and converts a hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// Caller executes read-only contract calls through a shared rate limiter.
type Caller struct {
	backend ethereum.ContractCaller
	limiter *rate.Limiter
}

// NewCaller wraps backend. A non-positive rps disables throttling.
func NewCaller(backend ethereum.ContractCaller, rps float64, burst int) *Caller {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Caller{
		backend: backend,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Call packs method(args...) for contract, executes it at the latest block
// and unpacks the outputs.
func (c *Caller) Call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s on %s: empty result", method, to.Hex())
	}

	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func bigAt(values []interface{}, i int) (*big.Int, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("output %d missing", i)
	}
	v, ok := values[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d: unexpected type %T", i, values[i])
	}
	return v, nil
}

func boolAt(values []interface{}, i int) (bool, error) {
	if i >= len(values) {
		return false, fmt.Errorf("output %d missing", i)
	}
	v, ok := values[i].(bool)
	if !ok {
		return false, fmt.Errorf("output %d: unexpected type %T", i, values[i])
	}
	return v, nil
}
