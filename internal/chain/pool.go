package chain

import (
	"LiqWatch/internal/risk"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// DefaultPoolAddress is the Aave V3 Pool on Ethereum mainnet.
const DefaultPoolAddress = "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"

// PoolReader reads per-account aggregates from the lending pool.
type PoolReader struct {
	caller      *Caller
	pool        common.Address
	concurrency int
}

// NewPoolReader creates a reader for the pool at address pool. concurrency
// caps in-flight calls for AccountSummaries; zero means unbounded.
func NewPoolReader(caller *Caller, pool common.Address, concurrency int) *PoolReader {
	return &PoolReader{caller: caller, pool: pool, concurrency: concurrency}
}

// AccountSummary reads getUserAccountData for one address.
func (r *PoolReader) AccountSummary(ctx context.Context, address string) (risk.RawAccountSummary, error) {
	user, err := ParseAddress(address)
	if err != nil {
		return risk.RawAccountSummary{}, err
	}

	values, err := r.caller.Call(ctx, PoolABI, r.pool, "getUserAccountData", user)
	if err != nil {
		return risk.RawAccountSummary{}, err
	}

	summary := risk.RawAccountSummary{Address: address}
	fields := []fieldRef{
		{"totalCollateralBase", &summary.CollateralRaw},
		{"totalDebtBase", &summary.DebtRaw},
		{"availableBorrowsBase", &summary.AvailableBorrowsRaw},
		{"currentLiquidationThreshold", &summary.LiquidationThresholdRaw},
		{"ltv", &summary.LTVRaw},
		{"healthFactor", &summary.HealthFactorRaw},
	}
	for i, f := range fields {
		v, err := bigAt(values, i)
		if err != nil {
			return risk.RawAccountSummary{}, fmt.Errorf("getUserAccountData %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return summary, nil
}

type fieldRef struct {
	name string
	dst  **big.Int
}

// AccountSummaries reads every address concurrently. Results keep input
// order. Any failure fails the whole batch.
func (r *PoolReader) AccountSummaries(ctx context.Context, addresses []string) ([]risk.RawAccountSummary, error) {
	out := make([]risk.RawAccountSummary, len(addresses))

	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, addr := range addresses {
		i, addr := i, addr
		g.Go(func() error {
			s, err := r.AccountSummary(gctx, addr)
			if err != nil {
				return fmt.Errorf("account %s: %w", addr, err)
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// HasPosition reports whether address has any collateral or debt.
func (r *PoolReader) HasPosition(ctx context.Context, address string) (bool, error) {
	s, err := r.AccountSummary(ctx, address)
	if err != nil {
		return false, err
	}
	return s.CollateralRaw.Sign() > 0 || s.DebtRaw.Sign() > 0, nil
}
