package chain

import (
	fp "LiqWatch/internal/math"
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// DefaultETHUSDFeed is the Chainlink ETH/USD aggregator on mainnet.
const DefaultETHUSDFeed = "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"

// Price is one reference-price observation.
type Price struct {
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	RoundID   *big.Int  `json:"round_id"`
}

// PriceFeed reads a Chainlink aggregator.
type PriceFeed struct {
	caller *Caller
	feed   common.Address
	maxAge time.Duration
	now    func() time.Time
}

// NewPriceFeed creates a feed reader. A zero maxAge disables the staleness
// check.
func NewPriceFeed(caller *Caller, feed common.Address, maxAge time.Duration) *PriceFeed {
	return &PriceFeed{caller: caller, feed: feed, maxAge: maxAge, now: time.Now}
}

// WithClock overrides the staleness clock.
func (f *PriceFeed) WithClock(now func() time.Time) *PriceFeed {
	f.now = now
	return f
}

// LatestPrice reads latestRoundData and decimals concurrently. A
// non-positive answer is an error; an answer older than maxAge wraps
// ErrStalePrice.
func (f *PriceFeed) LatestPrice(ctx context.Context) (Price, error) {
	var round, dec []interface{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		round, err = f.caller.Call(gctx, AggregatorABI, f.feed, "latestRoundData")
		return err
	})
	g.Go(func() error {
		var err error
		dec, err = f.caller.Call(gctx, AggregatorABI, f.feed, "decimals")
		return err
	})
	if err := g.Wait(); err != nil {
		return Price{}, fmt.Errorf("price feed: %w", err)
	}

	roundID, err := bigAt(round, 0)
	if err != nil {
		return Price{}, fmt.Errorf("latestRoundData roundId: %w", err)
	}
	answer, err := bigAt(round, 1)
	if err != nil {
		return Price{}, fmt.Errorf("latestRoundData answer: %w", err)
	}
	updatedAt, err := bigAt(round, 3)
	if err != nil {
		return Price{}, fmt.Errorf("latestRoundData updatedAt: %w", err)
	}
	if len(dec) == 0 {
		return Price{}, fmt.Errorf("decimals: empty output")
	}
	decimals, ok := dec[0].(uint8)
	if !ok {
		return Price{}, fmt.Errorf("decimals: unexpected type %T", dec[0])
	}

	if answer.Sign() <= 0 {
		return Price{}, fmt.Errorf("price feed %s: non-positive answer %s", f.feed.Hex(), answer)
	}

	p := Price{
		Value:     fp.Decode(answer, int(decimals)),
		UpdatedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
		RoundID:   roundID,
	}

	if f.maxAge > 0 {
		if age := f.now().Sub(p.UpdatedAt); age > f.maxAge {
			return p, fmt.Errorf("%w: updated %s ago (max %s)", ErrStalePrice, age.Round(time.Second), f.maxAge)
		}
	}
	return p, nil
}
