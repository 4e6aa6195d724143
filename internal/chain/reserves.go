package chain

import (
	fp "LiqWatch/internal/math"
	"LiqWatch/internal/risk"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// Mainnet deployments used as configuration defaults.
const (
	DefaultDataProviderAddress = "0x7B4EB56E7CD4b454BA8ff71E4518426369a138a3"
	DefaultOracleAddress       = "0x54586bE62E3c3580375aE3723C145253060Ca0C2"
)

// Reserve is one entry of the reserve catalogue.
type Reserve struct {
	Symbol   string             `yaml:"symbol" json:"symbol"`
	Address  string             `yaml:"address" json:"address"`
	Category risk.AssetCategory `yaml:"category" json:"category"`
}

// DefaultReserves is the mainnet catalogue scanned when none is configured.
func DefaultReserves() []Reserve {
	return []Reserve{
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Category: risk.CategoryETHCorrelated},
		{Symbol: "wstETH", Address: "0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0", Category: risk.CategoryETHCorrelated},
		{Symbol: "weETH", Address: "0xCd5fE23C85820F7B72D0926FC9b05b43E359b7ee", Category: risk.CategoryETHCorrelated},
		{Symbol: "cbETH", Address: "0xBe9895146f7AF43049ca1c1AE358B0541Ea49704", Category: risk.CategoryETHCorrelated},
		{Symbol: "rETH", Address: "0xae78736Cd615f374D3085123A210448E74Fc6393", Category: risk.CategoryETHCorrelated},
		{Symbol: "WBTC", Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Category: risk.CategoryBTCCorrelated},
		{Symbol: "cbBTC", Address: "0xcbB7C0000aB88B473b1f5aFd9ef808440eed33Bf", Category: risk.CategoryBTCCorrelated},
		{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Category: risk.CategoryStable},
		{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Category: risk.CategoryStable},
		{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Category: risk.CategoryStable},
		{Symbol: "LINK", Address: "0x514910771AF9Ca656af840dff83E8264EcF986CA", Category: risk.CategoryOther},
	}
}

// ReserveReader builds per-reserve legs for an account from the pool data
// provider and the pool's price oracle.
type ReserveReader struct {
	caller       *Caller
	dataProvider common.Address
	oracle       common.Address
	reserves     []Reserve
}

// NewReserveReader validates every catalogue address up front.
func NewReserveReader(caller *Caller, dataProvider, oracle common.Address, reserves []Reserve) (*ReserveReader, error) {
	for _, res := range reserves {
		if _, err := ParseAddress(res.Address); err != nil {
			return nil, fmt.Errorf("reserve %s: %w", res.Symbol, err)
		}
	}
	return &ReserveReader{
		caller:       caller,
		dataProvider: dataProvider,
		oracle:       oracle,
		reserves:     reserves,
	}, nil
}

// Reserves returns the configured catalogue.
func (r *ReserveReader) Reserves() []Reserve {
	return r.reserves
}

// AssetLegs returns one leg per reserve where address has collateral or
// debt, in catalogue order. Supplied balances count as collateral only while
// the account has the reserve enabled as collateral.
func (r *ReserveReader) AssetLegs(ctx context.Context, address string) ([]risk.AssetLeg, error) {
	user, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	legs := make([]*risk.AssetLeg, len(r.reserves))
	g, gctx := errgroup.WithContext(ctx)
	for i, res := range r.reserves {
		i, res := i, res
		g.Go(func() error {
			leg, err := r.readLeg(gctx, res, user)
			if err != nil {
				return fmt.Errorf("reserve %s: %w", res.Symbol, err)
			}
			legs[i] = leg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]risk.AssetLeg, 0, len(legs))
	for _, leg := range legs {
		if leg != nil {
			out = append(out, *leg)
		}
	}
	return out, nil
}

func (r *ReserveReader) readLeg(ctx context.Context, res Reserve, user common.Address) (*risk.AssetLeg, error) {
	asset := common.HexToAddress(res.Address)

	userData, err := r.caller.Call(ctx, DataProviderABI, r.dataProvider, "getUserReserveData", asset, user)
	if err != nil {
		return nil, err
	}
	supplied, err := bigAt(userData, 0)
	if err != nil {
		return nil, err
	}
	stableDebt, err := bigAt(userData, 1)
	if err != nil {
		return nil, err
	}
	variableDebt, err := bigAt(userData, 2)
	if err != nil {
		return nil, err
	}
	asCollateral, err := boolAt(userData, 8)
	if err != nil {
		return nil, err
	}

	if supplied.Sign() == 0 && stableDebt.Sign() == 0 && variableDebt.Sign() == 0 {
		return nil, nil
	}

	config, err := r.caller.Call(ctx, DataProviderABI, r.dataProvider, "getReserveConfigurationData", asset)
	if err != nil {
		return nil, err
	}
	decimalsRaw, err := bigAt(config, 0)
	if err != nil {
		return nil, err
	}
	thresholdRaw, err := bigAt(config, 2)
	if err != nil {
		return nil, err
	}

	priceOut, err := r.caller.Call(ctx, OracleABI, r.oracle, "getAssetPrice", asset)
	if err != nil {
		return nil, err
	}
	priceRaw, err := bigAt(priceOut, 0)
	if err != nil {
		return nil, err
	}

	decimals := int(decimalsRaw.Int64())
	price := fp.OraclePriceConfig.Decode(priceRaw)
	amount := fp.Decode(supplied, decimals)
	debt := fp.Decode(new(big.Int).Add(stableDebt, variableDebt), decimals)

	leg := &risk.AssetLeg{
		Symbol:                  res.Symbol,
		Address:                 risk.NormalizeAddress(res.Address),
		Category:                res.Category,
		DebtUSD:                 debt * price,
		LiquidationThresholdPct: fp.PercentageConfig.Decode(thresholdRaw) * 100,
		PriceUSD:                price,
		Amount:                  amount,
	}
	if asCollateral {
		leg.CollateralUSD = amount * price
	}
	if leg.CollateralUSD == 0 && leg.DebtUSD == 0 {
		return nil, nil
	}
	return leg, nil
}
