package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const poolABIJSON = `[
  {"type":"function","name":"getUserAccountData","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[
     {"name":"totalCollateralBase","type":"uint256"},
     {"name":"totalDebtBase","type":"uint256"},
     {"name":"availableBorrowsBase","type":"uint256"},
     {"name":"currentLiquidationThreshold","type":"uint256"},
     {"name":"ltv","type":"uint256"},
     {"name":"healthFactor","type":"uint256"}]}
]`

const dataProviderABIJSON = `[
  {"type":"function","name":"getUserReserveData","stateMutability":"view",
   "inputs":[{"name":"asset","type":"address"},{"name":"user","type":"address"}],
   "outputs":[
     {"name":"currentATokenBalance","type":"uint256"},
     {"name":"currentStableDebt","type":"uint256"},
     {"name":"currentVariableDebt","type":"uint256"},
     {"name":"principalStableDebt","type":"uint256"},
     {"name":"scaledVariableDebt","type":"uint256"},
     {"name":"stableBorrowRate","type":"uint256"},
     {"name":"liquidityRate","type":"uint256"},
     {"name":"stableRateLastUpdated","type":"uint40"},
     {"name":"usageAsCollateralEnabled","type":"bool"}]},
  {"type":"function","name":"getReserveConfigurationData","stateMutability":"view",
   "inputs":[{"name":"asset","type":"address"}],
   "outputs":[
     {"name":"decimals","type":"uint256"},
     {"name":"ltv","type":"uint256"},
     {"name":"liquidationThreshold","type":"uint256"},
     {"name":"liquidationBonus","type":"uint256"},
     {"name":"reserveFactor","type":"uint256"},
     {"name":"usageAsCollateralEnabled","type":"bool"},
     {"name":"borrowingEnabled","type":"bool"},
     {"name":"stableBorrowRateEnabled","type":"bool"},
     {"name":"isActive","type":"bool"},
     {"name":"isFrozen","type":"bool"}]}
]`

const oracleABIJSON = `[
  {"type":"function","name":"getAssetPrice","stateMutability":"view",
   "inputs":[{"name":"asset","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

const aggregatorABIJSON = `[
  {"type":"function","name":"latestRoundData","stateMutability":"view",
   "inputs":[],
   "outputs":[
     {"name":"roundId","type":"uint80"},
     {"name":"answer","type":"int256"},
     {"name":"startedAt","type":"uint256"},
     {"name":"updatedAt","type":"uint256"},
     {"name":"answeredInRound","type":"uint80"}]},
  {"type":"function","name":"decimals","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint8"}]}
]`

// Parsed contract interfaces. Only the methods LiqWatch calls are declared.
var (
	PoolABI         = mustParseABI("pool", poolABIJSON)
	DataProviderABI = mustParseABI("data provider", dataProviderABIJSON)
	OracleABI       = mustParseABI("oracle", oracleABIJSON)
	AggregatorABI   = mustParseABI("aggregator", aggregatorABIJSON)
)

func mustParseABI(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse %s abi: %v", name, err))
	}
	return parsed
}
