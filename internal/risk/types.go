package risk

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// RawAccountSummary is one account's aggregate data as read from the pool,
// still in protocol fixed-point.
type RawAccountSummary struct {
	Address                 string
	CollateralRaw           *big.Int // base currency, 8 decimals
	DebtRaw                 *big.Int // base currency, 8 decimals
	AvailableBorrowsRaw     *big.Int // base currency, 8 decimals
	LiquidationThresholdRaw *big.Int // 4 decimals, fraction of 1
	LTVRaw                  *big.Int // 4 decimals, fraction of 1
	HealthFactorRaw         *big.Int // 18 decimals
}

// AssetCategory classifies how a reserve's USD value co-moves with the
// reference price.
type AssetCategory int32

const (
	CategoryOther AssetCategory = iota
	CategoryETHCorrelated
	CategoryBTCCorrelated
	CategoryStable
)

func (c AssetCategory) String() string {
	switch c {
	case CategoryETHCorrelated:
		return "eth-correlated"
	case CategoryBTCCorrelated:
		return "btc-correlated"
	case CategoryStable:
		return "stable"
	default:
		return "other"
	}
}

// ParseAssetCategory parses the string form of a category.
func ParseAssetCategory(s string) (AssetCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eth-correlated", "eth":
		return CategoryETHCorrelated, nil
	case "btc-correlated", "btc":
		return CategoryBTCCorrelated, nil
	case "stable":
		return CategoryStable, nil
	case "other", "":
		return CategoryOther, nil
	default:
		return CategoryOther, fmt.Errorf("unknown asset category %q", s)
	}
}

func (c AssetCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *AssetCategory) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAssetCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalYAML and UnmarshalYAML let reserve catalogues name categories.
func (c AssetCategory) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

func (c *AssetCategory) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseAssetCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// AssetLeg is one reserve held by an account.
type AssetLeg struct {
	Symbol                  string        `json:"symbol"`
	Address                 string        `json:"address,omitempty"`
	Category                AssetCategory `json:"category"`
	CollateralUSD           float64       `json:"collateral_usd"`
	DebtUSD                 float64       `json:"debt_usd"`
	LiquidationThresholdPct float64       `json:"liquidation_threshold_pct"` // 0-100
	PriceUSD                float64       `json:"price_usd"`                 // display only
	Amount                  float64       `json:"amount"`                    // display only
}

// WeightedCollateral is the leg's collateral counted toward the health factor.
func (l AssetLeg) WeightedCollateral() float64 {
	return l.CollateralUSD * (l.LiquidationThresholdPct / 100)
}

// IsETHCorrelated reports whether the leg moves with the reference price.
func (l AssetLeg) IsETHCorrelated() bool {
	return l.Category == CategoryETHCorrelated
}

// Input is the normalizer's tagged input: either BasicInput or DetailedInput.
type Input interface {
	AccountSummary() RawAccountSummary
	isInput()
}

// BasicInput carries only the aggregate account data.
type BasicInput struct {
	Summary RawAccountSummary
}

func (b BasicInput) AccountSummary() RawAccountSummary { return b.Summary }
func (BasicInput) isInput()                            {}

// DetailedInput carries the aggregate data plus a per-reserve breakdown.
// An empty Legs slice is treated exactly like BasicInput.
type DetailedInput struct {
	Summary RawAccountSummary
	Legs    []AssetLeg
}

func (d DetailedInput) AccountSummary() RawAccountSummary { return d.Summary }
func (DetailedInput) isInput()                            {}

// Breakdown holds the enriched subtotals derived from a non-empty leg list.
type Breakdown struct {
	ETHCorrelatedCollateralUSD  float64    `json:"eth_correlated_collateral_usd"`
	ETHCorrelatedDebtUSD        float64    `json:"eth_correlated_debt_usd"`
	BTCCorrelatedCollateralUSD  float64    `json:"btc_correlated_collateral_usd"`
	StableCollateralUSD         float64    `json:"stable_collateral_usd"`
	OtherCollateralUSD          float64    `json:"other_collateral_usd"`
	NonETHDebtUSD               float64    `json:"non_eth_debt_usd"`
	ETHWeightedCollateralUSD    float64    `json:"eth_weighted_collateral_usd"`
	NonETHWeightedCollateralUSD float64    `json:"non_eth_weighted_collateral_usd"`
	Assets                      []AssetLeg `json:"assets"`
}

// Position is the normalized, immutable view of one account for one cycle.
type Position struct {
	Address                   string       `json:"address"`
	HealthFactor              HealthFactor `json:"health_factor"`
	TotalCollateralUSD        float64      `json:"total_collateral_usd"`
	TotalDebtUSD              float64      `json:"total_debt_usd"`
	AvailableBorrowsUSD       float64      `json:"available_borrows_usd"`
	LiquidationThresholdPct   float64      `json:"liquidation_threshold_pct"`
	LTVPct                    float64      `json:"ltv_pct"`
	EstimatedLiquidationPrice *float64     `json:"estimated_liquidation_price"`
	IsAtRisk                  bool         `json:"is_at_risk"`
	Breakdown                 *Breakdown   `json:"breakdown,omitempty"`
}

// HasLiquidationPrice reports whether a positive estimate exists.
func (p Position) HasLiquidationPrice() bool {
	return p.EstimatedLiquidationPrice != nil && *p.EstimatedLiquidationPrice > 0
}

// RiskCurvePoint is one sample of the cumulative liquidation curve.
type RiskCurvePoint struct {
	ReferencePrice      float64 `json:"reference_price"`
	CumulativeAtRiskUSD float64 `json:"cumulative_at_risk_usd"`
	PositionCount       int     `json:"position_count"`
}

// ScanRange is the sampled price interval for a risk curve.
type ScanRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}
