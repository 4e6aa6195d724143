package query

import (
	"LiqWatch/internal/explorer"
	"LiqWatch/internal/persistence"
	"LiqWatch/internal/risk"
	"time"

	"github.com/google/uuid"
)

// AsOf identifies the cycle a response was computed from.
type AsOf struct {
	CycleID        uuid.UUID `json:"cycle_id"`
	TakenAt        time.Time `json:"taken_at"`
	ReferencePrice float64   `json:"reference_price"`
}

type GetSnapshotRequest struct{}

type SnapshotResponse struct {
	AsOf
	PriceUpdatedAt time.Time      `json:"price_updated_at"`
	Range          risk.ScanRange `json:"range"`
	Summary        risk.Summary   `json:"summary"`
}

// PositionView is a position with display fields attached.
type PositionView struct {
	risk.Position
	Label            string   `json:"label,omitempty"`
	Band             string   `json:"band"`
	HealthFactorText string   `json:"health_factor_display"`
	LiquidationText  string   `json:"liquidation_price_display"`
	DistanceToLiqPct *float64 `json:"distance_to_liquidation_pct,omitempty"`
}

// Sort orders accepted by ListPositions.
const (
	SortHealth      = "health"
	SortCollateral  = "collateral"
	SortLiquidation = "liquidation"
)

type ListPositionsRequest struct {
	AtRiskOnly bool   `json:"at_risk_only"`
	Sort       string `json:"sort"`
	Limit      int    `json:"limit"`
}

type ListPositionsResponse struct {
	AsOf
	Positions []PositionView `json:"positions"`
}

type GetPositionRequest struct {
	Address string `json:"address"`
}

type PositionResponse struct {
	AsOf
	Position PositionView `json:"position"`
}

// GetRiskCurveRequest selects a custom range when Step > 0; otherwise the
// snapshot's own curve is returned.
type GetRiskCurveRequest struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

type RiskCurveResponse struct {
	AsOf
	Range  risk.ScanRange        `json:"range"`
	Points []risk.RiskCurvePoint `json:"points"`
}

type SimulatePriceRequest struct {
	Price float64 `json:"price"`
}

type SimulatedPosition struct {
	Address            string            `json:"address"`
	CurrentHealth      risk.HealthFactor `json:"current_health_factor"`
	ProjectedHealth    risk.HealthFactor `json:"projected_health_factor"`
	Liquidatable       bool              `json:"liquidatable"`
	CollateralAtTarget float64           `json:"collateral_at_target_usd"`
}

type SimulatePriceResponse struct {
	AsOf
	TargetPrice               float64             `json:"target_price"`
	Positions                 []SimulatedPosition `json:"positions"`
	Liquidatable              int                 `json:"liquidatable"`
	LiquidatableCollateralUSD float64             `json:"liquidatable_collateral_usd"`
}

type AddAddressRequest struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

type AddressResponse struct {
	Entry persistence.WatchEntry `json:"entry"`
}

type RemoveAddressRequest struct {
	Address string `json:"address"`
}

type RemoveAddressResponse struct {
	Removed bool `json:"removed"`
}

type ListAddressesRequest struct{}

type ListAddressesResponse struct {
	Addresses []persistence.WatchEntry `json:"addresses"`
}

type ListTransactionsRequest struct {
	Address string `json:"address"`
	Page    int    `json:"page"`
	Offset  int    `json:"offset"`
}

// TransactionView is an explorer transaction with display fields.
type TransactionView struct {
	explorer.Transaction
	ValueETH string `json:"value_eth"`
	Age      string `json:"age"`
	URL      string `json:"url"`
}

type ListTransactionsResponse struct {
	Address      string            `json:"address"`
	ExplorerURL  string            `json:"explorer_url"`
	PortfolioURL string            `json:"portfolio_url"`
	Transactions []TransactionView `json:"transactions"`
}

type GetHistoryRequest struct {
	Limit int `json:"limit"`
}

type GetHistoryResponse struct {
	Snapshots []persistence.SnapshotMeta `json:"snapshots"`
}
