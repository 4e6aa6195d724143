// Package query answers API requests from the current snapshot, the
// watch-list, the snapshot history and the block explorer.
package query

import (
	"LiqWatch/internal/display"
	"LiqWatch/internal/explorer"
	"LiqWatch/internal/monitor"
	"LiqWatch/internal/persistence"
	"LiqWatch/internal/risk"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrNotReady means no refresh cycle has completed yet.
	ErrNotReady = errors.New("no snapshot available yet")
	// ErrInvalidArgument wraps request validation failures.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnavailable means an optional backend is not configured.
	ErrUnavailable = errors.New("unavailable")
)

// maxCurvePoints bounds custom risk-curve requests.
const maxCurvePoints = 10_000

// SnapshotSource is the monitor as seen by queries.
type SnapshotSource interface {
	Current() *monitor.Snapshot
	Trigger()
}

// TransactionSource fetches recent explorer transactions.
type TransactionSource interface {
	RecentTransactions(ctx context.Context, address string, page, offset int) ([]explorer.Transaction, error)
}

// HistorySource lists stored snapshots.
type HistorySource interface {
	History(ctx context.Context, limit int) ([]persistence.SnapshotMeta, error)
}

// Service is safe for concurrent use. Transactions and history may be nil.
type Service struct {
	snaps   SnapshotSource
	watch   persistence.WatchList
	txs     TransactionSource
	history HistorySource
	now     func() time.Time
}

func NewService(snaps SnapshotSource, watch persistence.WatchList, txs TransactionSource, history HistorySource) *Service {
	return &Service{snaps: snaps, watch: watch, txs: txs, history: history, now: time.Now}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func (s *Service) current() (*monitor.Snapshot, error) {
	snap := s.snaps.Current()
	if snap == nil {
		return nil, ErrNotReady
	}
	return snap, nil
}

func asOf(snap *monitor.Snapshot) AsOf {
	return AsOf{CycleID: snap.CycleID, TakenAt: snap.TakenAt, ReferencePrice: snap.Price.Value}
}

func (s *Service) GetSnapshot(ctx context.Context, req *GetSnapshotRequest) (*SnapshotResponse, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	return &SnapshotResponse{
		AsOf:           asOf(snap),
		PriceUpdatedAt: snap.Price.UpdatedAt,
		Range:          snap.Range,
		Summary:        snap.Summary,
	}, nil
}

func (s *Service) ListPositions(ctx context.Context, req *ListPositionsRequest) (*ListPositionsResponse, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	if req.Limit < 0 {
		return nil, invalid("limit must not be negative")
	}

	labels := s.labels(ctx)
	views := make([]PositionView, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		if req.AtRiskOnly && !p.IsAtRisk {
			continue
		}
		views = append(views, view(p, labels[p.Address], snap.Price.Value))
	}

	switch req.Sort {
	case "", SortHealth:
		sort.SliceStable(views, func(i, j int) bool {
			return views[i].HealthFactor.Float64() < views[j].HealthFactor.Float64()
		})
	case SortCollateral:
		sort.SliceStable(views, func(i, j int) bool {
			return views[i].TotalCollateralUSD > views[j].TotalCollateralUSD
		})
	case SortLiquidation:
		// highest liquidation price first: closest to the current price
		sort.SliceStable(views, func(i, j int) bool {
			return liqOrZero(views[i].Position) > liqOrZero(views[j].Position)
		})
	default:
		return nil, invalid("unknown sort %q", req.Sort)
	}

	if req.Limit > 0 && len(views) > req.Limit {
		views = views[:req.Limit]
	}
	return &ListPositionsResponse{AsOf: asOf(snap), Positions: views}, nil
}

func (s *Service) GetPosition(ctx context.Context, req *GetPositionRequest) (*PositionResponse, error) {
	addr, err := persistence.CanonicalAddress(req.Address)
	if err != nil {
		return nil, err
	}
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	p, ok := snap.Position(addr)
	if !ok {
		return nil, fmt.Errorf("position %s: %w", addr, persistence.ErrNotFound)
	}
	return &PositionResponse{
		AsOf:     asOf(snap),
		Position: view(p, s.labels(ctx)[addr], snap.Price.Value),
	}, nil
}

func (s *Service) GetRiskCurve(ctx context.Context, req *GetRiskCurveRequest) (*RiskCurveResponse, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	if req.Step <= 0 && req.Min == 0 && req.Max == 0 {
		return &RiskCurveResponse{AsOf: asOf(snap), Range: snap.Range, Points: snap.Curve}, nil
	}

	r := risk.ScanRange{Min: req.Min, Max: req.Max, Step: req.Step}
	switch {
	case !finite(r.Min) || !finite(r.Max) || !finite(r.Step):
		return nil, invalid("range must be finite")
	case r.Step <= 0:
		return nil, invalid("step must be positive")
	case r.Min < 0 || r.Min > r.Max:
		return nil, invalid("need 0 <= min <= max")
	case r.Min+r.Step == r.Min || r.Max+r.Step == r.Max:
		return nil, invalid("step too small for range")
	case (r.Max-r.Min)/r.Step+1 > maxCurvePoints:
		return nil, invalid("range yields more than %d points", maxCurvePoints)
	}
	return &RiskCurveResponse{AsOf: asOf(snap), Range: r, Points: snap.CurveFor(r)}, nil
}

func (s *Service) SimulatePrice(ctx context.Context, req *SimulatePriceRequest) (*SimulatePriceResponse, error) {
	if !finite(req.Price) || req.Price <= 0 {
		return nil, invalid("price must be positive")
	}
	snap, err := s.current()
	if err != nil {
		return nil, err
	}

	resp := &SimulatePriceResponse{
		AsOf:        asOf(snap),
		TargetPrice: req.Price,
		Positions:   make([]SimulatedPosition, 0, len(snap.Positions)),
	}
	ratio := req.Price / snap.Price.Value
	for _, p := range snap.Positions {
		projected := risk.HealthFactorAtPrice(p, snap.Price.Value, req.Price)
		liquidatable := projected.IsLiquidatable()
		sp := SimulatedPosition{
			Address:            p.Address,
			CurrentHealth:      p.HealthFactor,
			ProjectedHealth:    projected,
			Liquidatable:       liquidatable,
			CollateralAtTarget: p.TotalCollateralUSD * ratio,
		}
		if liquidatable {
			resp.Liquidatable++
			resp.LiquidatableCollateralUSD += sp.CollateralAtTarget
		}
		resp.Positions = append(resp.Positions, sp)
	}
	return resp, nil
}

// AddAddress watches an address and requests a refresh so it shows up in
// the next snapshot.
func (s *Service) AddAddress(ctx context.Context, req *AddAddressRequest) (*AddressResponse, error) {
	entry, err := s.watch.Add(ctx, req.Address, req.Label)
	if err != nil {
		return nil, err
	}
	s.snaps.Trigger()
	return &AddressResponse{Entry: entry}, nil
}

func (s *Service) RemoveAddress(ctx context.Context, req *RemoveAddressRequest) (*RemoveAddressResponse, error) {
	if err := s.watch.Remove(ctx, req.Address); err != nil {
		return nil, err
	}
	s.snaps.Trigger()
	return &RemoveAddressResponse{Removed: true}, nil
}

func (s *Service) ListAddresses(ctx context.Context, req *ListAddressesRequest) (*ListAddressesResponse, error) {
	entries, err := s.watch.List(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []persistence.WatchEntry{}
	}
	return &ListAddressesResponse{Addresses: entries}, nil
}

func (s *Service) ListTransactions(ctx context.Context, req *ListTransactionsRequest) (*ListTransactionsResponse, error) {
	if s.txs == nil {
		return nil, fmt.Errorf("explorer: %w", ErrUnavailable)
	}
	addr, err := persistence.CanonicalAddress(req.Address)
	if err != nil {
		return nil, err
	}
	if req.Page < 0 || req.Offset < 0 || req.Offset > 100 {
		return nil, invalid("need page >= 0 and 0 <= offset <= 100")
	}

	txs, err := s.txs.RecentTransactions(ctx, addr, req.Page, req.Offset)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]TransactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, TransactionView{
			Transaction: tx,
			ValueETH:    display.FormatEthValue(tx.Value),
			Age:         display.FormatRelativeTime(tx.Time(), now),
			URL:         explorer.TxURL(tx.Hash),
		})
	}
	return &ListTransactionsResponse{
		Address:      addr,
		ExplorerURL:  explorer.AddressURL(addr),
		PortfolioURL: explorer.DeBankURL(addr),
		Transactions: views,
	}, nil
}

func (s *Service) GetHistory(ctx context.Context, req *GetHistoryRequest) (*GetHistoryResponse, error) {
	if s.history == nil {
		return nil, fmt.Errorf("history: %w", ErrUnavailable)
	}
	if req.Limit < 0 || req.Limit > 1000 {
		return nil, invalid("limit must be within 0..1000")
	}
	metas, err := s.history.History(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	if metas == nil {
		metas = []persistence.SnapshotMeta{}
	}
	return &GetHistoryResponse{Snapshots: metas}, nil
}

// labels is best effort: a failing watch-list only loses labels.
func (s *Service) labels(ctx context.Context) map[string]string {
	entries, err := s.watch.List(ctx)
	if err != nil {
		return nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Label != "" {
			out[e.Address] = e.Label
		}
	}
	return out
}

func view(p risk.Position, label string, referencePrice float64) PositionView {
	v := PositionView{
		Position:         p,
		Label:            label,
		Band:             display.HealthBand(p.HealthFactor).String(),
		HealthFactorText: display.FormatHealthFactor(p.HealthFactor),
		LiquidationText:  "-",
	}
	if p.HasLiquidationPrice() {
		liq := *p.EstimatedLiquidationPrice
		v.LiquidationText = display.FormatPrice(liq)
		if referencePrice > 0 {
			d := (referencePrice - liq) / referencePrice * 100
			v.DistanceToLiqPct = &d
		}
	}
	return v
}

func liqOrZero(p risk.Position) float64 {
	if p.HasLiquidationPrice() {
		return *p.EstimatedLiquidationPrice
	}
	return 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
