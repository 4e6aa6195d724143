package query_test

import (
	"LiqWatch/internal/chain"
	"LiqWatch/internal/explorer"
	"LiqWatch/internal/monitor"
	"LiqWatch/internal/persistence"
	"LiqWatch/internal/query"
	"LiqWatch/internal/risk"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0x00000000000000000000000000000000000000aa"
	addrB = "0x00000000000000000000000000000000000000bb"
	addrC = "0x00000000000000000000000000000000000000cc"
)

type fakeMonitor struct {
	snap     *monitor.Snapshot
	triggers int
}

func (f *fakeMonitor) Current() *monitor.Snapshot { return f.snap }
func (f *fakeMonitor) Trigger()                   { f.triggers++ }

type fakeExplorer struct {
	txs  []explorer.Transaction
	err  error
	addr string
}

func (f *fakeExplorer) RecentTransactions(ctx context.Context, address string, page, offset int) ([]explorer.Transaction, error) {
	f.addr = address
	return f.txs, f.err
}

type fakeHistory struct {
	metas []persistence.SnapshotMeta
	limit int
}

func (f *fakeHistory) History(ctx context.Context, limit int) ([]persistence.SnapshotMeta, error) {
	f.limit = limit
	return f.metas, nil
}

func ptr(v float64) *float64 { return &v }

func position(addr string, hf, collateral, debt float64, liq *float64) risk.Position {
	h := risk.Finite(hf)
	return risk.Position{
		Address:                   addr,
		HealthFactor:              h,
		TotalCollateralUSD:        collateral,
		TotalDebtUSD:              debt,
		LiquidationThresholdPct:   80,
		EstimatedLiquidationPrice: liq,
		IsAtRisk:                  h.IsAtRisk(),
	}
}

func testSnapshot() *monitor.Snapshot {
	positions := []risk.Position{
		position(addrA, 1.6, 20_000, 10_000, ptr(1250)),
		position(addrB, 1.1, 5_000, 3_636.36, ptr(1800)),
		position(addrC, 3, 50_000, 13_333.33, ptr(666)),
	}
	r := risk.SelectPriceRange(2000)
	return &monitor.Snapshot{
		CycleID:   uuid.New(),
		TakenAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Price:     chain.Price{Value: 2000, UpdatedAt: time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)},
		Positions: positions,
		Range:     r,
		Curve:     risk.BuildRiskCurve(positions, 2000, r),
		Summary:   risk.Aggregate(positions),
	}
}

func newService(t *testing.T, snap *monitor.Snapshot) (*query.Service, *fakeMonitor, *persistence.MemoryWatchList) {
	t.Helper()
	mon := &fakeMonitor{snap: snap}
	wl := persistence.NewMemoryWatchList()
	_, err := wl.Add(context.Background(), addrA, "whale")
	require.NoError(t, err)
	return query.NewService(mon, wl, nil, nil), mon, wl
}

// ============================================================================
// Test: not ready
// ============================================================================

func TestService_NotReady(t *testing.T) {
	svc, _, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.GetSnapshot(ctx, &query.GetSnapshotRequest{})
	assert.ErrorIs(t, err, query.ErrNotReady)
	_, err = svc.ListPositions(ctx, &query.ListPositionsRequest{})
	assert.ErrorIs(t, err, query.ErrNotReady)
	_, err = svc.GetRiskCurve(ctx, &query.GetRiskCurveRequest{})
	assert.ErrorIs(t, err, query.ErrNotReady)
	_, err = svc.SimulatePrice(ctx, &query.SimulatePriceRequest{Price: 1000})
	assert.ErrorIs(t, err, query.ErrNotReady)
}

// ============================================================================
// Test: snapshot and positions
// ============================================================================

func TestService_GetSnapshot(t *testing.T) {
	snap := testSnapshot()
	svc, _, _ := newService(t, snap)

	resp, err := svc.GetSnapshot(context.Background(), &query.GetSnapshotRequest{})
	require.NoError(t, err)
	assert.Equal(t, snap.CycleID, resp.CycleID)
	assert.Equal(t, 2000.0, resp.ReferencePrice)
	assert.Equal(t, risk.ScanRange{Min: 1000, Max: 2200, Step: 50}, resp.Range)
	assert.Equal(t, 3, resp.Summary.Positions)
	assert.Equal(t, 1, resp.Summary.AtRisk)
}

func TestService_ListPositions_SortsAndFilters(t *testing.T) {
	svc, _, _ := newService(t, testSnapshot())
	ctx := context.Background()

	resp, err := svc.ListPositions(ctx, &query.ListPositionsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Positions, 3)
	assert.Equal(t, []string{addrB, addrA, addrC}, addresses(resp.Positions))
	assert.Equal(t, "whale", resp.Positions[1].Label)
	assert.Equal(t, "warning", resp.Positions[0].Band)
	assert.Equal(t, "1.10", resp.Positions[0].HealthFactorText)
	assert.Equal(t, "$1,800.00", resp.Positions[0].LiquidationText)
	require.NotNil(t, resp.Positions[0].DistanceToLiqPct)
	assert.InDelta(t, 10, *resp.Positions[0].DistanceToLiqPct, 1e-9)

	resp, err = svc.ListPositions(ctx, &query.ListPositionsRequest{Sort: query.SortCollateral, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{addrC, addrA}, addresses(resp.Positions))

	resp, err = svc.ListPositions(ctx, &query.ListPositionsRequest{Sort: query.SortLiquidation})
	require.NoError(t, err)
	assert.Equal(t, []string{addrB, addrA, addrC}, addresses(resp.Positions))

	resp, err = svc.ListPositions(ctx, &query.ListPositionsRequest{AtRiskOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{addrB}, addresses(resp.Positions))

	_, err = svc.ListPositions(ctx, &query.ListPositionsRequest{Sort: "alphabetical"})
	assert.ErrorIs(t, err, query.ErrInvalidArgument)
	_, err = svc.ListPositions(ctx, &query.ListPositionsRequest{Limit: -1})
	assert.ErrorIs(t, err, query.ErrInvalidArgument)
}

func addresses(views []query.PositionView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Address
	}
	return out
}

func TestService_GetPosition(t *testing.T) {
	svc, _, _ := newService(t, testSnapshot())
	ctx := context.Background()

	resp, err := svc.GetPosition(ctx, &query.GetPositionRequest{Address: "0x00000000000000000000000000000000000000AA"})
	require.NoError(t, err)
	assert.Equal(t, addrA, resp.Position.Address)
	assert.Equal(t, "whale", resp.Position.Label)
	assert.Equal(t, "moderate", resp.Position.Band)

	_, err = svc.GetPosition(ctx, &query.GetPositionRequest{Address: "0x00000000000000000000000000000000000000dd"})
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	_, err = svc.GetPosition(ctx, &query.GetPositionRequest{Address: "whale"})
	assert.ErrorIs(t, err, chain.ErrInvalidAddress)
}

// ============================================================================
// Test: risk curve and simulation
// ============================================================================

func TestService_GetRiskCurve(t *testing.T) {
	snap := testSnapshot()
	svc, _, _ := newService(t, snap)
	ctx := context.Background()

	resp, err := svc.GetRiskCurve(ctx, &query.GetRiskCurveRequest{})
	require.NoError(t, err)
	assert.Equal(t, snap.Curve, resp.Points)
	assert.Equal(t, snap.Range, resp.Range)

	resp, err = svc.GetRiskCurve(ctx, &query.GetRiskCurveRequest{Min: 500, Max: 2000, Step: 500})
	require.NoError(t, err)
	require.Len(t, resp.Points, 4)
	assert.Equal(t, 3, resp.Points[0].PositionCount) // 500
	assert.Equal(t, 2, resp.Points[1].PositionCount) // 1000
	assert.Equal(t, 1, resp.Points[2].PositionCount) // 1500
	assert.Equal(t, 0, resp.Points[3].PositionCount) // 2000
	assert.InDelta(t, 75_000, resp.Points[0].CumulativeAtRiskUSD, 1e-9)

	bad := []query.GetRiskCurveRequest{
		{Min: 0, Max: 100, Step: 0},
		{Min: 100, Max: 50, Step: 1},
		{Min: -1, Max: 50, Step: 1},
		{Min: 0, Max: 1_000_000, Step: 1},
		{Min: 0, Max: math.Inf(1), Step: 1},
		{Min: 1e300, Max: 1e300, Step: 1},
		{Min: 1e17, Max: 1e17, Step: 1},
		{Min: 0, Max: 1e300, Step: 1},
	}
	for _, req := range bad {
		_, err := svc.GetRiskCurve(ctx, &req)
		assert.ErrorIs(t, err, query.ErrInvalidArgument, "req=%+v", req)
	}

	_, err = svc.GetRiskCurve(ctx, &query.GetRiskCurveRequest{Min: 1e300, Max: 1e300, Step: 1})
	assert.ErrorContains(t, err, "step too small")
}

func TestService_SimulatePrice(t *testing.T) {
	svc, _, _ := newService(t, testSnapshot())
	ctx := context.Background()

	resp, err := svc.SimulatePrice(ctx, &query.SimulatePriceRequest{Price: 1000})
	require.NoError(t, err)
	require.Len(t, resp.Positions, 3)

	// A: 20000*0.5*0.8/10000 = 0.8
	hf, ok := resp.Positions[0].ProjectedHealth.Value()
	require.True(t, ok)
	assert.InDelta(t, 0.8, hf, 1e-9)
	assert.True(t, resp.Positions[0].Liquidatable)
	assert.InDelta(t, 10_000, resp.Positions[0].CollateralAtTarget, 1e-9)

	// C: 50000*0.5*0.8/13333.33 = 1.5
	assert.False(t, resp.Positions[2].Liquidatable)

	assert.Equal(t, 2, resp.Liquidatable)
	assert.InDelta(t, 10_000+2_500, resp.LiquidatableCollateralUSD, 1e-9)

	for _, p := range []float64{0, -5, math.NaN()} {
		_, err := svc.SimulatePrice(ctx, &query.SimulatePriceRequest{Price: p})
		assert.ErrorIs(t, err, query.ErrInvalidArgument)
	}
}

// ============================================================================
// Test: watch-list
// ============================================================================

func TestService_AddressLifecycle(t *testing.T) {
	svc, mon, _ := newService(t, testSnapshot())
	ctx := context.Background()

	added, err := svc.AddAddress(ctx, &query.AddAddressRequest{Address: "0x00000000000000000000000000000000000000BB", Label: "b"})
	require.NoError(t, err)
	assert.Equal(t, addrB, added.Entry.Address)
	assert.Equal(t, 1, mon.triggers)

	list, err := svc.ListAddresses(ctx, &query.ListAddressesRequest{})
	require.NoError(t, err)
	assert.Len(t, list.Addresses, 2)

	removed, err := svc.RemoveAddress(ctx, &query.RemoveAddressRequest{Address: addrB})
	require.NoError(t, err)
	assert.True(t, removed.Removed)
	assert.Equal(t, 2, mon.triggers)

	_, err = svc.RemoveAddress(ctx, &query.RemoveAddressRequest{Address: addrB})
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = svc.AddAddress(ctx, &query.AddAddressRequest{Address: "nope"})
	assert.ErrorIs(t, err, chain.ErrInvalidAddress)
	assert.Equal(t, 2, mon.triggers)
}

// ============================================================================
// Test: transactions and history
// ============================================================================

func TestService_ListTransactions(t *testing.T) {
	mon := &fakeMonitor{snap: testSnapshot()}
	ex := &fakeExplorer{txs: []explorer.Transaction{{
		Hash:      "0xabc",
		Value:     "1500000000000000000",
		Timestamp: time.Now().Add(-2 * time.Hour).Unix(),
	}}}
	svc := query.NewService(mon, persistence.NewMemoryWatchList(), ex, nil)

	resp, err := svc.ListTransactions(context.Background(), &query.ListTransactionsRequest{Address: "0x00000000000000000000000000000000000000AA"})
	require.NoError(t, err)
	assert.Equal(t, addrA, ex.addr)
	assert.Equal(t, addrA, resp.Address)
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, "1.5000 ETH", resp.Transactions[0].ValueETH)
	assert.Equal(t, "2h ago", resp.Transactions[0].Age)
	assert.Equal(t, explorer.TxURL("0xabc"), resp.Transactions[0].URL)
	assert.Equal(t, explorer.AddressURL(addrA), resp.ExplorerURL)

	ex.err = errors.New("rate limited")
	_, err = svc.ListTransactions(context.Background(), &query.ListTransactionsRequest{Address: addrA})
	assert.Error(t, err)

	_, err = svc.ListTransactions(context.Background(), &query.ListTransactionsRequest{Address: addrA, Offset: 500})
	assert.ErrorIs(t, err, query.ErrInvalidArgument)
}

func TestService_OptionalBackends(t *testing.T) {
	svc, _, _ := newService(t, testSnapshot())
	_, err := svc.ListTransactions(context.Background(), &query.ListTransactionsRequest{Address: addrA})
	assert.ErrorIs(t, err, query.ErrUnavailable)
	_, err = svc.GetHistory(context.Background(), &query.GetHistoryRequest{})
	assert.ErrorIs(t, err, query.ErrUnavailable)
}

func TestService_GetHistory(t *testing.T) {
	hist := &fakeHistory{metas: []persistence.SnapshotMeta{{CycleID: uuid.New(), ReferencePrice: 2000}}}
	svc := query.NewService(&fakeMonitor{}, persistence.NewMemoryWatchList(), nil, hist)

	resp, err := svc.GetHistory(context.Background(), &query.GetHistoryRequest{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, resp.Snapshots, 1)
	assert.Equal(t, 5, hist.limit)

	_, err = svc.GetHistory(context.Background(), &query.GetHistoryRequest{Limit: 5000})
	assert.ErrorIs(t, err, query.ErrInvalidArgument)
}
