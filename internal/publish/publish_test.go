package publish_test

import (
	"LiqWatch/internal/chain"
	"LiqWatch/internal/monitor"
	"LiqWatch/internal/observability"
	"LiqWatch/internal/publish"
	"LiqWatch/internal/risk"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0x00000000000000000000000000000000000000aa"
	addrB = "0x00000000000000000000000000000000000000bb"
)

func pos(addr string, hf float64) risk.Position {
	return risk.Position{
		Address:            addr,
		HealthFactor:       risk.Finite(hf),
		TotalCollateralUSD: 10_000,
		TotalDebtUSD:       5_000,
		IsAtRisk:           risk.Finite(hf).IsAtRisk(),
	}
}

func snap(price float64, positions ...risk.Position) *monitor.Snapshot {
	return &monitor.Snapshot{
		CycleID:   uuid.New(),
		TakenAt:   time.Now().UTC(),
		Price:     chain.Price{Value: price},
		Positions: positions,
	}
}

// ============================================================================
// Test: LRU
// ============================================================================

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	l := publish.NewLRU[string, int](2)
	l.Add("a", 1)
	l.Add("b", 2)

	v, ok := l.Get("a") // a is now most recent
	require.True(t, ok)
	assert.Equal(t, 1, v)

	l.Add("c", 3)
	_, ok = l.Get("b")
	assert.False(t, ok, "b should be evicted")
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, int64(1), l.Evictions())
}

func TestLRU_UpdateAndRemove(t *testing.T) {
	l := publish.NewLRU[string, int](2)
	l.Add("a", 1)
	l.Add("a", 10)
	v, _ := l.Get("a")
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, l.Len())

	l.Remove("a")
	l.Remove("missing")
	assert.Equal(t, 0, l.Len())
}

// ============================================================================
// Test: ContentHash
// ============================================================================

func TestContentHash_IgnoresCycleIdentity(t *testing.T) {
	a := snap(2000, pos(addrA, 1.3))
	b := snap(2000, pos(addrA, 1.3))
	require.NotEqual(t, a.CycleID, b.CycleID)

	assert.Equal(t, publish.ContentHash(a), publish.ContentHash(b))
	assert.Len(t, publish.ContentHash(a), 64)
}

func TestContentHash_ChangesWithState(t *testing.T) {
	base := publish.ContentHash(snap(2000, pos(addrA, 1.3)))

	assert.NotEqual(t, base, publish.ContentHash(snap(2001, pos(addrA, 1.3))))
	assert.NotEqual(t, base, publish.ContentHash(snap(2000, pos(addrA, 1.31))))
	assert.NotEqual(t, base, publish.ContentHash(snap(2000, pos(addrB, 1.3))))

	liq := 1500.0
	p := pos(addrA, 1.3)
	p.EstimatedLiquidationPrice = &liq
	assert.NotEqual(t, base, publish.ContentHash(snap(2000, p)))
}

// ============================================================================
// Test: AlertTracker
// ============================================================================

func TestAlertTracker_RaisesOnWorseningOnly(t *testing.T) {
	tr := publish.NewAlertTracker(100, 1.5)

	// 1.3 -> warning, first sighting counts as worse than safe
	alerts := tr.Evaluate(snap(2000, pos(addrA, 1.3), pos(addrB, 3)))
	require.Len(t, alerts, 1)
	assert.Equal(t, addrA, alerts[0].Address)
	assert.Equal(t, "warning", alerts[0].Band)
	assert.Equal(t, "safe", alerts[0].PreviousBand)

	// same band again: suppressed
	assert.Empty(t, tr.Evaluate(snap(2000, pos(addrA, 1.25))))
	assert.Equal(t, int64(1), tr.Suppressed())

	// warning -> danger
	alerts = tr.Evaluate(snap(1900, pos(addrA, 1.05)))
	require.Len(t, alerts, 1)
	assert.Equal(t, "danger", alerts[0].Band)
	assert.Equal(t, "warning", alerts[0].PreviousBand)
	assert.Equal(t, 1900.0, alerts[0].ReferencePrice)

	// recover, then worsen again
	assert.Empty(t, tr.Evaluate(snap(2100, pos(addrA, 1.8))))
	alerts = tr.Evaluate(snap(1900, pos(addrA, 1.2)))
	require.Len(t, alerts, 1)
	assert.Equal(t, "moderate", alerts[0].PreviousBand)
}

func TestAlertTracker_PrimeSuppressesUnchangedBands(t *testing.T) {
	tr := publish.NewAlertTracker(100, 1.5)

	restored := snap(2000, pos(addrA, 1.3), pos(addrB, 0))
	assert.Equal(t, 1, tr.Prime(restored))
	assert.Zero(t, tr.Prime(nil))

	// same warning band as before the restart
	assert.Empty(t, tr.Evaluate(snap(2000, pos(addrA, 1.25))))

	// worsening after the restart still alerts
	alerts := tr.Evaluate(snap(1900, pos(addrA, 1.05)))
	require.Len(t, alerts, 1)
	assert.Equal(t, "warning", alerts[0].PreviousBand)

	// a zero health factor was not primed, so addrB starts as safe
	alerts = tr.Evaluate(snap(1900, pos(addrB, 1.3)))
	require.Len(t, alerts, 1)
	assert.Equal(t, "safe", alerts[0].PreviousBand)
}

func TestAlertTracker_ThresholdAndEmptyPositions(t *testing.T) {
	tr := publish.NewAlertTracker(100, 1.2)

	// moderate band (1.5..2) is worse than safe but above threshold
	assert.Empty(t, tr.Evaluate(snap(2000, pos(addrA, 1.6))))
	// warning band but still above threshold 1.2
	assert.Empty(t, tr.Evaluate(snap(2000, pos(addrA, 1.25))))
	// zero health factor means no position
	assert.Empty(t, tr.Evaluate(snap(2000, pos(addrB, 0))))
	// unbounded never alerts
	p := pos(addrB, 0)
	p.HealthFactor = risk.Unbounded()
	assert.Empty(t, tr.Evaluate(snap(2000, p)))
}

// ============================================================================
// Test: Publisher
// ============================================================================

type published struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	mu   sync.Mutex
	msgs []published
	fail bool
}

func (f *fakeJetStream) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("no responders")
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return &jetstream.PubAck{Stream: publish.StreamName}, nil
}

func (f *fakeJetStream) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.subject
	}
	return out
}

func newPublisher(js publish.JetStreamPublisher, ch <-chan *monitor.Snapshot) *publish.Publisher {
	return publish.NewPublisher(js, ch, publish.NewAlertTracker(100, 1.5),
		observability.NewMetricsWith(prometheus.NewRegistry()), zerolog.Nop())
}

func TestPublisher_SnapshotAndAlerts(t *testing.T) {
	js := &fakeJetStream{}
	p := newPublisher(js, nil)

	s := snap(2000, pos(addrA, 1.05), pos(addrB, 4))
	p.Publish(context.Background(), s)

	assert.Equal(t, []string{publish.SnapshotSubject, publish.AlertSubject(addrA)}, js.subjects())

	var decoded publish.Alert
	require.NoError(t, json.Unmarshal(js.msgs[1].data, &decoded))
	assert.Equal(t, s.CycleID, decoded.CycleID)
	assert.Equal(t, "danger", decoded.Band)
	assert.Equal(t, risk.Finite(1.05), decoded.HealthFactor)
}

func TestPublisher_FailureIsNotFatal(t *testing.T) {
	js := &fakeJetStream{fail: true}
	p := newPublisher(js, nil)

	assert.NotPanics(t, func() { p.Publish(context.Background(), snap(2000, pos(addrA, 1.05))) })
	assert.Empty(t, js.subjects())
}

func TestPublisher_RunDrainsChannel(t *testing.T) {
	js := &fakeJetStream{}
	ch := make(chan *monitor.Snapshot, 2)
	p := newPublisher(js, ch)

	ch <- snap(2000, pos(addrA, 3))
	ch <- snap(2000, pos(addrA, 3))
	close(ch)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{publish.SnapshotSubject, publish.SnapshotSubject}, js.subjects())
}

func TestAlertSubject(t *testing.T) {
	assert.Equal(t, "liqwatch.alerts."+addrA, publish.AlertSubject(addrA))
}
