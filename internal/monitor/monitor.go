// Package monitor runs the periodic refresh cycle: fetch, normalize, build
// the risk curve, publish an immutable snapshot.
package monitor

import (
	"LiqWatch/internal/chain"
	"LiqWatch/internal/observability"
	"LiqWatch/internal/risk"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PriceSource provides the reference price.
type PriceSource interface {
	LatestPrice(ctx context.Context) (chain.Price, error)
}

// AccountSource provides raw per-account aggregates, all or nothing.
type AccountSource interface {
	AccountSummaries(ctx context.Context, addresses []string) ([]risk.RawAccountSummary, error)
}

// LegSource provides per-reserve legs for one account.
type LegSource interface {
	AssetLegs(ctx context.Context, address string) ([]risk.AssetLeg, error)
}

// AddressLister provides the addresses to scan each cycle.
type AddressLister interface {
	Addresses(ctx context.Context) ([]string, error)
}

// Sink receives every published snapshot.
type Sink interface {
	Deliver(ctx context.Context, snap *Snapshot) error
}

// Options configures a Monitor. Legs may be nil to scan aggregates only.
type Options struct {
	Prices    PriceSource
	Accounts  AccountSource
	Legs      LegSource
	Addresses AddressLister

	Interval     time.Duration
	CycleTimeout time.Duration

	Metrics *observability.Metrics
	Health  *observability.HealthChecker
	Logger  zerolog.Logger
}

// Monitor owns the current snapshot and the refresh loop.
type Monitor struct {
	opts    Options
	current atomic.Pointer[Snapshot]
	trigger chan struct{}

	mu    sync.Mutex // serializes cycles
	sinks []Sink

	now func() time.Time
}

func New(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = opts.Interval
	}
	return &Monitor{
		opts:    opts,
		trigger: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// AddSink registers a sink. Sinks are called in registration order.
func (m *Monitor) AddSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Current returns the latest snapshot, or nil before the first cycle.
func (m *Monitor) Current() *Snapshot {
	return m.current.Load()
}

// Restore seeds the current snapshot from history. It is ignored once a
// live cycle has completed.
func (m *Monitor) Restore(s *Snapshot) bool {
	if s == nil {
		return false
	}
	return m.current.CompareAndSwap(nil, s)
}

// Trigger requests an immediate cycle. Requests coalesce while one is
// pending.
func (m *Monitor) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Run executes a cycle immediately and then every interval or on Trigger,
// until ctx is cancelled. Failed cycles are logged and leave the previous
// snapshot in place.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runLogged(ctx)
		case <-m.trigger:
			m.runLogged(ctx)
			ticker.Reset(m.opts.Interval)
		}
	}
}

func (m *Monitor) runLogged(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, m.opts.CycleTimeout)
	defer cancel()

	snap, err := m.RunCycle(cctx)
	if err != nil {
		if ctx.Err() == nil {
			m.opts.Logger.Warn().Err(err).Msg("refresh cycle discarded")
		}
		return
	}
	m.opts.Logger.Info().
		Str("cycle_id", snap.CycleID.String()).
		Float64("price", snap.Price.Value).
		Int("positions", snap.Summary.Positions).
		Int("at_risk", snap.Summary.AtRisk).
		Msg("refresh cycle complete")
}

// RunCycle performs one refresh. Any fetch failure discards the whole cycle
// and returns the error; the previous snapshot stays current.
func (m *Monitor) RunCycle(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.now()

	addresses, err := m.opts.Addresses.Addresses(ctx)
	if err != nil {
		return nil, m.fail("addresses", fmt.Errorf("list addresses: %w", err))
	}

	var (
		price     chain.Price
		summaries []risk.RawAccountSummary
		legs      = make([][]risk.AssetLeg, len(addresses))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.Now()
		p, err := m.opts.Prices.LatestPrice(gctx)
		m.observeFetch("price", t, err)
		if err != nil {
			return fmt.Errorf("reference price: %w", err)
		}
		price = p
		return nil
	})
	g.Go(func() error {
		if len(addresses) == 0 {
			return nil
		}
		t := time.Now()
		s, err := m.opts.Accounts.AccountSummaries(gctx, addresses)
		m.observeFetch("accounts", t, err)
		if err != nil {
			return fmt.Errorf("account summaries: %w", err)
		}
		summaries = s
		return nil
	})
	if m.opts.Legs != nil {
		for i, addr := range addresses {
			i, addr := i, addr
			g.Go(func() error {
				t := time.Now()
				l, err := m.opts.Legs.AssetLegs(gctx, addr)
				m.observeFetch("reserves", t, err)
				if err != nil {
					return fmt.Errorf("asset legs %s: %w", addr, err)
				}
				legs[i] = l
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, m.fail("fetch", err)
	}
	if len(summaries) != len(addresses) {
		return nil, m.fail("fetch", fmt.Errorf("got %d summaries for %d addresses", len(summaries), len(addresses)))
	}

	inputs := make([]risk.Input, len(addresses))
	for i, s := range summaries {
		if m.opts.Legs != nil {
			inputs[i] = risk.DetailedInput{Summary: s, Legs: legs[i]}
		} else {
			inputs[i] = risk.BasicInput{Summary: s}
		}
	}

	positions := risk.NormalizeAll(inputs, price.Value)
	scan := risk.SelectPriceRange(price.Value)
	snap := &Snapshot{
		CycleID:   uuid.New(),
		TakenAt:   m.now().UTC(),
		Price:     price,
		Positions: positions,
		Range:     scan,
		Curve:     risk.BuildRiskCurve(positions, price.Value, scan),
		Summary:   risk.Aggregate(positions),
	}

	m.current.Store(snap)
	m.record(snap, start)

	for _, sink := range m.sinks {
		if err := sink.Deliver(ctx, snap); err != nil {
			m.opts.Logger.Warn().Err(err).Str("cycle_id", snap.CycleID.String()).Msg("sink delivery failed")
		}
	}
	return snap, nil
}

func (m *Monitor) fail(stage string, err error) error {
	if m.opts.Metrics != nil {
		m.opts.Metrics.CyclesTotal.WithLabelValues("discarded").Inc()
		m.opts.Metrics.CycleFailures.WithLabelValues(stage).Inc()
	}
	return err
}

func (m *Monitor) observeFetch(source string, start time.Time, err error) {
	if m.opts.Metrics == nil {
		return
	}
	m.opts.Metrics.FetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		m.opts.Metrics.RPCErrors.WithLabelValues(source).Inc()
	}
}

func (m *Monitor) record(snap *Snapshot, start time.Time) {
	if m.opts.Health != nil {
		m.opts.Health.MarkCycle(snap.TakenAt)
	}
	met := m.opts.Metrics
	if met == nil {
		return
	}
	met.CyclesTotal.WithLabelValues("ok").Inc()
	met.CycleDuration.Observe(m.now().Sub(start).Seconds())
	met.PositionsTracked.Set(float64(snap.Summary.Positions))
	met.PositionsAtRisk.Set(float64(snap.Summary.AtRisk))
	met.PositionsPriced.Set(float64(snap.Summary.WithLiquidation))
	met.TotalCollateral.Set(snap.Summary.TotalCollateralUSD)
	met.TotalDebt.Set(snap.Summary.TotalDebtUSD)
	met.ReferencePrice.Set(snap.Price.Value)
	met.CurvePoints.Set(float64(len(snap.Curve)))
	if snap.Summary.LowestHealthFactor != nil {
		met.LowestHealth.Set(*snap.Summary.LowestHealthFactor)
	}
	met.LastCycleUnixTime.Set(float64(snap.TakenAt.Unix()))
}
