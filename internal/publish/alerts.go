package publish

import (
	"LiqWatch/internal/display"
	"LiqWatch/internal/monitor"
	"LiqWatch/internal/risk"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Alert is raised when a position moves into a worse health band while
// below the alert threshold.
type Alert struct {
	CycleID                   uuid.UUID         `json:"cycle_id"`
	Address                   string            `json:"address"`
	Band                      string            `json:"band"`
	PreviousBand              string            `json:"previous_band"`
	HealthFactor              risk.HealthFactor `json:"health_factor"`
	EstimatedLiquidationPrice *float64          `json:"estimated_liquidation_price"`
	ReferencePrice            float64           `json:"reference_price"`
	TotalCollateralUSD        float64           `json:"total_collateral_usd"`
	TotalDebtUSD              float64           `json:"total_debt_usd"`
	RaisedAt                  time.Time         `json:"raised_at"`
}

// AlertTracker remembers the last band seen per address, bounded by an
// LRU, and reports only transitions into a worse band. A position that
// stays in its band raises nothing; one that recovers and worsens again
// raises a new alert.
type AlertTracker struct {
	mu        sync.Mutex
	bands     *LRU[string, display.Band]
	threshold float64

	// suppressed counts positions below threshold that raised nothing
	// because their band had not worsened.
	suppressed int64
}

func NewAlertTracker(capacity int, threshold float64) *AlertTracker {
	return &AlertTracker{
		bands:     NewLRU[string, display.Band](capacity),
		threshold: threshold,
	}
}

// Prime records the bands of a snapshot without raising alerts, so a
// restart that restores history does not re-alert positions whose band is
// unchanged. A nil snapshot is ignored.
func (t *AlertTracker) Prime(snap *monitor.Snapshot) int {
	if snap == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	primed := 0
	for _, p := range snap.Positions {
		if v, ok := p.HealthFactor.Value(); ok && v == 0 {
			continue
		}
		t.bands.Add(p.Address, display.HealthBand(p.HealthFactor))
		primed++
	}
	return primed
}

// Evaluate updates the tracker with a snapshot and returns the alerts it
// raises, in position order. Addresses neither primed nor seen start as safe.
func (t *AlertTracker) Evaluate(snap *monitor.Snapshot) []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	var alerts []Alert
	for _, p := range snap.Positions {
		band := display.HealthBand(p.HealthFactor)
		if v, ok := p.HealthFactor.Value(); ok && v == 0 {
			// no position data; keep whatever was known
			continue
		}

		prev, ok := t.bands.Get(p.Address)
		if !ok {
			prev = display.BandSafe
		}
		t.bands.Add(p.Address, band)

		if !p.HealthFactor.Below(t.threshold) {
			continue
		}
		if !band.Worse(prev) {
			t.suppressed++
			continue
		}

		alerts = append(alerts, Alert{
			CycleID:                   snap.CycleID,
			Address:                   p.Address,
			Band:                      band.String(),
			PreviousBand:              prev.String(),
			HealthFactor:              p.HealthFactor,
			EstimatedLiquidationPrice: p.EstimatedLiquidationPrice,
			ReferencePrice:            snap.Price.Value,
			TotalCollateralUSD:        p.TotalCollateralUSD,
			TotalDebtUSD:              p.TotalDebtUSD,
			RaisedAt:                  snap.TakenAt,
		})
	}
	return alerts
}

// Suppressed returns how many repeat alerts were withheld so far.
func (t *AlertTracker) Suppressed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed
}
