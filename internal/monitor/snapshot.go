package monitor

import (
	"LiqWatch/internal/chain"
	"LiqWatch/internal/risk"
	"time"

	"github.com/google/uuid"
)

// Snapshot is the immutable result of one successful refresh cycle. Readers
// share it by pointer and must not modify it.
type Snapshot struct {
	CycleID   uuid.UUID             `json:"cycle_id"`
	TakenAt   time.Time             `json:"taken_at"`
	Price     chain.Price           `json:"price"`
	Positions []risk.Position       `json:"positions"`
	Range     risk.ScanRange        `json:"range"`
	Curve     []risk.RiskCurvePoint `json:"curve"`
	Summary   risk.Summary          `json:"summary"`
}

// ReferencePrice is the price every position in the snapshot was
// normalized against.
func (s *Snapshot) ReferencePrice() float64 {
	return s.Price.Value
}

// Position finds a position by address, case-insensitively.
func (s *Snapshot) Position(address string) (risk.Position, bool) {
	want := risk.NormalizeAddress(address)
	for _, p := range s.Positions {
		if p.Address == want {
			return p, true
		}
	}
	return risk.Position{}, false
}

// AtRisk returns the positions flagged at risk, in snapshot order.
func (s *Snapshot) AtRisk() []risk.Position {
	var out []risk.Position
	for _, p := range s.Positions {
		if p.IsAtRisk {
			out = append(out, p)
		}
	}
	return out
}

// CurveFor recomputes the curve over a caller-chosen range against the
// snapshot's positions.
func (s *Snapshot) CurveFor(r risk.ScanRange) []risk.RiskCurvePoint {
	return risk.BuildRiskCurve(s.Positions, s.Price.Value, r)
}
