package risk

import (
	"encoding/json"
	"math"
)

const (
	// HealthFactorCap is the largest decoded value reported as finite.
	HealthFactorCap = 1e10

	// AtRiskThreshold is the early-warning margin above the protocol's hard
	// liquidation boundary of 1.0.
	AtRiskThreshold = 1.5

	// LiquidationBoundary is where the protocol allows liquidation.
	LiquidationBoundary = 1.0
)

// HealthFactor is either a finite non-negative value or Unbounded
// (no debt, or risk too small to be meaningful).
type HealthFactor struct {
	value     float64
	unbounded bool
}

// Finite returns a finite health factor. Values above HealthFactorCap,
// and +Inf, become Unbounded; negative values and NaN clamp to zero.
func Finite(v float64) HealthFactor {
	if math.IsNaN(v) || v < 0 {
		return HealthFactor{}
	}
	if v > HealthFactorCap {
		return Unbounded()
	}
	return HealthFactor{value: v}
}

// Unbounded returns the "no liquidation risk" health factor.
func Unbounded() HealthFactor {
	return HealthFactor{unbounded: true}
}

// IsUnbounded reports whether hf carries no finite value.
func (hf HealthFactor) IsUnbounded() bool {
	return hf.unbounded
}

// Value returns the finite value; ok is false for Unbounded.
func (hf HealthFactor) Value() (v float64, ok bool) {
	if hf.unbounded {
		return 0, false
	}
	return hf.value, true
}

// Float64 returns the value with Unbounded mapped to +Inf.
func (hf HealthFactor) Float64() float64 {
	if hf.unbounded {
		return math.Inf(1)
	}
	return hf.value
}

// Below reports hf < threshold. Unbounded is never below anything.
func (hf HealthFactor) Below(threshold float64) bool {
	return !hf.unbounded && hf.value < threshold
}

// AtLeast reports hf >= threshold. Unbounded is at least anything.
func (hf HealthFactor) AtLeast(threshold float64) bool {
	return hf.unbounded || hf.value >= threshold
}

// IsAtRisk reports 0 < hf < AtRiskThreshold.
func (hf HealthFactor) IsAtRisk() bool {
	return !hf.unbounded && hf.value > 0 && hf.value < AtRiskThreshold
}

// IsLiquidatable reports 0 < hf < 1.
func (hf HealthFactor) IsLiquidatable() bool {
	return !hf.unbounded && hf.value > 0 && hf.value < LiquidationBoundary
}

// MarshalJSON encodes Unbounded as the string "unbounded".
func (hf HealthFactor) MarshalJSON() ([]byte, error) {
	if hf.unbounded {
		return []byte(`"unbounded"`), nil
	}
	return json.Marshal(hf.value)
}

func (hf *HealthFactor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "unbounded" {
			*hf = Unbounded()
			return nil
		}
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*hf = Finite(v)
	return nil
}
