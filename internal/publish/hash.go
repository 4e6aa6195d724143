package publish

import (
	"LiqWatch/internal/monitor"
	"encoding/binary"
	"encoding/hex"
	"math"

	"lukechampine.com/blake3"
)

const hashSeed = "liqwatch:snapshot:v1"

// ContentHash digests the market state of a snapshot: reference price and
// every position's address, health factor, collateral, debt and estimate.
// Cycle ID and timestamps are excluded, so two cycles that saw the same
// state share a hash and JetStream deduplicates the second publish.
func ContentHash(snap *monitor.Snapshot) string {
	h := blake3.New(32, nil)
	h.Write([]byte(hashSeed))

	var buf [8]byte
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	writeFloat(snap.Price.Value)
	for _, p := range snap.Positions {
		h.Write([]byte(p.Address))
		h.Write([]byte{0})
		if p.HealthFactor.IsUnbounded() {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
			writeFloat(p.HealthFactor.Float64())
		}
		writeFloat(p.TotalCollateralUSD)
		writeFloat(p.TotalDebtUSD)
		if p.EstimatedLiquidationPrice != nil {
			writeFloat(*p.EstimatedLiquidationPrice)
		} else {
			writeFloat(-1)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
