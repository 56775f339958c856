package remit

import "math"

// RoundHalfUp rounds to 2 decimals with ties going away from zero, the
// convention the statement and fee math use everywhere.
func RoundHalfUp(x float64) float64 {
	if x < 0 {
		return -math.Floor(-x*100+0.5) / 100
	}
	return math.Floor(x*100+0.5) / 100
}

// SvcFee computes the monthly servicing fee on the average UPB:
// avgUPB * bps / 10_000 / 12 * participationPct, rounded half-up.
func SvcFee(avgUPB float64, bps int, participationPct float64) float64 {
	return RoundHalfUp(avgUPB * float64(bps) / 10_000 / 12 * participationPct)
}
