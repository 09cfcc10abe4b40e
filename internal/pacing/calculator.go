package pacing

// Hysteresis thresholds on (maxAbandonRate - observedAbandonRate).
// The band is deliberately coarse; continuous control oscillates near the cap.
const (
	hardCutoff  = -0.005
	growCutoff  = 0.01
	hardFactor  = 0.85
	trimFactor  = 0.95
	growFactor  = 1.10
	inertia     = 0.7
	minPacing   = 1.0
	maxPerAgent = 1.5
)

// ComputeDialRate turns live occupancy/ASR/abandonment observations into the
// next pacing ratio (simultaneous dial attempts per available agent).
//
// Guarantees, for any input combination:
//   - never divides by zero: agentsAvailable == 0 or observedASR == 0 returns 1.0
//   - result is clamped to [1.0, agentsAvailable*1.5]
//
// The new target is exponentially smoothed against currentPacing (70% inertia)
// so a single noisy observation cannot step the rate.
func ComputeDialRate(
	targetOccupancy float64,
	avgHandleTimeSec float64,
	observedASR float64,
	observedAbandonRate float64,
	maxAbandonRate float64,
	agentsAvailable int,
	currentPacing float64,
) float64 {
	if agentsAvailable <= 0 || observedASR <= 0 {
		return minPacing
	}

	base := (float64(agentsAvailable) * targetOccupancy) / observedASR

	headroom := maxAbandonRate - observedAbandonRate
	factor := 1.0
	switch {
	case headroom < hardCutoff:
		factor = hardFactor
	case headroom < 0:
		factor = trimFactor
	case headroom > growCutoff:
		factor = growFactor
	}

	next := inertia*currentPacing + (1-inertia)*base*factor

	ceiling := float64(agentsAvailable) * maxPerAgent
	if next < minPacing {
		next = minPacing
	}
	if next > ceiling {
		next = ceiling
	}
	return next
}
