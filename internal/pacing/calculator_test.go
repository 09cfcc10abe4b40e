package pacing

import (
	"math"
	"testing"
)

func TestComputeDialRate_DegenerateInputs(t *testing.T) {
	if got := ComputeDialRate(0.85, 180, 0.4, 0.01, 0.03, 0, 4); got != 1.0 {
		t.Fatalf("zero agents: expected 1.0, got %v", got)
	}
	if got := ComputeDialRate(0.85, 180, 0, 0.01, 0.03, 10, 4); got != 1.0 {
		t.Fatalf("zero ASR: expected 1.0, got %v", got)
	}
}

func TestComputeDialRate_AlwaysWithinClamp(t *testing.T) {
	occs := []float64{0, 0.5, 0.85, 1}
	asrs := []float64{0, 0.05, 0.2, 0.6, 1}
	abandons := []float64{0, 0.01, 0.03, 0.2, 1}
	agents := []int{0, 1, 5, 200}
	pacings := []float64{-3, 0, 1, 50, 1e6}

	for _, occ := range occs {
		for _, asr := range asrs {
			for _, ab := range abandons {
				for _, n := range agents {
					for _, p := range pacings {
						got := ComputeDialRate(occ, 180, asr, ab, 0.03, n, p)
						if math.IsNaN(got) || math.IsInf(got, 0) {
							t.Fatalf("non-finite pacing for asr=%v agents=%d", asr, n)
						}
						if got < 1.0 {
							t.Fatalf("pacing %v below floor (agents=%d asr=%v)", got, n, asr)
						}
						ceiling := float64(n) * 1.5
						if n > 0 && asr > 0 && got > ceiling {
							t.Fatalf("pacing %v above agents*1.5=%v", got, ceiling)
						}
					}
				}
			}
		}
	}
}

func TestComputeDialRate_NonIncreasingInAbandonRate(t *testing.T) {
	const maxAbandon = 0.03
	prev := math.Inf(1)
	for _, ab := range []float64{0.0, 0.01, 0.02, 0.029, 0.031, 0.04, 0.1} {
		got := ComputeDialRate(0.85, 180, 0.4, ab, maxAbandon, 10, 8)
		if got > prev {
			t.Fatalf("pacing increased from %v to %v as abandon rate rose to %v", prev, got, ab)
		}
		prev = got
	}
}

func TestComputeDialRate_OverCapReduces(t *testing.T) {
	const current = 10.0
	over := ComputeDialRate(0.85, 180, 0.9, 0.05, 0.03, 10, current)
	under := ComputeDialRate(0.85, 180, 0.9, 0.01, 0.03, 10, current)
	if over >= under {
		t.Fatalf("expected over-cap pacing %v < under-cap pacing %v", over, under)
	}
}

func TestComputeDialRate_Smoothing(t *testing.T) {
	// With a large gap between current pacing and the computed target,
	// one cycle must close only a fraction of it.
	current := 2.0
	got := ComputeDialRate(0.85, 180, 0.3, 0.0, 0.03, 10, current)
	// base target is 10*0.85/0.3 ≈ 28.3 scaled by 1.10, clamped at 15
	if got >= 15 {
		t.Fatalf("expected smoothed value below clamp ceiling, got %v", got)
	}
	if got <= current {
		t.Fatalf("expected pacing to move toward target, got %v", got)
	}
}
