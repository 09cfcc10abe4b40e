package trunks

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

type stubTrunkRepo struct {
	trunks []Trunk
	health map[string]Health

	listCalls int
}

func (s *stubTrunkRepo) EnabledTrunks(ctx context.Context) ([]Trunk, error) {
	s.listCalls++
	return s.trunks, nil
}

func (s *stubTrunkRepo) HealthByTrunk(ctx context.Context, window time.Duration) (map[string]Health, error) {
	return s.health, nil
}

func TestPickWeighted_ConvergesToProportions(t *testing.T) {
	entries := []Weighted{{Name: "a", Weight: 100}, {Name: "b", Weight: 50}}
	rng := rand.New(rand.NewSource(1))

	counts := map[string]int{}
	const trials = 10000
	for i := 0; i < trials; i++ {
		name, ok := PickWeighted(entries, rng)
		if !ok {
			t.Fatalf("expected a pick")
		}
		counts[name]++
	}

	ratio := float64(counts["a"]) / float64(counts["b"])
	if ratio < 1.8 || ratio > 2.2 {
		t.Fatalf("expected a:b ratio near 2.0 over %d trials, got %.3f (a=%d b=%d)", trials, ratio, counts["a"], counts["b"])
	}
}

func TestPickWeighted_EmptyAndZeroWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, ok := PickWeighted(nil, rng); ok {
		t.Fatalf("expected no pick from empty list")
	}
	if _, ok := PickWeighted([]Weighted{{Name: "a", Weight: 0}}, rng); ok {
		t.Fatalf("expected no pick when total weight is zero")
	}
}

func TestEffectiveWeights_ASRPenaltyNeverRanksHigher(t *testing.T) {
	trunks := []Trunk{
		{ID: 1, Name: "good", Enabled: true, Weight: 100},
		{ID: 2, Name: "bad", Enabled: true, Weight: 100},
	}
	health := map[string]Health{
		"good": {ASR: 0.5, HasData: true},
		"bad":  {ASR: 0.1, HasData: true},
	}

	out := EffectiveWeights(trunks, health, Policy{})
	weights := map[string]int{}
	for _, w := range out {
		weights[w.Name] = w.Weight
	}
	if weights["bad"] > weights["good"] {
		t.Fatalf("low-ASR trunk outweighed healthy trunk: %v", weights)
	}
	if weights["bad"] != 50 {
		t.Fatalf("expected halved weight 50 for low ASR, got %d", weights["bad"])
	}
}

func TestEffectiveWeights_PenaltiesCompoundWithFloor(t *testing.T) {
	trunks := []Trunk{{ID: 1, Name: "sick", Enabled: true, Weight: 12}}
	health := map[string]Health{"sick": {ASR: 0.05, FiveXX: 40, HasData: true}}

	out := EffectiveWeights(trunks, health, Policy{})
	if len(out) != 1 {
		t.Fatalf("expected one candidate")
	}
	// 12 → halve (floor 5) → 6 → halve (floor 5) → 5
	if out[0].Weight != 5 {
		t.Fatalf("expected compounded penalties to floor at 5, got %d", out[0].Weight)
	}
}

func TestEffectiveWeights_PolicyOverrideAndSort(t *testing.T) {
	trunks := []Trunk{
		{ID: 1, Name: "a", Enabled: true},
		{ID: 2, Name: "b", Enabled: true},
		{ID: 3, Name: "off", Enabled: false},
	}
	policy := Policy{Trunks: []PolicyTrunk{{Name: "b", Weight: 250}}}

	out := EffectiveWeights(trunks, nil, policy)
	if len(out) != 2 {
		t.Fatalf("disabled trunk must be excluded, got %d candidates", len(out))
	}
	if out[0].Name != "b" || out[0].Weight != 250 {
		t.Fatalf("expected policy-weighted trunk first, got %+v", out[0])
	}
	if out[1].Name != "a" || out[1].Weight != 100 {
		t.Fatalf("expected default weight 100 for unnamed trunk, got %+v", out[1])
	}
}

func TestRouter_FallbacksNeverEmpty(t *testing.T) {
	repo := &stubTrunkRepo{}
	r := NewRouter(repo, time.Minute, 15*time.Minute, "default_gw", rand.New(rand.NewSource(1)), nil)

	// No trunks, policy names one: policy wins.
	name, err := r.Pick(context.Background(), Policy{Trunks: []PolicyTrunk{{Name: "gw_primary"}}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if name != "gw_primary" {
		t.Fatalf("expected policy fallback, got %q", name)
	}

	// No trunks, empty policy: default gateway.
	name, err = r.Pick(context.Background(), Policy{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if name != "default_gw" {
		t.Fatalf("expected default gateway, got %q", name)
	}
}

func TestRouter_CacheHonorsTTL(t *testing.T) {
	repo := &stubTrunkRepo{trunks: []Trunk{{ID: 1, Name: "a", Enabled: true}}}

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := NewRouter(repo, time.Minute, 15*time.Minute, "default_gw", rand.New(rand.NewSource(1)), clock)

	for i := 0; i < 5; i++ {
		if _, err := r.Pick(context.Background(), Policy{}); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if repo.listCalls != 1 {
		t.Fatalf("expected one refresh within TTL, got %d", repo.listCalls)
	}

	now = now.Add(61 * time.Second)
	if _, err := r.Pick(context.Background(), Policy{}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if repo.listCalls != 2 {
		t.Fatalf("expected refresh after TTL expiry, got %d", repo.listCalls)
	}
}
