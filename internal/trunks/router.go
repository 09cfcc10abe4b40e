// Package trunks routes originations across SIP trunks, weighting each by
// configured policy and live health (ASR and 5xx rate over a trailing window).
package trunks

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Trunk is a configured SIP gateway.
type Trunk struct {
	ID      int64
	Name    string
	Enabled bool
	Weight  int // configured base weight; 0 means defaultWeight
}

// Health is a derived, expiring snapshot; it is never persisted.
type Health struct {
	ASR     float64
	FiveXX  int
	HasData bool
}

// Policy is a campaign's trunk-routing configuration. Order matters: the
// first named trunk is the routing fallback of last resort before the
// default gateway.
type Policy struct {
	Trunks []PolicyTrunk `json:"trunks"`
}

type PolicyTrunk struct {
	Name        string `json:"name"`
	Weight      int    `json:"weight"`
	MaxChannels int    `json:"max_channels,omitempty"`
}

// Repository abstracts trunk persistence and health aggregation.
type Repository interface {
	EnabledTrunks(ctx context.Context) ([]Trunk, error)

	// HealthByTrunk aggregates ASR and 5xx counts per trunk name over the
	// trailing window.
	HealthByTrunk(ctx context.Context, window time.Duration) (map[string]Health, error)
}

const (
	defaultWeight = 100
	weightFloor   = 5

	asrPenaltyBelow  = 0.2
	fiveXXPenaltyAbove = 20
)

// Weighted is one (name, effective weight) routing candidate.
type Weighted struct {
	Name   string
	Weight int
}

// Router owns the trunk-health cache and performs weighted random selection.
// The cache is replaced wholesale under a TTL; staleness up to the TTL is
// accepted to bound database load.
type Router struct {
	repo   Repository
	ttl    time.Duration
	window time.Duration

	defaultGateway string

	snap atomic.Pointer[snapshot]

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time

	refreshMu sync.Mutex
}

type snapshot struct {
	fetchedAt time.Time
	trunks    []Trunk
	health    map[string]Health
}

func NewRouter(repo Repository, ttl, window time.Duration, defaultGateway string, rng *rand.Rand, now func() time.Time) *Router {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if defaultGateway == "" {
		defaultGateway = "default_gw"
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &Router{
		repo:           repo,
		ttl:            ttl,
		window:         window,
		defaultGateway: defaultGateway,
		rng:            rng,
		now:            now,
	}
}

// Pick selects a trunk name for one origination under the campaign's policy.
// It never returns empty: weighted draw, then the first policy-named trunk,
// then the default gateway.
func (r *Router) Pick(ctx context.Context, policy Policy) (string, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return "", err
	}

	candidates := EffectiveWeights(snap.trunks, snap.health, policy)
	if len(candidates) > 0 {
		r.rngMu.Lock()
		name, ok := PickWeighted(candidates, r.rng)
		r.rngMu.Unlock()
		if ok {
			return name, nil
		}
	}

	if len(policy.Trunks) > 0 && policy.Trunks[0].Name != "" {
		return policy.Trunks[0].Name, nil
	}
	return r.defaultGateway, nil
}

// current returns the cached snapshot, refreshing when stale. Concurrent
// refreshes are serialized; the swap itself is an atomic pointer replace.
func (r *Router) current(ctx context.Context) (*snapshot, error) {
	if s := r.snap.Load(); s != nil && r.now().Sub(s.fetchedAt) < r.ttl {
		return s, nil
	}

	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()
	if s := r.snap.Load(); s != nil && r.now().Sub(s.fetchedAt) < r.ttl {
		return s, nil
	}

	trunks, err := r.repo.EnabledTrunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("trunks: list: %w", err)
	}
	health, err := r.repo.HealthByTrunk(ctx, r.window)
	if err != nil {
		return nil, fmt.Errorf("trunks: health: %w", err)
	}

	s := &snapshot{fetchedAt: r.now(), trunks: trunks, health: health}
	r.snap.Store(s)
	return s, nil
}

// EffectiveWeights computes the per-trunk routing weights: the configured
// weight (policy override first, then trunk row, then 100), halved for bad
// ASR and halved again for elevated 5xx counts, each with a floor of 5.
// The result is sorted by descending weight, name ascending for stability.
func EffectiveWeights(trunks []Trunk, health map[string]Health, policy Policy) []Weighted {
	policyWeight := make(map[string]int, len(policy.Trunks))
	for _, p := range policy.Trunks {
		policyWeight[p.Name] = p.Weight
	}

	out := make([]Weighted, 0, len(trunks))
	for _, t := range trunks {
		if !t.Enabled {
			continue
		}
		w := defaultWeight
		if t.Weight > 0 {
			w = t.Weight
		}
		if pw, ok := policyWeight[t.Name]; ok && pw > 0 {
			w = pw
		}

		if h, ok := health[t.Name]; ok && h.HasData {
			if h.ASR < asrPenaltyBelow {
				w = halveFloor(w)
			}
			if h.FiveXX > fiveXXPenaltyAbove {
				w = halveFloor(w)
			}
		}
		out = append(out, Weighted{Name: t.Name, Weight: w})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func halveFloor(w int) int {
	w /= 2
	if w < weightFloor {
		w = weightFloor
	}
	return w
}

// PickWeighted draws one entry with probability proportional to its weight:
// a uniform draw scaled to the total weight, walked down by cumulative
// subtraction. An exhausted walk falls back to the first (highest-weight)
// entry.
func PickWeighted(entries []Weighted, rng *rand.Rand) (string, bool) {
	total := 0
	for _, e := range entries {
		if e.Weight > 0 {
			total += e.Weight
		}
	}
	if total <= 0 || len(entries) == 0 {
		return "", false
	}

	draw := rng.Intn(total)
	for _, e := range entries {
		if e.Weight <= 0 {
			continue
		}
		draw -= e.Weight
		if draw < 0 {
			return e.Name, true
		}
	}
	return entries[0].Name, true
}
