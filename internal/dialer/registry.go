package dialer

import (
	"context"
	"sort"
	"sync"

	"dialer-platform/internal/telemetry"
)

// Registry owns the campaign loop goroutines. Start and Stop are idempotent;
// at most one loop runs per campaign, and stopping is deterministic through
// per-campaign context cancellation.
type Registry struct {
	orc *Orchestrator

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
	wg      sync.WaitGroup
}

func NewRegistry(orc *Orchestrator) *Registry {
	return &Registry{orc: orc, cancels: make(map[int64]context.CancelFunc)}
}

// Start launches the loop for a campaign. Returns false when a loop is
// already running for it.
func (r *Registry) Start(ctx context.Context, campaignID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, running := r.cancels[campaignID]; running {
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancels[campaignID] = cancel
	telemetry.ActiveCampaigns.Set(float64(len(r.cancels)))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.remove(campaignID)
		r.orc.Run(loopCtx, campaignID)
	}()
	return true
}

// Stop cancels the loop for a campaign. Returns false when none was running.
func (r *Registry) Stop(campaignID int64) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[campaignID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Running returns the campaign IDs with an active loop, sorted.
func (r *Registry) Running() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.cancels))
	for id := range r.cancels {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StopAll cancels every loop and waits for the goroutines to exit.
func (r *Registry) StopAll() {
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Registry) remove(campaignID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[campaignID]; ok {
		cancel()
		delete(r.cancels, campaignID)
	}
	telemetry.ActiveCampaigns.Set(float64(len(r.cancels)))
}
