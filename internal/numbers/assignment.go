// Package numbers implements outbound caller-ID policy: geography lookup and
// rotation of DIDs by usage, health and recency under a soft daily cap.
package numbers

import (
	"context"
	"fmt"
	"time"
)

// DID is an outbound caller-ID number.
type DID struct {
	ID          int64
	Number      string // E.164
	State       string
	Enabled     bool
	HealthScore float64
	DailyCap    int // 0 means use the configured default
	LastUsedAt  *time.Time
	UsedToday   int
}

// Classification buckets for answered-call outcomes, tallied per DID per day.
const (
	ClassHuman     = "human"
	ClassVoicemail = "voicemail"
	ClassFax       = "fax"
	ClassSIT       = "sit"
)

// Repository abstracts DID persistence.
type Repository interface {
	// CandidatesForState returns enabled DIDs for the state (all states when
	// state is empty), ranked: today's usage ascending, health descending,
	// longest idle first with never-used sorting before everything.
	CandidatesForState(ctx context.Context, state string, day time.Time) ([]DID, error)

	// BumpUsage increments the per-day usage counter (insert-or-increment)
	// and stamps last_used.
	BumpUsage(ctx context.Context, didID int64, day, now time.Time) error

	// RecordClassification increments one of the per-day outcome counters.
	RecordClassification(ctx context.Context, didID int64, day time.Time, class string) error
}

// Assigner selects a caller-ID for a destination.
//
// The daily cap is soft: selection prefers under-cap numbers but will fall
// back to the best-ranked candidate rather than stall the campaign, and the
// ranking read and the usage bump are not one transaction, so concurrent
// cycles can transiently exceed the cap.
type Assigner struct {
	repo     Repository
	dailyCap int
	now      func() time.Time
}

func NewAssigner(repo Repository, defaultDailyCap int, now func() time.Time) *Assigner {
	if defaultDailyCap <= 0 {
		defaultDailyCap = 300
	}
	if now == nil {
		now = time.Now
	}
	return &Assigner{repo: repo, dailyCap: defaultDailyCap, now: now}
}

// PickDID selects an outbound number for the requested state and records the
// usage. ok is false when no enabled DID exists at all.
func (a *Assigner) PickDID(ctx context.Context, state string) (DID, bool, error) {
	now := a.now()
	day := usageDay(now)

	candidates, err := a.repo.CandidatesForState(ctx, state, day)
	if err != nil {
		return DID{}, false, fmt.Errorf("numbers: candidates for %q: %w", state, err)
	}
	if len(candidates) == 0 && state != "" {
		// No number in the requested state; any state beats not dialing.
		candidates, err = a.repo.CandidatesForState(ctx, "", day)
		if err != nil {
			return DID{}, false, fmt.Errorf("numbers: fallback candidates: %w", err)
		}
	}
	if len(candidates) == 0 {
		return DID{}, false, nil
	}

	chosen := candidates[0]
	for _, d := range candidates {
		if d.UsedToday < a.capFor(d) {
			chosen = d
			break
		}
	}

	if err := a.repo.BumpUsage(ctx, chosen.ID, day, now); err != nil {
		return DID{}, false, fmt.Errorf("numbers: bump usage did %d: %w", chosen.ID, err)
	}
	return chosen, true, nil
}

// RecordOutcome tallies an answered-call classification against the DID that
// carried it.
func (a *Assigner) RecordOutcome(ctx context.Context, didID int64, class string) error {
	switch class {
	case ClassHuman, ClassVoicemail, ClassFax, ClassSIT:
	default:
		return nil
	}
	return a.repo.RecordClassification(ctx, didID, usageDay(a.now()), class)
}

func (a *Assigner) capFor(d DID) int {
	if d.DailyCap > 0 {
		return d.DailyCap
	}
	return a.dailyCap
}

// usageDay keys the usage aggregate; counters reset implicitly at the UTC
// day boundary.
func usageDay(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
