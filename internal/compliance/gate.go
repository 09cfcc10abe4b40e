// Package compliance holds the pre-dial policy checks: calling-hour windows
// and per-lead daily attempt caps. DNC suppression is not a callable check;
// it is enforced as a set exclusion in batch selection.
package compliance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Window is one permitted local time-of-day range for a region.
type Window struct {
	State      string
	StartLocal string // "HH:MM", lead-local
	EndLocal   string // "HH:MM", lead-local
}

// Repository abstracts the persisted compliance data.
type Repository interface {
	// ActiveWindows returns the active calling windows applying to a state,
	// including state-agnostic windows.
	ActiveWindows(ctx context.Context, state string) ([]Window, error)

	// CountAttempts counts attempts for a lead with created_at in [from, to).
	CountAttempts(ctx context.Context, leadID int64, from, to time.Time) (int, error)
}

// Gate evaluates the per-lead compliance checks. Both must pass before a
// lead is dialed.
type Gate struct {
	repo          Repository
	maxPerLeadDay int
	now           func() time.Time
}

func NewGate(repo Repository, maxPerLeadDay int, now func() time.Time) *Gate {
	if maxPerLeadDay <= 0 {
		maxPerLeadDay = 8
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{repo: repo, maxPerLeadDay: maxPerLeadDay, now: now}
}

// InCallingWindow reports whether "now" converted to the lead's timezone
// falls inside any active window for the lead's state. A lead outside every
// window is deferred, not failed.
func (g *Gate) InCallingWindow(ctx context.Context, state, tz string) (bool, error) {
	windows, err := g.repo.ActiveWindows(ctx, state)
	if err != nil {
		return false, fmt.Errorf("compliance: windows for %q: %w", state, err)
	}
	if len(windows) == 0 {
		return false, nil
	}

	local := g.now().In(location(tz))
	minutes := local.Hour()*60 + local.Minute()
	for _, w := range windows {
		if windowContains(w, minutes) {
			return true, nil
		}
	}
	return false, nil
}

// UnderDailyCap reports whether the lead has fewer than the configured number
// of attempts within the lead's local calendar day. The day boundary is the
// lead's midnight, not UTC midnight.
func (g *Gate) UnderDailyCap(ctx context.Context, leadID int64, tz string) (bool, error) {
	loc := location(tz)
	localNow := g.now().In(loc)
	dayStart := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	n, err := g.repo.CountAttempts(ctx, leadID, dayStart, dayEnd)
	if err != nil {
		return false, fmt.Errorf("compliance: attempt count for lead %d: %w", leadID, err)
	}
	return n < g.maxPerLeadDay, nil
}

// MaxPerLeadDay exposes the configured cap for logging and reporting.
func (g *Gate) MaxPerLeadDay() int { return g.maxPerLeadDay }

// location resolves an IANA zone name; unknown or empty zones fall back to UTC.
func location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func windowContains(w Window, minutes int) bool {
	start, ok1 := parseClock(w.StartLocal)
	end, ok2 := parseClock(w.EndLocal)
	if !ok1 || !ok2 {
		return false
	}
	if start <= end {
		return minutes >= start && minutes < end
	}
	// Overnight window, e.g. 20:00-02:00.
	return minutes >= start || minutes < end
}

func parseClock(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
