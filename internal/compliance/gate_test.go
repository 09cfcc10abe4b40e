package compliance

import (
	"context"
	"testing"
	"time"
)

type stubRepo struct {
	windows []Window
	count   int

	gotFrom time.Time
	gotTo   time.Time
}

func (s *stubRepo) ActiveWindows(ctx context.Context, state string) ([]Window, error) {
	return s.windows, nil
}

func (s *stubRepo) CountAttempts(ctx context.Context, leadID int64, from, to time.Time) (int, error) {
	s.gotFrom, s.gotTo = from, to
	return s.count, nil
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestInCallingWindow_ConvertsToLeadTimezone(t *testing.T) {
	// 15:00 UTC = 10:00 in Chicago, 08:00 in Los Angeles.
	now := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	repo := &stubRepo{windows: []Window{{State: "TX", StartLocal: "09:00", EndLocal: "21:00"}}}
	g := NewGate(repo, 8, fixedNow(now))

	ok, err := g.InCallingWindow(context.Background(), "TX", "America/Chicago")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ok {
		t.Fatalf("expected 10:00 local to be in 09:00-21:00 window")
	}

	ok, err = g.InCallingWindow(context.Background(), "CA", "America/Los_Angeles")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatalf("expected 08:00 local to be outside 09:00-21:00 window")
	}
}

func TestInCallingWindow_NoWindowsDefers(t *testing.T) {
	g := NewGate(&stubRepo{}, 8, fixedNow(time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)))
	ok, err := g.InCallingWindow(context.Background(), "ZZ", "UTC")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatalf("expected no match when no windows exist")
	}
}

func TestInCallingWindow_OvernightWrap(t *testing.T) {
	repo := &stubRepo{windows: []Window{{StartLocal: "20:00", EndLocal: "02:00"}}}
	g := NewGate(repo, 8, fixedNow(time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC)))
	ok, err := g.InCallingWindow(context.Background(), "", "UTC")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ok {
		t.Fatalf("expected 23:30 to fall inside 20:00-02:00")
	}
}

func TestUnderDailyCap_Boundary(t *testing.T) {
	now := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

	repo := &stubRepo{count: 7}
	g := NewGate(repo, 8, fixedNow(now))
	ok, err := g.UnderDailyCap(context.Background(), 1, "UTC")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ok {
		t.Fatalf("expected max-1 attempts to pass the cap")
	}

	repo.count = 8
	ok, err = g.UnderDailyCap(context.Background(), 1, "UTC")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatalf("expected max attempts to fail the cap")
	}
}

func TestUnderDailyCap_UsesLeadLocalDayBounds(t *testing.T) {
	// 03:00 UTC Jan 2 is still Jan 1 in New York; the counted day must start
	// at the lead's midnight, not UTC midnight.
	now := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	repo := &stubRepo{}
	g := NewGate(repo, 8, fixedNow(now))

	if _, err := g.UnderDailyCap(context.Background(), 1, "America/New_York"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	wantFrom := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC) // Jan 1 00:00 EST
	if !repo.gotFrom.Equal(wantFrom) {
		t.Fatalf("day start: got %v, want %v", repo.gotFrom, wantFrom)
	}
	if !repo.gotTo.Equal(wantFrom.AddDate(0, 0, 1)) {
		t.Fatalf("day end: got %v, want %v", repo.gotTo, wantFrom.AddDate(0, 0, 1))
	}
}
