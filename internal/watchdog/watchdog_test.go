package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"dialer-platform/internal/telephony"
)

type recordedCommand struct {
	kind     string
	callUUID string
	arg      string
}

type stubCommander struct {
	mu   sync.Mutex
	cmds []recordedCommand
}

func (s *stubCommander) Connected() bool { return true }

func (s *stubCommander) Originate(ctx context.Context, req telephony.OriginateRequest) error {
	s.record("originate", "", req.Destination)
	return nil
}

func (s *stubCommander) Playback(ctx context.Context, callUUID, prompt string) error {
	s.record("playback", callUUID, prompt)
	return nil
}

func (s *stubCommander) Hangup(ctx context.Context, callUUID, cause string) error {
	s.record("hangup", callUUID, cause)
	return nil
}

func (s *stubCommander) record(kind, uuid, arg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, recordedCommand{kind: kind, callUUID: uuid, arg: arg})
}

func (s *stubCommander) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.cmds {
		if c.kind == kind {
			n++
		}
	}
	return n
}

type stubBus struct {
	mu     sync.Mutex
	events []CallUpdate
}

func (s *stubBus) Publish(event string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cu, ok := data.(CallUpdate); ok {
		s.events = append(s.events, cu)
	}
}

func (s *stubBus) countStatus(status string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Status == status {
			n++
		}
	}
	return n
}

type stubSlots struct {
	mu       sync.Mutex
	released []int64
}

func (s *stubSlots) ReleaseChannel(ctx context.Context, campaignID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, campaignID)
	return nil
}

func startWatchdog(t *testing.T, cmd telephony.Commander, bus Broadcaster, slots SlotReleaser, safeHarbor, grace time.Duration) (chan telephony.Event, func()) {
	t.Helper()
	w := New(cmd, bus, slots, nil, safeHarbor, grace, "ivr/abandon_notice.wav", nil)
	events := make(chan telephony.Event)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, events)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return events, func() {
		if n := w.PendingCalls(); n != 0 {
			t.Fatalf("expected no pending timer entries, got %d", n)
		}
	}
}

func answerEvent(uuid string) telephony.Event {
	return telephony.Event{
		Type:     telephony.EventAnswer,
		CallUUID: uuid,
		Variables: map[string]string{
			"campaign_id": "7",
			"lead_id":     "41",
		},
	}
}

func TestSafeHarborExpiry_AbandonsExactlyOnce(t *testing.T) {
	cmd := &stubCommander{}
	bus := &stubBus{}
	events, assertNoLeak := startWatchdog(t, cmd, bus, nil, 30*time.Millisecond, 10*time.Millisecond)

	events <- answerEvent("call-1")

	// Past safe harbor plus announcement grace.
	time.Sleep(120 * time.Millisecond)

	if n := bus.countStatus(StatusAbandoned); n != 1 {
		t.Fatalf("expected exactly one abandoned broadcast, got %d", n)
	}
	if n := cmd.count("playback"); n != 1 {
		t.Fatalf("expected one announcement playback, got %d", n)
	}
	if n := cmd.count("hangup"); n != 1 {
		t.Fatalf("expected exactly one terminate command, got %d", n)
	}
	assertNoLeak()
}

func TestBridgeBeforeExpiry_CancelsTimer(t *testing.T) {
	cmd := &stubCommander{}
	bus := &stubBus{}
	events, assertNoLeak := startWatchdog(t, cmd, bus, nil, 60*time.Millisecond, 10*time.Millisecond)

	events <- answerEvent("call-2")
	time.Sleep(20 * time.Millisecond)
	events <- telephony.Event{Type: telephony.EventBridge, CallUUID: "call-2"}

	time.Sleep(120 * time.Millisecond)

	if n := bus.countStatus(StatusAbandoned); n != 0 {
		t.Fatalf("expected no abandoned broadcast after bridge, got %d", n)
	}
	if n := cmd.count("hangup"); n != 0 {
		t.Fatalf("expected no terminate after bridge, got %d", n)
	}
	assertNoLeak()
}

func TestTransferCompletionCountsAsBridge(t *testing.T) {
	cmd := &stubCommander{}
	bus := &stubBus{}
	events, assertNoLeak := startWatchdog(t, cmd, bus, nil, 60*time.Millisecond, 10*time.Millisecond)

	events <- answerEvent("call-3")
	events <- telephony.Event{
		Type:        telephony.EventExecuteComplete,
		CallUUID:    "call-3",
		Application: telephony.TransferApp,
	}

	time.Sleep(120 * time.Millisecond)

	if n := bus.countStatus(StatusAbandoned); n != 0 {
		t.Fatalf("expected transfer completion to cancel safe harbor, got %d abandons", n)
	}
	assertNoLeak()
}

func TestHangup_CancelsTimerAndReleasesSlot(t *testing.T) {
	cmd := &stubCommander{}
	bus := &stubBus{}
	slots := &stubSlots{}
	events, assertNoLeak := startWatchdog(t, cmd, bus, slots, 60*time.Millisecond, 10*time.Millisecond)

	events <- answerEvent("call-4")
	events <- telephony.Event{
		Type:        telephony.EventHangupComplete,
		CallUUID:    "call-4",
		BillSeconds: 12,
		Variables:   map[string]string{"campaign_id": "7"},
	}

	time.Sleep(120 * time.Millisecond)

	if n := bus.countStatus(StatusAbandoned); n != 0 {
		t.Fatalf("expected no abandon after hangup, got %d", n)
	}
	if n := bus.countStatus(StatusHangup); n != 1 {
		t.Fatalf("expected one hangup broadcast, got %d", n)
	}
	slots.mu.Lock()
	released := len(slots.released)
	slots.mu.Unlock()
	if released != 1 {
		t.Fatalf("expected one channel slot release, got %d", released)
	}

	bus.mu.Lock()
	last := bus.events[len(bus.events)-1]
	bus.mu.Unlock()
	if last.BillSeconds != 12 {
		t.Fatalf("expected billsec 12 on hangup broadcast, got %d", last.BillSeconds)
	}
	assertNoLeak()
}

func TestHangupForUnknownCallStillBroadcasts(t *testing.T) {
	cmd := &stubCommander{}
	bus := &stubBus{}
	events, assertNoLeak := startWatchdog(t, cmd, bus, nil, 60*time.Millisecond, 10*time.Millisecond)

	// Inbound or agent-leg hangups arrive for calls the watchdog never
	// tracked; they must not panic and still notify observers.
	events <- telephony.Event{Type: telephony.EventHangupComplete, CallUUID: "call-x"}
	time.Sleep(20 * time.Millisecond)

	if n := bus.countStatus(StatusHangup); n != 1 {
		t.Fatalf("expected hangup broadcast for untracked call, got %d", n)
	}
	assertNoLeak()
}
