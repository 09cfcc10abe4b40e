// Package watchdog enforces predictive-dialer safe harbor: every answered
// call must reach an agent within the safe-harbor window or be played a
// compliance announcement and released.
package watchdog

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"dialer-platform/internal/telemetry"
	"dialer-platform/internal/telephony"
)

// Broadcaster pushes realtime call state to observers.
type Broadcaster interface {
	Publish(event string, data any)
}

// SlotReleaser returns a campaign's concurrent-channel slot on hangup.
type SlotReleaser interface {
	ReleaseChannel(ctx context.Context, campaignID int64) error
}

// OutcomeRecorder tallies answered-call classifications per DID.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, didID int64, class string) error
}

// CallUpdate is the observer payload for call.update events.
type CallUpdate struct {
	CallUUID    string `json:"call_uuid"`
	Status      string `json:"status"`
	CampaignID  int64  `json:"campaign_id,omitempty"`
	LeadID      int64  `json:"lead_id,omitempty"`
	BillSeconds int    `json:"billsec,omitempty"`
}

const (
	StatusConnected = "connected"
	StatusAbandoned = "abandoned"
	StatusHangup    = "hangup"

	hangupCauseNormal = "NORMAL_CLEARING"
)

type pendingCall struct {
	timer      *time.Timer
	campaignID int64
	leadID     int64
}

// Watchdog consumes the switch event stream and runs one bounded timer per
// answered call. Per-call state lives only in the pending map; every terminal
// transition must remove its entry, since each entry holds a live timer.
type Watchdog struct {
	cmd      telephony.Commander
	bus      Broadcaster
	slots    SlotReleaser    // optional
	outcomes OutcomeRecorder // optional
	log      *slog.Logger

	safeHarbor time.Duration
	grace      time.Duration
	prompt     string

	mu      sync.Mutex
	pending map[string]*pendingCall
}

func New(cmd telephony.Commander, bus Broadcaster, slots SlotReleaser, outcomes OutcomeRecorder, safeHarbor, grace time.Duration, prompt string, log *slog.Logger) *Watchdog {
	if safeHarbor <= 0 {
		safeHarbor = 2000 * time.Millisecond
	}
	if grace <= 0 {
		grace = 1500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watchdog{
		cmd:        cmd,
		bus:        bus,
		slots:      slots,
		outcomes:   outcomes,
		log:        log,
		safeHarbor: safeHarbor,
		grace:      grace,
		prompt:     prompt,
		pending:    make(map[string]*pendingCall),
	}
}

// Run consumes events until ctx is cancelled or the stream closes. It must
// never block the orchestrator; the two interact only through the switch
// channel and the database.
func (w *Watchdog) Run(ctx context.Context, events <-chan telephony.Event) {
	for {
		select {
		case <-ctx.Done():
			w.cancelAll()
			return
		case ev, ok := <-events:
			if !ok {
				w.cancelAll()
				return
			}
			w.handle(ctx, ev)
		}
	}
}

// PendingCalls reports how many answered calls are inside their safe-harbor
// window right now.
func (w *Watchdog) PendingCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Watchdog) handle(ctx context.Context, ev telephony.Event) {
	switch ev.Type {
	case telephony.EventAnswer:
		w.onAnswer(ev)
	case telephony.EventBridge:
		w.onBridge(ev.CallUUID)
	case telephony.EventExecuteComplete:
		if ev.Application == telephony.TransferApp {
			w.onBridge(ev.CallUUID)
		}
	case telephony.EventHangupComplete:
		w.onHangup(ctx, ev)
	}
}

func (w *Watchdog) onAnswer(ev telephony.Event) {
	uuid := ev.CallUUID
	campaignID := varInt64(ev.Variables, "campaign_id")
	leadID := varInt64(ev.Variables, "lead_id")

	w.mu.Lock()
	if _, exists := w.pending[uuid]; exists {
		w.mu.Unlock()
		return
	}
	p := &pendingCall{campaignID: campaignID, leadID: leadID}
	p.timer = time.AfterFunc(w.safeHarbor, func() { w.onSafeHarborExpired(uuid) })
	w.pending[uuid] = p
	w.mu.Unlock()

	telemetry.PendingSafeHarbor.Inc()
	w.bus.Publish("call.update", CallUpdate{CallUUID: uuid, Status: StatusConnected, CampaignID: campaignID, LeadID: leadID})
}

func (w *Watchdog) onBridge(uuid string) {
	if w.remove(uuid) != nil {
		telemetry.PendingSafeHarbor.Dec()
		telemetry.CallsBridged.Inc()
	}
}

func (w *Watchdog) onSafeHarborExpired(uuid string) {
	p := w.remove(uuid)
	if p == nil {
		// Bridge or hangup won the race; nothing to do.
		return
	}
	telemetry.PendingSafeHarbor.Dec()
	telemetry.CallsAbandoned.Inc()

	w.log.Warn("call abandoned after safe-harbor window",
		"call_uuid", uuid, "campaign_id", p.campaignID, "lead_id", p.leadID)
	w.bus.Publish("call.update", CallUpdate{CallUUID: uuid, Status: StatusAbandoned, CampaignID: p.campaignID, LeadID: p.leadID})

	// Regulatory sequence: announce to the still-connected party, then hang
	// up after the announcement had time to finish.
	ctx := context.Background()
	if err := w.cmd.Playback(ctx, uuid, w.prompt); err != nil {
		w.log.Error("abandon announcement failed", "call_uuid", uuid, "err", err)
	}
	time.AfterFunc(w.grace, func() {
		if err := w.cmd.Hangup(context.Background(), uuid, hangupCauseNormal); err != nil {
			w.log.Error("abandon hangup failed", "call_uuid", uuid, "err", err)
		}
	})
}

func (w *Watchdog) onHangup(ctx context.Context, ev telephony.Event) {
	uuid := ev.CallUUID
	if p := w.remove(uuid); p != nil {
		telemetry.PendingSafeHarbor.Dec()
	}

	campaignID := varInt64(ev.Variables, "campaign_id")
	if w.slots != nil && campaignID > 0 {
		if err := w.slots.ReleaseChannel(ctx, campaignID); err != nil {
			w.log.Error("channel slot release failed", "campaign_id", campaignID, "err", err)
		}
	}

	if w.outcomes != nil {
		if didID := varInt64(ev.Variables, "did_id"); didID > 0 {
			if class, ok := ev.Variables["amd_result"]; ok {
				if err := w.outcomes.RecordOutcome(ctx, didID, class); err != nil {
					w.log.Error("outcome record failed", "did_id", didID, "err", err)
				}
			}
		}
	}

	w.bus.Publish("call.update", CallUpdate{
		CallUUID:    uuid,
		Status:      StatusHangup,
		CampaignID:  campaignID,
		LeadID:      varInt64(ev.Variables, "lead_id"),
		BillSeconds: ev.BillSeconds,
	})
}

// remove deletes and returns the pending entry, stopping its timer. Safe to
// call from the timer callback itself.
func (w *Watchdog) remove(uuid string) *pendingCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pending[uuid]
	if !ok {
		return nil
	}
	delete(w.pending, uuid)
	p.timer.Stop()
	return p
}

func (w *Watchdog) cancelAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for uuid, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, uuid)
	}
}

func varInt64(vars map[string]string, key string) int64 {
	if vars == nil {
		return 0
	}
	n, err := strconv.ParseInt(vars[key], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
