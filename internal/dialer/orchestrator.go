// Package dialer runs the per-campaign call origination loops: pacing,
// compliance gating, caller-ID and trunk selection, and the origination
// commands themselves.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"dialer-platform/internal/numbers"
	"dialer-platform/internal/pacing"
	"dialer-platform/internal/stats"
	"dialer-platform/internal/telemetry"
	"dialer-platform/internal/telephony"
	"dialer-platform/internal/trunks"
)

// errAtCapacity stops the current batch without failing the transaction:
// attempts already originated in this batch must still commit.
var errAtCapacity = errors.New("dialer: campaign at channel capacity")

// ComplianceGate is the pre-dial policy check surface.
type ComplianceGate interface {
	InCallingWindow(ctx context.Context, state, tz string) (bool, error)
	UnderDailyCap(ctx context.Context, leadID int64, tz string) (bool, error)
}

// NumberAssigner selects the outbound caller-ID for a destination state.
type NumberAssigner interface {
	PickDID(ctx context.Context, state string) (numbers.DID, bool, error)
}

// TrunkPicker selects the egress trunk under a campaign's routing policy.
type TrunkPicker interface {
	Pick(ctx context.Context, policy trunks.Policy) (string, error)
}

// Broadcaster publishes observer events (campaign.update and friends).
type Broadcaster interface {
	Publish(event string, data any)
}

// Config tunes the loop cadence and the pacing model inputs.
type Config struct {
	CycleInterval    time.Duration
	OfflineBackoff   time.Duration
	StatsWindow      time.Duration
	TargetOccupancy  float64
	AvgHandleTimeSec float64
}

// Orchestrator runs one dial cycle per tick for a single campaign. One
// Orchestrator serves all campaigns; the Registry starts one Run goroutine
// per campaign.
type Orchestrator struct {
	store    Store
	gate     ComplianceGate
	assigner NumberAssigner
	router   TrunkPicker
	source   stats.Source
	limiter  ChannelLimiter
	cmd      telephony.Commander
	bus      Broadcaster
	cfg      Config
	log      *slog.Logger
}

func NewOrchestrator(
	store Store,
	gate ComplianceGate,
	assigner NumberAssigner,
	router TrunkPicker,
	source stats.Source,
	limiter ChannelLimiter,
	cmd telephony.Commander,
	bus Broadcaster,
	cfg Config,
	log *slog.Logger,
) *Orchestrator {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 500 * time.Millisecond
	}
	if cfg.OfflineBackoff <= 0 {
		cfg.OfflineBackoff = 5 * time.Second
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 15 * time.Minute
	}
	if cfg.TargetOccupancy <= 0 {
		cfg.TargetOccupancy = 0.85
	}
	if cfg.AvgHandleTimeSec <= 0 {
		cfg.AvgHandleTimeSec = 180
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		gate:     gate,
		assigner: assigner,
		router:   router,
		source:   source,
		limiter:  limiter,
		cmd:      cmd,
		bus:      bus,
		cfg:      cfg,
		log:      log,
	}
}

// Run drives the cycle loop for one campaign until ctx is cancelled. Cycle
// errors are logged and counted, never fatal; the next tick is always
// scheduled. A disconnected switch backs the loop off instead of burning
// cycles that cannot originate.
func (o *Orchestrator) Run(ctx context.Context, campaignID int64) {
	log := o.log.With("campaign_id", campaignID)
	log.Info("campaign loop started")
	defer log.Info("campaign loop stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay := o.cfg.CycleInterval
		if !o.cmd.Connected() {
			delay = o.cfg.OfflineBackoff
		} else if err := o.RunCycle(ctx, campaignID); err != nil {
			if ctx.Err() != nil {
				return
			}
			telemetry.CycleErrors.Inc()
			log.Error("dial cycle failed", "error", err)
		}
		timer.Reset(delay)
	}
}

// RunCycle performs one full pacing-and-dial pass for the campaign.
func (o *Orchestrator) RunCycle(ctx context.Context, campaignID int64) error {
	camp, err := o.store.Campaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if !camp.Status.CanDial() {
		return nil
	}

	st, err := o.source.CampaignStats(ctx, campaignID, o.cfg.StatsWindow)
	if err != nil {
		return fmt.Errorf("campaign stats: %w", err)
	}

	next := pacing.ComputeDialRate(
		o.cfg.TargetOccupancy,
		o.cfg.AvgHandleTimeSec,
		st.ASR,
		st.AbandonRate,
		camp.MaxAbandonRate,
		st.AgentsAvailable,
		camp.PacingRatio,
	)
	if err := o.store.UpdatePacing(ctx, campaignID, next); err != nil {
		return fmt.Errorf("persist pacing: %w", err)
	}
	telemetry.PacingGauge.WithLabelValues(strconv.FormatInt(campaignID, 10)).Set(next)

	batch := int(math.Floor(next))
	if batch < 1 {
		batch = 1
	}

	o.bus.Publish("campaign.update", CampaignUpdate{
		CampaignID:      campaignID,
		Pacing:          next,
		AbandonRate:     st.AbandonRate,
		AgentsAvailable: st.AgentsAvailable,
		BatchSize:       batch,
	})

	camp.PacingRatio = next
	return o.store.DialBatch(ctx, campaignID, batch, func(ctx context.Context, tx BatchTx) error {
		for _, lead := range tx.Leads() {
			err := o.dialLead(ctx, tx, camp, lead)
			if errors.Is(err, errAtCapacity) {
				// Remaining leads stay claimed but untouched; the tx
				// still commits the attempts already made.
				return nil
			}
			if err != nil {
				// One bad lead must not roll back siblings whose
				// originations already left the building.
				o.log.Error("lead dial failed",
					"campaign_id", campaignID, "lead_id", lead.ID, "error", err)
			}
		}
		return nil
	})
}

// dialLead runs the per-lead pipeline: compliance, caller-ID, trunk, channel
// slot, originate, record. Skips leave the lead untouched for a later cycle.
func (o *Orchestrator) dialLead(ctx context.Context, tx BatchTx, camp Campaign, lead Lead) error {
	inWindow, err := o.gate.InCallingWindow(ctx, lead.State, lead.Timezone)
	if err != nil {
		return err
	}
	if !inWindow {
		telemetry.LeadsDeferred.Inc()
		return nil
	}

	underCap, err := o.gate.UnderDailyCap(ctx, lead.ID, lead.Timezone)
	if err != nil {
		return err
	}
	if !underCap {
		telemetry.LeadsCapped.Inc()
		return tx.MarkLeadDone(ctx, lead.ID)
	}

	state := lead.State
	if state == "" {
		state = numbers.StateForNumber(lead.Phone)
	}
	did, ok, err := o.assigner.PickDID(ctx, state)
	if err != nil {
		return err
	}
	if !ok {
		telemetry.LeadsDeferred.Inc()
		o.log.Warn("no caller-id available", "campaign_id", camp.ID, "state", state)
		return nil
	}

	trunk, err := o.router.Pick(ctx, camp.RoutePolicy)
	if err != nil {
		return err
	}

	acquired, err := o.limiter.AcquireChannel(ctx, camp.ID, camp.MaxConcurrent)
	if err != nil {
		return err
	}
	if !acquired {
		return errAtCapacity
	}

	attemptID := uuid.NewString()
	req := telephony.OriginateRequest{
		CallerID:    did.Number,
		Destination: lead.Phone,
		Gateway:     trunk,
		Extension:   camp.QueueExt,
		Variables: map[string]string{
			"attempt_id":  attemptID,
			"campaign_id": strconv.FormatInt(camp.ID, 10),
			"list_id":     strconv.FormatInt(lead.ListID, 10),
			"lead_id":     strconv.FormatInt(lead.ID, 10),
			"did_id":      strconv.FormatInt(did.ID, 10),
			"trunk":       trunk,
		},
	}
	if err := o.cmd.Originate(ctx, req); err != nil {
		if relErr := o.limiter.ReleaseChannel(ctx, camp.ID); relErr != nil {
			o.log.Error("channel release after failed originate",
				"campaign_id", camp.ID, "error", relErr)
		}
		return fmt.Errorf("originate lead %d: %w", lead.ID, err)
	}

	now := time.Now()
	if err := tx.InsertAttempt(ctx, Attempt{
		ID:          attemptID,
		CampaignID:  camp.ID,
		ListID:      lead.ListID,
		LeadID:      lead.ID,
		DIDID:       did.ID,
		Trunk:       trunk,
		Destination: lead.Phone,
		State:       state,
		Result:      AttemptResultDialing,
		CreatedAt:   now,
	}); err != nil {
		return fmt.Errorf("record attempt for lead %d: %w", lead.ID, err)
	}
	if err := tx.MarkLeadDialing(ctx, lead.ID, now); err != nil {
		return fmt.Errorf("mark lead %d dialing: %w", lead.ID, err)
	}

	telemetry.CallsOriginated.Inc()
	return nil
}
