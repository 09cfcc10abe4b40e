package dialer

import (
	"time"

	"dialer-platform/internal/trunks"
)

// CampaignStatus is the campaign lifecycle state. The orchestrator loop
// re-reads it every cycle and only dials while the campaign is running.
type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignRunning CampaignStatus = "running"
	CampaignPaused  CampaignStatus = "paused"
	CampaignStopped CampaignStatus = "stopped"
)

// CanDial reports whether a cycle may select leads for this status.
func (s CampaignStatus) CanDial() bool { return s == CampaignRunning }

// Campaign is the dialing configuration for one outbound campaign.
type Campaign struct {
	ID             int64
	Name           string
	Status         CampaignStatus
	PacingRatio    float64
	MaxConcurrent  int
	MaxAbandonRate float64

	// QueueExt is the post-answer routing target at the switch.
	QueueExt string

	RoutePolicy trunks.Policy
}

// LeadStatus transitions new → in_progress → done within one call cycle.
// External retry scheduling may move a lead back to new.
type LeadStatus string

const (
	LeadNew        LeadStatus = "new"
	LeadInProgress LeadStatus = "in_progress"
	LeadDone       LeadStatus = "done"
)

// Lead is one dialable contact.
type Lead struct {
	ID         int64
	ListID     int64
	CampaignID int64
	Phone      string // E.164
	State      string
	Timezone   string
	Status     LeadStatus
	Priority   int
	Attempts   int
}

// Attempt is the immutable append-only record of one origination. The core
// writes it once with result "Dialing"; CDR ingestion updates the result out
// of band.
type Attempt struct {
	ID          string // uuid
	CampaignID  int64
	ListID      int64
	LeadID      int64
	DIDID       int64
	Trunk       string
	Destination string // E.164
	State       string
	Result      string
	CreatedAt   time.Time
}

// AttemptResultDialing is the initial result value for every attempt.
const AttemptResultDialing = "Dialing"

// CampaignUpdate is the observer payload for campaign.update events.
type CampaignUpdate struct {
	CampaignID      int64   `json:"campaign_id"`
	Pacing          float64 `json:"pacing"`
	AbandonRate     float64 `json:"abandon_rate"`
	AgentsAvailable int     `json:"agents_available"`
	BatchSize       int     `json:"batch_size"`
}
