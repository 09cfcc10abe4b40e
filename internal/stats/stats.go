// Package stats feeds the pacing loop with live per-campaign observations.
package stats

import (
	"context"
	"time"
)

// DialStats is one trailing-window observation for a campaign.
type DialStats struct {
	Attempts        int     `json:"attempts"`
	Answered        int     `json:"answered"`
	Abandoned       int     `json:"abandoned"`
	ASR             float64 `json:"asr"`
	AbandonRate     float64 `json:"abandon_rate"`
	AgentsAvailable int     `json:"agents_available"`
}

// Source abstracts where the observations come from.
type Source interface {
	CampaignStats(ctx context.Context, campaignID int64, window time.Duration) (DialStats, error)
}

// Derive fills the ratio fields from raw counters.
// ASR is answers over seizures; abandon rate is abandons over answers, since
// safe-harbor abandonment only applies to answered calls.
func Derive(attempts, answered, abandoned, agents int) DialStats {
	out := DialStats{
		Attempts:        attempts,
		Answered:        answered,
		Abandoned:       abandoned,
		AgentsAvailable: agents,
	}
	if attempts > 0 {
		out.ASR = float64(answered) / float64(attempts)
	}
	if answered > 0 {
		out.AbandonRate = float64(abandoned) / float64(answered)
	}
	return out
}
