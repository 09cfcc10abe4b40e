package stats

import (
	"context"
	"database/sql"
	"time"
)

// PostgresSource derives observations from the attempts table and the agent
// presence table maintained by the external queue module.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) CampaignStats(ctx context.Context, campaignID int64, window time.Duration) (DialStats, error) {
	const attemptsQ = `
SELECT COUNT(*) AS attempts,
       COUNT(*) FILTER (WHERE result = 'Answered') AS answered,
       COUNT(*) FILTER (WHERE result = 'Abandoned') AS abandoned
FROM attempts
WHERE campaign_id = $1 AND created_at >= NOW() - $2::interval
`
	var attempts, answered, abandoned int
	if err := s.db.QueryRowContext(ctx, attemptsQ, campaignID, window.String()).Scan(&attempts, &answered, &abandoned); err != nil {
		return DialStats{}, err
	}

	const agentsQ = `
SELECT COUNT(*)
FROM agent_status a
JOIN campaigns c ON c.queue_ext = a.queue
WHERE c.id = $1 AND a.status = 'waiting'
`
	var agents int
	if err := s.db.QueryRowContext(ctx, agentsQ, campaignID).Scan(&agents); err != nil {
		if err != sql.ErrNoRows {
			return DialStats{}, err
		}
	}

	return Derive(attempts, answered, abandoned, agents), nil
}
