package trunks

import (
	"context"
	"database/sql"
	"time"
)

// PostgresRepository reads trunk rows and derives health from recent call
// events. Health is computed, never stored.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) EnabledTrunks(ctx context.Context) ([]Trunk, error) {
	const q = `
SELECT id, name, enabled, weight
FROM trunks
WHERE enabled = TRUE
ORDER BY id
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trunk
	for rows.Next() {
		var t Trunk
		if err := rows.Scan(&t.ID, &t.Name, &t.Enabled, &t.Weight); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) HealthByTrunk(ctx context.Context, window time.Duration) (map[string]Health, error) {
	// call_events rows are written by CDR ingestion; sip_code 0 means the
	// call is still in flight and counts as a seizure only.
	const q = `
SELECT trunk,
       COUNT(*) AS seizures,
       COUNT(*) FILTER (WHERE answered) AS answers,
       COUNT(*) FILTER (WHERE sip_code >= 500 AND sip_code < 600) AS fivexx
FROM call_events
WHERE created_at >= NOW() - $1::interval
GROUP BY trunk
`
	rows, err := r.db.QueryContext(ctx, q, window.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Health)
	for rows.Next() {
		var name string
		var seizures, answers, fivexx int
		if err := rows.Scan(&name, &seizures, &answers, &fivexx); err != nil {
			return nil, err
		}
		h := Health{FiveXX: fivexx, HasData: seizures > 0}
		if seizures > 0 {
			h.ASR = float64(answers) / float64(seizures)
		}
		out[name] = h
	}
	return out, rows.Err()
}
