package numbers

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRepository persists DIDs and their per-day usage aggregates.
//
// Assumed tables:
// - dids
// - did_usage, UNIQUE (did_id, day)
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CandidatesForState(ctx context.Context, state string, day time.Time) ([]DID, error) {
	const q = `
SELECT d.id, d.number, d.state, d.enabled, d.health_score, d.daily_cap, d.last_used_at,
       COALESCE(u.calls_total, 0) AS used_today
FROM dids d
LEFT JOIN did_usage u ON u.did_id = d.id AND u.day = $2
WHERE d.enabled = TRUE AND ($1 = '' OR d.state = $1)
ORDER BY used_today ASC, d.health_score DESC, d.last_used_at ASC NULLS FIRST
`
	rows, err := r.db.QueryContext(ctx, q, state, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DID
	for rows.Next() {
		var d DID
		var lastUsed sql.NullTime
		if err := rows.Scan(&d.ID, &d.Number, &d.State, &d.Enabled, &d.HealthScore, &d.DailyCap, &lastUsed, &d.UsedToday); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			t := lastUsed.Time
			d.LastUsedAt = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) BumpUsage(ctx context.Context, didID int64, day, now time.Time) error {
	const usageQ = `
INSERT INTO did_usage (did_id, day, calls_total, unique_destinations, human, voicemail, fax, sit)
VALUES ($1, $2, 1, 1, 0, 0, 0, 0)
ON CONFLICT (did_id, day)
DO UPDATE SET calls_total = did_usage.calls_total + 1
`
	if _, err := r.db.ExecContext(ctx, usageQ, didID, day); err != nil {
		return err
	}

	const touchQ = `UPDATE dids SET last_used_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, touchQ, didID, now)
	return err
}

func (r *PostgresRepository) RecordClassification(ctx context.Context, didID int64, day time.Time, class string) error {
	var col string
	switch class {
	case ClassHuman:
		col = "human"
	case ClassVoicemail:
		col = "voicemail"
	case ClassFax:
		col = "fax"
	case ClassSIT:
		col = "sit"
	default:
		return fmt.Errorf("numbers: unknown classification %q", class)
	}

	vals := map[string]int{"human": 0, "voicemail": 0, "fax": 0, "sit": 0}
	vals[col] = 1

	// col is constrained to the fixed set above; safe to interpolate.
	q := fmt.Sprintf(`
INSERT INTO did_usage (did_id, day, calls_total, unique_destinations, human, voicemail, fax, sit)
VALUES ($1, $2, 0, 0, %d, %d, %d, %d)
ON CONFLICT (did_id, day)
DO UPDATE SET %s = did_usage.%s + 1
`, vals["human"], vals["voicemail"], vals["fax"], vals["sit"], col, col)
	_, err := r.db.ExecContext(ctx, q, didID, day)
	return err
}
