package compliance

import (
	"context"
	"database/sql"
	"time"
)

// PostgresRepository reads calling windows and attempt counters.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ActiveWindows(ctx context.Context, state string) ([]Window, error) {
	// state = '' rows are nationwide windows.
	const q = `
SELECT state, start_local, end_local
FROM calling_windows
WHERE active = TRUE AND (state = $1 OR state = '')
`
	rows, err := r.db.QueryContext(ctx, q, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Window
	for rows.Next() {
		var w Window
		if err := rows.Scan(&w.State, &w.StartLocal, &w.EndLocal); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountAttempts(ctx context.Context, leadID int64, from, to time.Time) (int, error) {
	const q = `
SELECT COUNT(*)
FROM attempts
WHERE lead_id = $1 AND created_at >= $2 AND created_at < $3
`
	var n int
	if err := r.db.QueryRowContext(ctx, q, leadID, from, to).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
