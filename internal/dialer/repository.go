package dialer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"dialer-platform/pkg/utils"
)

var ErrNotFound = errors.New("dialer: not found")

// BatchTx is the unit of work over one claimed lead batch. All writes happen
// inside the same transaction that holds the row locks.
type BatchTx interface {
	Leads() []Lead
	MarkLeadDone(ctx context.Context, leadID int64) error
	MarkLeadDialing(ctx context.Context, leadID int64, now time.Time) error
	InsertAttempt(ctx context.Context, a Attempt) error
}

// Store abstracts campaign/lead persistence for the orchestrator.
type Store interface {
	Campaign(ctx context.Context, id int64) (Campaign, error)
	UpdatePacing(ctx context.Context, id int64, pacing float64) error
	SetStatus(ctx context.Context, id int64, status CampaignStatus) error
	ListCampaigns(ctx context.Context) ([]Campaign, error)
	RunningCampaignIDs(ctx context.Context) ([]int64, error)

	// DialBatch claims up to limit eligible leads under
	// FOR UPDATE SKIP LOCKED and runs fn while the locks are held, so
	// concurrent cycles never double-claim a lead. DNC-listed numbers are
	// excluded in selection, not checked per lead.
	DialBatch(ctx context.Context, campaignID int64, limit int, fn func(ctx context.Context, tx BatchTx) error) error
}

// PostgresStore is the production Store.
//
// Assumed tables: campaigns, leads, attempts, dnc_numbers.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Campaign(ctx context.Context, id int64) (Campaign, error) {
	const q = `
SELECT id, name, status, pacing_ratio, max_concurrent, max_abandon_rate, queue_ext, route_policy
FROM campaigns
WHERE id = $1
`
	return scanCampaign(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	const q = `
SELECT id, name, status, pacing_ratio, max_concurrent, max_abandon_rate, queue_ext, route_policy
FROM campaigns
ORDER BY id
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdatePacing(ctx context.Context, id int64, pacing float64) error {
	const q = `UPDATE campaigns SET pacing_ratio = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id, pacing)
	return err
}

func (s *PostgresStore) SetStatus(ctx context.Context, id int64, status CampaignStatus) error {
	const q = `UPDATE campaigns SET status = $2 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, string(status))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RunningCampaignIDs(ctx context.Context) ([]int64, error) {
	const q = `SELECT id FROM campaigns WHERE status = 'running' ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DialBatch(ctx context.Context, campaignID int64, limit int, fn func(ctx context.Context, tx BatchTx) error) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		leads, err := selectLeadBatch(ctx, tx, campaignID, limit)
		if err != nil {
			return err
		}
		return fn(ctx, &pgBatchTx{tx: tx, leads: leads})
	})
}

// selectLeadBatch claims eligible leads. SKIP LOCKED keeps concurrent loop
// instances from double-claiming; the DNC exclusion is a set-membership test
// here, never a separate check.
func selectLeadBatch(ctx context.Context, tx *sql.Tx, campaignID int64, limit int) ([]Lead, error) {
	const q = `
SELECT l.id, l.list_id, l.campaign_id, l.phone, l.state, l.timezone, l.status, l.priority, l.attempts
FROM leads l
WHERE l.campaign_id = $1
  AND l.status IN ('new', 'in_progress')
  AND NOT EXISTS (SELECT 1 FROM dnc_numbers d WHERE d.phone = l.phone)
ORDER BY l.priority DESC, l.id ASC
LIMIT $2
FOR UPDATE OF l SKIP LOCKED
`
	rows, err := tx.QueryContext(ctx, q, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.ID, &l.ListID, &l.CampaignID, &l.Phone, &l.State, &l.Timezone, &l.Status, &l.Priority, &l.Attempts); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type pgBatchTx struct {
	tx    *sql.Tx
	leads []Lead
}

func (b *pgBatchTx) Leads() []Lead { return b.leads }

func (b *pgBatchTx) MarkLeadDone(ctx context.Context, leadID int64) error {
	const q = `UPDATE leads SET status = 'done' WHERE id = $1`
	_, err := b.tx.ExecContext(ctx, q, leadID)
	return err
}

func (b *pgBatchTx) MarkLeadDialing(ctx context.Context, leadID int64, now time.Time) error {
	const q = `
UPDATE leads
SET status = 'in_progress', attempts = attempts + 1, last_attempt_at = $2
WHERE id = $1
`
	_, err := b.tx.ExecContext(ctx, q, leadID, now)
	return err
}

func (b *pgBatchTx) InsertAttempt(ctx context.Context, a Attempt) error {
	const q = `
INSERT INTO attempts (
  id, campaign_id, list_id, lead_id, did_id, trunk, destination, state, result, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := b.tx.ExecContext(ctx, q,
		a.ID,
		a.CampaignID,
		a.ListID,
		a.LeadID,
		a.DIDID,
		a.Trunk,
		a.Destination,
		a.State,
		a.Result,
		a.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (Campaign, error) {
	var c Campaign
	var policy []byte
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Status,
		&c.PacingRatio,
		&c.MaxConcurrent,
		&c.MaxAbandonRate,
		&c.QueueExt,
		&policy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, err
	}
	if len(policy) > 0 {
		if err := json.Unmarshal(policy, &c.RoutePolicy); err != nil {
			return Campaign{}, err
		}
	}
	return c, nil
}
