package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/core"
	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/pkg"
)

// Repository is the Postgres-backed event store. The primary key on
// (event_id, kind) carries the whole dedup guarantee; claims and leases
// ride on it with conditional upserts so the store stays correct across
// processes that share nothing but the database.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a Repository from an existing sql.DB. The
// caller manages the connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

var (
	_ core.Store       = (*Repository)(nil)
	_ core.LeaseStore  = (*Repository)(nil)
	_ core.ActivityLog = (*Repository)(nil)
)

// HasProcessed reports whether the event already has a terminal record.
// Pending claims do not count: a fresh one loses at Claim anyway, and a
// stale one must stay visible so Claim can take it over.
func (r *Repository) HasProcessed(ctx context.Context, eventID string, kind pkg.EventKind) (bool, error) {
	var seen bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (
            SELECT 1 FROM processed_events
            WHERE event_id = $1 AND kind = $2 AND outcome <> 'pending'
         )`,
		eventID, kind,
	).Scan(&seen)
	return seen, err
}

// Claim atomically inserts a pending record for ev, reporting whether this
// caller won it. A pending claim older than ten minutes is treated as
// abandoned by a crashed process and taken over, which keeps the contract
// at-least-once instead of at-most-never.
func (r *Repository) Claim(ctx context.Context, ev pkg.Event) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO processed_events (event_id, kind, outcome, sender_id, sender_name, message, processed_at)
         VALUES ($1, $2, 'pending', $3, $4, $5, NOW())
         ON CONFLICT (event_id, kind) DO UPDATE
             SET processed_at = NOW()
             WHERE processed_events.outcome = 'pending'
               AND processed_events.processed_at < NOW() - INTERVAL '10 minutes'`,
		ev.ID, ev.Kind, ev.SenderID, ev.SenderName, ev.Text,
	)
	if err != nil {
		return false, err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// RecordOutcome finalizes the pending record for rec's event. Terminal
// records are immutable, so the update only matches pending rows; finding
// none means the claim was lost or already finalized.
func (r *Repository) RecordOutcome(ctx context.Context, rec pkg.ProcessedRecord) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE processed_events
            SET outcome = $3, reply_id = $4, degraded = $5, note = $6, processed_at = $7
          WHERE event_id = $1 AND kind = $2 AND outcome = 'pending'`,
		rec.EventID, rec.Kind, rec.Outcome, rec.ReplyID, rec.Degraded, rec.Note, rec.ProcessedAt,
	)
	if err != nil {
		return err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no pending record for %s %s", rec.Kind, rec.EventID)
	}
	return nil
}

// ReleaseClaim removes a pending record so the event can be retried later.
// Terminal records are left alone.
func (r *Repository) ReleaseClaim(ctx context.Context, eventID string, kind pkg.EventKind) error {
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM processed_events
          WHERE event_id = $1 AND kind = $2 AND outcome = 'pending'`,
		eventID, kind,
	)
	return err
}

// AcquireLease takes or extends the named lease, reporting whether holder
// now owns it. An expired lease is taken over; a live one owned by someone
// else is not.
func (r *Repository) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO leases (name, holder, expires_at)
         VALUES ($1, $2, NOW() + make_interval(secs => $3))
         ON CONFLICT (name) DO UPDATE
             SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
             WHERE leases.expires_at < NOW() OR leases.holder = EXCLUDED.holder`,
		name, holder, ttl.Seconds(),
	)
	if err != nil {
		return false, err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// ReleaseLease frees the lease if holder still owns it.
func (r *Repository) ReleaseLease(ctx context.Context, name, holder string) error {
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM leases WHERE name = $1 AND holder = $2`,
		name, holder,
	)
	return err
}

// LogActivity appends one row to the audit trail.
func (r *Repository) LogActivity(ctx context.Context, kind, details string) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO bot_activity (id, activity_type, details)
         VALUES ($1, $2, $3)`,
		uuid.New(), kind, details,
	)
	return err
}

// Stats counts terminal records per kind and outcome for the health
// endpoint and the startup banner.
func (r *Repository) Stats(ctx context.Context) (pkg.Stats, error) {
	var stats pkg.Stats
	rows, err := r.DB.QueryContext(ctx,
		`SELECT kind, outcome, COUNT(*)
           FROM processed_events
          WHERE outcome <> 'pending'
          GROUP BY kind, outcome`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind pkg.EventKind
		var outcome pkg.Outcome
		var count int64
		if err := rows.Scan(&kind, &outcome, &count); err != nil {
			return stats, err
		}
		switch kind {
		case pkg.KindComment:
			stats.CommentsProcessed += count
			if outcome == pkg.OutcomeReplied {
				stats.CommentsReplied += count
			}
		case pkg.KindMessage:
			stats.MessagesProcessed += count
			if outcome == pkg.OutcomeReplied {
				stats.MessagesReplied += count
			}
		}
	}
	return stats, rows.Err()
}
