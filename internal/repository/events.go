package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jvanheule/webhook-poller/internal/model"
)

// DefaultMaxAttempts is how many delivery attempts an event gets before it is
// dead-lettered.
const DefaultMaxAttempts = 20

// claimSQL picks the oldest eligible rows, skipping rows already locked by a
// concurrent poller, and flips them to 'sending' in the same statement. The
// outer SELECT re-orders because UPDATE ... RETURNING has no defined order.
const claimSQL = `
WITH picked AS (
    SELECT id
      FROM webhook_events
     WHERE status = 'pending'
       AND next_attempt_at <= now()
     ORDER BY id
     LIMIT $1
       FOR UPDATE SKIP LOCKED
), claimed AS (
    UPDATE webhook_events w
       SET status = 'sending'
      FROM picked p
     WHERE w.id = p.id
 RETURNING w.id, w.event_type, w.payload, w.attempts, w.source_key
)
SELECT id, event_type, payload, attempts, source_key
  FROM claimed
 ORDER BY id
`

// EventsRepository defines persistence for the webhook_events table. All
// Mark* methods run on the caller's transaction: the poller claims a batch
// and writes every outcome inside one tx, so a crash before commit returns
// the whole batch to 'pending'.
type EventsRepository interface {
	// ClaimBatch locks and transitions up to limit eligible rows to
	// 'sending', oldest first, and returns them in id order.
	ClaimBatch(ctx context.Context, tx *sqlx.Tx, limit int) ([]model.ClaimedEvent, error)

	// MarkSkipped finalizes an unroutable event. No attempt is charged.
	MarkSkipped(ctx context.Context, tx *sqlx.Tx, id int64) error

	// MarkSent finalizes a delivered event with the gateway confirmation id.
	MarkSent(ctx context.Context, tx *sqlx.Tx, id int64, confirmationID string) error

	// MarkPending returns a row to 'pending' untouched (attempts and
	// next_attempt_at unchanged), used when delivery failed for reasons
	// unrelated to the event itself.
	MarkPending(ctx context.Context, tx *sqlx.Tx, id int64) error

	// MarkDead dead-letters an event with its final attempt count and error.
	MarkDead(ctx context.Context, tx *sqlx.Tx, id int64, attempts int, errMsg string) error

	// MarkRetry schedules another attempt, or dead-letters the event when
	// attempts has reached the configured maximum.
	MarkRetry(ctx context.Context, tx *sqlx.Tx, id int64, attempts int, errMsg string, nextAttemptAt time.Time) error

	// CountByStatus returns row counts grouped by status.
	CountByStatus(ctx context.Context) (map[model.EventStatus]int64, error)

	// ListDead pages through dead-lettered events, newest first.
	ListDead(ctx context.Context, limit, offset int) ([]model.WebhookEvent, error)
}

// EventsRepositoryImpl is a sqlx-backed implementation against Postgres.
type EventsRepositoryImpl struct {
	db          *sqlx.DB
	maxAttempts int
}

// NewEventsRepository constructs an EventsRepositoryImpl. A non-positive
// maxAttempts falls back to DefaultMaxAttempts.
func NewEventsRepository(db *sqlx.DB, maxAttempts int) *EventsRepositoryImpl {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &EventsRepositoryImpl{db: db, maxAttempts: maxAttempts}
}

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *EventsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

func (r *EventsRepositoryImpl) ClaimBatch(ctx context.Context, tx *sqlx.Tx, limit int) ([]model.ClaimedEvent, error) {
	var events []model.ClaimedEvent
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &events, claimSQL, limit)
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *EventsRepositoryImpl) MarkSkipped(ctx context.Context, tx *sqlx.Tx, id int64) error {
	const q = `UPDATE webhook_events SET status = 'skipped' WHERE id = $1`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, id)
		return err
	})
}

func (r *EventsRepositoryImpl) MarkSent(ctx context.Context, tx *sqlx.Tx, id int64, confirmationID string) error {
	const q = `
		UPDATE webhook_events
		   SET status = 'sent', sent_at = now(), error = NULL, delivery_confirmation_id = $1
		 WHERE id = $2
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, confirmationID, id)
		return err
	})
}

func (r *EventsRepositoryImpl) MarkPending(ctx context.Context, tx *sqlx.Tx, id int64) error {
	const q = `UPDATE webhook_events SET status = 'pending' WHERE id = $1`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, id)
		return err
	})
}

func (r *EventsRepositoryImpl) MarkDead(ctx context.Context, tx *sqlx.Tx, id int64, attempts int, errMsg string) error {
	const q = `
		UPDATE webhook_events
		   SET status = 'dead', attempts = $1, error = left($2, 1000)
		 WHERE id = $3
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, attempts, errMsg, id)
		return err
	})
}

func (r *EventsRepositoryImpl) MarkRetry(ctx context.Context, tx *sqlx.Tx, id int64, attempts int, errMsg string, nextAttemptAt time.Time) error {
	if attempts >= r.maxAttempts {
		return r.MarkDead(ctx, tx, id, attempts, errMsg)
	}

	const q = `
		UPDATE webhook_events
		   SET status = 'pending',
		       attempts = $1,
		       next_attempt_at = $2,
		       error = left($3, 1000)
		 WHERE id = $4
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, attempts, nextAttemptAt, errMsg, id)
		return err
	})
}

func (r *EventsRepositoryImpl) CountByStatus(ctx context.Context) (map[model.EventStatus]int64, error) {
	const q = `SELECT status, count(*) AS n FROM webhook_events GROUP BY status`

	var rows []struct {
		Status model.EventStatus `db:"status"`
		N      int64             `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}

	counts := make(map[model.EventStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

func (r *EventsRepositoryImpl) ListDead(ctx context.Context, limit, offset int) ([]model.WebhookEvent, error) {
	const q = `
		SELECT id, event_type, payload, source_key, status, attempts,
		       next_attempt_at, error, sent_at, delivery_confirmation_id, created_at
		  FROM webhook_events
		 WHERE status = 'dead'
		 ORDER BY id DESC
		 LIMIT $1 OFFSET $2
	`
	var events []model.WebhookEvent
	if err := r.db.SelectContext(ctx, &events, q, limit, offset); err != nil {
		return nil, err
	}
	return events, nil
}
